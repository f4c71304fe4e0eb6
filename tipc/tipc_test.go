package tipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvFrame(t *testing.T, rx <-chan []byte) []byte {
	t.Helper()
	select {
	case frame := <-rx:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func TestFabricRoutesByDestination(t *testing.T) {
	f := NewFabric(3)
	defer f.Close()

	tx0, _ := f.Endpoint(0)
	_, rx2 := f.Endpoint(2)

	tx0 <- []byte{2, 0, 42, 0xAA}
	frame := recvFrame(t, rx2)
	assert.Equal(t, []byte{2, 0, 42, 0xAA}, frame)
}

func TestFabricSelfSend(t *testing.T) {
	f := NewFabric(2)
	defer f.Close()

	tx, rx := f.Endpoint(1)
	tx <- []byte{1, 1, 7}
	assert.Equal(t, []byte{1, 1, 7}, recvFrame(t, rx))
}

func TestFabricPreservesSenderOrder(t *testing.T) {
	f := NewFabric(2)
	defer f.Close()

	tx0, _ := f.Endpoint(0)
	_, rx1 := f.Endpoint(1)

	for i := 0; i < 20; i++ {
		tx0 <- []byte{1, 0, byte(i)}
	}
	for i := 0; i < 20; i++ {
		frame := recvFrame(t, rx1)
		require.Equal(t, byte(i), frame[2], "frame %d out of order", i)
	}
}
