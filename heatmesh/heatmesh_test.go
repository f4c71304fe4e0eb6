package heatmesh

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFrame(t *testing.T, dest, src int, msgID uint8, msg interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(msg))
	frame := make([]byte, 3+buf.Len())
	frame[0], frame[1], frame[2] = byte(dest), byte(src), msgID
	copy(frame[3:], buf.Bytes())
	return frame
}

// The coordinator's loop can lead a slow worker by almost one iteration per
// intervening rank, leaving that many clock frames undelivered. They must
// never strand a halo frame queued behind them in rx.
func TestDispatcherDeliversHaloBehindPendingClocks(t *testing.T) {
	cfg := testConfig(16, 4, 8)
	rx := make(chan []byte, 16)
	s, err := NewSolver(1, cfg, make(chan []byte, 16), rx)
	require.NoError(t, err)
	s.SetFailFunc(func(f string, a ...interface{}) { t.Errorf(f, a...) })
	go s.rxMsgHandler()
	t.Cleanup(func() { close(rx) })

	for i := 0; i < cfg.Workers-1; i++ {
		rx <- encodeFrame(t, 1, 0, CLOCK, clockMsg{Elapsed: float64(i)})
	}
	rx <- encodeFrame(t, 1, 0, HALO, haloMsg{Row: []float64{1, 2, 3, 4}})

	select {
	case row := <-s.haloUpCh:
		assert.Equal(t, []float64{1, 2, 3, 4}, row)
	case <-time.After(2 * time.Second):
		t.Fatal("halo row stranded behind undelivered clock frames")
	}
}

// Abort's broadcast must be on the wire before the fail handler runs; the
// default handler exits the process and would drop anything still queued.
func TestAbortDrainsBroadcastBeforeFailing(t *testing.T) {
	group := newLoopbackGroup(t, testConfig(4, 4, 2))

	peerFailed := make(chan string, 1)
	group[1].SetFailFunc(func(f string, a ...interface{}) {
		select {
		case peerFailed <- fmt.Sprintf(f, a...):
		default:
		}
	})

	var localMsg string
	var queuedAtFail int
	group[0].SetFailFunc(func(f string, a ...interface{}) {
		localMsg = fmt.Sprintf(f, a...)
		queuedAtFail = len(group[0].tx)
	})

	group[0].Abort("halo row width mismatch")

	assert.Contains(t, localMsg, "aborting run")
	assert.Equal(t, 0, queuedAtFail, "outbound frames still queued when the fail handler ran")
	select {
	case msg := <-peerFailed:
		assert.Contains(t, msg, "aborted by rank 0")
	case <-time.After(2 * time.Second):
		t.Fatal("abort broadcast never reached the peer")
	}
}
