/*
Package tipc implements the loopback inter-worker messaging layer.

This is the in-process counterpart of package ipc: it moves the same framed
messages between workers running as goroutines of one process, without any
sockets. It backs unit tests and single-host runs.
*/
package tipc

// frameBufSize is how many undelivered frames each worker may accumulate.
const frameBufSize = 256

// Fabric wires n workers together in memory. Worker k sends on the tx
// channel of endpoint k; a router goroutine per endpoint delivers each frame
// to the rx channel of the rank named in the frame header.
type Fabric struct {
	rx []chan []byte
	tx []chan []byte
}

// NewFabric creates a fabric for n workers, n at most 255.
func NewFabric(n int) *Fabric {
	f := &Fabric{
		rx: make([]chan []byte, n),
		tx: make([]chan []byte, n),
	}
	for i := 0; i < n; i++ {
		f.rx[i] = make(chan []byte, frameBufSize)
		f.tx[i] = make(chan []byte, frameBufSize)
	}
	for i := 0; i < n; i++ {
		go f.route(f.tx[i])
	}
	return f
}

// Endpoint returns the tx/rx channel pair of one worker. Frames carry the
// destination rank in their first header byte; a worker may send to itself.
func (f *Fabric) Endpoint(rank int) (tx chan<- []byte, rx <-chan []byte) {
	return f.tx[rank], f.rx[rank]
}

// Close stops the routers. Call only once every worker has finished sending.
func (f *Fabric) Close() {
	for _, tx := range f.tx {
		close(tx)
	}
}

// route delivers frames from one sender to their destinations in order.
func (f *Fabric) route(tx <-chan []byte) {
	for frame := range tx {
		f.rx[frame[0]] <- frame
	}
}
