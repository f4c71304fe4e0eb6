/*
Package ipc implements the inter-worker messaging layer.

This file contains the TCP mesh connecting every worker of a run. It moves
opaque frames whose first header byte names the destination rank; framing on
the wire is a 4-byte big-endian length prefix. One outbound connection per
peer carries this worker's sends; inbound connections are read-only.
*/
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

// frameBufSize is how many undelivered frames each direction may buffer.
const frameBufSize = 256

// dialAttempts bounds how long a worker waits for its peers to come up.
const dialAttempts = 50

// ErrPeerUnreachable indicates a peer never accepted our connection.
var ErrPeerUnreachable = errors.New("ipc: peer unreachable")

type peer struct {
	rank int
	addr string
	conn net.Conn
}

// defaultEOFGrace is how long an endpoint waits after a peer hangs up for
// its own run to be marked complete before declaring the peer lost.
const defaultEOFGrace = 2 * time.Second

// Mesh is one worker's endpoint of the run-wide TCP mesh.
type Mesh struct {
	rank     int
	listener *net.TCPListener
	tx, rx   chan []byte

	mu    sync.Mutex
	peers []*peer

	// quiesced is closed once this endpoint's run has completed, making
	// peer hangups expected rather than fatal.
	quiesced    chan struct{}
	quiesceOnce sync.Once
	closeOnce   sync.Once
	eofGrace    time.Duration

	// fail is invoked on any unrecoverable communication error. The run has
	// no partial-failure tolerance, so the default terminates the process.
	fail func(format string, a ...interface{})
}

// NewMesh starts this worker's endpoint: it listens on basePort+rank,
// connects to every other worker (retrying until the whole group is up) and
// returns the tx/rx frame channel pair.
//
// addrs holds one host address per rank; addrs[rank] is ignored.
func NewMesh(rank int, addrs []string, basePort int) (*Mesh, chan<- []byte, <-chan []byte, error) {
	m := &Mesh{
		rank:     rank,
		tx:       make(chan []byte, frameBufSize),
		rx:       make(chan []byte, frameBufSize),
		peers:    make([]*peer, len(addrs)),
		quiesced: make(chan struct{}),
		eofGrace: defaultEOFGrace,
		fail:     log.Fatalf,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", basePort+rank))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ipc: listen as rank %d: %w", rank, err)
	}
	m.listener = ln.(*net.TCPListener)

	go m.acceptTask()
	go m.sendTask()

	for r, addr := range addrs {
		if r == rank {
			continue
		}
		if err := m.connect(r, addr, basePort); err != nil {
			return nil, nil, nil, err
		}
	}
	return m, m.tx, m.rx, nil
}

// Rank returns this endpoint's rank.
func (m *Mesh) Rank() int { return m.rank }

// SetFailFunc overrides the fatal-error handler, for tests.
func (m *Mesh) SetFailFunc(f func(format string, a ...interface{})) { m.fail = f }

// setEOFGrace shortens the peer-loss detection window, for tests.
func (m *Mesh) setEOFGrace(d time.Duration) {
	m.mu.Lock()
	m.eofGrace = d
	m.mu.Unlock()
}

// Quiesce marks this endpoint's run as complete. Call it once the final
// barrier has released, before any peer starts tearing its connections down:
// a peer hangup received before Quiesce means a worker died mid-run, which
// is fatal for the whole group.
func (m *Mesh) Quiesce() {
	m.quiesceOnce.Do(func() { close(m.quiesced) })
}

// Close shuts the endpoint down. Pending sends are flushed first by closing
// the tx channel and letting sendTask drain it. Safe to call more than once.
func (m *Mesh) Close() {
	m.closeOnce.Do(func() {
		m.Quiesce()
		close(m.tx)
		m.listener.Close()
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, p := range m.peers {
			if p != nil && p.conn != nil {
				p.conn.Close()
			}
		}
	})
}

// connect dials one peer, retrying while its listener comes up, and
// registers this endpoint's rank with a handshake frame.
func (m *Mesh) connect(rank int, addr string, basePort int) error {
	target := fmt.Sprintf("%s:%d", addr, basePort+rank)
	var conn net.Conn
	var err error
	for i := 0; i < dialAttempts; i++ {
		conn, err = net.DialTimeout("tcp", target, 2*time.Second)
		if err == nil {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("%w: rank %d at %s: %v", ErrPeerUnreachable, rank, target, err)
	}
	if err := writeFrame(conn, []byte{byte(rank), byte(m.rank), 0}); err != nil {
		return fmt.Errorf("ipc: handshake with rank %d: %w", rank, err)
	}
	m.mu.Lock()
	m.peers[rank] = &peer{rank: rank, addr: addr, conn: conn}
	m.mu.Unlock()
	return nil
}

// sendTask drains the tx channel, routing self-addressed frames straight to
// rx and everything else onto the peer's outbound connection.
func (m *Mesh) sendTask() {
	for frame := range m.tx {
		dest := int(frame[0])
		if dest == m.rank {
			m.rx <- frame
			continue
		}
		m.mu.Lock()
		p := m.peers[dest]
		m.mu.Unlock()
		if p == nil || p.conn == nil {
			m.fail("ipc: rank %d has no connection to rank %d", m.rank, dest)
			return
		}
		if err := writeFrame(p.conn, frame); err != nil {
			m.fail("ipc: rank %d send to rank %d: %v", m.rank, dest, err)
			return
		}
	}
}

// acceptTask admits inbound connections. The first frame of each connection
// is the handshake naming the sender's rank; everything after is payload.
func (m *Mesh) acceptTask() {
	for {
		conn, err := m.listener.AcceptTCP()
		if err != nil {
			return // listener closed
		}
		go m.receiveTask(conn)
	}
}

// receiveTask pushes every frame of one inbound connection to rx, in order.
func (m *Mesh) receiveTask(conn *net.TCPConn) {
	hs, err := readFrame(conn)
	if err != nil || len(hs) != 3 {
		m.fail("ipc: rank %d rejected malformed handshake: %v", m.rank, err)
		return
	}
	for {
		frame, err := readFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// A hangup is only clean once our own run has finished;
				// before that it means the peer died mid-run. The grace
				// window absorbs the teardown race where the peer's final
				// frames arrive just ahead of our Quiesce.
				m.mu.Lock()
				grace := m.eofGrace
				m.mu.Unlock()
				select {
				case <-m.quiesced:
					return
				case <-time.After(grace):
					m.fail("ipc: rank %d lost peer rank %d mid-run", m.rank, hs[1])
					return
				}
			}
			m.fail("ipc: rank %d receive from rank %d: %v", m.rank, hs[1], err)
			return
		}
		m.rx <- frame
	}
}

func writeFrame(conn net.Conn, frame []byte) error {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(frame)))
	if _, err := conn.Write(hdr); err != nil {
		return err
	}
	_, err := conn.Write(frame)
	return err
}

func readFrame(conn net.Conn) ([]byte, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return nil, err
	}
	frame := make([]byte, binary.BigEndian.Uint32(hdr))
	if _, err := io.ReadFull(conn, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
