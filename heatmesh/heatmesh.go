/*
Package heatmesh implements a distributed, iterative 2-D heat-diffusion
solver. A run is a group of cooperating workers, each owning one horizontal
slab of the global grid, exchanging boundary rows with its neighbours every
iteration and agreeing on termination through a broadcast wall clock.

This file contains the Solver type, the wire message set and the top-level
receive dispatcher. Workers coordinate exclusively through framed messages;
the frames travel over the ipc package's TCP mesh in multi-host runs or the
tipc package's loopback fabric in single-host runs and tests.
*/
package heatmesh

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/DistributedClocks/GoVector/govec"
	"gonum.org/v1/gonum/mat"

	"github.com/slabgrid/heatmesh/configs"
)

// CoordinatorRank is the rank that owns the global grid, the run clock and
// the snapshot buffer.
const CoordinatorRank = 0

// List of message IDs sent between workers.
const (
	SEED    = 10 /* Coordinator -> Worker: chunk of the initial grid     */
	HALO    = 20 /* Worker      -> Neighbour: one boundary row           */
	DELTA   = 30 /* Worker      -> Coordinator: local max delta          */
	REDUCE  = 31 /* Coordinator -> Worker: global max delta              */
	SNAP    = 40 /* Worker      -> Coordinator: owned rows for snapshot  */
	CLOCK   = 50 /* Coordinator -> Worker: elapsed wall-clock seconds    */
	BARRREQ = 60 /* Worker      -> Coordinator: barrier arrival          */
	BARRRSP = 61 /* Coordinator -> Worker: barrier release               */
	ABORT   = 70 /* Any         -> All: unrecoverable failure            */
)

var msgName = map[uint8]string{
	SEED: "SEED", HALO: "HALO", DELTA: "DELTA", REDUCE: "REDUCE",
	SNAP: "SNAP", CLOCK: "CLOCK", BARRREQ: "BARRREQ", BARRRSP: "BARRRSP",
	ABORT: "ABORT",
}

// LogChan carries formatted log lines to the DumpLog drainer.
var LogChan = make(chan string, 100)

// DumpLog drains LogChan to stdout. Run it as a goroutine when any worker
// has a debug level above zero.
func DumpLog() {
	for s := range LogChan {
		fmt.Print(s)
	}
}

// ErrBadGrid indicates an initial grid whose shape does not match the
// configured global dimensions.
var ErrBadGrid = errors.New("heatmesh: initial grid does not match configured dimensions")

// Message payloads. Every frame is a 3-byte header (dest, src, msgID)
// followed by the gob encoding of one of these, optionally wrapped in a
// GoVector clock.
type seedMsg struct{ Rows [][]float64 }

type haloMsg struct{ Row []float64 }

type deltaMsg struct{ Delta float64 }

type reduceMsg struct{ Delta float64 }

type snapMsg struct{ Rows [][]float64 }

type clockMsg struct{ Elapsed float64 }

// barrierMsg carries no information beyond its arrival, but gob refuses
// field-less types, so it carries one.
type barrierMsg struct{ Seq int }

type abortMsg struct{ Reason string }

type snapChunk struct {
	src  int
	rows [][]float64
}

// Solver is one worker's view of the run. Exactly one goroutine (or process)
// drives each Solver; the slab it owns is never shared.
type Solver struct {
	cfg  configs.Config
	rank int
	part Partition
	topo Topology
	slab *Slab
	exec *Executor

	tx chan<- []byte
	rx <-chan []byte

	out  io.Writer
	fail func(format string, a ...interface{})

	vecLog  *govec.GoLog
	vecOpts govec.GoLogOptions

	// Typed delivery channels fed by rxMsgHandler.
	seedCh     chan [][]float64
	haloUpCh   chan []float64
	haloDownCh chan []float64
	deltaCh    chan float64
	reduceCh   chan float64
	snapCh     chan snapChunk
	clockCh    chan float64
	barrReqCh  chan struct{}
	barrRspCh  chan struct{}

	// The collective engine: asynchronous reduction and gather operations
	// are enqueued here and executed strictly in issue order, which is what
	// keeps every worker's collectives matched iteration for iteration.
	ops        chan *pendingOp
	engineDone chan struct{}

	// Coordinator only.
	snapshot *mat.Dense

	debugLevel int
	start      time.Time
}

// NewSolver builds one worker. tx and rx are the framed-message channel pair
// obtained from a transport endpoint for this rank.
func NewSolver(rank int, cfg configs.Config, tx chan<- []byte, rx <-chan []byte) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	part, err := NewPartition(cfg.Rows, cfg.Columns, cfg.Workers)
	if err != nil {
		return nil, err
	}
	s := &Solver{
		cfg:  cfg,
		rank: rank,
		part: part,
		topo: part.TopologyFor(rank),
		slab: NewSlab(part.LocalRows, part.Cols),
		exec: NewExecutor(0),
		tx:   tx,
		rx:   rx,
		out:  os.Stdout,
		fail: log.Fatalf,

		seedCh:     make(chan [][]float64, 1),
		haloUpCh:   make(chan []float64, 4),
		haloDownCh: make(chan []float64, 4),
		deltaCh:    make(chan float64, 256),
		reduceCh:   make(chan float64, 4),
		snapCh:     make(chan snapChunk, 256),
		// One CLOCK frame is pending per iteration the coordinator leads a
		// worker by. The halo chain bounds that lead to one iteration per
		// intervening rank, so the buffer must hold Workers frames: a full
		// dispatch channel blocks the dispatcher and strands every frame
		// queued behind it.
		clockCh: make(chan float64, cfg.Workers),
		barrReqCh:  make(chan struct{}, 256),
		barrRspCh:  make(chan struct{}, 4),

		ops:        make(chan *pendingOp, 8),
		engineDone: make(chan struct{}),

		debugLevel: cfg.Debug,
	}
	if rank == CoordinatorRank {
		s.snapshot = mat.NewDense(cfg.Rows, cfg.Columns, nil)
	}
	if cfg.VectorLog != "" {
		process := cfg.VectorLog + strconv.Itoa(rank)
		s.vecLog = govec.InitGoVector(process, process, govec.GetDefaultConfig())
		s.vecOpts = govec.GetDefaultLogOptions()
	}
	return s, nil
}

// Rank returns this worker's rank.
func (s *Solver) Rank() int { return s.rank }

// SetOutput redirects the coordinator's progress and summary lines.
func (s *Solver) SetOutput(w io.Writer) { s.out = w }

// SetFailFunc overrides the fatal-error handler, for tests. The default
// terminates the process, mirroring a group-wide abort.
func (s *Solver) SetFailFunc(f func(format string, a ...interface{})) { s.fail = f }

// Startup launches the receive dispatcher and the collective engine. It must
// be called before Run.
func (s *Solver) Startup() {
	go s.rxMsgHandler()
	go s.engine()
}

// Exit stops the collective engine after its queue drains. The receive
// dispatcher stops when the transport closes the rx channel.
func (s *Solver) Exit() {
	close(s.ops)
	<-s.engineDone
	s.LogInfo("Elapsed Time: %s", time.Since(s.start))
}

/*---------------------------------------------------------------------*/
/*------------------------Messaging Functions--------------------------*/

// send encodes the message and puts the framed result on the transport.
func (s *Solver) send(dest int, msgID uint8, msg interface{}) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		panic(err)
	}

	payload := buf.Bytes()
	if s.vecLog != nil {
		payload = s.vecLog.PrepareSend("Tx "+msgName[msgID], payload, s.vecOpts)
	}
	frame := make([]byte, 3+len(payload))
	frame[0], frame[1], frame[2] = byte(dest), byte(s.rank), msgID
	copy(frame[3:], payload)
	s.LogMsg("Send[%d]:Msg[%s]", dest, msgName[msgID])
	s.tx <- frame
}

// rxMsgHandler dispatches incoming frames onto the typed delivery channels.
// It exits when the transport closes the rx channel.
func (s *Solver) rxMsgHandler() {
	for frame := range s.rx {
		if len(frame) < 3 {
			s.fail("heatmesh: rank %d received malformed frame", s.rank)
			return
		}
		src, msgID := int(frame[1]), frame[2]
		payload := frame[3:]
		if s.vecLog != nil {
			var unpacked []byte
			s.vecLog.UnpackReceive("Rx "+msgName[msgID], payload, &unpacked, s.vecOpts)
			payload = unpacked
		}
		s.LogMsg("Recv[%d]:Msg[%s]", src, msgName[msgID])

		d := gob.NewDecoder(bytes.NewReader(payload))
		switch msgID {
		case SEED:
			var m seedMsg
			s.decode(d, &m)
			s.seedCh <- m.Rows
		case HALO:
			var m haloMsg
			s.decode(d, &m)
			switch src {
			case s.topo.Up:
				s.haloUpCh <- m.Row
			case s.topo.Down:
				s.haloDownCh <- m.Row
			default:
				s.fail("heatmesh: rank %d got halo row from non-neighbour rank %d", s.rank, src)
				return
			}
		case DELTA:
			var m deltaMsg
			s.decode(d, &m)
			s.deltaCh <- m.Delta
		case REDUCE:
			var m reduceMsg
			s.decode(d, &m)
			s.reduceCh <- m.Delta
		case SNAP:
			var m snapMsg
			s.decode(d, &m)
			s.snapCh <- snapChunk{src: src, rows: m.Rows}
		case CLOCK:
			var m clockMsg
			s.decode(d, &m)
			s.clockCh <- m.Elapsed
		case BARRREQ:
			s.barrReqCh <- struct{}{}
		case BARRRSP:
			s.barrRspCh <- struct{}{}
		case ABORT:
			var m abortMsg
			s.decode(d, &m)
			s.fail("heatmesh: rank %d aborted by rank %d: %s", s.rank, src, m.Reason)
			return
		default:
			s.fail("heatmesh: rank %d received unknown message ID %d", s.rank, msgID)
			return
		}
	}
}

func (s *Solver) decode(d *gob.Decoder, v interface{}) {
	if err := d.Decode(v); err != nil {
		s.Abort(fmt.Sprintf("decode: %v", err))
	}
}

// Abort tells every other worker the run is dead and then fails locally.
// Communication failures have no recovery path: inconsistent ghost rows or a
// skipped collective would silently corrupt every worker's results.
func (s *Solver) Abort(reason string) {
	for r := 0; r < s.cfg.Workers; r++ {
		if r != s.rank {
			s.send(r, ABORT, abortMsg{Reason: reason})
		}
	}
	s.flushTx()
	s.fail("heatmesh: rank %d aborting run: %s", s.rank, reason)
}

// flushTx waits for the transport to pick up every queued outbound frame.
// The default fail handler exits the process, and a frame still sitting in
// the channel buffer at that point is lost, so the ABORT broadcast must be
// on the wire first.
func (s *Solver) flushTx() {
	deadline := time.Now().Add(2 * time.Second)
	for len(s.tx) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// The transport may still be writing the last frame it dequeued.
	time.Sleep(50 * time.Millisecond)
}

/*---------------------------------------------------------------------*/
/*--------------------------Logging Functions--------------------------*/

// SetDebug sets the log verbosity. Lower levels are included in higher
// levels: 0 disables output, 1 errors, 2 info, 3 message trace, 4 debug.
func (s *Solver) SetDebug(level int) {
	s.debugLevel = level
}

// LogError used to log any error messages
func (s *Solver) LogError(f string, a ...interface{}) {
	if s.debugLevel > 0 {
		s.log(f, a...)
	}
}

// LogInfo used to log any info messages
func (s *Solver) LogInfo(f string, a ...interface{}) {
	if s.debugLevel > 1 {
		s.log(f, a...)
	}
}

// LogMsg used to log messages sent to and received from the transport
func (s *Solver) LogMsg(f string, a ...interface{}) {
	if s.debugLevel > 2 {
		s.log(f, a...)
	}
}

// LogDebug used to log verbose debug info useful for debugging the system
func (s *Solver) LogDebug(f string, a ...interface{}) {
	if s.debugLevel > 3 {
		s.log(f, a...)
	}
}

func (s *Solver) log(f string, a ...interface{}) {
	line := fmt.Sprintf("[%d]-", s.rank) + fmt.Sprintf(f, a...) + "\n"
	select {
	case LogChan <- line:
	default: // nobody draining, drop rather than stall the run
	}
}
