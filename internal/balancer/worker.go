package balancer

import (
	"log/slog"
	"net"
	"time"

	"github.com/lanetnet/dnsbalancer/internal/pool"
)

// rawPacket is what a socket-reading goroutine hands to the worker's event
// loop: a received datagram plus which socket it arrived on. Exactly one of
// Frontend/ForwarderSock is non-nil, identifying whether this belongs on
// the accept path or the obtain path.
type rawPacket struct {
	Buf           []byte
	N             int
	Addr          *net.UDPAddr
	Frontend      *FrontendSocket
	ForwarderSock *ForwarderSocket
}

// Worker is a single-threaded execution context: one cooperative event
// loop, its own tracking table, its own private prep/fwd queues, and
// rep/wdt_rep queues other workers may push onto during a reload handoff.
//
// Each queue is a FIFO plus a wake notifier, with an extra short critical
// section on the public queues. In Go, a channel already is exactly that:
// send/receive are FIFO-ordered per sender, the runtime's internal lock is
// the "short critical section", and a blocked receive is the wake. So
// prep/fwd/rep/wdtRep are plain channels here; no separate notifier or
// manual locking is layered on top.
type Worker struct {
	ID  int
	ctx *Context

	frontendSockets  []*FrontendSocket
	forwarderSockets []*ForwarderSocket // regular, client-facing traffic only, union of every frontend's allowed set
	watchdogSockets  []*ForwarderSocket // probe traffic only

	// forwardersByFrontend restricts selection to the subset a task's
	// origin frontend is configured to use, per its forwarders list.
	forwardersByFrontend map[*Frontend][]*ForwarderSocket

	selector Selector
	tracking *TrackingTable

	acceptCh chan rawPacket
	obtainCh chan rawPacket

	prep   chan *Task
	fwd    chan *Task
	rep    chan *Task
	wdtRep chan *Task

	exit chan struct{}
	done chan struct{}

	probeSeq uint16

	// bufPool recycles the fixed-size receive buffers reader goroutines
	// read datagrams into. Every stage handler that consumes a rawPacket
	// copies what it needs out of Buf before this worker's event loop moves
	// on, so the buffer is free to return to the pool immediately after.
	bufPool *pool.BufferPool

	logger *slog.Logger
}

const workerQueueDepth = 1024

// NewWorker constructs a worker with no sockets attached; the Attach*
// methods add its frontend, forwarder and watchdog sockets. selector
// chooses among forwarderSockets on the prepare stage.
func NewWorker(id int, ctx *Context, selector Selector, logger *slog.Logger) *Worker {
	return &Worker{
		ID:                   id,
		ctx:                  ctx,
		selector:             selector,
		tracking:             NewTrackingTable(),
		forwardersByFrontend: make(map[*Frontend][]*ForwarderSocket),
		bufPool:              pool.NewBufferPool(ctx.MaxPktSize),
		acceptCh: make(chan rawPacket, workerQueueDepth),
		obtainCh: make(chan rawPacket, workerQueueDepth),
		prep:     make(chan *Task, workerQueueDepth),
		fwd:      make(chan *Task, workerQueueDepth),
		rep:      make(chan *Task, workerQueueDepth),
		wdtRep:   make(chan *Task, workerQueueDepth),
		exit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// AttachFrontendSocket adds a frontend socket to this worker's set and
// starts its reader goroutine.
func (w *Worker) AttachFrontendSocket(fs *FrontendSocket) {
	w.frontendSockets = append(w.frontendSockets, fs)
	go w.readFrontend(fs)
}

// AttachForwarderSocket adds a regular forwarder socket, associates it with
// fe's allowed-forwarder subset, and starts its reader goroutine. Build
// dials a separate socket for every (frontend, forwarder) pair, so a
// forwarder shared by two frontends is attached once per frontend, each
// time with its own socket.
func (w *Worker) AttachForwarderSocket(fe *Frontend, fs *ForwarderSocket) {
	w.forwarderSockets = append(w.forwarderSockets, fs)
	w.forwardersByFrontend[fe] = append(w.forwardersByFrontend[fe], fs)
	go w.readForwarder(fs)
}

// forwarderSocketsFor returns the forwarder sockets a task originating on
// fe may be sent to. Falls back to the worker's full set if fe is nil or
// has no forwarder sockets attached for it. Watchdog probes never come
// through here: they are queued straight onto fwd with their socket set.
func (w *Worker) forwarderSocketsFor(fe *Frontend) []*ForwarderSocket {
	if fe == nil {
		return w.forwarderSockets
	}
	if subset, ok := w.forwardersByFrontend[fe]; ok {
		return subset
	}
	return w.forwarderSockets
}

// AttachWatchdogSocket adds a watchdog-only forwarder socket and starts its
// reader goroutine.
func (w *Worker) AttachWatchdogSocket(fs *ForwarderSocket) {
	w.watchdogSockets = append(w.watchdogSockets, fs)
	go w.readForwarder(fs)
}

// readFrontend blocks on ReadFromUDP in a loop, pushing each datagram to
// acceptCh. It returns when the socket is closed by Stop.
func (w *Worker) readFrontend(fs *FrontendSocket) {
	for {
		buf := w.bufPool.Get()
		n, addr, err := fs.Conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		select {
		case w.acceptCh <- rawPacket{Buf: buf, N: n, Addr: addr, Frontend: fs}:
		case <-w.exit:
			return
		}
	}
}

// readForwarder blocks on ReadFromUDP for a connected forwarder socket,
// pushing each datagram to obtainCh.
func (w *Worker) readForwarder(fs *ForwarderSocket) {
	for {
		buf := w.bufPool.Get()
		n, addr, err := fs.Conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		select {
		case w.obtainCh <- rawPacket{Buf: buf, N: n, Addr: addr, ForwarderSock: fs}:
		case <-w.exit:
			return
		}
	}
}

// Run is the worker's cooperative event loop. It services exactly one
// ready source per iteration — Go's select already makes a pseudo-random
// choice among ready cases, so no single source can starve others without
// an explicit priority scheme.
func (w *Worker) Run(gcInterval, watchdogInterval, epochTick time.Duration) {
	defer close(w.done)

	gcTimer := time.NewTicker(gcInterval)
	defer gcTimer.Stop()
	wdtTimer := time.NewTicker(watchdogInterval)
	defer wdtTimer.Stop()
	epochTimer := time.NewTicker(epochTick)
	defer epochTimer.Stop()

	for {
		select {
		case pkt := <-w.acceptCh:
			w.handleAccept(pkt)
		case task := <-w.prep:
			w.handlePrepare(task)
		case task := <-w.fwd:
			w.handleForward(task)
		case pkt := <-w.obtainCh:
			w.handleObtain(pkt)
		case task := <-w.rep:
			w.handleReply(task)
		case task := <-w.wdtRep:
			w.handleWatchdogReply(task)
		case <-gcTimer.C:
			w.handleGC()
		case <-wdtTimer.C:
			w.handleWatchdogRequest()
		case <-epochTimer.C:
			w.ctx.AdvanceEpoch()
		case <-w.exit:
			w.handleExit()
			return
		}
	}
}

// Stop signals the worker's event loop and reader goroutines to exit and
// closes every owned socket. It does not wait for in-flight tasks; callers
// wanting a graceful drain should call Context.WaitDrain first.
func (w *Worker) Stop() {
	close(w.exit)
	<-w.done
}
