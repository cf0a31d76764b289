package balancer

import (
	"github.com/lanetnet/dnsbalancer/internal/dnsfp"
	"github.com/lanetnet/dnsbalancer/internal/helpers"
)

// handleAccept is the accept stage: a datagram arrived on a
// frontend socket. It becomes a REGULAR task and moves to the prep queue.
func (w *Worker) handleAccept(pkt rawPacket) {
	w.ctx.incInFlight()
	if w.ctx.Metrics != nil {
		w.ctx.Metrics.IncFrontendIn(pkt.Frontend.Frontend.Name)
	}

	task := newTask(w.ctx.MaxPktSize, Regular)
	copy(task.Buf, pkt.Buf[:pkt.N])
	task.Length = pkt.N
	task.ClientAddr = pkt.Addr
	task.OriginFrontend = pkt.Frontend
	task.OriginFrontendAddr = pkt.Frontend.Frontend.Addr.String()
	w.bufPool.Put(pkt.Buf)

	select {
	case w.prep <- task:
	default:
		// prep queue full: treat like a receive failure, release and
		// decrement rather than block the single-threaded loop.
		w.recordDrop("prep queue full")
		w.ctx.decInFlight()
	}
}

// handlePrepare is the prepare stage: pick a live forwarder, fingerprint
// the query with the client's source port, and move to the fwd queue.
func (w *Worker) handlePrepare(task *Task) {
	var originFrontend *Frontend
	if task.OriginFrontend != nil {
		originFrontend = task.OriginFrontend.Frontend
	}
	sock, err := w.selector.Pick(w.forwarderSocketsFor(originFrontend), task)
	if err != nil {
		w.recordDrop("no live forwarder")
		w.ctx.decInFlight()
		return
	}

	// ClientAddr.Port is an int by net.UDPAddr's definition even though a UDP
	// port never exceeds 16 bits; clamp instead of a bare conversion so a
	// malformed address can't wrap into a different client's port.
	clientPort := helpers.ClampIntToUint16(task.ClientAddr.Port)
	parsed, err := dnsfp.ParseRequest(task.Buf[:task.Length], clientPort)
	if err != nil {
		w.recordDrop("parse error")
		w.ctx.decInFlight()
		return
	}
	if err := dnsfp.RewriteForUpstream(task.Buf[:task.Length], clientPort); err != nil {
		w.recordDrop("rewrite error")
		w.ctx.decInFlight()
		return
	}

	task.Forwarder = sock
	task.Fingerprint = parsed.Fingerprint
	task.OriginalID = parsed.WireID

	select {
	case w.fwd <- task:
	default:
		w.recordDrop("fwd queue full")
		w.ctx.decInFlight()
	}
}

// handleForward is the forward stage: send upstream and, only on success,
// insert into the tracking table. in_flight is untouched on success: the
// task stays live until obtain+reply or GC releases it.
func (w *Worker) handleForward(task *Task) {
	if _, err := task.Forwarder.Conn.Write(task.Buf[:task.Length]); err != nil {
		w.recordDrop("forward send failed")
		w.ctx.decInFlight()
		return
	}
	if w.ctx.Metrics != nil {
		w.ctx.Metrics.IncForwarderOut(task.Forwarder.Forwarder.Name)
	}

	task.Epoch = w.ctx.Epoch()
	if evicted := w.tracking.Insert(task); evicted != nil {
		// Duplicate fingerprint, silently replaced. The evicted task
		// already incremented in_flight on accept and is never going to be
		// obtained now, so it must be released here.
		w.recordDrop("duplicate fingerprint evicted")
		w.ctx.decInFlight()
	}
}

// handleObtain is the obtain stage: a datagram arrived on a forwarder
// socket. Regular and watchdog replies both flow through here; only the
// tracked task's Class decides which queue it lands on next.
func (w *Worker) handleObtain(pkt rawPacket) {
	w.ctx.incInFlight()

	replyBuf := make([]byte, pkt.N)
	copy(replyBuf, pkt.Buf[:pkt.N])
	w.bufPool.Put(pkt.Buf)

	parsed, err := dnsfp.ParseReply(replyBuf)
	if err != nil {
		w.recordDrop("reply parse error")
		w.ctx.decInFlight()
		return
	}
	if w.ctx.Metrics != nil && pkt.ForwarderSock != nil {
		w.ctx.Metrics.IncForwarderIn(pkt.ForwarderSock.Forwarder.Name, parsed.Flags)
	}

	tracked := w.tracking.Delete(parsed.Fingerprint)
	if tracked == nil {
		// Correlation miss: expected under GC or reordering past TTL, not
		// an error.
		w.recordCorrelationMiss()
		w.ctx.decInFlight()
		return
	}
	// tracked's own in_flight unit (set at accept, or at the watchdog
	// request handler for probes) is released here: the reply task built
	// below carries the work forward under the increment taken at the top
	// of this handler, so this decrement and that increment are a matched
	// transfer, not a double-count.
	w.ctx.decInFlight()

	if err := dnsfp.RestoreClientID(replyBuf, tracked.OriginalID); err != nil {
		w.recordDrop("restore id failed")
		w.ctx.decInFlight()
		return
	}

	reply := newTask(w.ctx.MaxPktSize, tracked.Class)
	reply.Buf = replyBuf
	reply.Length = len(replyBuf)
	reply.ClientAddr = tracked.ClientAddr
	reply.OriginFrontend = tracked.OriginFrontend
	reply.OriginFrontendAddr = tracked.OriginFrontendAddr
	reply.OriginalID = tracked.OriginalID
	reply.WatchdogTarget = tracked.WatchdogTarget

	destWorker, redirected := w.destinationWorker()
	reply.Redirected = redirected

	switch reply.Class {
	case Watchdog:
		w.enqueueOrDrop(destWorker.wdtRep, reply, "wdt_rep queue full")
	default:
		w.enqueueOrDrop(destWorker.rep, reply, "rep queue full")
	}

	if redirected {
		// In-flight accounting moves atomically with the handoff.
		w.ctx.decInFlight()
		destWorker.ctx.incInFlight()
	}
}

// destinationWorker picks the worker a reply should land on: this worker,
// unless the context has a reload successor, in which case a worker of the
// successor context, picked round-robin.
func (w *Worker) destinationWorker() (dest *Worker, redirected bool) {
	if next := w.ctx.nextWorker(); next != nil {
		return next, true
	}
	return w, false
}

func (w *Worker) enqueueOrDrop(ch chan *Task, task *Task, reason string) {
	select {
	case ch <- task:
	default:
		w.recordDrop(reason)
		w.ctx.decInFlight()
	}
}

// handleReply is the reply stage: resolve the outbound frontend socket and
// send to the client.
func (w *Worker) handleReply(task *Task) {
	defer w.ctx.decInFlight()

	fs := task.OriginFrontend
	if task.Redirected {
		fs = w.matchFrontendSocket(task.OriginFrontendAddr)
		if fs == nil {
			w.recordDrop("no matching frontend socket after redirect")
			return
		}
	}

	if _, err := fs.Conn.WriteToUDP(task.Buf[:task.Length], task.ClientAddr); err != nil {
		w.recordDrop("reply send failed")
	}
}

// matchFrontendSocket finds the worker's own socket for a frontend address
// recorded on a redirected task. Used only on the reload path, where the
// task's origin socket belongs to a different context.
func (w *Worker) matchFrontendSocket(addr string) *FrontendSocket {
	for _, fs := range w.frontendSockets {
		if fs.Frontend.Addr.String() == addr {
			return fs
		}
	}
	return nil
}

// handleExit closes every socket this worker owns. The worker's reader
// goroutines observe the resulting read errors and return on their own.
func (w *Worker) handleExit() {
	for _, fs := range w.frontendSockets {
		_ = fs.Conn.Close()
	}
	for _, fs := range w.forwarderSockets {
		_ = fs.Conn.Close()
	}
	for _, fs := range w.watchdogSockets {
		_ = fs.Conn.Close()
	}
}

func (w *Worker) recordDrop(reason string) {
	if w.ctx.Metrics != nil {
		w.ctx.Metrics.IncStageError(reason)
	}
	if w.logger != nil {
		w.logger.Debug("task dropped", "worker", w.ID, "reason", reason)
	}
}

func (w *Worker) recordCorrelationMiss() {
	if w.ctx.Metrics != nil {
		w.ctx.Metrics.IncCorrelationMiss()
	}
}
