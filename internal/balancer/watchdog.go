package balancer

import (
	"github.com/lanetnet/dnsbalancer/internal/dns"
	"github.com/lanetnet/dnsbalancer/internal/dnsfp"
)

// handleWatchdogRequest fires on the watchdog timer. For every
// watchdog socket: reset-and-flip to unreachable if the forwarder exceeded
// its retry budget, then synthesize and enqueue a fresh probe.
func (w *Worker) handleWatchdogRequest() {
	for _, sock := range w.watchdogSockets {
		fwd := sock.Forwarder

		if fwd.ResetPendingProbesIfExceeds(fwd.WatchdogTries) {
			if fwd.MarkUnreachable() {
				w.logForwarderTransition(fwd, false)
			}
		}

		id := w.nextProbeID()
		probe, err := dnsfp.BuildWatchdogQuery(fwd.WatchdogQuery, uint16(dns.TypeA), uint16(dns.ClassIN), id)
		if err != nil {
			w.recordDrop("watchdog query synthesis failed")
			continue
		}

		w.ctx.incInFlight()

		task := newTask(w.ctx.MaxPktSize, Watchdog)
		task.Buf = probe
		task.Length = len(probe)
		task.Forwarder = sock
		task.WatchdogTarget = fwd

		// The probe's wire ID was just fixed by BuildWatchdogQuery above, so
		// the fingerprint must be computed from that same ID (not a client
		// port — there is no client) so the reply-side fingerprint, which
		// hashes the ID the forwarder echoes back, lines up with this one.
		parsed, err := dnsfp.ParseRequest(probe, id)
		if err != nil {
			w.recordDrop("watchdog query parse failed")
			w.ctx.decInFlight()
			continue
		}
		task.Fingerprint = parsed.Fingerprint
		task.OriginalID = parsed.WireID

		fwd.IncPendingProbes()

		select {
		case w.fwd <- task:
		default:
			w.recordDrop("fwd queue full (watchdog)")
			w.ctx.decInFlight()
		}
	}
}

// nextProbeID returns the next value of a small rotating counter, used as
// each probe's wire ID so consecutive probes to the same forwarder don't collide in the
// tracking table while an earlier one is still outstanding. Only ever
// called from this worker's own event loop, so a plain field is enough —
// no atomic needed, unlike Forwarder's cross-worker liveness counters.
func (w *Worker) nextProbeID() uint16 {
	w.probeSeq++
	return w.probeSeq
}

// handleWatchdogReply fires when a task tagged WATCHDOG reaches the
// wdt_rep queue: reset pending, and flip to reachable exactly once.
func (w *Worker) handleWatchdogReply(task *Task) {
	defer w.ctx.decInFlight()

	fwd := task.WatchdogTarget
	if fwd == nil {
		w.recordDrop("watchdog reply missing target forwarder")
		return
	}

	fwd.ResetPendingProbes()
	if fwd.MarkReachable() {
		w.logForwarderTransition(fwd, true)
	}
}

func (w *Worker) logForwarderTransition(fwd *Forwarder, alive bool) {
	if w.ctx.Metrics != nil {
		w.ctx.Metrics.IncLivenessTransition(fwd.Name, alive)
	}
	if w.logger == nil {
		return
	}
	if alive {
		w.logger.Info("forwarder became reachable", "forwarder", fwd.Name)
	} else {
		w.logger.Warn("forwarder became unreachable", "forwarder", fwd.Name)
	}
}
