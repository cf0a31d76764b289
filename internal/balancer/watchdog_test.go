package balancer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatchdogWorker(t *testing.T, upstream *net.UDPConn) *Worker {
	t.Helper()
	ctx := &Context{MaxPktSize: 4096, ReqTTL: time.Second, EpochTickSize: 10 * time.Millisecond}
	w := NewWorker(0, ctx, NewRandomSelector(1), nil)
	ctx.Workers = []*Worker{w}

	fwd := NewForwarder("primary", upstream.LocalAddr().(*net.UDPAddr), 1, "watchdog.example.com", 2)
	conn, err := DialForwarder(fwd)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	w.AttachWatchdogSocket(&ForwarderSocket{Forwarder: fwd, Conn: conn})

	return w
}

// TestWatchdogRoundTripMarksReachable exercises the probe -> reply ->
// MarkReachable path when a forwarder actually answers.
func TestWatchdogRoundTripMarksReachable(t *testing.T) {
	upstream := fakeForwarder(t, echoReply)
	w := newWatchdogWorker(t, upstream)
	runWorker(t, w)

	fwd := w.watchdogSockets[0].Forwarder
	fwd.MarkUnreachable()

	w.handleWatchdogRequest()

	require.Eventually(t, func() bool {
		return fwd.Alive()
	}, time.Second, 10*time.Millisecond, "forwarder should flip back to reachable once its probe is answered")

	require.Eventually(t, func() bool {
		return w.ctx.InFlight() == 0
	}, time.Second, 10*time.Millisecond)
}

// TestWatchdogExceedingRetriesMarksUnreachable exercises the silent-upstream
// path: a forwarder that never answers its probes flips unreachable once
// pending probes exceed WatchdogTries.
func TestWatchdogExceedingRetriesMarksUnreachable(t *testing.T) {
	upstream := fakeForwarder(t, func([]byte) []byte { return nil })
	w := newWatchdogWorker(t, upstream)

	fwd := w.watchdogSockets[0].Forwarder
	require.True(t, fwd.Alive())

	// WatchdogTries is 2: pending probes accumulate by one per tick since
	// nothing ever replies, so the forwarder flips unreachable on the tick
	// that finds pending already > tries, i.e. the (tries+2)th call.
	for i := 0; i < int(fwd.WatchdogTries)+2; i++ {
		w.handleWatchdogRequest()
	}

	assert.False(t, fwd.Alive())
}

// TestWatchdogProbeFingerprintRoundTrips pins down the scheme described in
// handleWatchdogRequest: the probe's own wire ID is both the outgoing transaction
// ID and the fingerprinting key, so a reply echoing that ID correlates
// without needing a client port.
func TestWatchdogProbeFingerprintRoundTrips(t *testing.T) {
	upstream := fakeForwarder(t, echoReply)
	w := newWatchdogWorker(t, upstream)
	runWorker(t, w)

	w.handleWatchdogRequest()

	require.Eventually(t, func() bool {
		return w.tracking.Len() == 0
	}, time.Second, 10*time.Millisecond, "probe fingerprint must match on the reply side or it will never be obtained")
}
