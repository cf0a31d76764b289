package balancer

import (
	"fmt"
	"net"
	"sync/atomic"
)

// Frontend is a client-facing bound endpoint. Build binds one socket per
// worker to its address (SO_REUSEPORT-style fan-out); each socket is held in
// its worker's frontend-socket set and closed when that worker exits. Build
// does not fill Sockets.
type Frontend struct {
	Name    string
	Addr    *net.UDPAddr
	Sockets []*FrontendSocket

	// ForwarderNames restricts which forwarders a task originating on this
	// frontend may be sent to, per its configured forwarders list.
	ForwarderNames []string
}

// FrontendSocket is a bound UDP socket plus a back-reference to its
// frontend. A socket belongs to exactly one worker's frontend-socket set for
// the worker's lifetime; Go's garbage collector, not a generation index,
// guarantees the back-reference stays valid for as long as anything holds
// the socket.
type FrontendSocket struct {
	Frontend *Frontend
	Conn     *net.UDPConn
}

func (fs *FrontendSocket) String() string {
	if fs == nil || fs.Frontend == nil {
		return "<nil frontend socket>"
	}
	return fmt.Sprintf("frontend(%s)@%s", fs.Frontend.Name, fs.Frontend.Addr)
}

// Forwarder is an upstream resolver. Its alive flag and pending-probe
// counter are shared across every worker that owns a socket pointing at it,
// so they are plain atomics rather than fields guarded by a mutex: the
// watchdog handlers only ever need read-modify-write, never a multi-field
// critical section. WatchdogTries is set at construction and only read.
type Forwarder struct {
	Name          string
	Addr          *net.UDPAddr
	Weight        int
	WatchdogQuery string
	WatchdogTries int32

	alive         atomic.Bool
	pendingProbes atomic.Int32
}

func NewForwarder(name string, addr *net.UDPAddr, weight int, watchdogQuery string, watchdogTries int32) *Forwarder {
	f := &Forwarder{
		Name:          name,
		Addr:          addr,
		Weight:        weight,
		WatchdogQuery: watchdogQuery,
		WatchdogTries: watchdogTries,
	}
	f.alive.Store(true)
	return f
}

// Alive reports the forwarder's last-known reachability.
func (f *Forwarder) Alive() bool { return f.alive.Load() }

// IncPendingProbes increments the outstanding-probe counter and returns the
// new value.
func (f *Forwarder) IncPendingProbes() int32 { return f.pendingProbes.Add(1) }

// ResetPendingProbes zeroes the outstanding-probe counter unconditionally.
// Called when a probe reply actually arrives.
func (f *Forwarder) ResetPendingProbes() { f.pendingProbes.Store(0) }

// ResetPendingProbesIfExceeds zeroes the outstanding-probe counter and
// reports true only if it had climbed past tries — i.e. enough consecutive
// watchdog ticks passed with no reply that the forwarder should be
// considered down. Otherwise it leaves the counter untouched so it keeps
// accumulating across ticks.
func (f *Forwarder) ResetPendingProbesIfExceeds(tries int32) bool {
	for {
		cur := f.pendingProbes.Load()
		if cur <= tries {
			return false
		}
		if f.pendingProbes.CompareAndSwap(cur, 0) {
			return true
		}
	}
}

// MarkUnreachable flips alive to false. Returns true if this call performed
// the false transition (i.e. the forwarder was previously alive), so the
// caller logs "became unreachable" exactly once.
func (f *Forwarder) MarkUnreachable() bool {
	return f.alive.CompareAndSwap(true, false)
}

// MarkReachable flips alive to true. Returns true if this call performed
// the true transition, so the caller logs "became reachable" exactly once.
func (f *Forwarder) MarkReachable() bool {
	return f.alive.CompareAndSwap(false, true)
}

// ForwarderSocket is a socket addressing a specific forwarder. Workers keep
// two disjoint sets of these: Regular sockets carry client traffic,
// Watchdog sockets carry only liveness probes, so a burst of probe replies
// can never be mistaken for client-facing traffic or vice versa.
type ForwarderSocket struct {
	Forwarder *Forwarder
	Conn      *net.UDPConn
}

func (fs *ForwarderSocket) String() string {
	if fs == nil || fs.Forwarder == nil {
		return "<nil forwarder socket>"
	}
	return fmt.Sprintf("forwarder(%s)@%s", fs.Forwarder.Name, fs.Forwarder.Addr)
}

// DialForwarder opens a connected UDP socket to a forwarder's upstream
// address. Connecting lets the kernel filter replies by source address for
// us and lets Write be used instead of WriteTo.
func DialForwarder(f *Forwarder) (*net.UDPConn, error) {
	conn, err := net.DialUDP("udp", nil, f.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial forwarder %s: %w", f.Name, err)
	}
	return conn, nil
}
