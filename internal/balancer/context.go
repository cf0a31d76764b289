// Package balancer implements the per-worker UDP DNS forwarding pipeline:
// accept, prepare, forward, obtain, reply, plus the GC and watchdog
// subsystems that ride the same queue machinery. This is the core state
// machine; everything outside it (config parsing, CLI, logging setup,
// process supervision, wire-format codec, socket polling) is a collaborator
// this package is handed, never something it constructs for itself.
package balancer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Context is the process-wide runtime state: the global epoch, the
// tunables every worker reads, the forwarder/frontend registry, and the
// worker pool itself. A Context that has been superseded by a reload keeps
// running — its workers drain in-flight tasks — while pointing at its Next
// Context for reply handoff; see reload.go.
type Context struct {
	// BuildID distinguishes one generation of the runtime from the next in
	// logs spanning a reload, where an old and new Context run concurrently
	// and plain sequence numbers would be ambiguous across process restarts.
	BuildID uuid.UUID

	MaxPktSize       int
	ReqTTL           time.Duration
	EpochTickSize    time.Duration
	GCInterval       time.Duration
	WatchdogInterval time.Duration

	epoch    atomic.Uint64
	inFlight atomic.Int64

	Forwarders []*Forwarder
	Frontends  []*Frontend
	Workers    []*Worker

	// next is the successor context during a hot reload. Once set, the
	// obtain handler routes every reply task to a worker in Next instead of
	// keeping it on this context.
	next atomic.Pointer[Context]

	// nextWorkerIdx round-robins reload handoff across the successor's
	// workers, rather than hard-coding worker 0.
	nextWorkerIdx atomic.Uint64

	Metrics *Metrics
	Logger  *slog.Logger
}

// Epoch returns the current tick count.
func (c *Context) Epoch() uint64 { return c.epoch.Load() }

// AdvanceEpoch increments the tick counter by one. Called by each worker's
// epoch-tick handler.
func (c *Context) AdvanceEpoch() { c.epoch.Add(1) }

// InFlight returns the current number of tasks that have entered accept or
// obtain and not yet been released.
func (c *Context) InFlight() int64 { return c.inFlight.Load() }

func (c *Context) incInFlight() {
	n := c.inFlight.Add(1)
	if c.Metrics != nil {
		c.Metrics.SetInFlight(n)
	}
}

func (c *Context) decInFlight() {
	n := c.inFlight.Add(-1)
	if c.Metrics != nil {
		c.Metrics.SetInFlight(n)
	}
}

// SetNext installs succ as this context's reload successor. After this
// call every future reply task obtained by any worker of c is redirected
// to a worker of succ instead of replying locally.
func (c *Context) SetNext(succ *Context) {
	c.next.Store(succ)
}

// getNext returns the current successor context, or nil.
func (c *Context) getNext() *Context {
	return c.next.Load()
}

// nextWorker returns the successor worker a redirected reply should land
// on, round-robining across the successor's workers.
func (c *Context) nextWorker() *Worker {
	succ := c.getNext()
	if succ == nil || len(succ.Workers) == 0 {
		return nil
	}
	idx := c.nextWorkerIdx.Add(1) - 1
	return succ.Workers[idx%uint64(len(succ.Workers))]
}

// WaitDrain blocks until in-flight reaches zero or ctx is done: the
// context waits on in_flight == 0 before releasing worker-owned storage.
func (c *Context) WaitDrain(ctx context.Context, pollEvery time.Duration) error {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		if c.InFlight() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain wait: %w (in_flight=%d)", ctx.Err(), c.InFlight())
		case <-ticker.C:
		}
	}
}

// dialFrontendSocket binds a UDP listener for a frontend with SO_REUSEPORT
// set, so every worker can bind its own socket to the same address: the
// kernel fans incoming datagrams out across them instead of one worker's
// reader goroutine becoming a bottleneck for the whole frontend.
func dialFrontendSocket(fe *Frontend) (*FrontendSocket, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			if err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}); err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", fe.Addr.String())
	if err != nil {
		return nil, fmt.Errorf("listen frontend %s: %w", fe.Name, err)
	}
	return &FrontendSocket{Frontend: fe, Conn: pc.(*net.UDPConn)}, nil
}
