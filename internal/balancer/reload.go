package balancer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Reloader listens on a Unix socket for reload triggers: any
// connection accepted on the socket builds a fresh Context from current
// configuration, links it as the running context's successor so in-flight
// replies still traverse back to their original client, and promotes it to
// be the context future triggers rebuild from.
type Reloader struct {
	listener net.Listener
	logger   *slog.Logger
	build    func() (*Context, error)

	mu      sync.Mutex
	current *Context

	// group collapses triggers that arrive while a rebuild is already in
	// flight (e.g. several near-simultaneous connections to the reload
	// socket) into the single rebuild already running, instead of racing
	// two builds against each other.
	group singleflight.Group
}

// NewReloader binds the reload trigger socket at path, removing a stale
// socket file left behind by a previous crash.
func NewReloader(path string, logger *slog.Logger, build func() (*Context, error)) (*Reloader, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &Reloader{listener: ln, logger: logger, build: build}, nil
}

// Attach records the context a reload should link from. Call once, before
// Serve, with the context main already started.
func (r *Reloader) Attach(ctx *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = ctx
}

// Serve accepts reload triggers until the listener is closed. Each accepted
// connection is closed immediately after triggering; the socket carries no
// payload, only a wakeup.
func (r *Reloader) Serve() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		conn.Close()
		r.trigger()
	}
}

func (r *Reloader) trigger() {
	_, _, _ = r.group.Do("reload", func() (interface{}, error) {
		r.doReload()
		return nil, nil
	})
}

func (r *Reloader) doReload() {
	r.mu.Lock()
	old := r.current
	r.mu.Unlock()
	if old == nil {
		return
	}

	next, err := r.build()
	if err != nil {
		if r.logger != nil {
			r.logger.Error("reload failed, keeping current context", "err", err, "current_build", old.BuildID)
		}
		return
	}

	old.SetNext(next)
	next.Start()

	r.mu.Lock()
	r.current = next
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("reload complete, draining previous context in background",
			"previous_build", old.BuildID, "next_build", next.BuildID)
	}

	go func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := old.WaitDrain(drainCtx, 200*time.Millisecond); err != nil && r.logger != nil {
			r.logger.Warn("previous context did not fully drain before timeout", "err", err, "previous_build", old.BuildID)
		}
		old.Stop()
	}()
}

// Close stops accepting reload triggers and removes the socket file.
func (r *Reloader) Close() error {
	err := r.listener.Close()
	if addr, ok := r.listener.Addr().(*net.UnixAddr); ok {
		_ = os.Remove(addr.Name)
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
