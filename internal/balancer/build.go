package balancer

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"runtime"

	"github.com/google/uuid"

	"github.com/lanetnet/dnsbalancer/internal/config"
	"github.com/lanetnet/dnsbalancer/internal/helpers"
)

// resolveWorkerCount turns a WorkerSetting into a concrete worker count,
// defaulting an "auto" setting to the machine's CPU count — the same
// fan-out width the original SO_REUSEPORT accept model aimed for.
func resolveWorkerCount(w config.WorkerSetting) int {
	if w.Mode == config.WorkersFixed && w.Value > 0 {
		return w.Value
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

// Build constructs a Context and its full worker pool from a loaded
// configuration: it resolves every frontend and forwarder address, dials
// forwarder and watchdog sockets per worker, binds one frontend socket per
// worker per frontend (an SO_REUSEPORT-style fan-out), and
// wires each worker's selector. It does not start the workers; call Start
// once the caller is ready to begin serving.
func Build(cfg *config.Config, metrics *Metrics, logger *slog.Logger) (*Context, error) {
	workerCount := resolveWorkerCount(cfg.Server.Workers)

	forwardersByName := make(map[string]*Forwarder, len(cfg.Forwarders))
	ctx := &Context{
		BuildID:          uuid.New(),
		MaxPktSize:       cfg.Server.MaxPktSize,
		ReqTTL:           cfg.ReqTTL(),
		EpochTickSize:    cfg.EpochTickSize(),
		GCInterval:       cfg.GCInterval(),
		WatchdogInterval: cfg.WatchdogInterval(),
		Metrics:          metrics,
		Logger:           logger,
	}

	for _, fc := range cfg.Forwarders {
		addr, err := net.ResolveUDPAddr("udp", fc.Address)
		if err != nil {
			return nil, fmt.Errorf("resolve forwarder %q: %w", fc.Name, err)
		}
		tries := int32(min(helpers.ClampIntToUint32(cfg.Watchdog.Tries), math.MaxInt32))
		fwd := NewForwarder(fc.Name, addr, fc.Weight, fc.WatchdogQuery, tries)
		forwardersByName[fc.Name] = fwd
		ctx.Forwarders = append(ctx.Forwarders, fwd)
	}

	for _, fec := range cfg.Frontends {
		addr, err := net.ResolveUDPAddr("udp", fec.Address)
		if err != nil {
			return nil, fmt.Errorf("resolve frontend %q: %w", fec.Name, err)
		}
		ctx.Frontends = append(ctx.Frontends, &Frontend{Name: fec.Name, Addr: addr, ForwarderNames: fec.Forwarders})
	}

	ctx.Workers = make([]*Worker, workerCount)
	for i := 0; i < workerCount; i++ {
		selector := NewSelector(string(cfg.Selection), int64(i)+1)
		w := NewWorker(i, ctx, selector, logger)

		for _, fe := range ctx.Frontends {
			fs, err := dialFrontendSocket(fe)
			if err != nil {
				return nil, err
			}
			w.AttachFrontendSocket(fs)

			// One dedicated connected socket per (worker, frontend,
			// forwarder) triple: a forwarder shared by two frontends still
			// gets a distinct connection per frontend, so forwarderSocketsFor
			// can return disjoint slices without aliasing.
			for _, name := range fe.ForwarderNames {
				fwd, ok := forwardersByName[name]
				if !ok {
					return nil, fmt.Errorf("frontend %q references unknown forwarder %q", fe.Name, name)
				}
				conn, err := DialForwarder(fwd)
				if err != nil {
					return nil, err
				}
				w.AttachForwarderSocket(fe, &ForwarderSocket{Forwarder: fwd, Conn: conn})
			}
		}

		for _, fwd := range ctx.Forwarders {
			conn, err := DialForwarder(fwd)
			if err != nil {
				return nil, err
			}
			w.AttachWatchdogSocket(&ForwarderSocket{Forwarder: fwd, Conn: conn})
		}

		ctx.Workers[i] = w
	}

	return ctx, nil
}

// Start launches every worker's event loop in its own goroutine, using the
// watchdog interval the context was built with.
func (c *Context) Start() {
	for _, w := range c.Workers {
		go w.Run(c.GCInterval, c.WatchdogInterval, c.EpochTickSize)
	}
}

// Stop signals every worker to exit and waits for each to finish.
func (c *Context) Stop() {
	for _, w := range c.Workers {
		w.Stop()
	}
}
