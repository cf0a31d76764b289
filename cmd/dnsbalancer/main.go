package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanetnet/dnsbalancer/internal/balancer"
	"github.com/lanetnet/dnsbalancer/internal/config"
	"github.com/lanetnet/dnsbalancer/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
		Component:        "dnsbalancer",
	})
	logger.Info("dnsbalancer starting",
		"workers", cfg.Server.Workers.String(),
		"frontends", len(cfg.Frontends),
		"forwarders", len(cfg.Forwarders),
		"selection", cfg.Selection,
	)

	var metrics *balancer.Metrics
	if cfg.Metrics.Enabled {
		metrics = balancer.NewMetrics()
	}
	metricsHandler := balancer.NewMetricsHandler(metrics)

	ctx, err := balancer.Build(cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("build balancer: %w", err)
	}
	ctx.Start()
	logger.Info("runtime context started", "build_id", ctx.BuildID)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logger.Info("metrics endpoint starting", "addr", cfg.Metrics.Listen)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	var reloader *balancer.Reloader
	if cfg.Reload.Enabled {
		reloader, err = balancer.NewReloader(cfg.Reload.SocketPath, logger, func() (*balancer.Context, error) {
			fresh, err := config.Load(configPath)
			if err != nil {
				return nil, fmt.Errorf("reload: load config: %w", err)
			}
			// Every reload gets its own Metrics and Prometheus registry,
			// matching Build's one-registry-per-Context rule; the handler
			// swap below is what makes the new generation's counters show
			// up at the existing /metrics route.
			var freshMetrics *balancer.Metrics
			if fresh.Metrics.Enabled {
				freshMetrics = balancer.NewMetrics()
			}
			next, err := balancer.Build(fresh, freshMetrics, logger)
			if err != nil {
				return nil, err
			}
			metricsHandler.Set(freshMetrics)
			return next, nil
		})
		if err != nil {
			return fmt.Errorf("start reload listener: %w", err)
		}
		reloader.Attach(ctx)
		go reloader.Serve()
		defer reloader.Close()
	}

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-sigCtx.Done()
	logger.Info("dnsbalancer shutting down")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := ctx.WaitDrain(drainCtx, 100*time.Millisecond); err != nil {
		logger.Warn("shutdown drain incomplete", "err", err)
	}
	ctx.Stop()

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	return nil
}
