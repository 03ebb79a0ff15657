// Package app wires the application together with a samber/do injector.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/metrics"
	"github.com/nfrund/chatroom/internal/pubsub"
	"github.com/nfrund/chatroom/internal/server"
	"github.com/nfrund/chatroom/internal/session"
	"github.com/nfrund/chatroom/internal/storage"
	"github.com/nfrund/chatroom/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the bus tracer. The injector calls Shutdown to flush spans.
type Telemetry struct {
	Tracer  trace.Tracer
	cleanup func()
}

// Shutdown flushes and stops the tracer provider.
func (t *Telemetry) Shutdown() {
	if t.cleanup != nil {
		t.cleanup()
	}
}

// Options carries values that come from the command line rather than the
// environment.
type Options struct {
	Version string
	// Store overrides the disk-backed upload store, mainly for tests.
	Store storage.Store
}

// New returns an injector with every service registered. Nothing is built
// until it is first invoked.
func New(cfg config.Provider, opts Options) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)

	do.Provide(injector, func(i do.Injector) (*Telemetry, error) {
		tracer, cleanup, err := pubsub.SetupOTel(context.Background(), cfg.GetTracing())
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
		return &Telemetry{Tracer: tracer, cleanup: cleanup}, nil
	})

	do.Provide(injector, func(i do.Injector) (*pubsub.WatermillBridge, error) {
		var bridgeOpts []pubsub.BridgeOption
		if cfg.GetTracing().Enabled {
			tel := do.MustInvoke[*Telemetry](i)
			bridgeOpts = append(bridgeOpts, pubsub.WithTracer(tel.Tracer))
		}
		return pubsub.NewWatermillBridge(bridgeOpts...), nil
	})

	do.Provide(injector, func(i do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		if err := reg.Register(collectors.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
		return reg, nil
	})

	do.Provide(injector, func(i do.Injector) (*metrics.Recorder, error) {
		return metrics.NewRecorder(do.MustInvoke[*prometheus.Registry](i))
	})

	do.Provide(injector, func(i do.Injector) (*websocket.ClientManager, error) {
		return websocket.NewClientManager(), nil
	})

	do.Provide(injector, func(i do.Injector) (*session.Coordinator, error) {
		rateMax, rateWindow := cfg.GetRateLimit()
		return session.NewCoordinator(
			session.WithDispatcher(do.MustInvoke[*websocket.ClientManager](i)),
			session.WithPublisher(do.MustInvoke[*pubsub.WatermillBridge](i)),
			session.WithMetrics(do.MustInvoke[*metrics.Recorder](i)),
			session.WithGracePeriod(cfg.GetGracePeriod()),
			session.WithIdleTimeout(cfg.GetIdleTimeout()),
			session.WithHistoryCapacity(cfg.GetHistoryCapacity()),
			session.WithRateLimit(rateMax, rateWindow),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*websocket.Gateway, error) {
		return websocket.NewGateway(
			do.MustInvoke[*websocket.ClientManager](i),
			do.MustInvoke[*session.Coordinator](i),
			websocket.WithAllowedOrigins(cfg.GetAllowedOrigins()),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*session.Sweeper, error) {
		return session.NewSweeper(do.MustInvoke[*session.Coordinator](i), cfg.GetSweepInterval()), nil
	})

	do.Provide(injector, func(i do.Injector) (storage.Store, error) {
		if opts.Store != nil {
			return opts.Store, nil
		}
		return storage.NewDiskStore(cfg.GetUploadDir())
	})

	do.Provide(injector, func(i do.Injector) (*server.Server, error) {
		return server.New(server.Deps{
			Config:      cfg,
			Coordinator: do.MustInvoke[*session.Coordinator](i),
			Gateway:     do.MustInvoke[*websocket.Gateway](i),
			Sweeper:     do.MustInvoke[*session.Sweeper](i),
			Bus:         do.MustInvoke[*pubsub.WatermillBridge](i),
			Store:       do.MustInvoke[storage.Store](i),
			Registry:    do.MustInvoke[*prometheus.Registry](i),
			Version:     opts.Version,
		}), nil
	})

	return injector
}

// Run builds the server from injector and serves until ctx is cancelled.
func Run(ctx context.Context, injector do.Injector, addr string) error {
	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	runErr := srv.Start(ctx, addr)

	if report := injector.Shutdown(); report != nil && !report.Succeed {
		slog.Error("Some services failed to shut down cleanly", "report", report.Error())
	}
	return runErr
}
