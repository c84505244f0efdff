package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/shellguide/internal/gateway"
	"github.com/jkaninda/shellguide/internal/gateway/httpapi"
	"github.com/jkaninda/shellguide/internal/gateway/ws"
	"github.com/jkaninda/shellguide/internal/observability"
	"github.com/jkaninda/shellguide/internal/ratelimit"
	"github.com/jkaninda/shellguide/internal/session"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve lessons over HTTP and the browser terminal",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
}

// runServe starts the network gateways. Sessions are created on demand and
// reaped when idle.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	httpCfg := cfg.Gateways.HTTP
	wsCfg := cfg.Gateways.WebSocket
	httpEnabled := httpCfg != nil && httpCfg.Enabled
	wsEnabled := wsCfg != nil && wsCfg.Enabled
	if servePort != "" {
		httpEnabled = true
	}
	if !httpEnabled && !wsEnabled {
		return fmt.Errorf("no gateways enabled in config")
	}

	logger.Info("starting in server mode", slog.String("config", configPath))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sessions.
	registry := session.NewRegistry(sc.sessionConfig(""), cfg.Sessions.MaxActive, logger)
	defer func() {
		if err := registry.CloseAll(); err != nil {
			logger.Error("closing sessions", slog.String("error", err.Error()))
		}
	}()

	var reaperMetrics *session.Metrics
	if m := sc.Obs.MetricsOrNil(); m != nil {
		reaperMetrics = session.NewMetrics(m.Registry)
	}
	reaper, err := session.NewReaper(registry, cfg.Sessions.IdleTimeout(), cfg.Sessions.ReapSchedule, reaperMetrics, logger)
	if err != nil {
		return fmt.Errorf("creating session reaper: %w", err)
	}
	stopReaper := reaper.Start(ctx)
	defer stopReaper()
	logger.Debug("session reaper started", slog.String("idle_timeout", cfg.Sessions.IdleTimeout().String()))

	// Readiness checks.
	if sc.Obs != nil && sc.Obs.Health != nil {
		health := cfg.Observability.Health
		if health != nil && health.IncludeDB && sc.Store != nil {
			sc.Obs.Health.AddPinger("database", sc.Store)
		}
		if health == nil || health.IncludeWorkspace {
			sc.Obs.Health.AddCheck("workspace", observability.WorkspaceCheck(sc.Workspace.SandboxDir()))
		}
	}

	var apiKeys map[string]string
	var limiter *ratelimit.Limiter
	if httpCfg != nil {
		apiKeys = httpCfg.APIKeyUserMapping
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: httpCfg.RateLimit.RequestsPerMinute,
			BurstSize:         httpCfg.RateLimit.BurstSize,
		})
	}

	var gateways []gateway.Gateway
	var wsServer *ws.Server
	if wsEnabled {
		wsServer = ws.NewServer(registry, wsCfg, apiKeys, limiter, logger)
		logger.Debug("websocket terminal initialized", slog.String("path", wsCfg.WSPath()))
	}

	// The terminal socket is mounted on the HTTP server.
	addr := httpCfg.Addr()
	if servePort != "" {
		addr = servePort
	}
	apiCfg := httpapi.Config{
		ListenAddr:     addr,
		APIKeys:        apiKeys,
		MaxRequestSize: httpCfg.MaxBodyBytes(),
	}
	if httpCfg != nil {
		apiCfg.EnableDocs = httpCfg.EnableDocs
	}
	if sc.Store != nil {
		apiCfg.Ledger = sc.Store.Ledger()
	}
	if sc.Obs != nil {
		apiCfg.HealthChecker = sc.Obs.Health
		if m := sc.Obs.MetricsOrNil(); m != nil {
			apiCfg.Metrics = m
			apiCfg.MetricsRegistry = m.Registry
			apiCfg.MetricsPath = cfg.Observability.Metrics.MetricsPath()
		}
		if ts := sc.Obs.TracerOrNil(); ts != nil {
			apiCfg.Tracer = ts.Tracer()
		}
	}

	apiGW := httpapi.NewGateway(apiCfg, registry, sc.Catalog, limiter, logger)
	if apiCfg.EnableDocs {
		apiGW.WithOpenAPIDocs()
	}
	if wsServer != nil {
		apiGW.WithHandler(wsCfg.WSPath(), wsServer.Handler())
	}
	gateways = append(gateways, apiGW)
	logger.Info("http gateway configured",
		slog.String("addr", addr),
		slog.Bool("websocket", wsServer != nil),
	)

	// Start all gateways in goroutines.
	errs := make(chan error, len(gateways))
	for _, gw := range gateways {
		go func(g gateway.Gateway) {
			errs <- g.Start(ctx)
		}(gw)
	}

	// Wait for signal or first gateway error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := len(gateways) - 1; i >= 0; i-- {
		if err := gateways[i].Stop(shutdownCtx); err != nil {
			logger.Error("stopping gateway", slog.String("error", err.Error()))
		}
	}

	return nil
}
