// Package gateway serves the daybook HTTP surface: health and metrics, the
// widget websocket, signed webhooks for external events, and the admin API
// used by the CLI and the MCP server. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/daybook/internal/core"
)

// ModuleID identifies the gateway in the module lifecycle.
const ModuleID core.ModuleID = "gateway.http"

// Gateway is the HTTP gateway module.
type Gateway struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *Metrics
	webhooks  *WebhookDispatcher
	handler   http.Handler
	server    *http.Server
	startedAt time.Time
	addr      net.Addr
}

// New builds the gateway and its router. Nothing listens until Start.
func New(cfg Config) (*Gateway, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	metrics, err := NewMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "gateway"),
		metrics:   metrics,
		webhooks:  NewWebhookDispatcher(cfg.Logger),
		startedAt: time.Now(),
	}
	for source, wh := range cfg.Settings.Webhooks {
		g.webhooks.Register(source, g.publishExternal, wh.Secret)
	}
	g.handler = g.buildRouter()
	return g, nil
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: ModuleID}
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.cfg.Settings.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", g.cfg.Settings.Bind, err)
	}
	if !g.cfg.Settings.Auth.IsConfigured() {
		g.logger.Warn("gateway: no auth configured, admin API disabled")
	}
	return nil
}

// Handler returns the router, for tests and embedding.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Addr returns the listening address once started.
func (g *Gateway) Addr() net.Addr { return g.addr }

// Start implements core.Starter.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.cfg.Settings.Bind,
		Handler:      g.handler,
		ReadTimeout:  g.cfg.Settings.ReadTimeout,
		WriteTimeout: g.cfg.Settings.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Settings.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}
	g.addr = ln.Addr()

	go func() {
		g.logger.Info("gateway listening", "addr", g.addr.String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Stopper. Websocket subscribers are closed first so
// Shutdown does not wait on hijacked connections.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	if g.cfg.Hub != nil {
		_ = g.cfg.Hub.Stop(ctx)
	}

	timeout := g.cfg.Settings.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
