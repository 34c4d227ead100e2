// Package fx wires the operator-facing control-plane HTTP API: a
// dedicated gin.Engine, JWT auth, rate limiting, and the handler routes
// that expose state/can_trade/snapshot/halt/resume.
package fx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/api/controlplane"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/clock"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/config"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/health"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/orchestrator"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/riskbudget"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/src"
)

const defaultRequestsPerMinute = 120

// NewEngine builds the control-plane's own gin.Engine: recovery, security
// headers, and rate limiting, in that order, ahead of every route. JWT auth
// is added to the /control route group by registerRoutes.
func NewEngine(cfg *config.Config, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(controlplane.SecurityHeaders())
	engine.Use(controlplane.RateLimiter(defaultRequestsPerMinute, logger))
	return engine
}

func NewHandlers(control *src.Controller, orch *orchestrator.Orchestrator, tracker *riskbudget.RiskTracker, h *health.Registry, c clock.Clock, logger *zap.Logger) *controlplane.Handlers {
	return controlplane.NewHandlers(control, orch, tracker, h, c, logger)
}

type routeParams struct {
	fx.In

	Engine   *gin.Engine
	Handlers *controlplane.Handlers
	Config   *config.Config
	Logger   *zap.Logger
}

func registerRoutes(p routeParams) {
	group := p.Engine.Group("/control")
	group.Use(controlplane.AuthMiddleware(p.Config.Auth.JWTSecret, p.Logger))
	p.Handlers.RegisterRoutes(group)
}

type serverParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Engine    *gin.Engine
	Config    *config.Config
	Logger    *zap.Logger
}

// registerServer starts the control-plane HTTP listener on fx's own
// lifecycle, independent of Orchestrator.Run's foreground loop: an
// operator must be able to query /state even while a cycle is mid-run.
func registerServer(p serverParams) {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", p.Config.Server.Host, p.Config.Server.Port),
		Handler:      p.Engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					p.Logger.Error("control-plane API server stopped unexpectedly", zap.Error(err))
				}
			}()
			p.Logger.Info("control-plane API listening", zap.String("addr", server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// registerMetricsServer starts a dedicated Prometheus scrape endpoint on
// its own port, separate from the authenticated control-plane API: a
// scraper should never need a JWT, and a slow scrape should never
// contend with operator requests on the same listener.
func registerMetricsServer(p serverParams) {
	if p.Config.Monitoring.PrometheusPort <= 0 {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", p.Config.Server.Host, p.Config.Monitoring.PrometheusPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					p.Logger.Error("metrics server stopped unexpectedly", zap.Error(err))
				}
			}()
			p.Logger.Info("metrics endpoint listening", zap.String("addr", server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// Module provides the control-plane API's gin engine, handlers, and HTTP
// server, and registers its routes. Unlike internal/orchestrator's
// Module, this one DOES register an fx lifecycle hook: the HTTP server
// is a standard start/stop resource, not the process's foreground loop.
var Module = fx.Options(
	fx.Provide(
		NewEngine,
		NewHandlers,
	),
	fx.Invoke(registerRoutes, registerServer, registerMetricsServer),
)
