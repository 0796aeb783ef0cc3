// Package server arma el grafo de dependencias y corre el http.Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/o365auth/internal/cache"
	"github.com/dropDatabas3/o365auth/internal/config"
	healthctrl "github.com/dropDatabas3/o365auth/internal/http/controllers/health"
	o365ctrl "github.com/dropDatabas3/o365auth/internal/http/controllers/o365auth"
	mw "github.com/dropDatabas3/o365auth/internal/http/middlewares"
	"github.com/dropDatabas3/o365auth/internal/http/router"
	svc "github.com/dropDatabas3/o365auth/internal/http/services/o365auth"
	"github.com/dropDatabas3/o365auth/internal/http/views"
	"github.com/dropDatabas3/o365auth/internal/metrics"
	"github.com/dropDatabas3/o365auth/internal/oauth/microsoft"
	"github.com/dropDatabas3/o365auth/internal/observability/logger"
	"github.com/dropDatabas3/o365auth/internal/provisioning"
	"github.com/dropDatabas3/o365auth/internal/rate"
	"github.com/dropDatabas3/o365auth/internal/session"
	"github.com/dropDatabas3/o365auth/internal/store/core"
	"github.com/dropDatabas3/o365auth/internal/store/memory"
	"github.com/dropDatabas3/o365auth/internal/store/pg"
)

// Version se setea con -ldflags en el build.
var Version = "dev"

// App es el handler listo para servir más lo que hay que cerrar al final.
type App struct {
	Handler  http.Handler
	Registry *prometheus.Registry

	closers []func()
}

// Close libera pool de DB y cache en orden inverso de creación.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build instancia cache, limiter, store, provisioner, service y router según cfg.
// Credenciales faltantes no impiden arrancar: cada login responde con error de config.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.From(ctx).With(logger.Component("wiring"))
	app := &App{}

	// 1. Métricas
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register runtime collectors: %w", err)
		}
	}
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register login metrics: %w", err)
	}
	if err := mw.RegisterHTTPMetrics(reg); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	app.Registry = reg

	// 2. Cache (sesiones)
	cc, err := cache.New(ctx, cache.Config{
		Kind:     cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	app.closers = append(app.closers, func() { _ = cc.Close() })

	// 3. Rate limit: compartido si hay redis, por proceso si no.
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		if rc, ok := cc.(*cache.RedisClient); ok {
			limiter = rate.NewRedisLimiter(rc.Raw(), cfg.Cache.Redis.Prefix+":rl:", cfg.Rate.MaxRequests, cfg.Rate.Window)
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.Rate.Window)
		}
	}

	// 4. Store de usuarios
	var users core.UserRepository
	switch cfg.Storage.Driver {
	case "postgres":
		st, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{MaxConns: cfg.Storage.MaxConns, UserTable: cfg.O365.UserTable})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("store: %w", err)
		}
		app.closers = append(app.closers, st.Close)
		if err := reg.Register(metrics.NewPoolCollector(st.Pool)); err != nil {
			app.Close()
			return nil, fmt.Errorf("register pool collector: %w", err)
		}
		users = st
	default:
		users = memory.NewUsers()
	}

	// 5. Proveedor + flujo
	resolver := config.NewStaticResolver(cfg.O365)
	if _, err := resolver.Resolve(); err != nil {
		log.Warn("office 365 provider not configured; logins will fail", logger.Err(err))
	}
	hc := microsoft.NewHTTPClient(cfg.O365.HTTPTimeout)
	ms := microsoft.NewClient(hc)
	service := svc.NewService(svc.Deps{
		Config:      resolver,
		Authorizer:  ms,
		Exchanger:   ms,
		Identity:    microsoft.NewGraphClient(hc),
		Provisioner: provisioning.New(users),
	})

	view, err := views.New(cfg.O365.ErrorView)
	if err != nil {
		app.Close()
		return nil, err
	}
	sessions := session.NewManager(cc, session.CookieOptions{
		Name:     cfg.Session.CookieName,
		Domain:   cfg.Session.Domain,
		SameSite: cfg.Session.SameSite,
		Secure:   cfg.Session.Secure,
		TTL:      cfg.Session.TTL,
	})

	// 6. Router
	app.Handler = router.New(router.Deps{
		Prefix: cfg.O365.RoutePrefix,
		Auth:   o365ctrl.NewController(service, sessions, view),
		Health: healthctrl.NewHealthController(map[string]healthctrl.Pinger{
			"cache": cc,
			"store": users,
		}, Version),
		Limiter: limiter,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		View:    view,
	})

	log.Info("wiring ready",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("cache", cfg.Cache.Kind),
		logger.Bool("rate_limit", limiter != nil),
		logger.String("route_prefix", cfg.O365.RoutePrefix),
	)
	return app, nil
}

// Run sirve hasta que ctx se cancele y después hace shutdown ordenado.
func Run(ctx context.Context, cfg *config.Config) error {
	log := logger.From(ctx)

	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
