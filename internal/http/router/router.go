// Package router arma el árbol de rutas (chi) con los middlewares de cada grupo.
package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	healthctrl "github.com/dropDatabas3/o365auth/internal/http/controllers/health"
	o365ctrl "github.com/dropDatabas3/o365auth/internal/http/controllers/o365auth"
	httperrors "github.com/dropDatabas3/o365auth/internal/http/errors"
	mw "github.com/dropDatabas3/o365auth/internal/http/middlewares"
	"github.com/dropDatabas3/o365auth/internal/http/views"
	"github.com/dropDatabas3/o365auth/internal/rate"
)

// Deps contiene lo que necesita el router.
type Deps struct {
	// Prefix es el base path de /init y /redirect (ej: "/o365auth").
	Prefix string

	Auth   *o365ctrl.Controller
	Health *healthctrl.HealthController

	// Limiter es opcional; nil desactiva el rate limit.
	Limiter rate.Limiter

	// Metrics sirve /metrics si no es nil.
	Metrics http.Handler

	View views.ErrorView
}

// New devuelve el handler raíz.
func New(d Deps) http.Handler {
	view := d.View
	if view == nil {
		view = views.JSON{}
	}

	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithRequestID())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		view.Render(w, req, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		view.Render(w, req, httperrors.ErrMethodNotAllowed)
	})

	// Health y métricas: sin logging (muy frecuentes)
	r.Group(func(r chi.Router) {
		if d.Health != nil {
			r.Get("/healthz", d.Health.Healthz)
			r.HandleFunc("/readyz", d.Health.Readyz)
		}
		if d.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", d.Metrics)
		}
	})

	if d.Auth != nil {
		auth := func(r chi.Router) {
			r.Use(
				mw.WithLogging(),
				mw.WithMetrics(),
				mw.WithSecurityHeaders(),
				mw.WithNoStore(),
				mw.WithRateLimit(d.Limiter, mw.IPPathRateKey),
			)
			// Los controllers validan el método: /init solo GET, /redirect cualquiera.
			r.HandleFunc("/init", d.Auth.Init)
			r.HandleFunc("/redirect", d.Auth.Redirect)
		}

		prefix := "/" + strings.Trim(d.Prefix, "/")
		if prefix == "/" {
			r.Group(auth)
		} else {
			r.Route(prefix, auth)
		}
	}

	return r
}
