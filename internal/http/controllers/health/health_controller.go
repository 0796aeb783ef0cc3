// Package health contiene el controller para health checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	httperrors "github.com/dropDatabas3/o365auth/internal/http/errors"
	"github.com/dropDatabas3/o365auth/internal/observability/logger"
)

// Pinger es cualquier dependencia que sabe decir si está viva (cache, store).
type Pinger interface {
	Ping(ctx context.Context) error
}

type componentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readyResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components []componentStatus `json:"components"`
}

// HealthController maneja /healthz y /readyz.
type HealthController struct {
	checks  map[string]Pinger
	version string
	timeout time.Duration
}

// NewHealthController crea el controller. checks se consultan en orden de nombre.
func NewHealthController(checks map[string]Pinger, version string) *HealthController {
	return &HealthController{checks: checks, version: version, timeout: 2 * time.Second}
}

// Healthz maneja GET /healthz (liveness, sin dependencias).
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

// Readyz maneja GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := readyResponse{Status: "ready", Version: c.version, Components: make([]componentStatus, 0, len(names))}
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.checks[name].Ping(pctx)
		cancel()

		cs := componentStatus{Name: name, Status: "ok"}
		if err != nil {
			cs.Status = "down"
			cs.Error = err.Error()
			resp.Status = "unavailable"
			log.Warn("readiness check failed", logger.Component(name), logger.Err(err))
		}
		resp.Components = append(resp.Components, cs)
	}

	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if c.version != "" {
		w.Header().Set("X-Service-Version", c.version)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
