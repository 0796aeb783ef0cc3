package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok() Pinger { return pingFunc(func(context.Context) error { return nil }) }

func TestReadyz_AllHealthy(t *testing.T) {
	c := NewHealthController(map[string]Pinger{"store": ok(), "cache": ok()}, "1.2.3")
	rec := httptest.NewRecorder()
	c.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1.2.3", rec.Header().Get("X-Service-Version"))

	var body readyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ready", body.Status)
	require.Len(t, body.Components, 2)
	require.Equal(t, "cache", body.Components[0].Name)
}

func TestReadyz_DependencyDown(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	c := NewHealthController(map[string]Pinger{"store": down, "cache": ok()}, "")
	rec := httptest.NewRecorder()
	c.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")
}

func TestReadyz_MethodNotAllowed(t *testing.T) {
	c := NewHealthController(nil, "")
	rec := httptest.NewRecorder()
	c.Readyz(rec, httptest.NewRequest(http.MethodPost, "/readyz", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	c := NewHealthController(nil, "")
	rec := httptest.NewRecorder()
	c.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
