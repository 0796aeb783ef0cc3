package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/o365auth/internal/cache"
	"github.com/dropDatabas3/o365auth/internal/config"
	healthctrl "github.com/dropDatabas3/o365auth/internal/http/controllers/health"
	o365ctrl "github.com/dropDatabas3/o365auth/internal/http/controllers/o365auth"
	svc "github.com/dropDatabas3/o365auth/internal/http/services/o365auth"
	"github.com/dropDatabas3/o365auth/internal/oauth/microsoft"
	"github.com/dropDatabas3/o365auth/internal/provisioning"
	"github.com/dropDatabas3/o365auth/internal/rate"
	"github.com/dropDatabas3/o365auth/internal/security/domainpolicy"
	"github.com/dropDatabas3/o365auth/internal/session"
	"github.com/dropDatabas3/o365auth/internal/store/memory"
)

func newHandler(t *testing.T, limiter rate.Limiter) http.Handler {
	t.Helper()
	pc := config.ProviderConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://app.example/o365auth/redirect",
		AuthorizeURL: "https://login.example/oauth2/v2.0/authorize",
		TokenURL:     "https://login.example/oauth2/v2.0/token",
		Scopes:       config.DefaultScopes,
		UserInfoURL:  "https://graph.example/v1.0/me",
		DomainPolicy: domainpolicy.Parse("contoso.com", false),
		HTTPTimeout:  time.Second,
	}
	users := memory.NewUsers()
	c := cache.NewMemory("test")
	ms := microsoft.NewClient(http.DefaultClient)
	service := svc.NewService(svc.Deps{
		Config:      config.Fixed(pc),
		Authorizer:  ms,
		Exchanger:   ms,
		Identity:    microsoft.NewGraphClient(http.DefaultClient),
		Provisioner: provisioning.New(users),
	})
	sessions := session.NewManager(c, session.CookieOptions{Name: "sid", TTL: time.Hour})

	reg := prometheus.NewRegistry()
	return New(Deps{
		Prefix:  "/o365auth/",
		Auth:    o365ctrl.NewController(service, sessions, nil),
		Health:  healthctrl.NewHealthController(map[string]healthctrl.Pinger{"cache": c, "store": users}, "test"),
		Limiter: limiter,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestRouter_InitUnderPrefix(t *testing.T) {
	h := newHandler(t, nil)
	rec := serve(h, http.MethodGet, "/o365auth/init")

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Contains(t, rec.Header().Get("Location"), "https://login.example/oauth2/v2.0/authorize?")
}

func TestRouter_InitRejectsPost(t *testing.T) {
	h := newHandler(t, nil)
	rec := serve(h, http.MethodPost, "/o365auth/init")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_RedirectAcceptsAnyMethod(t *testing.T) {
	h := newHandler(t, nil)
	rec := serve(h, http.MethodPost, "/o365auth/redirect?code=abc&state=x")
	// El router no corta: responde el flujo con INVALID_CODE.
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "O365_INVALID_CODE")
}

func TestRouter_NotFound(t *testing.T) {
	h := newHandler(t, nil)
	rec := serve(h, http.MethodGet, "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "ROUTE_NOT_FOUND")
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	h := newHandler(t, nil)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz").Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/readyz").Code)
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/metrics").Code)
}

func TestRouter_RateLimit(t *testing.T) {
	h := newHandler(t, rate.NewMemoryLimiter(1, 24*time.Hour))
	require.Equal(t, http.StatusFound, serve(h, http.MethodGet, "/o365auth/init").Code)

	rec := serve(h, http.MethodGet, "/o365auth/init")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// health no pasa por el limiter
	require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz").Code)
}
