package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del flujo de login y de las llamadas a Microsoft. Viven en un paquete propio
// para que oauth/microsoft y services/o365auth no dependan de internal/http.

var (
	LoginOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "o365auth_login_outcomes_total",
		Help: "Resultados del callback de login por kind (ok|config|invalid_code|...)",
	}, []string{"kind"})

	LoginStarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "o365auth_login_starts_total",
		Help: "Redirects emitidos hacia el authorize endpoint",
	})

	ProviderCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "o365auth_provider_call_duration_seconds",
		Help:    "Latencia de las llamadas salientes a Microsoft (token, userinfo)",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	}, []string{"call", "outcome"})

	UsersProvisioned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "o365auth_users_provisioned_total",
		Help: "Usuarios locales resueltos por el provisioner (created|found|backfilled|recovered)",
	}, []string{"result"})
)

// Register registra las métricas en el registry indicado (o el default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{LoginOutcomes, LoginStarts, ProviderCallDuration, UsersProvisioned} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// ObserveProviderCall mide una llamada saliente; outcome es "ok" o "error".
func ObserveProviderCall(call string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProviderCallDuration.WithLabelValues(call, outcome).Observe(time.Since(start).Seconds())
}

func RecordLoginOutcome(kind string) { LoginOutcomes.WithLabelValues(kind).Inc() }

func RecordLoginStart() { LoginStarts.Inc() }

func RecordProvisioned(result string) { UsersProvisioned.WithLabelValues(result).Inc() }
