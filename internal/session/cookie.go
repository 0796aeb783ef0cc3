package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/o365auth/internal/observability/logger"
)

// CookieOptions es la política única de la cookie de sesión (set y borrado).
type CookieOptions struct {
	Name     string
	Domain   string
	SameSite string // "", "lax", "strict", "none"
	Secure   bool
	TTL      time.Duration
}

// parseSameSite convierte el string de config a http.SameSite. Default: Lax.
func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		logger.L().Warn("cookie: unknown SameSite, using Lax", logger.String("samesite", s))
		return http.SameSiteLaxMode
	}
}

// BuildSessionCookie arma la cookie de sesión (HttpOnly, Path=/).
func BuildSessionCookie(o CookieOptions, value string) *http.Cookie {
	c := &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().UTC().Add(o.TTL),
		MaxAge:   int(o.TTL.Seconds()),
		Secure:   o.Secure,
		HttpOnly: true,
		SameSite: parseSameSite(o.SameSite),
	}
	if o.Domain != "" {
		c.Domain = o.Domain
	}
	return c
}

// BuildDeletionCookie devuelve una cookie que "borra" la sesión del browser.
// Mismo nombre/domain/samesite/secure para que el user-agent la sobreescriba.
func BuildDeletionCookie(o CookieOptions) *http.Cookie {
	c := &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		Secure:   o.Secure,
		HttpOnly: true,
		SameSite: parseSameSite(o.SameSite),
	}
	if o.Domain != "" {
		c.Domain = o.Domain
	}
	return c
}
