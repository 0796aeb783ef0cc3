// Package domainpolicy decide qué dominios de email pueden completar el login.
//
// La política se arma una vez desde configuración y se evalúa por request.
// Configuración ausente o vacía niega todo; el comodín "*" es opt-in explícito.
package domainpolicy

import (
	"strings"
)

// Mode identifica cómo se interpreta la lista de dominios.
type Mode int

const (
	// DenyAll es el modo por defecto: sin dominios configurados nadie entra.
	DenyAll Mode = iota
	Single
	List
	Wildcard
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case List:
		return "list"
	case Wildcard:
		return "wildcard"
	default:
		return "deny_all"
	}
}

// Decision es el resultado de Authorize.
type Decision bool

const (
	Denied  Decision = false
	Allowed Decision = true
)

// Policy es inmutable una vez construida con Parse.
type Policy struct {
	mode    Mode
	domains []string
}

// Parse interpreta el valor configurado. allowAny fuerza Wildcard.
// Acepta "contoso.com", "a.com, b.com", "@contoso.com" y "*".
func Parse(raw string, allowAny bool) Policy {
	if allowAny {
		return Policy{mode: Wildcard}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Policy{mode: DenyAll}
	}
	if raw == "*" {
		return Policy{mode: Wildcard}
	}

	var domains []string
	for _, part := range strings.Split(raw, ",") {
		d := normalizeDomain(part)
		if d == "*" {
			return Policy{mode: Wildcard}
		}
		if d != "" {
			domains = append(domains, d)
		}
	}
	switch len(domains) {
	case 0:
		return Policy{mode: DenyAll}
	case 1:
		return Policy{mode: Single, domains: domains}
	default:
		return Policy{mode: List, domains: domains}
	}
}

func (p Policy) Mode() Mode { return p.mode }

// Domains devuelve una copia de los dominios normalizados.
func (p Policy) Domains() []string {
	out := make([]string, len(p.domains))
	copy(out, p.domains)
	return out
}

// Authorize evalúa el email (ya normalizado o no) contra la política.
// El match es por sufijo sobre el dominio del email y respeta el límite de label:
// "contoso.com" permite "a@contoso.com" y "a@eu.contoso.com" pero no "a@evilcontoso.com".
func (p Policy) Authorize(email string) Decision {
	local, domain, ok := splitEmail(email)
	if !ok || local == "" {
		return Denied
	}
	switch p.mode {
	case Wildcard:
		return Allowed
	case Single, List:
		for _, d := range p.domains {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				return Allowed
			}
		}
	}
	return Denied
}

func normalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "@")
	return strings.TrimSuffix(s, ".")
}

func splitEmail(email string) (local, domain string, ok bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", "", false
	}
	local, domain = email[:at], email[at+1:]
	if strings.ContainsAny(domain, "@ ") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", "", false
	}
	return local, domain, true
}
