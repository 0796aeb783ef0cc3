package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/o365auth/internal/security/domainpolicy"
	"github.com/dropDatabas3/o365auth/internal/security/secretbox"
)

// ErrMissingCredentials se devuelve cuando falta client id, secret o redirect URL.
var ErrMissingCredentials = errors.New("config: office 365 authentication parameters are not provided")

// ErrSealedSecret: el client secret viene cifrado y no se pudo abrir con O365_SECRET_KEY.
var ErrSealedSecret = errors.New("config: cannot open sealed client secret")

// ProviderConfig es la vista inmutable que consumen el cliente OAuth, el resolver de
// identidad y el orquestador. Se construye una vez por proceso.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthorizeURL string
	TokenURL     string
	Scopes       []string
	UserInfoURL  string

	DomainPolicy domainpolicy.Policy
	UserTable    string
	HTTPTimeout  time.Duration
}

// Resolve valida las credenciales y arma el ProviderConfig.
// No hace ninguna llamada de red.
func (o O365) Resolve() (ProviderConfig, error) {
	clientID := strings.TrimSpace(o.ClientID)
	secret := strings.TrimSpace(o.ClientSecret)
	redirect := strings.TrimSpace(o.RedirectURL)
	if clientID == "" || secret == "" || redirect == "" {
		return ProviderConfig{}, ErrMissingCredentials
	}
	if secretbox.IsSealed(secret) {
		plain, err := secretbox.OpenWithKey(o.SecretKey, secret)
		if err != nil {
			return ProviderConfig{}, fmt.Errorf("%w: %w", ErrSealedSecret, err)
		}
		secret = plain
	}

	base := strings.TrimRight(o.BaseURL, "/")
	scopes := make([]string, 0, len(o.Scopes))
	for _, s := range o.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}

	timeout := o.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	table := o.UserTable
	if table == "" {
		table = DefaultUserTable
	}

	return ProviderConfig{
		ClientID:     clientID,
		ClientSecret: secret,
		RedirectURI:  redirect,
		AuthorizeURL: base + o.AuthorizePath,
		TokenURL:     base + o.TokenPath,
		Scopes:       scopes,
		UserInfoURL:  o.UserInfoURL,
		DomainPolicy: domainpolicy.Parse(o.AuthorizedDomains, o.AllowAnyDomain),
		UserTable:    table,
		HTTPTimeout:  timeout,
	}, nil
}

// Resolver entrega el ProviderConfig del proceso o el error de configuración.
type Resolver interface {
	Resolve() (ProviderConfig, error)
}

// StaticResolver resuelve una sola vez y memoiza valor o error.
type StaticResolver struct {
	resolve func() (ProviderConfig, error)
}

// NewStaticResolver envuelve la sección O365 ya cargada.
func NewStaticResolver(o O365) *StaticResolver {
	return &StaticResolver{resolve: sync.OnceValues(o.Resolve)}
}

func (r *StaticResolver) Resolve() (ProviderConfig, error) { return r.resolve() }

// Fixed devuelve un Resolver sobre un ProviderConfig ya armado (tests, embedding).
func Fixed(pc ProviderConfig) Resolver { return fixedResolver{pc: pc} }

type fixedResolver struct{ pc ProviderConfig }

func (f fixedResolver) Resolve() (ProviderConfig, error) { return f.pc, nil }
