// Package microsoft implementa el authorization-code flow contra Microsoft identity platform
// (login.microsoftonline.com) y la lectura del perfil en Microsoft Graph /me.
//
// Los endpoints, scopes y credenciales llegan en un config.ProviderConfig ya resuelto;
// este paquete no lee variables de entorno.
package microsoft

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/o365auth/internal/config"
	"github.com/dropDatabas3/o365auth/internal/metrics"
	"github.com/dropDatabas3/o365auth/internal/observability/logger"
	tokens "github.com/dropDatabas3/o365auth/internal/security/token"
)

var (
	ErrTokenExchange = errors.New("microsoft: token exchange failed")
	ErrIdentityFetch = errors.New("microsoft: identity fetch failed")
)

// AuthorizationRequest es el redirect a emitir y el state que hay que guardar en sesión.
type AuthorizationRequest struct {
	URL   string
	State string
}

// Client habla con el authorize/token endpoint. Es seguro para uso concurrente.
type Client struct {
	http     *http.Client
	newState func() (string, error)
}

// NewHTTPClient arma el cliente saliente compartido por token y userinfo.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NewClient crea el cliente OAuth. Si hc es nil se usa uno con el timeout por defecto.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = NewHTTPClient(0)
	}
	return &Client{
		http:     hc,
		newState: func() (string, error) { return tokens.GenerateOpaqueToken(tokens.StateBytes) },
	}
}

func oauthConfig(pc config.ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		RedirectURL:  pc.RedirectURI,
		Scopes:       pc.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   pc.AuthorizeURL,
			TokenURL:  pc.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// BuildAuthorizationRequest genera un state nuevo y la URL de authorize que lo lleva.
// No hace I/O.
func (c *Client) BuildAuthorizationRequest(pc config.ProviderConfig) (AuthorizationRequest, error) {
	state, err := c.newState()
	if err != nil {
		return AuthorizationRequest{}, fmt.Errorf("microsoft: generate state: %w", err)
	}
	u := oauthConfig(pc).AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "query"))
	return AuthorizationRequest{URL: u, State: state}, nil
}

// ExchangeCode canjea el authorization code por un access token. Un solo intento:
// el code es de un solo uso.
func (c *Client) ExchangeCode(ctx context.Context, pc config.ProviderConfig, code string) (string, error) {
	log := logger.From(ctx).With(logger.Component("microsoft"), logger.Op("ExchangeCode"))

	if pc.HTTPTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pc.HTTPTimeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	start := time.Now()
	tok, err := oauthConfig(pc).Exchange(ctx, code)
	if err == nil && strings.TrimSpace(tok.AccessToken) == "" {
		err = errors.New("empty access_token")
	}
	metrics.ObserveProviderCall("token", start, err)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			log.Warn("token endpoint rejected code",
				logger.Int("status", statusOf(re)),
				logger.String("error_code", re.ErrorCode))
		} else {
			log.Warn("token exchange failed", logger.Err(err))
		}
		return "", fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	return tok.AccessToken, nil
}

func statusOf(re *oauth2.RetrieveError) int {
	if re.Response == nil {
		return 0
	}
	return re.Response.StatusCode
}
