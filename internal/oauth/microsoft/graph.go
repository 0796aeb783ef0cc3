package microsoft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/o365auth/internal/config"
	"github.com/dropDatabas3/o365auth/internal/metrics"
	"github.com/dropDatabas3/o365auth/internal/observability/logger"
)

// Identity es lo mínimo que necesitamos del perfil de Graph.
type Identity struct {
	DisplayName string
	Email       string // lower-case, sin espacios
}

type graphUser struct {
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

const maxProfileBytes = 1 << 20

// GraphClient lee /me con el access token recién canjeado.
type GraphClient struct {
	http *http.Client
}

func NewGraphClient(hc *http.Client) *GraphClient {
	if hc == nil {
		hc = NewHTTPClient(0)
	}
	return &GraphClient{http: hc}
}

// FetchIdentity pide el perfil y lo normaliza. Cualquier status no 2xx, error de red,
// JSON inválido o mail vacío es ErrIdentityFetch.
func (g *GraphClient) FetchIdentity(ctx context.Context, pc config.ProviderConfig, accessToken string) (*Identity, error) {
	if pc.HTTPTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pc.HTTPTimeout)
		defer cancel()
	}

	start := time.Now()
	id, err := g.fetch(ctx, pc.UserInfoURL, accessToken)
	metrics.ObserveProviderCall("userinfo", start, err)
	if err != nil {
		logger.From(ctx).Warn("graph /me failed",
			logger.Component("microsoft"), logger.Op("FetchIdentity"), logger.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrIdentityFetch, err)
	}
	return id, nil
}

func (g *GraphClient) fetch(ctx context.Context, endpoint, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		return nil, fmt.Errorf("graph api error: status %d", resp.StatusCode)
	}

	var u graphUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(u.Mail))
	if email == "" {
		return nil, fmt.Errorf("profile has no mail")
	}
	name := strings.TrimSpace(strings.TrimSpace(u.GivenName) + " " + strings.TrimSpace(u.Surname))
	if name == "" {
		name = strings.TrimSpace(u.DisplayName)
	}
	return &Identity{DisplayName: name, Email: email}, nil
}
