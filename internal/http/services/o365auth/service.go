// Package o365auth orquesta el login Office 365: Init emite el redirect al
// authorize endpoint y Redirect procesa el callback hasta dejar la sesión autenticada.
package o365auth

import (
	"context"
	"crypto/subtle"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/o365auth/internal/config"
	"github.com/dropDatabas3/o365auth/internal/metrics"
	"github.com/dropDatabas3/o365auth/internal/oauth/microsoft"
	"github.com/dropDatabas3/o365auth/internal/observability/logger"
	"github.com/dropDatabas3/o365auth/internal/security/domainpolicy"
	"github.com/dropDatabas3/o365auth/internal/store/core"
)

// Keys de sesión.
const (
	SessionStateKey       = "O365_AUTH_STATE"
	SessionReturnURLKey   = "URL_BEFORE_AUTH"
	SessionAccessTokenKey = "access_token"
)

// Session es la vista mínima de la sesión del navegador que usa el flujo.
type Session interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	// Login marca la sesión como autenticada (y rota su id).
	Login(userID string) error
}

type Authorizer interface {
	BuildAuthorizationRequest(pc config.ProviderConfig) (microsoft.AuthorizationRequest, error)
}

type TokenExchanger interface {
	ExchangeCode(ctx context.Context, pc config.ProviderConfig, code string) (string, error)
}

type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, pc config.ProviderConfig, accessToken string) (*microsoft.Identity, error)
}

type Provisioner interface {
	FindOrCreate(ctx context.Context, id microsoft.Identity) (*core.User, error)
}

// Deps contiene las dependencias del service.
type Deps struct {
	Config      config.Resolver
	Authorizer  Authorizer
	Exchanger   TokenExchanger
	Identity    IdentityFetcher
	Provisioner Provisioner
}

type Service struct {
	cfg         config.Resolver
	authorizer  Authorizer
	exchanger   TokenExchanger
	identity    IdentityFetcher
	provisioner Provisioner
}

func NewService(d Deps) *Service {
	return &Service{
		cfg:         d.Config,
		authorizer:  d.Authorizer,
		exchanger:   d.Exchanger,
		identity:    d.Identity,
		provisioner: d.Provisioner,
	}
}

type InitRequest struct {
	Referer string // header Referer del request a /init
	Host    string // host del request, para validar el Referer
}

type InitResult struct {
	RedirectURL string
	State       string
}

type CallbackRequest struct {
	Method                   string
	Code                     string
	State                    string
	ProviderError            string // query "error" cuando el usuario cancela o Microsoft rechaza
	ProviderErrorDescription string
}

type RedirectResult struct {
	ReturnURL string
	User      *core.User
}

// flow lleva la etapa actual y el logger del intento.
type flow struct {
	sess  Session
	stage Stage
	log   *zap.Logger
}

func (f *flow) enter(s Stage) {
	f.log.Debug("o365 flow transition",
		logger.String("from", f.stage.String()), logger.Stage(s.String()))
	f.stage = s
}

// fail limpia el state (anti replay) y arma el FlowError.
func (f *flow) fail(kind Kind, msg string, err error) *FlowError {
	f.sess.Delete(SessionStateKey)
	fe := &FlowError{Kind: kind, Stage: f.stage, Message: msg, Err: err}
	f.log.Warn("o365 login failed",
		logger.Kind(kind.String()), logger.Stage(f.stage.String()), logger.Err(err))
	f.stage = StageFailed
	return fe
}

// Init arranca el login: guarda state y URL de retorno en la sesión y devuelve
// la URL de authorize.
func (s *Service) Init(ctx context.Context, sess Session, req InitRequest) (*InitResult, error) {
	f := &flow{sess: sess, stage: StageStart, log: logger.From(ctx).With(logger.Component("o365auth"), logger.Op("Init"))}

	pc, err := s.cfg.Resolve()
	if err != nil {
		return nil, f.fail(KindConfig, msgConfig, err)
	}
	ar, err := s.authorizer.BuildAuthorizationRequest(pc)
	if err != nil {
		return nil, f.fail(KindConfig, msgConfig, err)
	}

	sess.Set(SessionStateKey, ar.State)
	sess.Set(SessionReturnURLKey, SafeReturnURL(req.Referer, req.Host))
	f.enter(StageAwaitingCallback)
	metrics.RecordLoginStart()

	return &InitResult{RedirectURL: ar.URL, State: ar.State}, nil
}

// Redirect procesa el callback. Cualquier error es *FlowError y deja la sesión
// sin state.
func (s *Service) Redirect(ctx context.Context, sess Session, req CallbackRequest) (*RedirectResult, error) {
	res, ferr := s.redirect(ctx, sess, req)
	if ferr != nil {
		metrics.RecordLoginOutcome(ferr.Kind.String())
		return nil, ferr
	}
	metrics.RecordLoginOutcome("ok")
	return res, nil
}

func (s *Service) redirect(ctx context.Context, sess Session, req CallbackRequest) (*RedirectResult, *FlowError) {
	f := &flow{sess: sess, stage: StageAwaitingCallback, log: logger.From(ctx).With(logger.Component("o365auth"), logger.Op("Redirect"))}

	pc, err := s.cfg.Resolve()
	if err != nil {
		return nil, f.fail(KindConfig, msgConfig, err)
	}

	// VALIDATING: code primero, después state.
	f.enter(StageValidating)
	if req.ProviderError != "" {
		fe := f.fail(KindInvalidCode, msgInvalidCode, nil)
		fe.Detail = strings.TrimSpace(req.ProviderError + ": " + req.ProviderErrorDescription)
		return nil, fe
	}
	if !strings.EqualFold(req.Method, "GET") || req.Code == "" {
		return nil, f.fail(KindInvalidCode, msgInvalidCode, nil)
	}
	stored, _ := sess.Get(SessionStateKey)
	if req.State == "" || stored == "" || subtle.ConstantTimeCompare([]byte(req.State), []byte(stored)) != 1 {
		return nil, f.fail(KindStateMismatch, msgStateMismatch, nil)
	}

	f.enter(StageExchanging)
	accessToken, err := s.exchanger.ExchangeCode(ctx, pc, req.Code)
	if err != nil {
		return nil, f.fail(KindTokenExchange, msgTokenExchange, err)
	}

	f.enter(StageResolvingIdentity)
	id, err := s.identity.FetchIdentity(ctx, pc, accessToken)
	if err != nil {
		return nil, f.fail(KindIdentityFetch, msgIdentityFetch, err)
	}
	f.log = f.log.With(logger.Email(id.Email))

	f.enter(StageCheckingDomain)
	if pc.DomainPolicy.Authorize(id.Email) != domainpolicy.Allowed {
		return nil, f.fail(KindDomainNotAuthorized, msgDomain, nil)
	}

	f.enter(StageProvisioning)
	user, err := s.provisioner.FindOrCreate(ctx, *id)
	if err != nil {
		return nil, f.fail(KindUserProvisioning, msgProvisioning, err)
	}

	if err := sess.Login(user.ID); err != nil {
		return nil, f.fail(KindUserProvisioning, msgProvisioning, err)
	}
	sess.Delete(SessionStateKey)
	sess.Set(SessionAccessTokenKey, accessToken)
	returnURL, ok := sess.Get(SessionReturnURLKey)
	sess.Delete(SessionReturnURLKey)
	if !ok || returnURL == "" {
		returnURL = "/"
	}

	f.enter(StageAuthenticated)
	f.log.Info("o365 login succeeded", logger.UserID(user.ID))
	return &RedirectResult{ReturnURL: returnURL, User: user}, nil
}

// SafeReturnURL reduce el Referer a path+query del mismo host. Cualquier otra
// cosa (otro host, esquema raro, vacío) vuelve a "/".
func SafeReturnURL(referer, host string) string {
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return "/"
	}
	u, err := url.Parse(referer)
	if err != nil {
		return "/"
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return "/"
	}
	if u.Host != "" && !strings.EqualFold(u.Host, host) {
		return "/"
	}
	if u.Host == "" && u.Scheme != "" {
		return "/"
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
