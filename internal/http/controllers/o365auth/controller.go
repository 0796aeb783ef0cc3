// Package o365auth expone /init y /redirect sobre el service de login.
package o365auth

import (
	"context"
	"errors"
	"net/http"

	httperrors "github.com/dropDatabas3/o365auth/internal/http/errors"
	svc "github.com/dropDatabas3/o365auth/internal/http/services/o365auth"
	"github.com/dropDatabas3/o365auth/internal/http/views"
	"github.com/dropDatabas3/o365auth/internal/observability/logger"
	"github.com/dropDatabas3/o365auth/internal/session"
)

// Sessions carga y persiste la sesión del navegador.
type Sessions interface {
	Load(r *http.Request) (*session.Session, error)
	Save(ctx context.Context, w http.ResponseWriter, s *session.Session) error
}

type Controller struct {
	service  *svc.Service
	sessions Sessions
	view     views.ErrorView
}

func NewController(service *svc.Service, sessions Sessions, view views.ErrorView) *Controller {
	if view == nil {
		view = views.JSON{}
	}
	return &Controller{service: service, sessions: sessions, view: view}
}

// kindErrors es la única traducción Kind -> status/código HTTP.
var kindErrors = map[svc.Kind]*httperrors.AppError{
	svc.KindConfig:              {Code: "O365_CONFIG", HTTPStatus: http.StatusInternalServerError},
	svc.KindInvalidCode:         {Code: "O365_INVALID_CODE", HTTPStatus: http.StatusInternalServerError},
	svc.KindStateMismatch:       {Code: "O365_STATE_MISMATCH", HTTPStatus: http.StatusInternalServerError},
	svc.KindTokenExchange:       {Code: "O365_TOKEN_EXCHANGE", HTTPStatus: http.StatusInternalServerError},
	svc.KindIdentityFetch:       {Code: "O365_IDENTITY_FETCH", HTTPStatus: http.StatusInternalServerError},
	svc.KindDomainNotAuthorized: {Code: "O365_DOMAIN_NOT_AUTHORIZED", HTTPStatus: http.StatusForbidden},
	svc.KindUserProvisioning:    {Code: "O365_USER_PROVISIONING", HTTPStatus: http.StatusInternalServerError},
}

// toAppError mapea el error del service al contrato HTTP.
func toAppError(err error) *httperrors.AppError {
	var fe *svc.FlowError
	if !errors.As(err, &fe) {
		return httperrors.ErrInternalServerError.WithCause(err)
	}
	base, ok := kindErrors[fe.Kind]
	if !ok {
		return httperrors.ErrInternalServerError.WithCause(err)
	}
	out := *base
	out.Message = fe.Message
	out.Detail = fe.Detail
	out.Err = fe
	return &out
}

func (c *Controller) fail(w http.ResponseWriter, r *http.Request, err error) {
	c.view.Render(w, r, toAppError(err))
}

// Init handles GET {prefix}/init
func (c *Controller) Init(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("o365auth.Init"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		c.view.Render(w, r, httperrors.ErrMethodNotAllowed)
		return
	}

	sess, err := c.sessions.Load(r)
	if err != nil {
		log.Error("session load failed", logger.Err(err))
		c.fail(w, r, err)
		return
	}

	res, ierr := c.service.Init(ctx, sess, svc.InitRequest{Referer: r.Referer(), Host: r.Host})
	if err := c.sessions.Save(ctx, w, sess); err != nil {
		log.Error("session save failed", logger.Err(err))
		c.fail(w, r, err)
		return
	}
	if ierr != nil {
		c.fail(w, r, ierr)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

// Redirect handles {prefix}/redirect (callback de Microsoft). Acepta cualquier
// método; el service rechaza lo que no sea GET.
func (c *Controller) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("o365auth.Redirect"))

	sess, err := c.sessions.Load(r)
	if err != nil {
		log.Error("session load failed", logger.Err(err))
		c.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	res, rerr := c.service.Redirect(ctx, sess, svc.CallbackRequest{
		Method:                   r.Method,
		Code:                     q.Get("code"),
		State:                    q.Get("state"),
		ProviderError:            q.Get("error"),
		ProviderErrorDescription: q.Get("error_description"),
	})

	// Se guarda también en fallo: el state ya fue limpiado.
	if err := c.sessions.Save(ctx, w, sess); err != nil {
		log.Error("session save failed", logger.Err(err))
		c.fail(w, r, err)
		return
	}
	if rerr != nil {
		c.fail(w, r, rerr)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.ReturnURL, http.StatusFound)
}
