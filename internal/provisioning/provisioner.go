// Package provisioning resuelve (o crea) el usuario local de una identidad Office 365.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/o365auth/internal/metrics"
	"github.com/dropDatabas3/o365auth/internal/oauth/microsoft"
	"github.com/dropDatabas3/o365auth/internal/observability/logger"
	"github.com/dropDatabas3/o365auth/internal/security/password"
	tokens "github.com/dropDatabas3/o365auth/internal/security/token"
	"github.com/dropDatabas3/o365auth/internal/store/core"
)

const defaultSharedTimeout = 15 * time.Second

var ErrProvisioning = errors.New("provisioning: user could not be resolved")

// Provisioner es idempotente por email: N llamadas con la misma identidad
// terminan en un único registro.
type Provisioner struct {
	users core.UserRepository

	// Now y HashPassword son inyectables (tests).
	Now          func() time.Time
	HashPassword func(plain string) (string, error)

	// SharedTimeout acota el lookup/create compartido entre logins concurrentes.
	SharedTimeout time.Duration

	sf singleflight.Group
}

func New(users core.UserRepository) *Provisioner {
	return &Provisioner{
		users:         users,
		Now:           time.Now,
		HashPassword:  password.Hasher(password.Default),
		SharedTimeout: defaultSharedTimeout,
	}
}

// FindOrCreate devuelve el usuario con ese email, creándolo si hace falta.
// Nunca pisa un EmailVerifiedAt ya seteado.
func (p *Provisioner) FindOrCreate(ctx context.Context, id microsoft.Identity) (*core.User, error) {
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", ErrProvisioning)
	}
	id.Email = email

	// El trabajo compartido no depende del request que lo arrancó: si ese cliente
	// cancela, los demás que se unieron siguen esperando el resultado.
	timeout := p.SharedTimeout
	if timeout <= 0 {
		timeout = defaultSharedTimeout
	}
	ch := p.sf.DoChan(email, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return p.findOrCreate(sctx, id)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cp := *res.Val.(*core.User)
		return &cp, nil
	}
}

func (p *Provisioner) findOrCreate(ctx context.Context, id microsoft.Identity) (*core.User, error) {
	log := logger.From(ctx).With(logger.Component("provisioning"), logger.Email(id.Email))

	u, err := p.users.FindByEmail(ctx, id.Email)
	switch {
	case err == nil:
		return p.backfill(ctx, u)
	case !errors.Is(err, core.ErrNotFound):
		log.Error("user lookup failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}

	secret, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}
	hash, err := p.HashPassword(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: hash: %w", ErrProvisioning, err)
	}
	now := p.Now().UTC()
	u = &core.User{
		Email:           id.Email,
		Name:            id.DisplayName,
		PasswordHash:    hash,
		EmailVerifiedAt: &now,
	}

	err = p.users.Create(ctx, u)
	switch {
	case err == nil:
		metrics.RecordProvisioned("created")
		log.Info("user provisioned", logger.UserID(u.ID))
		return u, nil
	case errors.Is(err, core.ErrConflict):
		// Otro proceso lo creó entre el lookup y el insert.
		existing, ferr := p.users.FindByEmail(ctx, id.Email)
		if ferr != nil {
			log.Error("conflict recovery lookup failed", logger.Err(ferr))
			return nil, fmt.Errorf("%w: %w", ErrProvisioning, ferr)
		}
		metrics.RecordProvisioned("recovered")
		return p.backfill(ctx, existing)
	default:
		log.Error("user create failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}
}

func (p *Provisioner) backfill(ctx context.Context, u *core.User) (*core.User, error) {
	if u.EmailVerifiedAt != nil {
		metrics.RecordProvisioned("found")
		return u, nil
	}
	now := p.Now().UTC()
	u.EmailVerifiedAt = &now
	if err := p.users.Save(ctx, u); err != nil {
		logger.From(ctx).Error("email_verified_at backfill failed",
			logger.Component("provisioning"), logger.UserID(u.ID), logger.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}
	metrics.RecordProvisioned("backfilled")
	return u, nil
}
