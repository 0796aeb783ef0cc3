// Package pg implementa core.UserRepository sobre PostgreSQL (pgx/v5).
package pg

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/o365auth/internal/observability/logger"
	"github.com/dropDatabas3/o365auth/internal/store/core"
)

type Store struct {
	pool  *pgxpool.Pool
	table string // ya sanitizado
}

// Options ajusta el pool. Cero = default de pgxpool.
type Options struct {
	MaxConns  int
	UserTable string
}

// New abre el pool. El ping inicial no es fatal: la app arranca con la DB caída
// y /readyz lo reporta.
func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	table, err := QuoteTable(opts.UserTable)
	if err != nil {
		return nil, err
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns > 0 {
		pcfg.MaxConns = int32(opts.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	log := logger.From(ctx).With(logger.Component("store.pg"))
	if err := pool.Ping(ctx); err != nil {
		log.Warn("pg_pool_startup_ping_failed", logger.Err(err))
	} else {
		log.Info("pg_pool_ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}
	return &Store{pool: pool, table: table}, nil
}

// Pool expone el pool interno (métricas, migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

const userCols = `id::text, email, name, password_hash, email_verified_at, created_at, updated_at`

func (s *Store) FindByEmail(ctx context.Context, email string) (*core.User, error) {
	q := `SELECT ` + userCols + ` FROM ` + s.table + ` WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var u core.User
	err := s.pool.QueryRow(ctx, q, strings.TrimSpace(email)).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("pg: find user by email: %w", err)
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *core.User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return core.ErrInvalid
	}
	q := `INSERT INTO ` + s.table + ` (email, name, password_hash, email_verified_at)
VALUES ($1, $2, $3, $4)
RETURNING id::text, created_at, updated_at`
	err := s.pool.QueryRow(ctx, q, email, u.Name, u.PasswordHash, u.EmailVerifiedAt).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		logger.From(ctx).Error("pg_create_user_err",
			logger.Component("store.pg"), logger.Email(email), logger.Err(err))
		return fmt.Errorf("pg: create user: %w", err)
	}
	u.Email = email
	return nil
}

func (s *Store) Save(ctx context.Context, u *core.User) error {
	q := `UPDATE ` + s.table + `
SET name = $2, password_hash = $3, email_verified_at = $4, updated_at = now()
WHERE id = $1
RETURNING updated_at`
	var updated time.Time
	err := s.pool.QueryRow(ctx, q, u.ID, u.Name, u.PasswordHash, u.EmailVerifiedAt).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ErrNotFound
		}
		return fmt.Errorf("pg: save user: %w", err)
	}
	u.UpdatedAt = updated
	return nil
}

// isUniqueViolation detecta 23505; el fallback por texto cubre errores envueltos por drivers/proxies.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// QuoteTable valida "tabla" o "schema.tabla" y lo devuelve quoteado.
// Los nombres vienen de configuración, nunca del request.
func QuoteTable(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("pg: empty user table name")
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("pg: invalid user table %q", name)
	}
	for _, p := range parts {
		if !identRE.MatchString(p) {
			return "", fmt.Errorf("pg: invalid user table %q", name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}
