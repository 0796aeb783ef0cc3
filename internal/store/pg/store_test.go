package pg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/o365auth/internal/store/core"
)

func TestQuoteTable(t *testing.T) {
	got, err := QuoteTable("app_user")
	require.NoError(t, err)
	require.Equal(t, `"app_user"`, got)

	got, err = QuoteTable("auth.users")
	require.NoError(t, err)
	require.Equal(t, `"auth"."users"`, got)

	for _, bad := range []string{"", "users; DROP TABLE x", `a"b`, "a.b.c", "1users", "users-x"} {
		_, err := QuoteTable(bad)
		require.Error(t, err, bad)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.True(t, isUniqueViolation(errors.New("duplicate key value violates unique constraint")))
	require.False(t, isUniqueViolation(errors.New("connection refused")))
}

func TestRenderMigrations(t *testing.T) {
	up, err := RenderMigrations("auth.users", Up)
	require.NoError(t, err)
	require.NotEmpty(t, up)
	require.Contains(t, up[0].SQL, `CREATE TABLE IF NOT EXISTS "auth"."users"`)
	require.Contains(t, up[0].SQL, `auth_users_email_lower_uq`)
	require.NotContains(t, up[0].SQL, "{{")

	down, err := RenderMigrations("app_user", Down)
	require.NoError(t, err)
	require.Contains(t, down[0].SQL, `DROP TABLE IF EXISTS "app_user"`)

	_, err = RenderMigrations("app_user", Direction("sideways"))
	require.Error(t, err)
	_, err = RenderMigrations("bad name", Up)
	require.Error(t, err)
}

// Integración: requiere O365AUTH_TEST_PG_DSN apuntando a una base descartable.
func TestStore_Integration(t *testing.T) {
	dsn := os.Getenv("O365AUTH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("O365AUTH_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	table := fmt.Sprintf("o365auth_test_%d", time.Now().UnixNano())

	s, err := New(ctx, dsn, Options{UserTable: table})
	require.NoError(t, err)
	defer s.Close()

	_, err = Migrate(ctx, s.Pool(), table, Up, 0)
	require.NoError(t, err)
	defer func() { _, _ = Migrate(ctx, s.Pool(), table, Down, 0) }()

	u := &core.User{Email: "Jane@Contoso.com", Name: "Jane Doe", PasswordHash: "x"}
	require.NoError(t, s.Create(ctx, u))
	require.NotEmpty(t, u.ID)

	require.ErrorIs(t, s.Create(ctx, &core.User{Email: "jane@contoso.com", PasswordHash: "y"}), core.ErrConflict)

	found, err := s.FindByEmail(ctx, "JANE@contoso.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, found.ID)
	require.Nil(t, found.EmailVerifiedAt)

	now := time.Now().UTC()
	found.EmailVerifiedAt = &now
	require.NoError(t, s.Save(ctx, found))

	_, err = s.FindByEmail(ctx, "nobody@contoso.com")
	require.ErrorIs(t, err, core.ErrNotFound)
}
