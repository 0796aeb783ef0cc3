package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/o365auth/internal/cache"
)

func newManager() (*Manager, *cache.MemoryClient) {
	c := cache.NewMemory("test")
	return NewManager(c, CookieOptions{Name: "sid", SameSite: "lax", TTL: time.Hour}), c
}

// roundTrip guarda la sesión y devuelve un request nuevo que trae la cookie emitida.
func roundTrip(t *testing.T, m *Manager, s *Session) (*http.Request, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(context.Background(), rec, s))
	cookies := rec.Result().Cookies()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if len(cookies) == 0 {
		return req, nil
	}
	req.AddCookie(cookies[0])
	return req, cookies[0]
}

func TestLoad_NoCookieGivesNewSession(t *testing.T) {
	m, _ := newManager()
	s, err := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.True(t, s.IsNew())
	require.Len(t, s.ID(), 43)
	_, ok := s.Get("x")
	require.False(t, ok)
}

func TestSaveAndLoad(t *testing.T) {
	m, c := newManager()
	s, err := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	s.Set("O365_AUTH_STATE", "abc")

	req, ck := roundTrip(t, m, s)
	require.NotNil(t, ck)
	require.True(t, ck.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	require.Equal(t, s.ID(), ck.Value)

	// el cache guarda bajo el hash, nunca el sid crudo
	ok, _ := c.Exists(context.Background(), "sid:"+ck.Value)
	require.False(t, ok)

	s2, err := m.Load(req)
	require.NoError(t, err)
	require.False(t, s2.IsNew())
	v, ok := s2.Get("O365_AUTH_STATE")
	require.True(t, ok)
	require.Equal(t, "abc", v)
}

func TestSave_UnchangedSessionEmitsNothing(t *testing.T) {
	m, _ := newManager()
	s, _ := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(context.Background(), rec, s))
	require.Empty(t, rec.Result().Cookies())
}

func TestLogin_RotatesID(t *testing.T) {
	m, _ := newManager()
	s, _ := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Set("O365_AUTH_STATE", "abc")
	req, first := roundTrip(t, m, s)

	s, err := m.Load(req)
	require.NoError(t, err)
	require.NoError(t, s.Login("user-1"))
	require.NotEqual(t, first.Value, s.ID())
	_, second := roundTrip(t, m, s)
	require.Equal(t, s.ID(), second.Value)

	// el sid viejo ya no resuelve a la sesión
	old := httptest.NewRequest(http.MethodGet, "/", nil)
	old.AddCookie(first)
	s3, err := m.Load(old)
	require.NoError(t, err)
	require.True(t, s3.IsNew())

	fresh := httptest.NewRequest(http.MethodGet, "/", nil)
	fresh.AddCookie(second)
	s4, err := m.Load(fresh)
	require.NoError(t, err)
	require.Equal(t, "user-1", s4.UserID())
}

func TestSave_EmptiedSessionIsDeleted(t *testing.T) {
	m, _ := newManager()
	s, _ := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Set("O365_AUTH_STATE", "abc")
	req, _ := roundTrip(t, m, s)

	s, _ = m.Load(req)
	v, ok := s.Pull("O365_AUTH_STATE")
	require.True(t, ok)
	require.Equal(t, "abc", v)

	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(context.Background(), rec, s))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, -1, cookies[0].MaxAge)
}

func TestBuildSessionCookie_Flags(t *testing.T) {
	ck := BuildSessionCookie(CookieOptions{Name: "sid", Domain: "app.example", SameSite: "None", Secure: true, TTL: time.Hour}, "v")
	require.Equal(t, "app.example", ck.Domain)
	require.Equal(t, http.SameSiteNoneMode, ck.SameSite)
	require.True(t, ck.Secure)
	require.Equal(t, 3600, ck.MaxAge)
	require.Equal(t, "/", ck.Path)
}
