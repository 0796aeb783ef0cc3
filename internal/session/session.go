// Package session guarda el estado por navegador del login en el cache
// (key "sid:<sha256(rawSID)>"). El navegador solo ve el sid crudo en una cookie HttpOnly.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/o365auth/internal/cache"
	tokens "github.com/dropDatabas3/o365auth/internal/security/token"
)

// UserIDKey marca la sesión como autenticada.
const UserIDKey = "auth_user_id"

const sidBytes = 32

// Session es un key/value string->string de un navegador. No es seguro para uso
// concurrente: cada request tiene la suya.
type Session struct {
	id     string
	values map[string]string

	isNew   bool
	dirty   bool
	staleID string // id anterior a una rotación; se borra al guardar
}

func (s *Session) ID() string { return s.id }

// IsNew indica que el navegador no traía una sesión válida.
func (s *Session) IsNew() bool { return s.isNew }

func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	s.values[key] = value
	s.dirty = true
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Pull devuelve y borra la key (lectura de un solo uso).
func (s *Session) Pull(key string) (string, bool) {
	v, ok := s.values[key]
	if ok {
		s.Delete(key)
	}
	return v, ok
}

// UserID devuelve el usuario autenticado o "".
func (s *Session) UserID() string { return s.values[UserIDKey] }

// Login marca la sesión como autenticada y rota el sid (fixation).
func (s *Session) Login(userID string) error {
	id, err := tokens.GenerateOpaqueToken(sidBytes)
	if err != nil {
		return fmt.Errorf("session: rotate id: %w", err)
	}
	if !s.isNew && s.staleID == "" {
		s.staleID = s.id
	}
	s.id = id
	s.values[UserIDKey] = userID
	s.dirty = true
	return nil
}

// Manager carga y persiste sesiones.
type Manager struct {
	cache  cache.Client
	cookie CookieOptions
}

func NewManager(c cache.Client, o CookieOptions) *Manager {
	if o.Name == "" {
		o.Name = "sid"
	}
	return &Manager{cache: c, cookie: o}
}

func cacheKey(rawSID string) string { return "sid:" + tokens.SHA256Base64URL(rawSID) }

// Load lee la cookie y trae los valores del cache. Cookie ausente, expirada o
// corrupta dan una sesión nueva vacía (no persistida hasta Save).
func (m *Manager) Load(r *http.Request) (*Session, error) {
	if ck, err := r.Cookie(m.cookie.Name); err == nil && ck.Value != "" {
		raw, err := m.cache.Get(r.Context(), cacheKey(ck.Value))
		switch {
		case err == nil:
			vals := map[string]string{}
			if jerr := json.Unmarshal([]byte(raw), &vals); jerr == nil {
				return &Session{id: ck.Value, values: vals}, nil
			}
		case !cache.IsNotFound(err):
			return nil, fmt.Errorf("session: load: %w", err)
		}
	}
	return m.newSession()
}

func (m *Manager) newSession() (*Session, error) {
	id, err := tokens.GenerateOpaqueToken(sidBytes)
	if err != nil {
		return nil, fmt.Errorf("session: new id: %w", err)
	}
	return &Session{id: id, values: map[string]string{}, isNew: true}, nil
}

// Save persiste la sesión si cambió y emite la cookie. Una sesión nueva que quedó
// vacía no se guarda ni emite cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if s == nil {
		return errors.New("session: nil session")
	}
	if !s.dirty {
		return nil
	}
	if s.staleID != "" {
		if err := m.cache.Delete(ctx, cacheKey(s.staleID)); err != nil {
			return fmt.Errorf("session: drop rotated id: %w", err)
		}
		s.staleID = ""
	}
	if len(s.values) == 0 {
		if !s.isNew {
			if err := m.cache.Delete(ctx, cacheKey(s.id)); err != nil {
				return fmt.Errorf("session: delete: %w", err)
			}
			http.SetCookie(w, BuildDeletionCookie(m.cookie))
		}
		s.dirty = false
		return nil
	}

	b, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := m.cache.Set(ctx, cacheKey(s.id), string(b), m.cookie.TTL); err != nil {
		return fmt.Errorf("session: store: %w", err)
	}
	http.SetCookie(w, BuildSessionCookie(m.cookie, s.id))
	s.dirty = false
	s.isNew = false
	return nil
}
