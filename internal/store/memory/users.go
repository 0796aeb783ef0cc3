// Package memory es un UserRepository en proceso para dev y tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/o365auth/internal/store/core"
)

type Users struct {
	mu      sync.RWMutex
	byID    map[string]*core.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUsers() *Users {
	return &Users{
		byID:    map[string]*core.User{},
		byEmail: map[string]string{},
		now:     time.Now,
	}
}

func (s *Users) FindByEmail(_ context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *Users) Create(_ context.Context, u *core.User) error {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return core.ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byEmail[email]; dup {
		return core.ErrConflict
	}
	now := s.now().UTC()
	u.ID = uuid.NewString()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.byID[u.ID] = &cp
	s.byEmail[email] = u.ID
	return nil
}

func (s *Users) Save(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[u.ID]
	if !ok {
		return core.ErrNotFound
	}
	u.UpdatedAt = s.now().UTC()
	cur.Name = u.Name
	cur.PasswordHash = u.PasswordHash
	cur.EmailVerifiedAt = u.EmailVerifiedAt
	cur.UpdatedAt = u.UpdatedAt
	return nil
}

func (s *Users) Ping(context.Context) error { return nil }

// Len cuenta usuarios (tests).
func (s *Users) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
