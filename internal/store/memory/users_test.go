package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/dropDatabas3/o365auth/internal/store/core"
)

type UsersSuite struct {
	suite.Suite
	store *Users
	ctx   context.Context
}

func (s *UsersSuite) SetupTest() {
	s.store = NewUsers()
	s.ctx = context.Background()
}

func TestUsersSuite(t *testing.T) {
	suite.Run(t, new(UsersSuite))
}

func (s *UsersSuite) TestCreateAndFind() {
	u := &core.User{Email: "Jane@Contoso.com", Name: "Jane Doe"}
	s.Require().NoError(s.store.Create(s.ctx, u))
	s.NotEmpty(u.ID)
	s.Equal("jane@contoso.com", u.Email)
	s.False(u.CreatedAt.IsZero())

	found, err := s.store.FindByEmail(s.ctx, "JANE@contoso.com")
	s.Require().NoError(err)
	s.Equal(u.ID, found.ID)
	s.Equal("Jane Doe", found.Name)
}

func (s *UsersSuite) TestFindMissing() {
	_, err := s.store.FindByEmail(s.ctx, "nobody@contoso.com")
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *UsersSuite) TestDuplicateEmailConflicts() {
	s.Require().NoError(s.store.Create(s.ctx, &core.User{Email: "a@contoso.com"}))
	err := s.store.Create(s.ctx, &core.User{Email: "A@CONTOSO.COM"})
	s.ErrorIs(err, core.ErrConflict)
	s.Equal(1, s.store.Len())
}

func (s *UsersSuite) TestConcurrentCreateKeepsOne() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	conflicts := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Create(s.ctx, &core.User{Email: "race@contoso.com"}); err != nil {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, s.store.Len())
	s.Equal(15, conflicts)
}

func (s *UsersSuite) TestSave() {
	u := &core.User{Email: "b@contoso.com"}
	s.Require().NoError(s.store.Create(s.ctx, u))

	now := time.Now().UTC()
	u.EmailVerifiedAt = &now
	s.Require().NoError(s.store.Save(s.ctx, u))

	found, err := s.store.FindByEmail(s.ctx, "b@contoso.com")
	s.Require().NoError(err)
	s.Require().NotNil(found.EmailVerifiedAt)
	s.True(found.EmailVerifiedAt.Equal(now))

	s.ErrorIs(s.store.Save(s.ctx, &core.User{ID: "missing"}), core.ErrNotFound)
}

func (s *UsersSuite) TestReturnedCopiesAreIsolated() {
	u := &core.User{Email: "c@contoso.com", Name: "C"}
	s.Require().NoError(s.store.Create(s.ctx, u))
	found, _ := s.store.FindByEmail(s.ctx, "c@contoso.com")
	found.Name = "mutated"
	again, _ := s.store.FindByEmail(s.ctx, "c@contoso.com")
	s.Equal("C", again.Name)
}
