package accounts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evault/evault/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (c *captureNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("dispatch without deadline")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.codes == nil {
		c.codes = make(map[string]string)
	}
	c.codes[email] = code
	return nil
}

func (c *captureNotifier) code(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

func newTestService(t *testing.T) (*Service, *MemoryRepository, *captureNotifier) {
	t.Helper()
	repo := NewMemoryRepository()
	n := &captureNotifier{}
	return NewService(repo, n, DefaultConfig()), repo, n
}

func register(t *testing.T, s *Service, username, email string) *Account {
	t.Helper()
	a, err := s.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: "correct horse"})
	require.NoError(t, err)
	return a
}

func TestRegisterVerifyLoginScenario(t *testing.T) {
	ctx := context.Background()
	s, _, n := newTestService(t)

	a := register(t, s, "alice", "Alice@Example.com")
	assert.False(t, a.Verified)
	assert.Equal(t, "alice@example.com", a.Email)
	assert.NotEqual(t, "correct horse", a.PasswordHash)

	_, err := s.Login(ctx, "alice", "correct horse")
	require.ErrorIs(t, err, apperr.ErrUnverifiedAccount)

	code := n.code("alice@example.com")
	require.Len(t, code, 6)
	require.GreaterOrEqual(t, code, "100000")

	verified, err := s.VerifyEmail(ctx, "alice@example.com", code)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Empty(t, verified.VerificationCode)
	assert.Nil(t, verified.CodeExpiresAt)

	logged, err := s.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, a.ID, logged.ID)

	// the code is single use
	_, err = s.VerifyEmail(ctx, "alice@example.com", code)
	require.ErrorIs(t, err, apperr.ErrInvalidOrExpiredCode)
}

func TestRegisterValidation(t *testing.T) {
	s, _, _ := newTestService(t)
	cases := map[string]RegisterInput{
		"missing username": {Email: "a@example.com", Password: "correct horse"},
		"long username":    {Username: strings.Repeat("a", 51), Email: "a@example.com", Password: "correct horse"},
		"bad username":     {Username: "a b c", Email: "a@example.com", Password: "correct horse"},
		"bad email":        {Username: "alice", Email: "not-an-email", Password: "correct horse"},
		"long password":    {Username: "alice", Email: "a@example.com", Password: strings.Repeat("p", 73)},
		"missing password": {Username: "alice", Email: "a@example.com"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Register(context.Background(), in)
			require.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	_, err := s.Register(context.Background(), RegisterInput{Username: "alice", Email: "a@example.com"})
	assert.Equal(t, "password: cannot be blank.", err.Error())
}

func TestRegisterAcceptsMinimalCredentials(t *testing.T) {
	ctx := context.Background()
	s, _, n := newTestService(t)

	a, err := s.Register(ctx, RegisterInput{Username: "a", Email: "a@x.com", Password: "p"})
	require.NoError(t, err)
	assert.False(t, a.Verified)

	_, err = s.Login(ctx, "a", "p")
	require.ErrorIs(t, err, apperr.ErrUnverifiedAccount)

	_, err = s.VerifyEmail(ctx, "a@x.com", n.code("a@x.com"))
	require.NoError(t, err)
	logged, err := s.Login(ctx, "a", "p")
	require.NoError(t, err)
	assert.Equal(t, a.ID, logged.ID)
}

func TestRegisterRejectsTakenUsernameOrEmail(t *testing.T) {
	s, _, _ := newTestService(t)
	register(t, s, "alice", "alice@example.com")

	_, err := s.Register(context.Background(), RegisterInput{Username: "alice", Email: "other@example.com", Password: "correct horse"})
	require.ErrorIs(t, err, apperr.ErrConflict)
	_, err = s.Register(context.Background(), RegisterInput{Username: "alice2", Email: "ALICE@example.com", Password: "correct horse"})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRegisterRollsBackWhenDispatchFails(t *testing.T) {
	s, repo, n := newTestService(t)
	n.err = errors.New("smtp down")

	_, err := s.Register(context.Background(), RegisterInput{Username: "alice", Email: "alice@example.com", Password: "correct horse"})
	require.Error(t, err)
	assert.Equal(t, 500, apperr.HTTPStatus(err))

	_, err = repo.GetByUsername(context.Background(), "alice")
	require.ErrorIs(t, err, ErrAccountNotFound)

	// the name is free again
	n.err = nil
	register(t, s, "alice", "alice@example.com")
}

func TestVerifyEmailRejections(t *testing.T) {
	ctx := context.Background()
	s, _, n := newTestService(t)
	register(t, s, "alice", "alice@example.com")
	code := n.code("alice@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err := s.VerifyEmail(ctx, "alice@example.com", wrong)
	require.ErrorIs(t, err, apperr.ErrInvalidOrExpiredCode)

	_, err = s.VerifyEmail(ctx, "nobody@example.com", code)
	require.ErrorIs(t, err, apperr.ErrInvalidOrExpiredCode)

	_, err = s.VerifyEmail(ctx, "", "")
	require.ErrorIs(t, err, apperr.ErrValidation)

	// expired
	s.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }
	_, err = s.VerifyEmail(ctx, "alice@example.com", code)
	require.ErrorIs(t, err, apperr.ErrInvalidOrExpiredCode)
	assert.Equal(t, 400, apperr.HTTPStatus(err))
}

func TestLoginChecksPasswordBeforeVerification(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)
	register(t, s, "alice", "alice@example.com")

	_, err := s.Login(ctx, "alice", "wrong password")
	require.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = s.Login(ctx, "nobody", "correct horse")
	require.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	assert.Equal(t, 401, apperr.HTTPStatus(err))
}

func TestResendVerification(t *testing.T) {
	ctx := context.Background()
	s, _, n := newTestService(t)
	register(t, s, "alice", "alice@example.com")
	first := n.code("alice@example.com")

	err := s.ResendVerification(ctx, "nobody@example.com")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// a new code replaces the old one; retry until it differs
	var second string
	for i := 0; i < 5 && (second == "" || second == first); i++ {
		require.NoError(t, s.ResendVerification(ctx, "alice@example.com"))
		second = n.code("alice@example.com")
	}
	require.NotEqual(t, first, second)
	_, err = s.VerifyEmail(ctx, "alice@example.com", first)
	require.ErrorIs(t, err, apperr.ErrInvalidOrExpiredCode)

	_, err = s.VerifyEmail(ctx, "alice@example.com", second)
	require.NoError(t, err)

	err = s.ResendVerification(ctx, "alice@example.com")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUsernameLookup(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)
	a := register(t, s, "alice", "alice@example.com")

	name, err := s.Username(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	_, err = s.Username(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGenerateCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, err := generateCode()
		require.NoError(t, err)
		require.Len(t, c, 6)
		require.True(t, c >= "100000" && c <= "999999", c)
	}
}

func TestMemoryRepositoryUniqueness(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	require.NoError(t, r.Create(ctx, &Account{ID: "1", Username: "alice", Email: "a@example.com"}))
	require.ErrorIs(t, r.Create(ctx, &Account{ID: "2", Username: "alice", Email: "b@example.com"}), ErrDuplicate)
	require.ErrorIs(t, r.Create(ctx, &Account{ID: "3", Username: "bob", Email: "a@example.com"}), ErrDuplicate)
	require.ErrorIs(t, r.Update(ctx, &Account{ID: "9"}), ErrAccountNotFound)
	require.ErrorIs(t, r.Delete(ctx, "9"), ErrAccountNotFound)
}
