package accounts

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/evault/evault/internal/apperr"
	"github.com/evault/evault/internal/notify"
	"github.com/evault/evault/pkg/logger"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost = 10
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen  = 72
	maxUsernameRune = 50
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var (
	errTaken           = apperr.Conflict("username or email already exists")
	errAccountNotFound = apperr.NotFound("user not found")
	errAlreadyVerified = apperr.Validation("email is already verified")
)

// Config controls verification codes.
type Config struct {
	CodeTTL time.Duration
	// DispatchTimeout bounds a whole notification, retries included.
	DispatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{CodeTTL: 24 * time.Hour, DispatchTimeout: 45 * time.Second}
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in *RegisterInput) normalize() error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	err := validation.ValidateStruct(in,
		validation.Field(&in.Username, validation.Required, validation.RuneLength(0, maxUsernameRune),
			validation.Match(usernamePattern).Error("may only contain letters, digits, '.', '_' and '-'")),
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.Password, validation.Required, validation.Length(0, maxPasswordLen)),
	)
	if err != nil {
		return apperr.Validation(err.Error())
	}
	return nil
}

// Service implements registration, email verification and login.
type Service struct {
	repo     Repository
	notifier notify.Notifier
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
	// dummyHash keeps unknown-user logins as slow as wrong passwords.
	dummyHash []byte
}

func NewService(repo Repository, notifier notify.Notifier, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = def.CodeTTL
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = def.DispatchTimeout
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcryptCost)
	return &Service{
		repo:      repo,
		notifier:  notifier,
		cfg:       cfg,
		log:       logger.Named("accounts"),
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummy,
	}
}

// generateCode returns a uniformly random six digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func (s *Service) dispatch(ctx context.Context, a *Account) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()
	if err := s.notifier.SendVerificationCode(ctx, a.Email, a.VerificationCode); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

// Register creates an unverified account and sends it a verification code.
// The account is removed again if the code cannot be delivered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	now := s.now()
	a := &Account{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	a.setCode(code, now.Add(s.cfg.CodeTTL))
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, errTaken
		}
		return nil, err
	}
	if err := s.dispatch(ctx, a); err != nil {
		if derr := s.repo.Delete(context.WithoutCancel(ctx), a.ID); derr != nil {
			s.log.Errorf("rollback of account %s after failed dispatch: %v", a.ID, derr)
		}
		return nil, err
	}
	s.log.Infof("registered account %s (%s)", a.ID, a.Username)
	return a, nil
}

func (s *Service) ensureAvailable(ctx context.Context, username, email string) error {
	for _, lookup := range []func() (*Account, error){
		func() (*Account, error) { return s.repo.GetByUsername(ctx, username) },
		func() (*Account, error) { return s.repo.GetByEmail(ctx, email) },
	} {
		_, err := lookup()
		switch {
		case err == nil:
			return errTaken
		case !errors.Is(err, ErrAccountNotFound):
			return err
		}
	}
	return nil
}

// VerifyEmail consumes a pending code. Unknown emails, wrong codes and
// expired codes are indistinguishable to the caller.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, apperr.Validation("email and code are required")
	}
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, apperr.ErrInvalidOrExpiredCode
		}
		return nil, err
	}
	now := s.now()
	if a.VerificationCode == "" || a.CodeExpiresAt == nil || !now.Before(*a.CodeExpiresAt) ||
		subtle.ConstantTimeCompare([]byte(a.VerificationCode), []byte(code)) != 1 {
		return nil, apperr.ErrInvalidOrExpiredCode
	}
	a.Verified = true
	a.clearCode()
	a.UpdatedAt = now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Login checks credentials. The verified flag is only consulted once the
// password matched.
func (s *Service) Login(ctx context.Context, username, password string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation("username and password are required")
	}
	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	if !a.Verified {
		return nil, apperr.ErrUnverifiedAccount
	}
	return a, nil
}

// ResendVerification issues a fresh code for an unverified account.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperr.Validation("email is required")
	}
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return errAccountNotFound
		}
		return err
	}
	if a.Verified {
		return errAlreadyVerified
	}
	code, err := generateCode()
	if err != nil {
		return err
	}
	now := s.now()
	a.setCode(code, now.Add(s.cfg.CodeTTL))
	a.UpdatedAt = now
	if err := s.repo.Update(ctx, a); err != nil {
		return err
	}
	return s.dispatch(ctx, a)
}

func (s *Service) GetByID(ctx context.Context, id string) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, errAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

// Username resolves an account id for the document service.
func (s *Service) Username(ctx context.Context, id string) (string, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return a.Username, nil
}
