package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medrec/medrec/internal/platform/apperr"
	"github.com/medrec/medrec/internal/platform/auth"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID uuid.UUID, username string, roles []string) (string, time.Time, error)
}

type Service struct {
	users     UserRepository
	tokens    TokenIssuer
	logger    zerolog.Logger
	cost      int
	dummyHash []byte
}

func NewService(users UserRepository, tokens TokenIssuer, logger zerolog.Logger) *Service {
	return NewServiceWithCost(users, tokens, logger, bcrypt.DefaultCost)
}

// NewServiceWithCost is NewService with an explicit bcrypt cost.
func NewServiceWithCost(users UserRepository, tokens TokenIssuer, logger zerolog.Logger, cost int) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		logger: logger.With().Str("component", "identity").Logger(),
		cost:   cost,
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return s
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	username := strings.TrimSpace(req.Username)
	if len(username) < minUsernameLen {
		return nil, apperr.Invalid("username must be at least %d characters", minUsernameLen)
	}
	if len(username) > maxUsernameLen {
		return nil, apperr.Invalid("username must not exceed %d characters", maxUsernameLen)
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperr.Duplicate("username %s already exists", username)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if email != nil {
		if _, err := s.users.GetByEmail(ctx, *email); err == nil {
			return nil, apperr.Duplicate("email %s already exists", *email)
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Username: username, Email: email, PasswordHash: string(hash), Role: auth.RoleUser}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID.String()).Str("username", u.Username).Msg("user registered")
	return s.issue(u)
}

// Login verifies the credentials and returns a fresh token. Unknown users
// and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, apperr.Invalid("username and password are required")
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		// Unknown usernames still pay for one bcrypt comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		s.logger.Warn().Str("username", username).Msg("login failed")
		return nil, apperr.Unauthorized("invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn().Str("username", username).Msg("login failed")
		return nil, apperr.Unauthorized("invalid username or password")
	}

	s.logger.Info().Str("user_id", u.ID.String()).Msg("user logged in")
	return s.issue(u)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// EnsureAdmin creates the configured admin account, or promotes an existing
// user of that name. An empty username is a no-op. It reports whether a new
// account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, nil
	}

	existing, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.Role == auth.RoleAdmin {
			return false, nil
		}
		existing.Role = auth.RoleAdmin
		if err := s.users.Update(ctx, existing); err != nil {
			return false, fmt.Errorf("promote admin: %w", err)
		}
		s.logger.Info().Str("username", username).Msg("existing user promoted to admin")
		return false, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return false, err
	}

	var emailPtr *string
	if email != "" {
		emailPtr = &email
	}
	if _, err := normalizeEmail(emailPtr); err != nil {
		return false, err
	}
	if err := checkPassword(password); err != nil {
		return false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Username: username, Email: emailPtr, PasswordHash: string(hash), Role: auth.RoleAdmin}
	if err := s.users.Create(ctx, u); err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info().Str("username", username).Msg("admin user created")
	return true, nil
}

func (s *Service) issue(u *User) (*AuthResult, error) {
	token, exp, err := s.tokens.Issue(u.ID, u.Username, []string{u.Role})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{User: u, Token: token, ExpiresAt: exp}, nil
}

func normalizeEmail(email *string) (*string, error) {
	if email == nil {
		return nil, nil
	}
	e := strings.ToLower(strings.TrimSpace(*email))
	if e == "" {
		return nil, nil
	}
	if !emailPattern.MatchString(e) {
		return nil, apperr.Invalid("invalid email format")
	}
	return &e, nil
}

func checkPassword(p string) error {
	if len(p) < minPasswordLen {
		return apperr.Invalid("password must be at least %d characters", minPasswordLen)
	}
	if len(p) > maxPasswordLen {
		return apperr.Invalid("password must not exceed %d bytes", maxPasswordLen)
	}
	return nil
}
