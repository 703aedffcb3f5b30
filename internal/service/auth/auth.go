package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/videohub/internal/apperrors"
	"github.com/nkiryanov/videohub/internal/logger"
	"github.com/nkiryanov/videohub/internal/models"
)

// Compared against when login user is unknown, so both failures take the same time
const dummyPassword = "videohub-dummy-password"

type authRepo interface {
	sessionRepo
	GetUserByLogin(ctx context.Context, username string, email string) (models.User, error)
}

// Failed login counter, optional
type loginLimiter interface {
	Check(ctx context.Context, identifier string, ip string) error
	Fail(ctx context.Context, identifier string, ip string) error
	Reset(ctx context.Context, identifier string, ip string) error
}

type Config struct {
	// Hasher to verify user passwords; DefaultHasher if not set
	Hasher PasswordHasher

	// Login throttle; disabled if nil
	Throttle loginLimiter

	// Token cookies settings
	Cookies CookieConfig

	// Logger for best effort failures that are not returned to the caller
	Logger logger.Logger
}

type LoginParams struct {
	// Either username or email is used to find user
	Username string
	Email    string
	Password string

	// Client address, counted by login throttle
	ClientIP string
}

// Auth service
type AuthService struct {
	hasher    PasswordHasher
	dummyHash string

	tokens   tokenIssuer
	sessions *Sessions
	users    authRepo

	throttle loginLimiter
	cookies  CookieConfig
	logger   logger.Logger
}

func NewService(cfg Config, tokens tokenIssuer, users authRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	l := cfg.Logger
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("error while preparing password hasher. Err: %w", err)
	}

	return &AuthService{
		hasher:    hasher,
		dummyHash: dummyHash,
		tokens:    tokens,
		sessions:  NewSessions(tokens, users),
		users:     users,
		throttle:  cfg.Throttle,
		cookies:   cfg.Cookies.withDefaults(),
		logger:    l,
	}, nil
}

// Login verifies user credentials and starts new session
// Unknown user and wrong password are both reported as apperrors.ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, p LoginParams) (models.User, models.TokenPair, error) {
	var (
		user models.User
		pair models.TokenPair
	)

	if p.Password == "" || (p.Username == "" && p.Email == "") {
		return user, pair, apperrors.ErrInvalidCredentials
	}
	identifier := p.Username
	if identifier == "" {
		identifier = p.Email
	}

	if s.throttle != nil {
		if err := s.throttle.Check(ctx, identifier, p.ClientIP); err != nil {
			return user, pair, err
		}
	}

	user, err := s.users.GetUserByLogin(ctx, strings.ToLower(p.Username), p.Email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Verify(p.Password, s.dummyHash)
		s.loginFailed(ctx, identifier, p.ClientIP)
		return models.User{}, pair, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, pair, fmt.Errorf("error while loading user. Err: %w", err)
	}

	if !s.hasher.Verify(p.Password, user.HashedPassword) {
		s.loginFailed(ctx, identifier, p.ClientIP)
		return models.User{}, pair, apperrors.ErrInvalidCredentials
	}

	pair, err = s.sessions.Start(ctx, user.ID)
	if err != nil {
		return models.User{}, pair, err
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, identifier, p.ClientIP); err != nil {
			s.logger.Warn("login attempts reset failed", "error", err.Error())
		}
	}

	return user, pair, nil
}

func (s *AuthService) loginFailed(ctx context.Context, identifier string, ip string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.Fail(ctx, identifier, ip); err != nil {
		s.logger.Warn("login attempt not counted", "error", err.Error())
	}
}

// Logout clears user's session, so no refresh token of the user is valid anymore
// Issued access tokens stay valid until they expire
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	err := s.sessions.Invalidate(ctx, userID)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return nil
	}
	return err
}

// RefreshPair rotates refresh token
// Returns apperrors.ErrInvalidToken or apperrors.ErrTokenReplay if the token can't be used
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	if refresh == "" {
		return models.TokenPair{}, apperrors.ErrUnauthorized
	}
	return s.sessions.Rotate(ctx, refresh)
}

// Authenticate validates access token and returns identity of its owner
// Only signature and expiry are checked, session store is not touched
func (s *AuthService) Authenticate(_ context.Context, access string) (models.Identity, error) {
	if access == "" {
		return models.Identity{}, apperrors.ErrUnauthorized
	}

	userID, err := s.tokens.ParseAccess(access)
	if err != nil {
		return models.Identity{}, err
	}

	return models.Identity{UserID: userID}, nil
}
