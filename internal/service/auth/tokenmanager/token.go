package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/videohub/internal/apperrors"
	"github.com/nkiryanov/videohub/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token kinds put into claims
// Keeps access and refresh tokens apart even if both signed with the same key
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
	Kind   string    `json:"knd"`
}

// Token manager with sensible default
type Config struct {
	// Secret keys to sign access and refresh tokens
	// AccessSecret is required; RefreshSecret defaults to AccessSecret
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	// Access token has to live shorter than refresh one
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	accessKey  []byte
	refreshKey []byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.AccessSecret == "" {
		return nil, errors.New("access token secret must not be empty")
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.AccessSecret
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported, use one of HS256, HS384, HS512", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.AccessTTL < 0 || cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, fmt.Errorf("access token TTL (%s) must be positive and shorter than refresh token TTL (%s)", cfg.AccessTTL, cfg.RefreshTTL)
	}

	return &TokenManager{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// Issue access and refresh tokens for the user
// Tokens are not stored anywhere, persisting refresh token is up to the caller
func (m *TokenManager) Issue(userID uuid.UUID) (models.TokenPair, error) {
	var pair models.TokenPair
	now := m.now().Truncate(time.Second)

	access, err := m.sign(userID, KindAccess, now, now.Add(m.accessTTL), m.accessKey)
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	refresh, err := m.sign(userID, KindRefresh, now, now.Add(m.refreshTTL), m.refreshKey)
	if err != nil {
		return pair, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) sign(userID uuid.UUID, kind string, now time.Time, expiresAt time.Time, key []byte) (models.IssuedToken, error) {
	token := jwt.NewWithClaims(
		m.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(), // jti: tokens issued in the same second still differ
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
			Kind:   kind,
		},
	)

	value, err := token.SignedString(key)
	if err != nil {
		return models.IssuedToken{}, err
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
// Any failure is reported as apperrors.ErrInvalidAccessToken
func (m *TokenManager) ParseAccess(access string) (uuid.UUID, error) {
	userID, err := m.parse(access, KindAccess, m.accessKey)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidAccessToken, err)
	}
	return userID, nil
}

// Parse and validate refresh token signature, expiry and kind
// It does not check the token is the current one, that's the session store job
// Any failure is reported as apperrors.ErrInvalidToken
func (m *TokenManager) ParseRefresh(refresh string) (uuid.UUID, error) {
	userID, err := m.parse(refresh, KindRefresh, m.refreshKey)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}
	return userID, nil
}

func (m *TokenManager) parse(value string, kind string, key []byte) (uuid.UUID, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case err != nil:
		return uuid.Nil, err
	case claims.Kind != kind:
		return uuid.Nil, fmt.Errorf("unexpected token kind %q", claims.Kind)
	case claims.UserID == uuid.Nil:
		return uuid.Nil, errors.New("token has no user")
	}

	return claims.UserID, nil
}
