package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/videohub/internal/apperrors"
	"github.com/nkiryanov/videohub/internal/models"
)

type tokenIssuer interface {
	Issue(userID uuid.UUID) (models.TokenPair, error)
	ParseAccess(access string) (uuid.UUID, error)
	ParseRefresh(refresh string) (uuid.UUID, error)
}

type sessionRepo interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, presented string, token string) error
	ClearRefreshToken(ctx context.Context, userID uuid.UUID) error
}

// Sessions keeps the single active refresh token of every user
//
// Per user session states:
//
//	NoSession --Start--> Active --Rotate--> Active --Invalidate--> NoSession
//
// Start overwrites the stored value, the last login wins.
// Rotate swaps the value only if it still holds the presented token, so of two racing rotations exactly
// one wins and a logout that lands mid-rotation is never undone.
type Sessions struct {
	tokens tokenIssuer
	users  sessionRepo
}

func NewSessions(tokens tokenIssuer, users sessionRepo) *Sessions {
	return &Sessions{tokens: tokens, users: users}
}

// Persist overwrites the user's stored refresh token
func (s *Sessions) Persist(ctx context.Context, userID uuid.UUID, refresh string) error {
	if err := s.users.SetRefreshToken(ctx, userID, refresh); err != nil {
		return fmt.Errorf("error while saving refresh token. Err: %w", err)
	}
	return nil
}

// Start issues new token pair and makes its refresh token the only valid one
func (s *Sessions) Start(ctx context.Context, userID uuid.UUID) (models.TokenPair, error) {
	pair, err := s.tokens.Issue(userID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	if err := s.Persist(ctx, userID, pair.Refresh.Value); err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// Rotate exchanges presented refresh token for a new pair
//
// Fails with apperrors.ErrInvalidToken if the token is malformed, expired, signed by someone else or its user is gone.
// Fails with apperrors.ErrTokenReplay if the token is not the one currently stored (rotated out or logged out).
func (s *Sessions) Rotate(ctx context.Context, presented string) (models.TokenPair, error) {
	userID, err := s.tokens.ParseRefresh(presented)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.TokenPair{}, fmt.Errorf("refresh token user is gone: %w", apperrors.ErrInvalidToken)
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("error while loading session. Err: %w", err)
	}

	if !user.HasSession() || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(presented)) != 1 {
		return models.TokenPair{}, apperrors.ErrTokenReplay
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	err = s.users.RotateRefreshToken(ctx, user.ID, presented, pair.Refresh.Value)
	switch {
	case errors.Is(err, apperrors.ErrTokenReplay):
		return models.TokenPair{}, err
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return pair, nil
}

// Invalidate clears stored refresh token, so no refresh token of the user is accepted anymore
func (s *Sessions) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("error while clearing refresh token. Err: %w", err)
	}
	return nil
}
