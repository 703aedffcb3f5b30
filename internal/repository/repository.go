package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/videohub/internal/models"
)

type CreateUserParams struct {
	Username       string
	Email          string
	FullName       string
	HashedPassword string
	AvatarURL      string
	CoverImageURL  string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or by login (username or email)
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByLogin(ctx context.Context, username string, email string) (models.User, error)

	// Overwrite user's refresh token slot with single atomic update
	// Must return apperrors.ErrUserNotFound if user not exists
	SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error

	// Compare-and-swap the refresh token slot: set token only if the slot holds presented
	// Must return apperrors.ErrTokenReplay if it does not
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, presented string, token string) error

	// Set refresh token slot to NULL
	ClearRefreshToken(ctx context.Context, userID uuid.UUID) error

	// Update account fields; empty string keeps the current value
	UpdateAccount(ctx context.Context, userID uuid.UUID, fullName string, email string) (models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
	UpdateAvatar(ctx context.Context, userID uuid.UUID, url string) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, url string) (models.User, error)

	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

type Storage interface {
	User() UserRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
