package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/videohub/internal/apperrors"
	"github.com/nkiryanov/videohub/internal/models"
	"github.com/nkiryanov/videohub/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, updated_at, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token`

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, full_name, password_hash, avatar_url, cover_image_url)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, p repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), p.Username, p.Email, p.FullName, p.HashedPassword, p.AvatarURL, p.CoverImageURL)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		if isUniqueViolation(err) {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByLogin = `-- name: GetUserByLogin
SELECT ` + userColumns + `
FROM users
WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND lower(email) = lower($2))
ORDER BY (username = $1) DESC
LIMIT 1
`

// Find user by username or email, empty values are ignored
// Username match wins if username and email point to different users
func (r *UserRepo) GetUserByLogin(ctx context.Context, username string, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByLogin, username, email)
	return collectUser(rows)
}

const setRefreshToken = `-- name: SetRefreshToken
UPDATE users
SET refresh_token = $2
WHERE id = $1
`

// Overwrite the refresh token slot
// Single UPDATE statement: concurrent writers never lose updates, the last one wins
func (r *UserRepo) SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	return r.execOne(ctx, setRefreshToken, userID, token)
}

const rotateRefreshToken = `-- name: RotateRefreshToken
UPDATE users
SET refresh_token = $3
WHERE id = $1 AND refresh_token = $2
`

// Replace the refresh token only if the slot still holds the presented one
// Returns apperrors.ErrTokenReplay if the slot was changed or cleared meanwhile
func (r *UserRepo) RotateRefreshToken(ctx context.Context, userID uuid.UUID, presented string, token string) error {
	tag, err := r.DB.Exec(ctx, rotateRefreshToken, userID, presented, token)

	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrTokenReplay
	default:
		return nil
	}
}

const clearRefreshToken = `-- name: ClearRefreshToken
UPDATE users
SET refresh_token = NULL
WHERE id = $1
`

func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	return r.execOne(ctx, clearRefreshToken, userID)
}

const updateAccount = `-- name: UpdateAccount
UPDATE users
SET full_name = COALESCE(NULLIF($2, ''), full_name),
    email = COALESCE(NULLIF($3, ''), email),
    updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateAccount(ctx context.Context, userID uuid.UUID, fullName string, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateAccount, userID, fullName, email)
	user, err := collectUser(rows)

	if err != nil && isUniqueViolation(err) {
		return user, apperrors.ErrUserAlreadyExists
	}

	return user, err
}

const updatePassword = `-- name: UpdatePassword
UPDATE users
SET password_hash = $2, updated_at = now()
WHERE id = $1
`

func (r *UserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error {
	return r.execOne(ctx, updatePassword, userID, hashedPassword)
}

const updateAvatar = `-- name: UpdateAvatar
UPDATE users
SET avatar_url = $2, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateAvatar(ctx context.Context, userID uuid.UUID, url string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateAvatar, userID, url)
	return collectUser(rows)
}

const updateCoverImage = `-- name: UpdateCoverImage
UPDATE users
SET cover_image_url = $2, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateCoverImage(ctx context.Context, userID uuid.UUID, url string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateCoverImage, userID, url)
	return collectUser(rows)
}

const deleteUser = `-- name: DeleteUser
DELETE FROM users
WHERE id = $1
`

func (r *UserRepo) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return r.execOne(ctx, deleteUser, userID)
}

// Exec statement that must touch exactly one user row
func (r *UserRepo) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := r.DB.Exec(ctx, sql, args...)

	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrUserNotFound
	default:
		return nil
	}
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.HashedPassword,
		&u.AvatarURL,
		&u.CoverImageURL,
		&u.RefreshToken,
	)
	return u, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
