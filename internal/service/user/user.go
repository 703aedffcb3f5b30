package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/videohub/internal/apperrors"
	"github.com/nkiryanov/videohub/internal/logger"
	"github.com/nkiryanov/videohub/internal/media"
	"github.com/nkiryanov/videohub/internal/models"
	"github.com/nkiryanov/videohub/internal/repository"
	"github.com/nkiryanov/videohub/internal/service/auth"
)

type mediaStore interface {
	Upload(ctx context.Context, f media.Upload) (string, error)
	Delete(ctx context.Context, url string) error
}

type RegisterParams struct {
	Username string
	Email    string
	FullName string
	Password string

	Avatar     *media.Upload
	CoverImage *media.Upload // optional
}

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
	media   mediaStore
	logger  logger.Logger
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage, media mediaStore, l logger.Logger) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
		media:   media,
		logger:  l,
	}
}

// Register creates user with uploaded avatar and optional cover image
// Session is not started, user has to login
func (s *UserService) Register(ctx context.Context, p RegisterParams) (models.User, error) {
	var user models.User

	username := strings.ToLower(strings.TrimSpace(p.Username))
	email := strings.TrimSpace(p.Email)

	if p.Avatar == nil || p.Avatar.Body == nil {
		return user, apperrors.ErrAvatarRequired
	}

	// Check before uploading anything, so duplicates don't leave orphan media
	_, err := s.storage.User().GetUserByLogin(ctx, username, email)
	switch {
	case err == nil:
		return user, apperrors.ErrUserAlreadyExists
	case !errors.Is(err, apperrors.ErrUserNotFound):
		return user, fmt.Errorf("can't check user exists. Err: %w", err)
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	avatarURL, err := s.media.Upload(ctx, *p.Avatar)
	if err != nil {
		return user, fmt.Errorf("can't upload avatar. Err: %w", err)
	}
	uploaded := []string{avatarURL}

	var coverURL string
	if p.CoverImage != nil && p.CoverImage.Body != nil {
		coverURL, err = s.media.Upload(ctx, *p.CoverImage)
		if err != nil {
			s.deleteMedia(ctx, uploaded...)
			return user, fmt.Errorf("can't upload cover image. Err: %w", err)
		}
		uploaded = append(uploaded, coverURL)
	}

	user, err = s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Username:       username,
		Email:          email,
		FullName:       strings.TrimSpace(p.FullName),
		HashedPassword: hash,
		AvatarURL:      avatarURL,
		CoverImageURL:  coverURL,
	})
	if err != nil {
		s.deleteMedia(ctx, uploaded...)
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

// UpdateAccount changes full name and email; empty value keeps the current one
func (s *UserService) UpdateAccount(ctx context.Context, userID uuid.UUID, fullName string, email string) (models.User, error) {
	fullName, email = strings.TrimSpace(fullName), strings.TrimSpace(email)
	if fullName == "" && email == "" {
		return models.User{}, apperrors.ErrEmptyUpdate
	}

	return s.storage.User().UpdateAccount(ctx, userID, fullName, email)
}

// ChangePassword sets new password if the old one is correct
// Current session is ended with it, so stolen refresh token stops working
func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error {
	user, err := s.storage.User().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(oldPassword, user.HashedPassword) {
		return apperrors.ErrWrongPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, Err: %w", err)
	}

	return s.storage.InTx(ctx, func(st repository.Storage) error {
		if err := st.User().UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		return st.User().ClearRefreshToken(ctx, userID)
	})
}

func (s *UserService) UpdateAvatar(ctx context.Context, userID uuid.UUID, f media.Upload) (models.User, error) {
	if f.Body == nil {
		return models.User{}, apperrors.ErrAvatarRequired
	}
	return s.replaceMedia(ctx, userID, f,
		func(u models.User) string { return u.AvatarURL },
		s.storage.User().UpdateAvatar,
	)
}

func (s *UserService) UpdateCoverImage(ctx context.Context, userID uuid.UUID, f media.Upload) (models.User, error) {
	if f.Body == nil {
		return models.User{}, apperrors.New(apperrors.KindValidation, "Cover image is required")
	}
	return s.replaceMedia(ctx, userID, f,
		func(u models.User) string { return u.CoverImageURL },
		s.storage.User().UpdateCoverImage,
	)
}

// Upload new file, point user to it and drop the previous one
func (s *UserService) replaceMedia(
	ctx context.Context,
	userID uuid.UUID,
	f media.Upload,
	current func(models.User) string,
	update func(ctx context.Context, userID uuid.UUID, url string) (models.User, error),
) (models.User, error) {
	user, err := s.storage.User().GetUserByID(ctx, userID)
	if err != nil {
		return user, err
	}
	previous := current(user)

	url, err := s.media.Upload(ctx, f)
	if err != nil {
		return models.User{}, fmt.Errorf("can't upload media. Err: %w", err)
	}

	user, err = update(ctx, userID, url)
	if err != nil {
		s.deleteMedia(ctx, url)
		return user, err
	}

	s.deleteMedia(ctx, previous)
	return user, nil
}

// Delete removes user and its media
func (s *UserService) Delete(ctx context.Context, userID uuid.UUID) error {
	user, err := s.storage.User().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.storage.User().DeleteUser(ctx, userID); err != nil {
		return err
	}

	s.deleteMedia(ctx, user.AvatarURL, user.CoverImageURL)
	return nil
}

// Media cleanup never fails the operation, orphans are only logged
func (s *UserService) deleteMedia(ctx context.Context, urls ...string) {
	for _, url := range urls {
		if url == "" {
			continue
		}
		if err := s.media.Delete(ctx, url); err != nil {
			s.logger.Warn("media not deleted", "url", url, "error", err.Error())
		}
	}
}
