package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/videohub/internal/apperrors"
	"github.com/nkiryanov/videohub/internal/handlers/render"
	"github.com/nkiryanov/videohub/internal/handlers/userctx"
	"github.com/nkiryanov/videohub/internal/logger"
	"github.com/nkiryanov/videohub/internal/media"
	"github.com/nkiryanov/videohub/internal/models"
	"github.com/nkiryanov/videohub/internal/service/user"
)

// User as shown to API callers, never contains password hash or refresh token
type userResponse struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.AvatarURL,
		CoverImage: u.CoverImageURL,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func handleRegister(us userService, l logger.Logger) http.Handler {
	type form struct {
		FullName string `form:"fullName" validate:"required,max=100"`
		Email    string `form:"email" validate:"required,email,max=254"`
		Username string `form:"username" validate:"required,min=2,max=50,alphanum"`
		Password string `form:"password" validate:"required,min=8,max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := parseMultipart(w, r); err != nil {
			render.Error(w, err)
			return
		}

		data := form{
			FullName: r.FormValue("fullName"),
			Email:    r.FormValue("email"),
			Username: r.FormValue("username"),
			Password: r.FormValue("password"),
		}
		if err := render.Validate(w, data); err != nil {
			return
		}

		avatar, avatarFile, err := formImage(r, "avatar")
		defer closeFile(avatarFile)
		if err != nil {
			render.Error(w, err)
			return
		}
		if avatar == nil {
			render.Error(w, apperrors.ErrAvatarRequired)
			return
		}

		cover, coverFile, err := formImage(r, "coverImage")
		defer closeFile(coverFile)
		if err != nil {
			render.Error(w, err)
			return
		}

		u, err := us.Register(r.Context(), user.RegisterParams{
			Username:   data.Username,
			Email:      data.Email,
			FullName:   data.FullName,
			Password:   data.Password,
			Avatar:     avatar,
			CoverImage: cover,
		})
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, http.StatusCreated, newUserResponse(u), "User registered successfully")
	})
}

func handleUserMe(us userService, l logger.Logger) userctx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, id models.Identity) {
		u, err := us.GetByID(r.Context(), id.UserID)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, http.StatusOK, newUserResponse(u), "Current user fetched successfully")
	}
}

func handleUpdateAccount(us userService, l logger.Logger) userctx.HandlerFunc {
	type request struct {
		FullName string `json:"fullName" validate:"required_without=Email,max=100"`
		Email    string `json:"email" validate:"omitempty,email,max=254"`
	}

	return func(w http.ResponseWriter, r *http.Request, id models.Identity) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		u, err := us.UpdateAccount(r.Context(), id.UserID, data.FullName, data.Email)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, http.StatusOK, newUserResponse(u), "Account details updated successfully")
	}
}

func handleChangePassword(us userService, as authService, l logger.Logger) userctx.HandlerFunc {
	type request struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8,max=128"`
	}

	return func(w http.ResponseWriter, r *http.Request, id models.Identity) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := us.ChangePassword(r.Context(), id.UserID, data.OldPassword, data.NewPassword); err != nil {
			renderError(w, l, err)
			return
		}

		// Session ended with password change, user has to login again
		as.ClearTokenCookies(w, r)
		render.JSON(w, http.StatusOK, struct{}{}, "Password changed successfully")
	}
}

func handleUpdateAvatar(us userService, l logger.Logger) userctx.HandlerFunc {
	return handleReplaceImage("avatar", us.UpdateAvatar, "Avatar updated successfully", l)
}

func handleUpdateCoverImage(us userService, l logger.Logger) userctx.HandlerFunc {
	return handleReplaceImage("coverImage", us.UpdateCoverImage, "Cover image updated successfully", l)
}

func handleReplaceImage(
	field string,
	replace func(ctx context.Context, userID uuid.UUID, f media.Upload) (models.User, error),
	message string,
	l logger.Logger,
) userctx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, id models.Identity) {
		if err := parseMultipart(w, r); err != nil {
			render.Error(w, err)
			return
		}

		image, f, err := formImage(r, field)
		defer closeFile(f)
		if err != nil {
			render.Error(w, err)
			return
		}
		if image == nil {
			render.Error(w, apperrors.New(apperrors.KindValidation, "File in field '"+field+"' is required"))
			return
		}

		u, err := replace(r.Context(), id.UserID, *image)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, http.StatusOK, newUserResponse(u), message)
	}
}

func handleDeleteMe(us userService, as authService, l logger.Logger) userctx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, id models.Identity) {
		if err := us.Delete(r.Context(), id.UserID); err != nil {
			renderError(w, l, err)
			return
		}

		as.ClearTokenCookies(w, r)
		render.JSON(w, http.StatusOK, struct{}{}, "Account deleted")
	}
}
