package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/videohub/internal/apperrors"
	"github.com/nkiryanov/videohub/internal/handlers/middleware"
	"github.com/nkiryanov/videohub/internal/handlers/render"
	"github.com/nkiryanov/videohub/internal/logger"
	"github.com/nkiryanov/videohub/internal/media"
	"github.com/nkiryanov/videohub/internal/models"
	"github.com/nkiryanov/videohub/internal/service/auth"
	"github.com/nkiryanov/videohub/internal/service/user"
)

const APIPrefix = "/api/v1/users"

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	requireUser := middleware.RequireUser(authService)

	users := http.NewServeMux()

	users.Handle("POST /register", handleRegister(userService, logger))
	users.Handle("POST /login", handleLogin(authService, logger))
	users.Handle("POST /refresh-token", handleRefreshToken(authService, logger))

	users.Handle("POST /logout", requireUser(handleLogout(authService, logger)))
	users.Handle("GET /me", requireUser(handleUserMe(userService, logger)))
	users.Handle("PATCH /me", requireUser(handleUpdateAccount(userService, logger)))
	users.Handle("DELETE /me", requireUser(handleDeleteMe(userService, authService, logger)))
	users.Handle("POST /me/password", requireUser(handleChangePassword(userService, authService, logger)))
	users.Handle("PATCH /me/avatar", requireUser(handleUpdateAvatar(userService, logger)))
	users.Handle("PATCH /me/cover-image", requireUser(handleUpdateCoverImage(userService, logger)))

	root := http.NewServeMux()
	root.Handle(APIPrefix+"/", http.StripPrefix(APIPrefix, users))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
		middleware.Recover(logger),
	)

	return handler
}

// Render service error; internal errors are logged, caller sees generic message only
func renderError(w http.ResponseWriter, l logger.Logger, err error) {
	if apperrors.KindOf(err) == apperrors.KindInternal {
		l.Error("request failed", "error", err.Error())
	}
	render.Error(w, err)
}

type authService interface {
	// Login user by username or email
	// Has to return apperrors.ErrInvalidCredentials both for unknown user and wrong password
	Login(ctx context.Context, p auth.LoginParams) (models.User, models.TokenPair, error)

	// Clear user's stored refresh token
	Logout(ctx context.Context, userID uuid.UUID) error

	// Refresh tokens using refresh token
	// If token is not valid: has to return apperrors.ErrInvalidToken
	// If token is not the current one: has to return apperrors.ErrTokenReplay
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Verify access token
	Authenticate(ctx context.Context, access string) (models.Identity, error)

	// Set or clear auth token cookies in response
	SetTokenCookies(w http.ResponseWriter, r *http.Request, pair models.TokenPair)
	ClearTokenCookies(w http.ResponseWriter, r *http.Request)

	// Get tokens from request
	AccessFromRequest(r *http.Request) (string, error)
	RefreshFromRequest(r *http.Request, fromBody string) (string, error)
}

type userService interface {
	Register(ctx context.Context, p user.RegisterParams) (models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateAccount(ctx context.Context, userID uuid.UUID, fullName string, email string) (models.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error
	UpdateAvatar(ctx context.Context, userID uuid.UUID, f media.Upload) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, f media.Upload) (models.User, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}
