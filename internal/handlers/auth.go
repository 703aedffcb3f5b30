package handlers

import (
	"net"
	"net/http"

	"github.com/nkiryanov/videohub/internal/handlers/render"
	"github.com/nkiryanov/videohub/internal/handlers/userctx"
	"github.com/nkiryanov/videohub/internal/logger"
	"github.com/nkiryanov/videohub/internal/models"
	"github.com/nkiryanov/videohub/internal/service/auth"
)

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func handleLogin(as authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required_without=Email,max=50"`
		Email    string `json:"email" validate:"omitempty,email"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		User userResponse `json:"user"`
		tokensResponse
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, pair, err := as.Login(r.Context(), auth.LoginParams{
			Username: data.Username,
			Email:    data.Email,
			Password: data.Password,
			ClientIP: clientIP(r),
		})
		if err != nil {
			renderError(w, l, err)
			return
		}

		as.SetTokenCookies(w, r, pair)
		render.JSON(w, http.StatusOK, response{
			User:           newUserResponse(user),
			tokensResponse: newTokensResponse(pair),
		}, "User logged in successfully")
	})
}

func handleRefreshToken(as authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Body is optional, token usually comes in cookie
		data, err := render.BindOptional[request](w, r)
		if err != nil {
			return
		}

		refresh, err := as.RefreshFromRequest(r, data.RefreshToken)
		if err != nil {
			renderError(w, l, err)
			return
		}

		pair, err := as.RefreshPair(r.Context(), refresh)
		if err != nil {
			renderError(w, l, err)
			return
		}

		as.SetTokenCookies(w, r, pair)
		render.JSON(w, http.StatusCreated, newTokensResponse(pair), "Access token refreshed")
	})
}

func handleLogout(as authService, l logger.Logger) userctx.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, id models.Identity) {
		if err := as.Logout(r.Context(), id.UserID); err != nil {
			renderError(w, l, err)
			return
		}

		as.ClearTokenCookies(w, r)
		render.JSON(w, http.StatusOK, struct{}{}, "User logged out")
	}
}

func newTokensResponse(pair models.TokenPair) tokensResponse {
	return tokensResponse{AccessToken: pair.Access.Value, RefreshToken: pair.Refresh.Value}
}

// Client address without port, counted by login throttle
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
