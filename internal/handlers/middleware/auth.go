package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/videohub/internal/handlers/render"
	"github.com/nkiryanov/videohub/internal/handlers/userctx"
	"github.com/nkiryanov/videohub/internal/models"
)

type authenticator interface {
	// Read access token from request cookie or header
	AccessFromRequest(r *http.Request) (string, error)

	// Verify access token and return its owner
	Authenticate(ctx context.Context, access string) (models.Identity, error)
}

// RequireUser lets only requests with valid access token through
// Handler receives caller identity as an argument; it is also put into request context
// Rejected requests get 401 and handler is not called
func RequireUser(auth authenticator) func(userctx.HandlerFunc) http.Handler {
	return func(next userctx.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, err := auth.AccessFromRequest(r)
			if err != nil {
				render.Error(w, err)
				return
			}

			id, err := auth.Authenticate(r.Context(), access)
			if err != nil {
				render.Error(w, err)
				return
			}

			next(w, r.WithContext(userctx.New(r.Context(), id)), id)
		})
	}
}
