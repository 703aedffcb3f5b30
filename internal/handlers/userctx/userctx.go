package userctx

import (
	"context"
	"net/http"

	"github.com/nkiryanov/videohub/internal/models"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Handler that gets authenticated caller explicitly instead of digging it out of the context
type HandlerFunc func(w http.ResponseWriter, r *http.Request, id models.Identity)

// Create a new context with the caller identity
func New(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Extract the caller identity from the context
func FromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}
