package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/nkiryanov/videohub/internal/handlers/render"
)

type errorLogger interface {
	Error(msg string, args ...any)
}

// Recover turns handler panic into 500 response, server keeps serving other requests
func Recover(l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Client went away or handler asked to abort, nothing to answer
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				l.Error("handler panic", "panic", rec, "uri", r.RequestURI, "stack", string(debug.Stack()))
				render.ServiceError(w, render.InternalErrorMessage, http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
