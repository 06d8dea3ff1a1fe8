package auth

import (
	"context"
	"net/http"

	"github.com/zhouzirui/serene/backend/pkg/utils"
)

type contextKey struct{}

// WithUserID stores the authenticated subject in ctx.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, contextKey{}, uid)
}

// UserID returns the authenticated subject stored by Middleware.
func UserID(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(contextKey{}).(string)
	return uid, ok && uid != ""
}

// Middleware rejects requests without a verified bearer credential with 401 and
// injects the subject into the request context otherwise.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				utils.RespondError(w, http.StatusUnauthorized, "No authorization header provided")
				return
			}

			uid, err := Authenticate(r.Context(), v, header)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}
