package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

// CookieName holds the admin session JWT.
const CookieName = "santa_session"

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const adminIDKey contextKey = "adminID"

// RequireAdmin rejects requests without a valid session cookie with a JSON
// 401 and otherwise stores the admin ID in the request context.
//
// Usage with chi:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(auth.RequireAdmin(tokens))
//	    r.Post("/api/admin/round", h.Generate)
//	})
func RequireAdmin(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			adminID, err := adminIDFromCookie(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": "admin login required",
				})
				return
			}

			ctx := WithAdminID(r.Context(), adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithAdminID returns a copy of ctx carrying adminID. Handler tests use it to
// skip the cookie round trip.
func WithAdminID(ctx context.Context, adminID string) context.Context {
	return context.WithValue(ctx, adminIDKey, adminID)
}

// AdminIDFromContext returns the admin ID set by RequireAdmin.
func AdminIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(adminIDKey).(string)
	return id, ok && id != ""
}

func adminIDFromCookie(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
