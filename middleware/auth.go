package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2/jwt"

	"nutriLensAPI/internal/logger"
)

type contextKey string

const ClerkIDKey contextKey = "clerkID"

// TokenVerifier turns a Clerk session token into the user id it was issued
// for.
type TokenVerifier func(ctx context.Context, token string) (string, error)

// ClerkVerifier checks tokens against the key set up with clerk.SetKey.
func ClerkVerifier(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// BearerToken extracts the token from the Authorization header. Websocket
// clients that cannot set headers may pass it as ?token= instead.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, true
		}
		return "", false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader || token == "" {
		return "", false
	}
	return token, true
}

// ClerkAuth rejects requests without a valid session token and stores the
// Clerk user id in the request context.
func ClerkAuth(verify TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Authorization header required. Use 'Bearer <token>'")
				return
			}

			clerkID, err := verify(r.Context(), token)
			if err != nil {
				logger.Warn("Token verification failed: %v", err)
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClerkID(r.Context(), clerkID)))
		})
	}
}

// ClerkAuthMiddleware is ClerkAuth backed by the Clerk SDK.
func ClerkAuthMiddleware(next http.Handler) http.Handler {
	return ClerkAuth(ClerkVerifier)(next)
}

func WithClerkID(ctx context.Context, clerkID string) context.Context {
	return context.WithValue(ctx, ClerkIDKey, clerkID)
}

// GetClerkID extracts Clerk user ID from context
func GetClerkID(ctx context.Context) (string, bool) {
	clerkID, ok := ctx.Value(ClerkIDKey).(string)
	return clerkID, ok && clerkID != ""
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
