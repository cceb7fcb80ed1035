package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const requestInfoKey contextKey = "request_info"

// requestInfo is shared between the outer logging middleware and the
// owner check deeper in the chain.
type requestInfo struct {
	owner bool
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey, info), info
}

// IsOwner reports whether the request passed owner authentication.
func IsOwner(ctx context.Context) bool {
	info, _ := ctx.Value(requestInfoKey).(*requestInfo)
	return info != nil && info.owner
}

// OwnerAuth guards administrative routes with a bearer token. With no token
// configured every owner request is refused.
func OwnerAuth(token string) func(http.Handler) http.Handler {
	want := hashToken(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, http.StatusForbidden, "owner routes are disabled")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			got := hashToken(parts[1])
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid owner token")
				return
			}

			ctx := r.Context()
			if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
				info.owner = true
			} else {
				ctx, info = withRequestInfo(ctx)
				info.owner = true
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
