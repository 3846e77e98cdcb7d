package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"mintflip/internal/logging"
)

// TokenVerifier resolves a bearer token to a wallet address.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireWallet rejects requests without a valid bearer token and stores the
// wallet address in the request context.
func RequireWallet(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			wallet, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(logging.WithWallet(r.Context(), wallet)))
		})
	}
}

// Wallet returns the authenticated wallet stored by RequireWallet.
func Wallet(ctx context.Context) (string, bool) {
	wallet := logging.Wallet(ctx)
	return wallet, wallet != ""
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
