// Package authn guards the signing endpoints. The wallet service holds key
// material, so every request must carry the configured bearer token; the
// comparison is over sha256 digests to keep it constant-time.
package authn

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("unauthorized")

// ParseBearerToken extracts the token from an Authorization header.
func ParseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// CheckBearer validates the request against the expected token. An empty
// expected token disables authentication (local development only).
func CheckBearer(r *http.Request, expected string) error {
	if strings.TrimSpace(expected) == "" {
		return nil
	}
	token, ok := ParseBearerToken(r.Header.Get("Authorization"))
	if !ok {
		return ErrUnauthorized
	}
	got := sha256.Sum256([]byte(token))
	want := sha256.Sum256([]byte(expected))
	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// RequireBearer is CheckBearer as middleware.
func RequireBearer(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := CheckBearer(r, expected); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
