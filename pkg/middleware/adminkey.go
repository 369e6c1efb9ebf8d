package middleware

import (
	"net/http"
	"os"
	"strings"

	"complaint-intake-system/pkg/response"

	"golang.org/x/crypto/bcrypt"
)

// RequireAdminKey gates staff endpoints behind a shared admin key checked
// against a bcrypt hash from ADMIN_KEY_HASH. When the hash is unset the gate
// is open, which keeps local development working without credentials.
func RequireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := strings.TrimSpace(os.Getenv("ADMIN_KEY_HASH"))
		if hash == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-Admin-Key")
		if key == "" {
			response.Error(w, http.StatusUnauthorized, "Missing X-Admin-Key header")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			response.Error(w, http.StatusForbidden, "Invalid admin key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
