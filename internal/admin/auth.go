// Package admin serves the owner dashboard's JSON surface behind HTTP basic
// auth. The password is stored only as a bcrypt hash; the plaintext never
// touches configuration.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// BasicAuth wraps admin handlers. When no password hash is configured the
// whole surface is disabled rather than left open.
func BasicAuth(username, passwordHash string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passwordHash == "" {
				logger.Warn("Admin request rejected: ADMIN_PASSWORD_HASH not configured")
				respondWithError(w, http.StatusServiceUnavailable, "Admin access not configured")
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}

			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passErr := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(pass))
			if !userMatch || passErr != nil {
				logger.WithField("username", user).Warn("Admin authentication failed")
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
	respondWithError(w, http.StatusUnauthorized, "Unauthorized")
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
