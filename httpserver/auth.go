package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// UnauthorizedMessage is the body returned for rejected admin requests.
const UnauthorizedMessage = "Unauthorized access. Please provide valid credentials."

const authRealm = "pod-mint"

// Credentials maps admin user names to passwords. A password starting with
// "$2" is treated as a bcrypt hash.
type Credentials map[string]string

// LoadCredentials reads a JSON object of user names to passwords.
func LoadCredentials(r io.Reader) (Credentials, error) {
	var creds Credentials
	if err := json.NewDecoder(r).Decode(&creds); err != nil {
		return nil, fmt.Errorf("invalid credentials file: %w", err)
	}
	if len(creds) == 0 {
		return nil, errors.New("credentials file defines no users")
	}
	return creds, nil
}

// Check reports whether user and password match a configured credential.
func (c Credentials) Check(user, password string) bool {
	stored, ok := c[user]
	if !ok {
		return false
	}

	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// BasicAuth returns middleware rejecting requests without valid credentials.
// Rejections carry a challenge so browsers prompt for credentials.
func BasicAuth(creds Credentials, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, password, ok := r.BasicAuth()
			if !ok || !creds.Check(user, password) {
				if ok {
					log.Warn("Rejected admin credentials", "user", user, "path", r.URL.Path)
				}
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, authRealm))
				http.Error(w, UnauthorizedMessage, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
