package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// exemptPaths may be probed without credentials so load balancers and
// scrapers keep working when auth is enabled.
var exemptPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// authMiddleware validates Bearer token authentication. When AuthToken
// is empty, the middleware is a no-op.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.config.AuthToken == "" {
		return next
	}

	token := []byte(s.config.AuthToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(provided), token) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
