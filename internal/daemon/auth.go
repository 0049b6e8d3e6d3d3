package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"harvester/internal/api"
)

// authMiddleware requires "Authorization: Bearer <token>" when token is set.
// An empty token disables the check.
func (s *apiServer) authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	expected := []byte(token)
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			s.writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "unauthorized"})
			return
		}
		next(w, r)
	}
}
