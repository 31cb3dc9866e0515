package auth

import (
	"net/http"
	"strings"
)

// UserFromRequest implements §4.8's credential check: examine
// Cookie: <prog>=<jwt> and Authorization: Bearer <jwt>, returning the
// first valid JWT's "user" claim. ok is false when neither credential is
// present or valid, which the dispatcher treats as "no valid credential".
func UserFromRequest(r *http.Request, secret, programName string) (user string, ok bool) {
	if c, err := r.Cookie(programName); err == nil {
		if u, err := VerifyJWT(secret, c.Value); err == nil {
			return u, true
		}
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token := strings.TrimPrefix(h, "Bearer ")
		if u, err := VerifyJWT(secret, token); err == nil {
			return u, true
		}
	}
	return "", false
}
