// Package auth covers the two cryptographic helpers host ops expose
// directly to scripts (jwt_for_user, password_hash, password_verify) and
// the credential check the HTTP dispatcher runs before routing an
// authorize-flagged request.
//
// Grounded on the teacher's JWTAuthenticator (internal/auth/jwt.go) for
// the Authenticate-from-request shape, rewritten against
// golang-jwt/jwt/v5 instead of the teacher's hand-rolled HMAC/RSA
// validation since the JWTs here only ever need HS256 against a
// process-local secret — the teacher's RS256/multi-algorithm support has
// no SPEC_FULL.md component to serve.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL is how long a minted token remains valid. Not externally
// configurable; nino has no settings key for it because sessions are
// per-request, not long-lived.
const tokenTTL = 24 * time.Hour

type claims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

// SignJWT mints a token carrying the "user" claim, issued by programName
// and signed with secret.
func SignJWT(secret, programName, user string) (string, error) {
	now := time.Now()
	c := claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    programName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign jwt: %w", err)
	}
	return signed, nil
}

// VerifyJWT validates tokenString against secret and returns the "user"
// claim. Any parse or signature failure is reported as an error; the
// caller treats that as "no valid credential".
func VerifyJWT(secret, tokenString string) (string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: parse jwt: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("auth: invalid jwt")
	}
	return c.User, nil
}
