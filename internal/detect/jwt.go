package detect

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	subject   string
	email     string
	expiresAt time.Time
}

// parseUnverified decodes a JWT without checking its signature. Tokens that
// carry an expiry in the past are rejected.
func parseUnverified(raw string, now time.Time) (jwtClaims, bool) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return jwtClaims{}, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return jwtClaims{}, false
	}

	var out jwtClaims
	out.subject, _ = claims.GetSubject()
	out.email, _ = claims["email"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.expiresAt = exp.Time
		if !now.Before(exp.Time) {
			return jwtClaims{}, false
		}
	}
	return out, true
}

func (c jwtClaims) apply(uc *UserContext) {
	uc.UserID = c.subject
	uc.Email = c.email
	uc.ExpiresAt = c.expiresAt
}
