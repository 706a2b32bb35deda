package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints portal session tokens signed with an HMAC secret.
// It is used by the account domain's login handler when the server runs in
// standalone mode (no external identity provider).
type TokenIssuer struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
}

const defaultTokenLifetime = 12 * time.Hour

func NewTokenIssuer(secret []byte, issuer string) *TokenIssuer {
	return &TokenIssuer{
		secret:   secret,
		issuer:   issuer,
		lifetime: defaultTokenLifetime,
	}
}

// Issue creates a signed token for the given user and roles.
func (t *TokenIssuer) Issue(userID, email string, roles []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.lifetime)),
		},
		Roles: roles,
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
