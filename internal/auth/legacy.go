package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// RoleBoss marks the human approver whose transitions are never
// second-guessed by the factory.
const RoleBoss = "boss"

// Claims are the HMAC-signed JWT claims the API accepts.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsBoss reports whether the token holder is an approver.
func (c *Claims) IsBoss() bool {
	return c.Role == RoleBoss
}

// ValidateToken validates a token using HMAC signing
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
