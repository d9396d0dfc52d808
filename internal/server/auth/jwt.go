// Package auth mints and verifies the bearer tokens of the admin surface.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// AdminRole is the only role the edge issues.
const AdminRole = "admin"

// Claims are the registered claims plus the operator role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func GenerateToken(subject string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Role: AdminRole,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies an HS256 token and returns its claims. Expired tokens
// return common.ErrTokenExpired, anything else unusable common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, errors.Join(common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Role != AdminRole {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
