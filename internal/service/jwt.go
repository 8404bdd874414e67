package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var jwtSecret []byte

// InitJWT sets the secret used for admin tokens. An empty secret disables
// admin endpoints.
func InitJWT(secret string) {
	jwtSecret = []byte(secret)
}

func JWTEnabled() bool {
	return len(jwtSecret) > 0
}

// GenerateAdminJWT issues a token for subject with the admin role.
func GenerateAdminJWT(subject string, ttl time.Duration) (string, error) {
	if !JWTEnabled() {
		return "", errors.New("jwt secret is not set")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": RoleAdmin,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseAdminJWT validates tokenString and returns its subject. Tokens without
// the admin role are rejected.
func ParseAdminJWT(tokenString string) (string, error) {
	if !JWTEnabled() {
		return "", errors.New("jwt secret is not set")
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	}, jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	if role, _ := claims["role"].(string); role != RoleAdmin {
		return "", errors.New("not an admin token")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("sub not found")
	}

	return sub, nil
}
