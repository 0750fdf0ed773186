// Package auth guards the operator surface (dispatcher stats, health) with a
// bcrypt-checked operator key exchanged for a short-lived JWT.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidKey signals a wrong operator key.
	ErrInvalidKey = errors.New("auth: invalid operator key")
	// ErrInvalidToken signals a token that failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

const tokenTTL = 12 * time.Hour

// Service issues and verifies operator tokens.
type Service struct {
	adminKeyHash []byte
	jwtSecret    []byte
	now          func() time.Time
}

// NewService creates an auth service. adminKeyHash is a bcrypt hash of the
// operator key; jwtSecret signs issued tokens.
func NewService(adminKeyHash, jwtSecret string) *Service {
	return &Service{
		adminKeyHash: []byte(adminKeyHash),
		jwtSecret:    []byte(jwtSecret),
		now:          time.Now,
	}
}

// Login exchanges the operator key for a signed token.
func (s *Service) Login(key string) (string, error) {
	if len(s.adminKeyHash) == 0 {
		return "", fmt.Errorf("auth: no operator key configured")
	}
	if err := bcrypt.CompareHashAndPassword(s.adminKeyHash, []byte(key)); err != nil {
		return "", ErrInvalidKey
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub": "operator",
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns its subject.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		sub, ok := claims["sub"].(string)
		if !ok {
			return "", ErrInvalidToken
		}
		return sub, nil
	}

	return "", ErrInvalidToken
}

// HashKey produces a bcrypt hash suitable for ADMIN_KEY_HASH.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash key: %w", err)
	}
	return string(hash), nil
}
