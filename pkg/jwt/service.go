package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer        = "whatsapp-agent"
	defaultExpiry = 12 * time.Hour
	devSecret     = "devJwtSecretDoNotUseInProduction"
	clockLeeway   = 5 * time.Second
)

// Service issues and validates admin API tokens, signed with HS256
type Service struct {
	secret []byte
	expiry time.Duration
	parser *jwt.Parser
}

// NewService creates a token service. An empty secret falls back to a development secret.
func NewService(secret string, expiry time.Duration) *Service {
	if secret == "" {
		secret = devSecret
	}
	if expiry == 0 {
		expiry = defaultExpiry
	}
	return &Service{
		secret: []byte(secret),
		expiry: expiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(clockLeeway),
		),
	}
}

// Expiry returns how long issued tokens stay valid
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

// GenerateToken signs a token for subject carrying role
func (s *Service) GenerateToken(subject string, role Role) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken checks signature, issuer and lifetime, and returns the claims of a token with a known role
func (s *Service) ValidateToken(token string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	}
	if _, ok := ParseRole(string(claims.Role)); !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
