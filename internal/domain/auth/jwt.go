// Package auth issues and validates operator access tokens.
// Terminals authenticate with a shared terminal secret and exchange it
// for a short-lived JWT carrying the operator identity.
package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"farmapos/internal/core/apperror"
	appctx "farmapos/internal/core/context"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration

	// TerminalSecret authorizes token issuance at the POS terminals.
	TerminalSecret string
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret, terminalSecret string) JWTConfig {
	return JWTConfig{
		Secret:         secret,
		Issuer:         "farmapos",
		AccessTokenTTL: 8 * time.Hour,
		TerminalSecret: terminalSecret,
	}
}

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	OperatorID string   `json:"oid"`
	Name       string   `json:"name"`
	Roles      []string `json:"roles"`
	TerminalID string   `json:"term,omitempty"`
}

// JWTService handles JWT operations.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// IssueRequest asks for an operator token.
type IssueRequest struct {
	OperatorID     string   `json:"operatorId" binding:"required"`
	Name           string   `json:"name" binding:"required"`
	Roles          []string `json:"roles" binding:"required,min=1"`
	TerminalID     string   `json:"terminalId" binding:"required"`
	TerminalSecret string   `json:"terminalSecret" binding:"required"`
}

// Issue validates the terminal secret and returns a signed access token.
func (s *JWTService) Issue(req IssueRequest) (string, time.Time, error) {
	if s.config.TerminalSecret == "" {
		return "", time.Time{}, apperror.NewForbidden("token issuance is disabled")
	}
	if subtle.ConstantTimeCompare([]byte(req.TerminalSecret), []byte(s.config.TerminalSecret)) != 1 {
		return "", time.Time{}, apperror.NewUnauthorized("invalid terminal secret")
	}
	return s.GenerateAccessToken(req.OperatorID, req.Name, req.TerminalID, req.Roles)
}

// GenerateAccessToken generates a new access token.
func (s *JWTService) GenerateAccessToken(
	operatorID, name, terminalID string,
	roles []string,
) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		OperatorID: operatorID,
		Name:       name,
		Roles:      roles,
		TerminalID: terminalID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates JWT and returns operator context.
func (s *JWTService) ValidateToken(tokenString string) (*appctx.OperatorContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &appctx.OperatorContext{
		OperatorID: claims.OperatorID,
		Name:       claims.Name,
		Roles:      claims.Roles,
		TerminalID: claims.TerminalID,
	}, nil
}
