// Package security issues and verifies the site owner's admin tokens.
package security

import (
	"errors"
	"time"

	"portfolio-sync/internal/sitedata/config"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role that may write collections or moderate the
// guestbook.
const RoleAdmin = "admin"

var (
	ErrTokenInvalid          = errors.New("token is invalid")
	ErrTokenExpired          = errors.New("token is expired")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrAdminDisabled         = errors.New("admin access is not configured")
	ErrNotAdmin              = errors.New("token does not carry the admin role")
)

// AdminClaims are the claims of an admin token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminTokenService signs and validates HS256 admin tokens.
type AdminTokenService struct {
	secretKey []byte
	issuer    string
}

// NewAdminTokenService creates a service from cfg. An empty secret yields a
// service that rejects every token.
func NewAdminTokenService(cfg config.AdminConfig) *AdminTokenService {
	return &AdminTokenService{
		secretKey: []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
	}
}

// Enabled reports whether a signing secret is configured.
func (s *AdminTokenService) Enabled() bool {
	return len(s.secretKey) > 0
}

// GenerateToken signs an admin token for subject valid for ttl.
func (s *AdminTokenService) GenerateToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrAdminDisabled
	}
	now := time.Now()
	claims := &AdminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// ValidateToken verifies tokenString and requires the admin role.
func (s *AdminTokenService) ValidateToken(tokenString string) (*AdminClaims, error) {
	if !s.Enabled() {
		return nil, ErrAdminDisabled
	}
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignatureInvalid
		}
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignatureInvalid
		default:
			return nil, ErrTokenInvalid
		}
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Role != RoleAdmin {
		return nil, ErrNotAdmin
	}
	return claims, nil
}
