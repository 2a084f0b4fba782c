package auth

import (
	"errors"
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
)

// Claims represents custom JWT claims
type Claims struct {
	jwt.RegisteredClaims
	TenantID    string   `json:"tenant_id"`
	UserID      string   `json:"user_id"`
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// JWTService validates access tokens issued by the identity provider. It can
// also mint tokens for local development and tests.
type JWTService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.AccessTokenExpiration,
		now:        time.Now,
	}
}

// GenerateTokenInput contains input for token generation
type GenerateTokenInput struct {
	TenantID    uuid.UUID
	UserID      uuid.UUID
	Username    string
	Roles       []string
	Permissions []string
}

// GenerateAccessToken signs an access token for input
func (s *JWTService) GenerateAccessToken(input GenerateTokenInput) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiration)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   input.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID:    input.TenantID.String(),
		UserID:      input.UserID.String(),
		Username:    input.Username,
		Roles:       input.Roles,
		Permissions: input.Permissions,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns its claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenantID
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}

// Actor converts validated claims into the governance caller
func (c *Claims) Actor() (governance.Actor, error) {
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return governance.Actor{}, ErrInvalidClaims
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return governance.Actor{}, ErrInvalidClaims
	}
	return governance.Actor{
		ID:          userID,
		TenantID:    tenantID,
		Roles:       c.Roles,
		Permissions: c.Permissions,
	}, nil
}

// HasPermission checks if the claims grant a specific permission
func (c *Claims) HasPermission(permission string) bool {
	return governance.PermissionGranted(c.Permissions, permission)
}

// GetExpiresAtTime returns the token's expiration time as time.Time
func (c *Claims) GetExpiresAtTime() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}
