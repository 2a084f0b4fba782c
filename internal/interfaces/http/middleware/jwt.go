package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/infrastructure/auth"
	"github.com/costgov/backend/internal/infrastructure/logger"
	"github.com/costgov/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// AuthHeaderKey is the header carrying the bearer token
	AuthHeaderKey = "Authorization"
	// BearerPrefix prefixes the token in the Authorization header
	BearerPrefix = "Bearer "

	JWTClaimsKey   = "jwt_claims"
	JWTUserIDKey   = "jwt_user_id"
	JWTTenantIDKey = "jwt_tenant_id"
	ActorKey       = "governance_actor"
)

// JWTMiddlewareConfig configures JWTAuth
type JWTMiddlewareConfig struct {
	JWTService *auth.JWTService
	// SkipPaths are exact paths served without a token (health checks)
	SkipPaths []string
	Logger    *zap.Logger
}

// JWTAuth validates the bearer token and stores the claims and the
// governance actor on the gin context
func JWTAuth(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		header := c.GetHeader(AuthHeaderKey)
		if !strings.HasPrefix(header, BearerPrefix) {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Authorization header is required")
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		if tokenString == "" {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Authorization header is required")
			return
		}

		claims, err := cfg.JWTService.ValidateAccessToken(tokenString)
		if err != nil {
			log.Debug("JWT validation failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
			handleTokenError(c, err)
			return
		}
		actor, err := claims.Actor()
		if err != nil {
			handleTokenError(c, err)
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTTenantIDKey, claims.TenantID)
		c.Set(ActorKey, actor)

		ctx := logger.WithTenantID(c.Request.Context(), claims.TenantID)
		ctx = logger.WithUserID(ctx, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func handleTokenError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		abortUnauthorized(c, dto.ErrCodeTokenExpired, "Token has expired")
	default:
		abortUnauthorized(c, dto.ErrCodeInvalidToken, "Invalid token")
	}
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(code, message, GetRequestID(c)))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(JWTClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// GetActor returns the authenticated governance actor
func GetActor(c *gin.Context) (governance.Actor, bool) {
	if v, ok := c.Get(ActorKey); ok {
		if actor, ok := v.(governance.Actor); ok {
			return actor, true
		}
	}
	return governance.Actor{}, false
}

// GetJWTTenantID retrieves the tenant ID from JWT claims in context
func GetJWTTenantID(c *gin.Context) string {
	return c.GetString(JWTTenantIDKey)
}

// GetJWTUserID retrieves the user ID from JWT claims in context
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}
