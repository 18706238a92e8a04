package auth

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bizmatters/mission-dispatch/internal/models"
)

var middlewareTracer = otel.Tracer("auth-middleware")

// Gin context keys set by RequireAuth
const (
	UserIDKey    = "user_id"
	UsernameKey  = "username"
	UserRolesKey = "user_roles"
	ClaimsKey    = "claims"
)

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter used by websocket clients.
func TokenFromRequest(c *gin.Context) (string, error) {
	const prefix = "Bearer "
	if header := c.GetHeader("Authorization"); header != "" {
		if len(header) < len(prefix) || !strings.HasPrefix(header, prefix) {
			return "", fmt.Errorf("invalid authorization header format")
		}
		return strings.TrimSpace(header[len(prefix):]), nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("missing JWT token")
}

// RequireAuth is a Gin middleware that validates JWT tokens
func RequireAuth(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.require_auth_gin")
		defer span.End()

		token, err := TokenFromRequest(c)
		if err != nil {
			span.SetAttributes(attribute.Bool("auth.token_present", false))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: err.Error(),
				Code:  models.ErrCodeUnauthorized,
			})
			return
		}
		span.SetAttributes(attribute.Bool("auth.token_present", true))

		claims, err := jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.token_valid", false))
			log.Printf(`{"level":"warn","message":"Invalid token","error":"%v"}`, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "Invalid or expired token",
				Code:  models.ErrCodeUnauthorized,
			})
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.token_valid", true),
			attribute.String("user.id", claims.UserID),
			attribute.String("user.username", claims.Username),
		)

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)
		c.Set(UserRolesKey, claims.Roles)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// RequireRole is a Gin middleware that admits callers holding role.
// Must be used after RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := middlewareTracer.Start(c.Request.Context(), "auth.require_role_gin")
		defer span.End()

		span.SetAttributes(attribute.String("required.role", role))

		claims, ok := CurrentClaims(c)
		if !ok || !claims.HasRole(role) {
			userID, _ := c.Get(UserIDKey)
			span.SetAttributes(attribute.Bool("auth.role_authorized", false))
			log.Printf(`{"level":"warn","message":"Insufficient permissions","user_id":"%v","required_role":"%s","path":"%s"}`,
				userID, role, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
				Error: "Insufficient permissions",
				Code:  models.ErrCodeForbidden,
			})
			return
		}

		span.SetAttributes(attribute.Bool("auth.role_authorized", true))
		c.Next()
	}
}

// CurrentClaims returns the claims attached by RequireAuth
func CurrentClaims(c *gin.Context) (*Claims, bool) {
	value, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*Claims)
	return claims, ok
}

// ActorFromClaims converts the caller identity for the domain layer
func ActorFromClaims(claims *Claims) models.Actor {
	role := ""
	if len(claims.Roles) > 0 {
		role = claims.Roles[0]
	}
	return models.Actor{UserID: claims.UserID, Name: claims.DisplayName(), Role: role}
}
