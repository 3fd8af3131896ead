package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"voltslot/models"
	"voltslot/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorKey = "actor"

// JWTAuthMiddleware verifies the bearer token and stores the caller as a models.Actor.
func JWTAuthMiddleware(verifier *utils.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		actor, err := verifier.ActorFromToken(tokenString)
		if err != nil {
			zap.L().Debug("bearer token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Invalid token"})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireOperator rejects callers without the operator role.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok || !actor.IsOperator() {
			c.AbortWithStatusJSON(http.StatusForbidden, utils.ErrorResponse{Message: "Operator access required"})
			return
		}
		c.Next()
	}
}

// SharedSecretMiddleware authenticates server-to-server callbacks by a header secret.
func SharedSecretMiddleware(header, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(header)
		if secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			zap.L().Warn("callback rejected: bad shared secret", zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{Message: "Invalid callback credentials"})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the authenticated caller set by JWTAuthMiddleware.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
