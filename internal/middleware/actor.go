package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
	"github.com/noah-isme/tuition-ledger-api/pkg/logger"
	"github.com/noah-isme/tuition-ledger-api/pkg/response"
)

// ParseActor verifies an HS256 bearer token and returns its subject.
func ParseActor(tokenString, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims.Subject, nil
}

// Actor requires a bearer token and stores the operator id for handlers and the access log.
func Actor(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		actorID, err := ParseActor(parts[1], secret)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(logger.ActorContextKey, actorID)
		c.Next()
	}
}

// ActorID returns the operator id set by Actor, or "".
func ActorID(c *gin.Context) string {
	return c.GetString(logger.ActorContextKey)
}
