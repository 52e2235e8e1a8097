package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ndrozd/studentportal-api/internal/middleware"
	"github.com/ndrozd/studentportal-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext projects JWT claims onto a user value for service
// authorization checks, which only consult ID and Role.
func actorFromContext(c *gin.Context) *models.User {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil
	}
	return &models.User{ID: claims.UserID, Username: claims.Username, Role: claims.Role}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
