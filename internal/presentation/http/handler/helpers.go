package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/presentation/http/middleware"
)

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) *uuid.UUID {
	userIDVal, exists := c.Get(middleware.ContextUserID)
	if !exists {
		return nil
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		return nil
	}
	return &userID
}

// GetUserRoles extracts the user roles from the Gin context
func GetUserRoles(c *gin.Context) []string {
	roles, exists := c.Get(middleware.ContextUserRoles)
	if !exists {
		return nil
	}
	return roles.([]string)
}

// Actor names who performed a status change, e.g. "captain:6f1c..."
func Actor(c *gin.Context) string {
	userID := GetUserID(c)
	if userID == nil {
		return "staff"
	}
	role := "staff"
	if roles := GetUserRoles(c); len(roles) > 0 {
		role = roles[0]
	}
	return role + ":" + userID.String()
}

// parseIDParam parses a UUID path parameter
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
