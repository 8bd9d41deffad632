package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/response"
)

// Context keys set by PartnerMiddleware
const (
	ContextPartnerID = "partner_id"
	ContextPartner   = "partner"
)

// PartnerMiddleware resolves the :partner_id path parameter. On authenticated
// routes the token must belong to the same partner.
func PartnerMiddleware(partnerRepo repository.PartnerRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		partnerID, err := uuid.Parse(c.Param("partner_id"))
		if err != nil {
			response.BadRequest(c, "Invalid partner ID")
			c.Abort()
			return
		}

		if tokenPartner, ok := c.Get(ContextTokenPartnerID); ok {
			if id, _ := tokenPartner.(uuid.UUID); id != partnerID {
				response.Forbidden(c, "Access denied to this partner")
				c.Abort()
				return
			}
		}

		partner, err := partnerRepo.GetByID(c.Request.Context(), partnerID)
		if err != nil {
			response.ErrorWithCode(c, 503, "Partner store is currently unavailable, please retry")
			c.Abort()
			return
		}
		if partner == nil {
			response.NotFound(c, "Partner not found")
			c.Abort()
			return
		}

		c.Set(ContextPartnerID, partner.ID)
		c.Set(ContextPartner, partner)
		c.Next()
	}
}

// GetPartnerID retrieves the partner ID from gin context
func GetPartnerID(c *gin.Context) uuid.UUID {
	partnerID, exists := c.Get(ContextPartnerID)
	if !exists {
		return uuid.Nil
	}
	id, ok := partnerID.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
