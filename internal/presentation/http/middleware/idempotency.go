package middleware

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/response"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader is the HTTP header for idempotency keys
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyKeyTTL is how long keys are valid
	IdempotencyKeyTTL = 24 * time.Hour
	// IdempotencyReservationTTL bounds how long a crashed request can hold a key
	IdempotencyReservationTTL = 2 * time.Minute

	maxIdempotencyKeyLength = 255

	idempotencyInFlightMessage = "A request with this Idempotency-Key is still being processed"
)

// IdempotencyConfig holds configuration for the idempotency middleware
type IdempotencyConfig struct {
	Repo   repository.IdempotencyRepository
	Logger *zap.Logger
}

// responseWriter wraps gin.ResponseWriter to capture the response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyRequired rejects POST requests without an Idempotency-Key and replays
// the stored response for a key the partner has already used. Keys are scoped to
// the partner resolved by PartnerMiddleware and reserved before the handler runs,
// so a concurrent retry gets a 409 instead of a second order. Only 2xx responses
// are stored; any other outcome releases the key.
func IdempotencyRequired(config IdempotencyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != "POST" {
			c.Next()
			return
		}

		idempotencyKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if idempotencyKey == "" || len(idempotencyKey) > maxIdempotencyKeyLength {
			response.BadRequest(c, "Idempotency-Key header is required for this request")
			c.Abort()
			return
		}

		partnerID := GetPartnerID(c)
		if partnerID == uuid.Nil {
			response.BadRequest(c, "Partner context required")
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		existing, err := config.Repo.GetByKey(ctx, idempotencyKey, partnerID)
		if err != nil {
			config.Logger.Error("failed to check idempotency key", zap.Error(err))
			response.InternalServerError(c, "Failed to check idempotency key")
			c.Abort()
			return
		}
		if existing != nil && !existing.IsExpired() {
			replayOrReject(c, existing)
			return
		}

		ikey := &entity.IdempotencyKey{
			Key:       idempotencyKey,
			PartnerID: partnerID,
			Endpoint:  c.Request.Method + " " + c.FullPath(),
			ExpiresAt: time.Now().Add(IdempotencyReservationTTL),
		}
		reserved, err := config.Repo.Reserve(ctx, ikey)
		if err != nil {
			config.Logger.Error("failed to reserve idempotency key", zap.Error(err))
			response.InternalServerError(c, "Failed to check idempotency key")
			c.Abort()
			return
		}
		if !reserved {
			// Another request took the key between the lookup and the reservation
			winner, err := config.Repo.GetByKey(ctx, idempotencyKey, partnerID)
			if err != nil || winner == nil {
				response.ErrorWithCode(c, http.StatusConflict, idempotencyInFlightMessage)
				c.Abort()
				return
			}
			replayOrReject(c, winner)
			return
		}

		completed := false
		defer func() {
			if completed {
				return
			}
			if err := config.Repo.Release(context.WithoutCancel(ctx), idempotencyKey, partnerID); err != nil {
				config.Logger.Warn("failed to release idempotency key",
					zap.String("partner_id", partnerID.String()),
					zap.Error(err),
				)
			}
		}()

		// Capture the response
		blw := &responseWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		// The order exists now; a key that fails to store stays reserved until it expires
		completed = true
		ikey.ResponseCode = c.Writer.Status()
		ikey.ResponseBody = blw.body.String()
		ikey.ExpiresAt = time.Now().Add(IdempotencyKeyTTL)
		if err := config.Repo.Complete(context.WithoutCancel(ctx), ikey); err != nil {
			config.Logger.Warn("failed to store idempotency key",
				zap.String("partner_id", partnerID.String()),
				zap.Error(err),
			)
		}
	}
}

// replayOrReject answers a request whose key is already taken
func replayOrReject(c *gin.Context, existing *entity.IdempotencyKey) {
	if existing.IsPending() {
		response.ErrorWithCode(c, http.StatusConflict, idempotencyInFlightMessage)
		c.Abort()
		return
	}
	c.Header("X-Idempotency-Replayed", "true")
	c.Data(existing.ResponseCode, "application/json; charset=utf-8", []byte(existing.ResponseBody))
	c.Abort()
}
