package handler

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/application/notifier"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/presentation/http/dto/response"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"go.uber.org/zap"
)

// SSE event names
const (
	eventSnapshot = "snapshot"
	eventError    = "error"
)

// stream serves a Server-Sent Events response fed by a notifier subscription.
// The browser's EventSource reconnects after an error event ends the stream.
func (h *OrderHandler) stream(c *gin.Context, filter notifier.Filter) {
	ctx := c.Request.Context()
	stop := make(chan struct{})
	snapshots := make(chan entity.OrderAggregate)
	errs := make(chan error)

	sub, err := h.hub.Subscribe(ctx, filter,
		func(agg entity.OrderAggregate) {
			select {
			case snapshots <- agg:
			case <-stop:
			case <-ctx.Done():
			}
		},
		func(err error) {
			select {
			case errs <- err:
			case <-stop:
			case <-ctx.Done():
			}
		},
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer func() {
		close(stop)
		sub.Close()
	}()

	log := h.logger.With(
		zap.String("order_id", idString(filter.OrderID)),
		zap.String("partner_id", idString(filter.PartnerID)),
	)
	log.Debug("stream opened")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case agg := <-snapshots:
			c.SSEvent(eventSnapshot, agg)
			return true
		case err := <-errs:
			c.SSEvent(eventError, apperror.GetAppError(err))
			if errors.Is(err, notifier.ErrHubClosed) || errors.Is(err, notifier.ErrSlowConsumer) {
				log.Info("stream ended", zap.Error(err))
				return false
			}
			return true
		case <-heartbeat.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		}
	})
	log.Debug("stream closed")
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
