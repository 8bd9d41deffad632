package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
)

// IdempotencyRepository defines the interface for idempotency key operations
type IdempotencyRepository interface {
	// GetByKey retrieves an idempotency key by its key string within a partner
	GetByKey(ctx context.Context, key string, partnerID uuid.UUID) (*entity.IdempotencyKey, error)
	// Reserve stores ikey as an in-flight key. It returns false when a live key
	// already exists for the partner; an expired one is replaced.
	Reserve(ctx context.Context, ikey *entity.IdempotencyKey) (bool, error)
	// Complete records the response of a reserved key
	Complete(ctx context.Context, ikey *entity.IdempotencyKey) error
	// Release drops an in-flight key so the request can be retried
	Release(ctx context.Context, key string, partnerID uuid.UUID) error
	// DeleteExpired removes expired idempotency keys
	DeleteExpired(ctx context.Context) error
}
