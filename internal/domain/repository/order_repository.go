package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/pkg/pagination"
)

// OrderRepository is the external order store. It is the single source of truth
// and the serialization point for concurrent status transitions.
type OrderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	// GetByID returns nil, nil when the order does not exist
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	ListByPartner(ctx context.Context, partnerID uuid.UUID, params *OrderFilterParams) ([]entity.Order, int64, error)
	// CompareAndSetStatus persists order.Status and order.StatusHistory only if the
	// stored status still equals expected. It reports false when another writer won.
	CompareAndSetStatus(ctx context.Context, order *entity.Order, expected enum.OrderStatus) (bool, error)
}

// OrderFilterParams contains filtering parameters for order queries
type OrderFilterParams struct {
	Pagination *pagination.PaginationParams
	Status     *enum.OrderStatus
	Type       *enum.OrderType
	StartDate  *time.Time
	EndDate    *time.Time
	SortOrder  string
}
