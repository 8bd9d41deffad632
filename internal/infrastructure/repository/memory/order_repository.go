// Package memory provides in-process repository implementations used by tests
// and by the server when DB_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	domainRepo "github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/pkg/pagination"
)

// OrderRepository keeps orders in a map. Stored values are deep copies so
// callers never share state with the store.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*entity.Order
}

var _ domainRepo.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository creates an empty in-memory order store
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[uuid.UUID]*entity.Order)}
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return order.Clone(), nil
}

func (r *OrderRepository) ListByPartner(ctx context.Context, partnerID uuid.UUID, params *domainRepo.OrderFilterParams) ([]entity.Order, int64, error) {
	if params == nil {
		params = &domainRepo.OrderFilterParams{}
	}
	if params.Pagination == nil {
		params.Pagination = pagination.DefaultPagination()
	}
	params.Pagination.Validate()

	r.mu.RLock()
	var matched []entity.Order
	for _, o := range r.orders {
		if o.PartnerID != partnerID {
			continue
		}
		if params.Status != nil && o.Status != *params.Status {
			continue
		}
		if params.Type != nil && o.Type != *params.Type {
			continue
		}
		if params.StartDate != nil && o.CreatedAt.Before(*params.StartDate) {
			continue
		}
		if params.EndDate != nil && o.CreatedAt.After(*params.EndDate) {
			continue
		}
		matched = append(matched, *o.Clone())
	}
	r.mu.RUnlock()

	asc := strings.EqualFold(params.SortOrder, "asc")
	sort.Slice(matched, func(i, j int) bool {
		if asc {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start, end := params.Pagination.Window(len(matched))
	return matched[start:end], int64(len(matched)), nil
}

func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, order *entity.Order, expected enum.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}

	order.UpdatedAt = time.Now()
	stored.Status = order.Status
	stored.StatusHistory = append([]entity.StatusEntry(nil), order.StatusHistory...)
	stored.UpdatedAt = order.UpdatedAt
	return true, nil
}
