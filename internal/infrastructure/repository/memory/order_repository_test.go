package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	domainRepo "github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(partnerID uuid.UUID, status enum.OrderStatus, createdAt time.Time) *entity.Order {
	return &entity.Order{
		PartnerID:     partnerID,
		Type:          enum.OrderTypePOS,
		Status:        status,
		StatusHistory: []entity.StatusEntry{{Status: status, Timestamp: createdAt}},
		CreatedAt:     createdAt,
	}
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	order := newOrder(uuid.New(), enum.OrderStatusPending, time.Now())

	require.NoError(t, repo.Create(ctx, order))
	assert.NotEqual(t, uuid.Nil, order.ID)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	// mutating the returned copy must not touch the store
	got.Status = enum.OrderStatusCancelled
	again, _ := repo.GetByID(ctx, order.ID)
	assert.Equal(t, enum.OrderStatusPending, again.Status)

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrderRepository_ListByPartner(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	partner := uuid.New()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		status := enum.OrderStatusPending
		if i%2 == 0 {
			status = enum.OrderStatusAccepted
		}
		require.NoError(t, repo.Create(ctx, newOrder(partner, status, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Create(ctx, newOrder(uuid.New(), enum.OrderStatusPending, base)))

	orders, total, err := repo.ListByPartner(ctx, partner, &domainRepo.OrderFilterParams{
		Pagination: &pagination.PaginationParams{Page: 1, PerPage: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, orders, 2)
	assert.True(t, orders[0].CreatedAt.After(orders[1].CreatedAt))

	accepted := enum.OrderStatusAccepted
	orders, total, err = repo.ListByPartner(ctx, partner, &domainRepo.OrderFilterParams{Status: &accepted})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, orders, 3)
}

func TestOrderRepository_CompareAndSetStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	order := newOrder(uuid.New(), enum.OrderStatusPending, time.Now())
	require.NoError(t, repo.Create(ctx, order))

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, _ := repo.GetByID(ctx, order.ID)
			_, err := o.ApplyTransition(enum.OrderStatusAccepted, "staff", time.Now())
			if err != nil {
				return
			}
			ok, err := repo.CompareAndSetStatus(ctx, o, enum.OrderStatusPending)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	stored, _ := repo.GetByID(ctx, order.ID)
	assert.Equal(t, enum.OrderStatusAccepted, stored.Status)
	assert.Len(t, stored.StatusHistory, 2)
}
