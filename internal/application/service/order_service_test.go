package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/internal/infrastructure/repository/memory"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/sangkips/tablesync-api/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// racingOrderRepo lets a test run another writer just before the first conditional update
type racingOrderRepo struct {
	*memory.OrderRepository
	once      sync.Once
	interfere func()
}

func (r *racingOrderRepo) CompareAndSetStatus(ctx context.Context, order *entity.Order, expected enum.OrderStatus) (bool, error) {
	r.once.Do(r.interfere)
	return r.OrderRepository.CompareAndSetStatus(ctx, order, expected)
}

type conflictingOrderRepo struct {
	*memory.OrderRepository
	calls int
}

func (r *conflictingOrderRepo) CompareAndSetStatus(ctx context.Context, order *entity.Order, expected enum.OrderStatus) (bool, error) {
	r.calls++
	return false, nil
}

type failingOrderRepo struct {
	*memory.OrderRepository
}

func (r *failingOrderRepo) CompareAndSetStatus(ctx context.Context, order *entity.Order, expected enum.OrderStatus) (bool, error) {
	return false, errors.New("connection reset by peer")
}

// committedOrderRepo runs afterCommit once a conditional update has been applied
type committedOrderRepo struct {
	*memory.OrderRepository
	afterCommit func()
}

func (r *committedOrderRepo) CompareAndSetStatus(ctx context.Context, order *entity.Order, expected enum.OrderStatus) (bool, error) {
	ok, err := r.OrderRepository.CompareAndSetStatus(ctx, order, expected)
	if ok && err == nil {
		r.afterCommit()
	}
	return ok, err
}

type unavailablePartnerRepo struct {
	*memory.PartnerRepository
	down atomic.Bool
}

func (r *unavailablePartnerRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Partner, error) {
	if r.down.Load() {
		return nil, errors.New("dial tcp: connection refused")
	}
	return r.PartnerRepository.GetByID(ctx, id)
}

func (e *testEnv) withOrderRepo(repo repository.OrderRepository) *OrderService {
	svc := NewOrderService(repo, e.partners, e.delivery, e.notifier, zap.NewNop())
	svc.now = e.now
	return svc
}

func TestOrderService_CreateOrder_Table(t *testing.T) {
	env := newTestEnv(t)

	agg, err := env.orderSvc.CreateOrder(context.Background(), tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	assert.Equal(t, enum.OrderStatusPending, agg.Status)
	require.Len(t, agg.StatusHistory, 1)
	assert.Equal(t, defaultActor, agg.StatusHistory[0].Actor)
	assert.Equal(t, "200", agg.Billing.FoodSubtotal.String())
	assert.Equal(t, "10", agg.Billing.TaxAmount.String())
	assert.Equal(t, "230", agg.Billing.GrandTotal.String())
	assert.Equal(t, "Hotel Saravana Bhavan", agg.StoreName)
	assert.Equal(t, "₹", agg.CurrencySymbol)
	assert.Equal(t, 1, env.notifier.count())

	stored, err := env.orders.GetByID(context.Background(), agg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, env.partner.ID, stored.PartnerID)
}

func TestOrderService_CreateOrder_Invalid(t *testing.T) {
	env := newTestEnv(t)

	input := tableOrderInput(env.partner.ID)
	input.TableNumber = nil

	_, err := env.orderSvc.CreateOrder(context.Background(), input)
	appErr := apperror.GetAppError(err)
	assert.Equal(t, 422, appErr.Code)
	require.NotEmpty(t, appErr.Errors)
	assert.Equal(t, "table_number", appErr.Errors[0].Field)
	assert.Zero(t, env.notifier.count())
}

func TestOrderService_CreateOrder_UnknownPartner(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orderSvc.CreateOrder(context.Background(), tableOrderInput(uuid.New()))
	assert.Equal(t, 404, apperror.GetAppError(err).Code)
}

func TestOrderService_CreateOrder_MalformedBillingDataIsAccepted(t *testing.T) {
	env := newTestEnv(t)

	input := tableOrderInput(env.partner.ID)
	input.Items = append(input.Items, entity.OrderLineItem{ID: "m2", Name: "Filter Coffee"})

	agg, err := env.orderSvc.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "200", agg.Billing.FoodSubtotal.String())
}

func deliveryOrderInput(partnerID uuid.UUID) *CreateOrderInput {
	input := tableOrderInput(partnerID)
	input.Type = enum.OrderTypeDelivery
	input.TableNumber = nil
	input.DeliveryAddress = strPtr("42 Koramangala 5th Block")
	input.CustomerCoords = customer
	input.ExtraCharges = nil
	return input
}

func TestOrderService_CreateOrder_Delivery(t *testing.T) {
	env := newTestEnv(t)
	env.router.On("DrivingDistance", mock.Anything, mock.Anything).Return(4000.0, nil).Once()

	agg, err := env.orderSvc.CreateOrder(context.Background(), deliveryOrderInput(env.partner.ID))
	require.NoError(t, err)

	require.NotNil(t, agg.Delivery)
	assert.Equal(t, "32", agg.Billing.DeliveryCost.String())
	assert.Equal(t, "242", agg.Billing.GrandTotal.String())
}

func TestOrderService_CreateOrder_DeliveryOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	env.router.On("DrivingDistance", mock.Anything, mock.Anything).Return(12000.0, nil).Once()

	agg, err := env.orderSvc.CreateOrder(context.Background(), deliveryOrderInput(env.partner.ID))
	require.NoError(t, err)

	require.NotNil(t, agg.Delivery)
	assert.True(t, agg.Delivery.IsOutOfRange)
	assert.True(t, agg.Billing.DeliveryCost.IsZero())
	assert.Equal(t, "210", agg.Billing.GrandTotal.String())
}

func TestOrderService_CreateOrder_RoutingDown(t *testing.T) {
	env := newTestEnv(t)
	env.router.On("DrivingDistance", mock.Anything, mock.Anything).Return(0.0, errors.New("dial tcp: i/o timeout")).Once()

	_, err := env.orderSvc.CreateOrder(context.Background(), deliveryOrderInput(env.partner.ID))
	require.Error(t, err)
	assert.True(t, apperror.IsExternalService(err))

	_, total, err := env.orders.ListByPartner(context.Background(), env.partner.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, env.notifier.count())
}

func TestOrderService_Transition_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	_, err = env.orderSvc.Transition(ctx, created.ID, enum.OrderStatusAccepted, "staff:7")
	require.NoError(t, err)
	agg, err := env.orderSvc.Transition(ctx, created.ID, enum.OrderStatusCompleted, "staff:7")
	require.NoError(t, err)

	assert.Equal(t, enum.OrderStatusCompleted, agg.Status)
	require.Len(t, agg.StatusHistory, 3)
	for i := 1; i < len(agg.StatusHistory); i++ {
		assert.True(t, agg.StatusHistory[i].Timestamp.After(agg.StatusHistory[i-1].Timestamp))
	}
	assert.Equal(t, agg.Status, agg.StatusHistory[2].Status)
	assert.Equal(t, 3, env.notifier.count())
}

func TestOrderService_Transition_SameStatusIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)
	_, err = env.orderSvc.Transition(ctx, created.ID, enum.OrderStatusAccepted, "staff")
	require.NoError(t, err)

	agg, err := env.orderSvc.Transition(ctx, created.ID, enum.OrderStatusAccepted, "staff")
	require.NoError(t, err)
	assert.Len(t, agg.StatusHistory, 2)
	assert.Equal(t, 2, env.notifier.count())
}

func TestOrderService_Transition_Rejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	tests := []struct {
		name     string
		orderID  uuid.UUID
		next     enum.OrderStatus
		wantCode int
	}{
		{"illegal", created.ID, enum.OrderStatusCompleted, 409},
		{"unknown status", created.ID, enum.OrderStatus("served"), 422},
		{"unknown order", uuid.New(), enum.OrderStatusAccepted, 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.orderSvc.Transition(ctx, tt.orderID, tt.next, "staff")
			assert.Equal(t, tt.wantCode, apperror.GetAppError(err).Code)
		})
	}

	stored, err := env.orders.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusPending, stored.Status)
	assert.Len(t, stored.StatusHistory, 1)
}

func TestOrderService_TransitionForPartner_OtherPartner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	_, err = env.orderSvc.TransitionForPartner(ctx, uuid.New(), created.ID, enum.OrderStatusAccepted, "staff")
	assert.Equal(t, 404, apperror.GetAppError(err).Code)
}

func TestOrderService_Transition_LosesRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	repo := &racingOrderRepo{OrderRepository: env.orders}
	repo.interfere = func() {
		other, err := env.orders.GetByID(ctx, created.ID)
		require.NoError(t, err)
		_, err = other.ApplyTransition(enum.OrderStatusCancelled, "captain", env.now())
		require.NoError(t, err)
		ok, err := env.orders.CompareAndSetStatus(ctx, other, enum.OrderStatusPending)
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, err = env.withOrderRepo(repo).Transition(ctx, created.ID, enum.OrderStatusAccepted, "staff")
	require.Error(t, err)
	assert.True(t, apperror.IsIllegalTransition(err))

	stored, err := env.orders.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusCancelled, stored.Status)
	assert.Len(t, stored.StatusHistory, 2)
}

func TestOrderService_Transition_ConcurrentSameTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.orderSvc.Transition(ctx, created.ID, enum.OrderStatusAccepted, "staff")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := env.orders.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusAccepted, stored.Status)
	assert.Len(t, stored.StatusHistory, 2)
	// creation plus the single winning transition
	assert.Equal(t, 2, env.notifier.count())
}

func TestOrderService_Transition_RetriesExhausted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	repo := &conflictingOrderRepo{OrderRepository: env.orders}
	_, err = env.withOrderRepo(repo).Transition(ctx, created.ID, enum.OrderStatusAccepted, "staff")

	assert.Equal(t, 409, apperror.GetAppError(err).Code)
	assert.Equal(t, defaultTransitionRetries+1, repo.calls)
}

func TestOrderService_Transition_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	_, err = env.withOrderRepo(&failingOrderRepo{env.orders}).Transition(ctx, created.ID, enum.OrderStatusAccepted, "staff")
	require.Error(t, err)
	assert.True(t, apperror.IsExternalService(err))

	stored, err := env.orders.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusPending, stored.Status)
	assert.Len(t, stored.StatusHistory, 1)
	assert.Equal(t, 1, env.notifier.count())
}

func TestOrderService_Transition_PartnerStoreDownAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	partners := &unavailablePartnerRepo{PartnerRepository: env.partners}
	orders := &committedOrderRepo{
		OrderRepository: env.orders,
		afterCommit:     func() { partners.down.Store(true) },
	}
	svc := NewOrderService(orders, partners, env.delivery, env.notifier, zap.NewNop())
	svc.now = env.now

	agg, err := svc.Transition(ctx, created.ID, enum.OrderStatusAccepted, "staff")
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusAccepted, agg.Status)
	assert.Equal(t, "Hotel Saravana Bhavan", agg.StoreName)

	stored, err := env.orders.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusAccepted, stored.Status)
	assert.Equal(t, 2, env.notifier.count())
}

func TestOrderService_Transition_PartnerStoreDownBeforeCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	partners := &unavailablePartnerRepo{PartnerRepository: env.partners}
	partners.down.Store(true)
	svc := NewOrderService(env.orders, partners, env.delivery, env.notifier, zap.NewNop())

	_, err = svc.Transition(ctx, created.ID, enum.OrderStatusAccepted, "staff")
	require.Error(t, err)
	assert.True(t, apperror.IsExternalService(err))

	stored, err := env.orders.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusPending, stored.Status)
	assert.Equal(t, 1, env.notifier.count())
}

func TestOrderService_ListPartnerOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
		require.NoError(t, err)
	}
	first, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)
	_, err = env.orderSvc.Transition(ctx, first.ID, enum.OrderStatusAccepted, "staff")
	require.NoError(t, err)

	result, err := env.orderSvc.ListPartnerOrders(ctx, env.partner.ID, &repository.OrderFilterParams{
		Pagination: &pagination.PaginationParams{Page: 1, PerPage: 2},
	})
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, int64(4), result.Pagination.Total)
	for _, agg := range result.Items {
		assert.Equal(t, "230", agg.Billing.GrandTotal.String())
	}

	accepted := enum.OrderStatusAccepted
	result, err = env.orderSvc.ListPartnerOrders(ctx, env.partner.ID, &repository.OrderFilterParams{Status: &accepted})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, first.ID, result.Items[0].ID)
}

func TestOrderService_ComputeBilling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.orderSvc.CreateOrder(ctx, tableOrderInput(env.partner.ID))
	require.NoError(t, err)

	breakdown, err := env.orderSvc.ComputeBilling(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "20", breakdown.ExtraChargesTotal.String())
	assert.True(t, breakdown.GrandTotal.Equal(
		breakdown.FoodSubtotal.Add(breakdown.TaxAmount).Add(breakdown.ExtraChargesTotal).Add(breakdown.DeliveryCost)))
}
