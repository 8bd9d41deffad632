package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/internal/infrastructure/repository/memory"
	"github.com/sangkips/tablesync-api/pkg/routing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRouter struct {
	mock.Mock
}

func (m *mockRouter) DrivingDistance(ctx context.Context, from, to routing.Point) (float64, error) {
	args := m.Called(from, to)
	return args.Get(0).(float64), args.Error(1)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	orders []entity.Order
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, order *entity.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, *order.Clone())
	return nil
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

type testEnv struct {
	orders    *memory.OrderRepository
	partners  *memory.PartnerRepository
	router    *mockRouter
	notifier  *recordingBroadcaster
	delivery  *DeliveryService
	orderSvc  *OrderService
	partner   *entity.Partner
	clockTick time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		orders:    memory.NewOrderRepository(),
		partners:  memory.NewPartnerRepository(),
		router:    new(mockRouter),
		notifier:  &recordingBroadcaster{},
		clockTick: time.Date(2026, 4, 10, 19, 30, 0, 0, time.UTC),
	}

	settings := entity.DefaultPartnerSettings()
	settings.StoreName = "Hotel Saravana Bhavan"
	settings.TaxRate = decimal.NewFromInt(5)
	settings.DeliveryEnabled = true
	settings.Location = entity.Coordinates{12.9716, 77.5946}
	settings.DeliveryRatePerKm = decimal.NewNullDecimal(decimal.NewFromInt(8))
	settings.MaxDeliveryRadiusKm = decimal.NewFromInt(10)
	env.partner = &entity.Partner{Name: "Saravana Bhavan", Slug: "saravana-bhavan", Settings: settings}
	require.NoError(t, env.partners.Create(context.Background(), env.partner))

	logger := zap.NewNop()
	env.delivery = NewDeliveryService(env.router, env.partners, logger)
	env.orderSvc = NewOrderService(env.orders, env.partners, env.delivery, env.notifier, logger)
	env.orderSvc.now = env.now
	return env
}

// now returns the same instant every time so history ordering relies on the bump
func (e *testEnv) now() time.Time {
	return e.clockTick
}

func price(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

func tableOrderInput(partnerID uuid.UUID) *CreateOrderInput {
	return &CreateOrderInput{
		PartnerID:   partnerID,
		Type:        enum.OrderTypeTable,
		TableNumber: strPtr("12"),
		Items: []entity.OrderLineItem{
			{ID: "m1", Name: "Ghee Roast Dosa", UnitPrice: price(100), Quantity: intPtr(2)},
		},
		ExtraCharges: []entity.ExtraCharge{
			{ID: "c1", Name: "Service", Amount: price(20), ChargeType: enum.ChargeTypeFlatFee},
		},
	}
}
