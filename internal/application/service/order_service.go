package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/application/aggregate"
	"github.com/sangkips/tablesync-api/internal/application/billing"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/enum"
	"github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/sangkips/tablesync-api/pkg/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultTransitionRetries = 3
	defaultActor             = "customer"
)

// Broadcaster pushes a fresh snapshot of an order to its viewers
type Broadcaster interface {
	Broadcast(ctx context.Context, order *entity.Order) error
}

// OrderService handles order-related operations
type OrderService struct {
	orderRepo   repository.OrderRepository
	partnerRepo repository.PartnerRepository
	delivery    *DeliveryService
	notifier    Broadcaster
	logger      *zap.Logger

	now        func() time.Time
	maxRetries int
}

// NewOrderService creates a new order service
func NewOrderService(
	orderRepo repository.OrderRepository,
	partnerRepo repository.PartnerRepository,
	delivery *DeliveryService,
	notifier Broadcaster,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		partnerRepo: partnerRepo,
		delivery:    delivery,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		maxRetries:  defaultTransitionRetries,
	}
}

// CreateOrderInput represents the create order input
type CreateOrderInput struct {
	PartnerID       uuid.UUID
	Type            enum.OrderType
	TableNumber     *string
	DeliveryAddress *string
	CustomerCoords  entity.Coordinates
	CustomerName    string
	CustomerPhone   string
	Items           []entity.OrderLineItem
	ExtraCharges    []entity.ExtraCharge
	TaxIncluded     bool
	TaxPercentage   decimal.NullDecimal
	Actor           string
}

// CreateOrder records a new pending order. Delivery orders are priced through the
// delivery estimator first; if the routing service is down the order is rejected
// so the customer can retry rather than being billed without delivery.
func (s *OrderService) CreateOrder(ctx context.Context, input *CreateOrderInput) (*entity.OrderAggregate, error) {
	partner, err := s.getPartner(ctx, input.PartnerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	actor := input.Actor
	if actor == "" {
		actor = defaultActor
	}

	order := &entity.Order{
		ID:              uuid.New(),
		PartnerID:       partner.ID,
		Type:            input.Type,
		Status:          enum.OrderStatusPending,
		StatusHistory:   []entity.StatusEntry{{Status: enum.OrderStatusPending, Timestamp: now, Actor: actor}},
		Items:           input.Items,
		ExtraCharges:    input.ExtraCharges,
		TaxIncluded:     input.TaxIncluded,
		TaxPercentage:   input.TaxPercentage,
		TableNumber:     input.TableNumber,
		DeliveryAddress: input.DeliveryAddress,
		CustomerCoords:  input.CustomerCoords,
		CustomerName:    input.CustomerName,
		CustomerPhone:   input.CustomerPhone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if errs := order.Validate(); len(errs) > 0 {
		return nil, apperror.NewValidationError(errs)
	}

	if errs := billing.Validate(order.Items, order.ExtraCharges); len(errs) > 0 {
		s.logger.Warn("order has malformed billing data",
			zap.String("partner_id", partner.ID.String()),
			zap.Any("errors", errs),
		)
	}

	if order.Type == enum.OrderTypeDelivery {
		info, err := s.delivery.estimateFor(ctx, &partner.Settings, order.CustomerCoords)
		if err != nil {
			return nil, err
		}
		order.Delivery = info
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.logger.Error("failed to store order", zap.Error(err))
		return nil, apperror.NewExternalServiceError("Order store", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("partner_id", partner.ID.String()),
		zap.String("type", order.Type.String()),
	)
	s.broadcast(ctx, order)

	agg := aggregate.Assemble(order, &partner.Settings)
	return &agg, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NewExternalServiceError("Order store", err)
	}
	if order == nil {
		return nil, apperror.NewNotFoundError("Order")
	}
	return order, nil
}

// GetAggregate returns the order together with its billing and display settings
func (s *OrderService) GetAggregate(ctx context.Context, id uuid.UUID) (*entity.OrderAggregate, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, order)
}

// GetPartnerAggregate is GetAggregate restricted to orders of one partner
func (s *OrderService) GetPartnerAggregate(ctx context.Context, partnerID, id uuid.UUID) (*entity.OrderAggregate, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PartnerID != partnerID {
		return nil, apperror.NewNotFoundError("Order")
	}
	return s.assemble(ctx, order)
}

// ComputeBilling returns just the billing breakdown of an order
func (s *OrderService) ComputeBilling(ctx context.Context, id uuid.UUID) (*entity.BillingBreakdown, error) {
	agg, err := s.GetAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	return &agg.Billing, nil
}

// ListPartnerOrders lists a partner's orders as aggregates, newest first
func (s *OrderService) ListPartnerOrders(ctx context.Context, partnerID uuid.UUID, params *repository.OrderFilterParams) (*pagination.PaginatedResult[entity.OrderAggregate], error) {
	partner, err := s.getPartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	if params.Pagination == nil {
		params.Pagination = pagination.DefaultPagination()
	}
	params.Pagination.Validate()

	orders, total, err := s.orderRepo.ListByPartner(ctx, partnerID, params)
	if err != nil {
		return nil, apperror.NewExternalServiceError("Order store", err)
	}

	items := make([]entity.OrderAggregate, 0, len(orders))
	for i := range orders {
		items = append(items, aggregate.Assemble(&orders[i], &partner.Settings))
	}

	pag := pagination.NewPagination(params.Pagination.Page, params.Pagination.PerPage, total)
	return pagination.NewPaginatedResult(items, pag), nil
}

// Transition moves an order to next on behalf of actor and broadcasts the result.
func (s *OrderService) Transition(ctx context.Context, orderID uuid.UUID, next enum.OrderStatus, actor string) (*entity.OrderAggregate, error) {
	return s.transition(ctx, uuid.Nil, orderID, next, actor)
}

// TransitionForPartner is Transition restricted to orders of one partner
func (s *OrderService) TransitionForPartner(ctx context.Context, partnerID, orderID uuid.UUID, next enum.OrderStatus, actor string) (*entity.OrderAggregate, error) {
	return s.transition(ctx, partnerID, orderID, next, actor)
}

// transition persists with a conditional update on the status that was read. When
// another writer got there first the order is reloaded and the move re-validated
// against the new status, so two racing transitions never both win.
func (s *OrderService) transition(ctx context.Context, partnerID, orderID uuid.UUID, next enum.OrderStatus, actor string) (*entity.OrderAggregate, error) {
	if !next.IsValid() {
		return nil, apperror.NewValidationError([]apperror.FieldError{
			{Field: "status", Message: "status must be one of pending, accepted, completed, cancelled"},
		})
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		order, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if partnerID != uuid.Nil && order.PartnerID != partnerID {
			return nil, apperror.NewNotFoundError("Order")
		}

		// Settings are read before the write so nothing can fail once it has committed
		settings, err := s.settingsFor(ctx, order)
		if err != nil {
			return nil, err
		}

		previous := order.Status
		entry, err := order.ApplyTransition(next, actor, s.now())
		if err != nil {
			return nil, err
		}
		if entry == nil {
			agg := aggregate.Assemble(order, settings)
			return &agg, nil
		}

		stored, err := s.orderRepo.CompareAndSetStatus(ctx, order, previous)
		if err != nil {
			order.UndoLastTransition()
			s.logger.Error("failed to persist status transition",
				zap.String("order_id", orderID.String()),
				zap.String("to", next.String()),
				zap.Error(err),
			)
			return nil, apperror.NewExternalServiceError("Order store", err)
		}
		if !stored {
			s.logger.Debug("status transition lost a race, retrying",
				zap.String("order_id", orderID.String()),
				zap.String("from", previous.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		s.logger.Info("order status changed",
			zap.String("order_id", orderID.String()),
			zap.String("from", previous.String()),
			zap.String("to", next.String()),
			zap.String("actor", actor),
		)
		s.broadcast(ctx, order)
		agg := aggregate.Assemble(order, settings)
		return &agg, nil
	}

	return nil, apperror.NewConflictError("Order is being updated by someone else, please retry")
}

func (s *OrderService) broadcast(ctx context.Context, order *entity.Order) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Broadcast(ctx, order); err != nil {
		s.logger.Warn("failed to broadcast order snapshot",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *OrderService) assemble(ctx context.Context, order *entity.Order) (*entity.OrderAggregate, error) {
	settings, err := s.settingsFor(ctx, order)
	if err != nil {
		return nil, err
	}
	agg := aggregate.Assemble(order, settings)
	return &agg, nil
}

// settingsFor returns the order's partner settings, or nil for a partner that no
// longer exists so defaults apply
func (s *OrderService) settingsFor(ctx context.Context, order *entity.Order) (*entity.PartnerSettings, error) {
	partner, err := s.partnerRepo.GetByID(ctx, order.PartnerID)
	if err != nil {
		return nil, apperror.NewExternalServiceError("Partner store", err)
	}
	if partner == nil {
		return nil, nil
	}
	return &partner.Settings, nil
}

func (s *OrderService) getPartner(ctx context.Context, id uuid.UUID) (*entity.Partner, error) {
	partner, err := s.partnerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NewExternalServiceError("Partner store", err)
	}
	if partner == nil {
		return nil, apperror.NewNotFoundError("Partner")
	}
	return partner, nil
}
