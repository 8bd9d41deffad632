package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/sangkips/tablesync-api/pkg/routing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrInvalidDeliveryInput means the estimate cannot be computed from the given
	// coordinates or rate. No external call is made.
	ErrInvalidDeliveryInput = apperror.NewAppError(http.StatusUnprocessableEntity, "Delivery cannot be estimated for this location")
	// ErrDeliveryDisabled is returned for partners that do not deliver
	ErrDeliveryDisabled = apperror.NewAppError(http.StatusUnprocessableEntity, "Delivery is not available for this restaurant")
)

var thousand = decimal.NewFromInt(1000)

// DistanceProvider returns the driving distance in meters between two points
type DistanceProvider interface {
	DrivingDistance(ctx context.Context, from, to routing.Point) (float64, error)
}

// DeliveryService estimates delivery distance and cost
type DeliveryService struct {
	router      DistanceProvider
	partnerRepo repository.PartnerRepository
	logger      *zap.Logger
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(router DistanceProvider, partnerRepo repository.PartnerRepository, logger *zap.Logger) *DeliveryService {
	return &DeliveryService{
		router:      router,
		partnerRepo: partnerRepo,
		logger:      logger,
	}
}

// Estimate computes the road distance from restaurant to customer and prices it.
// Orders beyond maxRadiusKm are reported out of range with a zero cost.
func (s *DeliveryService) Estimate(
	ctx context.Context,
	restaurant, customer entity.Coordinates,
	ratePerKm decimal.NullDecimal,
	maxRadiusKm decimal.Decimal,
) (*entity.DeliveryInfo, error) {
	if !restaurant.Valid() || !customer.Valid() || !ratePerKm.Valid || ratePerKm.Decimal.IsNegative() {
		return nil, ErrInvalidDeliveryInput
	}

	meters, err := s.router.DrivingDistance(ctx,
		routing.Point{Lat: restaurant.Lat(), Lng: restaurant.Lng()},
		routing.Point{Lat: customer.Lat(), Lng: customer.Lng()},
	)
	if err != nil {
		s.logger.Warn("delivery distance lookup failed", zap.Error(err))
		svcErr := apperror.NewExternalServiceError("Delivery distance service", err)
		if errors.Is(err, routing.ErrNoRoute) {
			svcErr.Retryable = false
		}
		return nil, svcErr
	}

	km := decimal.NewFromFloat(meters).Div(thousand).Round(2)
	info := &entity.DeliveryInfo{
		DistanceKm:   km,
		RatePerKm:    ratePerKm.Decimal,
		Cost:         decimal.Zero,
		IsOutOfRange: km.GreaterThan(maxRadiusKm),
	}
	if !info.IsOutOfRange {
		info.Cost = km.Mul(ratePerKm.Decimal).Round(2)
	}
	return info, nil
}

// EstimateForPartner estimates delivery from the partner's configured location
func (s *DeliveryService) EstimateForPartner(ctx context.Context, partnerID uuid.UUID, customer entity.Coordinates) (*entity.DeliveryInfo, error) {
	partner, err := s.partnerRepo.GetByID(ctx, partnerID)
	if err != nil {
		return nil, apperror.NewExternalServiceError("Partner store", err)
	}
	if partner == nil {
		return nil, apperror.NewNotFoundError("Partner")
	}
	return s.estimateFor(ctx, &partner.Settings, customer)
}

func (s *DeliveryService) estimateFor(ctx context.Context, settings *entity.PartnerSettings, customer entity.Coordinates) (*entity.DeliveryInfo, error) {
	if !settings.DeliveryEnabled {
		return nil, ErrDeliveryDisabled
	}
	return s.Estimate(ctx, settings.Location, customer, settings.DeliveryRatePerKm, settings.MaxDeliveryRadiusKm)
}
