package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/pkg/apperror"
	"github.com/sangkips/tablesync-api/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var maxTaxRate = decimal.NewFromInt(100)

// PartnerService handles partner settings
type PartnerService struct {
	partnerRepo repository.PartnerRepository
	logger      *zap.Logger
}

// NewPartnerService creates a new partner service
func NewPartnerService(partnerRepo repository.PartnerRepository, logger *zap.Logger) *PartnerService {
	return &PartnerService{
		partnerRepo: partnerRepo,
		logger:      logger,
	}
}

// EnsurePartner returns the partner with slug, creating it with default settings if missing
func (s *PartnerService) EnsurePartner(ctx context.Context, name, slug string) (*entity.Partner, error) {
	slug = utils.Slugify(slug)
	if slug == "" {
		return nil, apperror.NewBadRequestError("Partner slug is required")
	}

	partner, err := s.partnerRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if partner != nil {
		return partner, nil
	}

	settings := entity.DefaultPartnerSettings()
	settings.StoreName = name
	partner = &entity.Partner{Name: name, Slug: slug, Settings: settings}
	if err := s.partnerRepo.Create(ctx, partner); err != nil {
		return nil, err
	}
	s.logger.Info("partner created", zap.String("partner_id", partner.ID.String()), zap.String("slug", slug))
	return partner, nil
}

// GetSettings returns a partner's settings with display defaults filled in
func (s *PartnerService) GetSettings(ctx context.Context, partnerID uuid.UUID) (*entity.PartnerSettings, error) {
	partner, err := s.partnerRepo.GetByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, apperror.NewNotFoundError("Partner")
	}

	settings := partner.Settings.WithDefaults()
	return &settings, nil
}

// UpdateSettingsInput holds the settings to change; nil fields are left as they are
type UpdateSettingsInput struct {
	StoreName           *string
	Address             *string
	Phone               *string
	TaxID               *string
	Currency            *string
	CurrencySymbol      *string
	TaxRate             *decimal.Decimal
	TaxLabel            *string
	DeliveryEnabled     *bool
	Location            entity.Coordinates
	DeliveryRatePerKm   *decimal.Decimal
	MaxDeliveryRadiusKm *decimal.Decimal
}

func (in *UpdateSettingsInput) validate() []apperror.FieldError {
	var errs []apperror.FieldError
	if in.TaxRate != nil && (in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(maxTaxRate)) {
		errs = append(errs, apperror.FieldError{Field: "tax_rate", Message: "tax_rate must be between 0 and 100"})
	}
	if in.Location != nil && !in.Location.Valid() {
		errs = append(errs, apperror.FieldError{Field: "location", Message: "location must be a [lat, lng] pair"})
	}
	if in.DeliveryRatePerKm != nil && in.DeliveryRatePerKm.IsNegative() {
		errs = append(errs, apperror.FieldError{Field: "delivery_rate_per_km", Message: "delivery_rate_per_km must not be negative"})
	}
	if in.MaxDeliveryRadiusKm != nil && in.MaxDeliveryRadiusKm.IsNegative() {
		errs = append(errs, apperror.FieldError{Field: "max_delivery_radius_km", Message: "max_delivery_radius_km must not be negative"})
	}
	if in.Currency != nil && len(*in.Currency) != 3 {
		errs = append(errs, apperror.FieldError{Field: "currency", Message: "currency must be a 3 letter ISO code"})
	}
	return errs
}

// UpdateSettings applies a partial settings update. New settings affect every
// order rendered afterwards, since totals are always re-derived.
func (s *PartnerService) UpdateSettings(ctx context.Context, partnerID uuid.UUID, input *UpdateSettingsInput) (*entity.PartnerSettings, error) {
	if errs := input.validate(); len(errs) > 0 {
		return nil, apperror.NewValidationError(errs)
	}

	partner, err := s.partnerRepo.GetByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, apperror.NewNotFoundError("Partner")
	}

	settings := partner.Settings
	setString(&settings.StoreName, input.StoreName)
	setString(&settings.Address, input.Address)
	setString(&settings.Phone, input.Phone)
	setString(&settings.TaxID, input.TaxID)
	setString(&settings.CurrencySymbol, input.CurrencySymbol)
	setString(&settings.TaxLabel, input.TaxLabel)
	if input.Currency != nil {
		settings.Currency = strings.ToUpper(*input.Currency)
	}
	if input.TaxRate != nil {
		settings.TaxRate = *input.TaxRate
	}
	if input.DeliveryEnabled != nil {
		settings.DeliveryEnabled = *input.DeliveryEnabled
	}
	if input.Location != nil {
		settings.Location = input.Location
	}
	if input.DeliveryRatePerKm != nil {
		settings.DeliveryRatePerKm = decimal.NewNullDecimal(*input.DeliveryRatePerKm)
	}
	if input.MaxDeliveryRadiusKm != nil {
		settings.MaxDeliveryRadiusKm = *input.MaxDeliveryRadiusKm
	}

	if settings.DeliveryEnabled && (!settings.Location.Valid() || !settings.DeliveryRatePerKm.Valid) {
		return nil, apperror.NewValidationError([]apperror.FieldError{
			{Field: "delivery_enabled", Message: "delivery needs a location and a delivery_rate_per_km"},
		})
	}

	if err := s.partnerRepo.UpdateSettings(ctx, partnerID, settings); err != nil {
		return nil, apperror.NewExternalServiceError("Partner store", err)
	}

	result := settings.WithDefaults()
	return &result, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
