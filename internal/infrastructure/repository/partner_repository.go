package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	domainRepo "github.com/sangkips/tablesync-api/internal/domain/repository"
	"gorm.io/gorm"
)

type partnerRepository struct {
	db *gorm.DB
}

// NewPartnerRepository creates a new partner repository
func NewPartnerRepository(db *gorm.DB) domainRepo.PartnerRepository {
	return &partnerRepository{db: db}
}

func (r *partnerRepository) Create(ctx context.Context, partner *entity.Partner) error {
	return r.db.WithContext(ctx).Create(partner).Error
}

func (r *partnerRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Partner, error) {
	var partner entity.Partner
	err := r.db.WithContext(ctx).First(&partner, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *partnerRepository) GetBySlug(ctx context.Context, slug string) (*entity.Partner, error) {
	var partner entity.Partner
	err := r.db.WithContext(ctx).First(&partner, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *partnerRepository) UpdateSettings(ctx context.Context, id uuid.UUID, settings entity.PartnerSettings) error {
	result := r.db.WithContext(ctx).Model(&entity.Partner{ID: id}).
		Select("settings").
		Updates(&entity.Partner{Settings: settings})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
