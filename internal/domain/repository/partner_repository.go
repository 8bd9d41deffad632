package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
)

// PartnerRepository defines the interface for partner data operations
type PartnerRepository interface {
	Create(ctx context.Context, partner *entity.Partner) error
	// GetByID returns nil, nil when the partner does not exist
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Partner, error)
	GetBySlug(ctx context.Context, slug string) (*entity.Partner, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings entity.PartnerSettings) error
}
