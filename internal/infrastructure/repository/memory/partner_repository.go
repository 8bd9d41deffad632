package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	domainRepo "github.com/sangkips/tablesync-api/internal/domain/repository"
)

// ErrPartnerNotFound is returned by UpdateSettings for an unknown partner
var ErrPartnerNotFound = errors.New("partner not found")

// PartnerRepository keeps partners in a map
type PartnerRepository struct {
	mu       sync.RWMutex
	partners map[uuid.UUID]entity.Partner
}

var _ domainRepo.PartnerRepository = (*PartnerRepository)(nil)

// NewPartnerRepository creates an empty in-memory partner store
func NewPartnerRepository() *PartnerRepository {
	return &PartnerRepository{partners: make(map[uuid.UUID]entity.Partner)}
}

func (r *PartnerRepository) Create(ctx context.Context, partner *entity.Partner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if partner.ID == uuid.Nil {
		partner.ID = uuid.New()
	}
	now := time.Now()
	partner.CreatedAt = now
	partner.UpdatedAt = now
	r.partners[partner.ID] = *partner
	return nil
}

func (r *PartnerRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Partner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.partners[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *PartnerRepository) GetBySlug(ctx context.Context, slug string) (*entity.Partner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.partners {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *PartnerRepository) UpdateSettings(ctx context.Context, id uuid.UUID, settings entity.PartnerSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partners[id]
	if !ok {
		return ErrPartnerNotFound
	}
	p.Settings = settings
	p.UpdatedAt = time.Now()
	r.partners[id] = p
	return nil
}
