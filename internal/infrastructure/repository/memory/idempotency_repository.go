package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	domainRepo "github.com/sangkips/tablesync-api/internal/domain/repository"
)

type idempotencyKey struct {
	partnerID uuid.UUID
	key       string
}

// IdempotencyRepository keeps idempotency keys in a map
type IdempotencyRepository struct {
	mu   sync.Mutex
	keys map[idempotencyKey]entity.IdempotencyKey
}

var _ domainRepo.IdempotencyRepository = (*IdempotencyRepository)(nil)

// NewIdempotencyRepository creates an empty in-memory idempotency store
func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{keys: make(map[idempotencyKey]entity.IdempotencyKey)}
}

func (r *IdempotencyRepository) GetByKey(ctx context.Context, key string, partnerID uuid.UUID) (*entity.IdempotencyKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[idempotencyKey{partnerID: partnerID, key: key}]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (r *IdempotencyRepository) Reserve(ctx context.Context, ikey *entity.IdempotencyKey) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := idempotencyKey{partnerID: ikey.PartnerID, key: ikey.Key}
	if existing, ok := r.keys[k]; ok && !existing.IsExpired() {
		return false, nil
	}
	if ikey.ID == uuid.Nil {
		ikey.ID = uuid.New()
	}
	ikey.CreatedAt = time.Now()
	r.keys[k] = *ikey
	return true, nil
}

func (r *IdempotencyRepository) Complete(ctx context.Context, ikey *entity.IdempotencyKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := idempotencyKey{partnerID: ikey.PartnerID, key: ikey.Key}
	stored, ok := r.keys[k]
	if !ok {
		return nil
	}
	stored.ResponseCode = ikey.ResponseCode
	stored.ResponseBody = ikey.ResponseBody
	stored.ExpiresAt = ikey.ExpiresAt
	r.keys[k] = stored
	return nil
}

func (r *IdempotencyRepository) Release(ctx context.Context, key string, partnerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := idempotencyKey{partnerID: partnerID, key: key}
	if stored, ok := r.keys[k]; ok && stored.IsPending() {
		delete(r.keys, k)
	}
	return nil
}

func (r *IdempotencyRepository) DeleteExpired(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range r.keys {
		if v.IsExpired() {
			delete(r.keys, k)
		}
	}
	return nil
}
