package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/tablesync-api/internal/domain/entity"
	"github.com/sangkips/tablesync-api/internal/infrastructure/repository/memory"
	"github.com/sangkips/tablesync-api/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newPartner(t *testing.T, repo *memory.PartnerRepository) *entity.Partner {
	t.Helper()
	p := &entity.Partner{Name: "Vidyarthi Bhavan", Slug: "vidyarthi-bhavan", Settings: entity.DefaultPartnerSettings()}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_PerPartnerBuckets(t *testing.T) {
	partners := memory.NewPartnerRepository()
	first := newPartner(t, partners)
	second := &entity.Partner{Name: "CTR", Slug: "ctr", Settings: entity.DefaultPartnerSettings()}
	require.NoError(t, partners.Create(context.Background(), second))

	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 2, EntryTTL: time.Minute})
	defer rl.Stop()

	r := gin.New()
	r.GET("/partners/:partner_id/ping", PartnerMiddleware(partners), rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	path := "/partners/" + first.ID.String() + "/ping"
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, path, nil).Code)

	w := serve(r, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// a different partner has its own bucket
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/partners/"+second.ID.String()+"/ping", nil).Code)
	assert.Equal(t, 2, rl.Stats()["active_keys"])
}

func TestRateLimiter_FallsBackToClientIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 1, EntryTTL: time.Minute})
	defer rl.Stop()

	r := gin.New()
	r.GET("/ping", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/ping", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/ping", nil).Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1, EntryTTL: -time.Second})
	defer rl.Stop()

	rl.getLimiter("ip:10.0.0.1")
	rl.cleanup()
	assert.Equal(t, 0, rl.Stats()["active_keys"])
}

func TestPartnerMiddleware(t *testing.T) {
	partners := memory.NewPartnerRepository()
	partner := newPartner(t, partners)
	jwt := utils.NewJWTManager("secret", time.Hour)

	r := gin.New()
	r.GET("/public/:partner_id", PartnerMiddleware(partners), func(c *gin.Context) {
		c.String(http.StatusOK, GetPartnerID(c).String())
	})
	r.GET("/staff/:partner_id", AuthMiddleware(jwt), PartnerMiddleware(partners), func(c *gin.Context) {
		c.String(http.StatusOK, GetPartnerID(c).String())
	})

	ownToken, err := jwt.GenerateAccessToken(uuid.New(), partner.ID, "a@b.example", []string{utils.RoleStaff})
	require.NoError(t, err)
	otherToken, err := jwt.GenerateAccessToken(uuid.New(), uuid.New(), "a@b.example", []string{utils.RoleAdmin})
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		token    string
		wantCode int
	}{
		{"public", "/public/" + partner.ID.String(), "", http.StatusOK},
		{"bad id", "/public/abc", "", http.StatusBadRequest},
		{"unknown partner", "/public/" + uuid.NewString(), "", http.StatusNotFound},
		{"own partner", "/staff/" + partner.ID.String(), ownToken, http.StatusOK},
		{"foreign token", "/staff/" + partner.ID.String(), otherToken, http.StatusForbidden},
		{"no token", "/staff/" + partner.ID.String(), "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.token != "" {
				headers["Authorization"] = "Bearer " + tt.token
			}
			w := serve(r, http.MethodGet, tt.path, headers)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, partner.ID.String(), w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	jwt := utils.NewJWTManager("secret", time.Hour)
	r := gin.New()
	r.PUT("/settings", AuthMiddleware(jwt), RequireRole(utils.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	captain, err := jwt.GenerateAccessToken(uuid.New(), uuid.New(), "c@b.example", []string{utils.RoleCaptain})
	require.NoError(t, err)
	admin, err := jwt.GenerateAccessToken(uuid.New(), uuid.New(), "a@b.example", []string{utils.RoleStaff, utils.RoleAdmin})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPut, "/settings", map[string]string{"Authorization": "Bearer " + captain}).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPut, "/settings", map[string]string{"Authorization": "Bearer " + admin}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPut, "/settings", map[string]string{"Authorization": "Token " + admin}).Code)
}

func TestIdempotencyRequired(t *testing.T) {
	partners := memory.NewPartnerRepository()
	partner := newPartner(t, partners)
	keys := memory.NewIdempotencyRepository()

	calls := 0
	status := http.StatusCreated
	r := gin.New()
	r.Any("/partners/:partner_id/orders", PartnerMiddleware(partners), IdempotencyRequired(IdempotencyConfig{
		Repo:   keys,
		Logger: zap.NewNop(),
	}), func(c *gin.Context) {
		calls++
		c.JSON(status, gin.H{"call": calls})
	})
	path := "/partners/" + partner.ID.String() + "/orders"

	// non-POST requests pass straight through
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodGet, path, nil).Code)
	assert.Equal(t, 1, calls)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, path, nil).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, path, map[string]string{IdempotencyKeyHeader: strings.Repeat("k", 256)}).Code)
	assert.Equal(t, 1, calls)

	t.Run("failed responses are not stored", func(t *testing.T) {
		status = http.StatusUnprocessableEntity
		key := map[string]string{IdempotencyKeyHeader: "retry-after-fix"}
		assert.Equal(t, http.StatusUnprocessableEntity, serve(r, http.MethodPost, path, key).Code)

		status = http.StatusCreated
		w := serve(r, http.MethodPost, path, key)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Empty(t, w.Header().Get("X-Idempotency-Replayed"))
	})

	t.Run("success is replayed", func(t *testing.T) {
		key := map[string]string{IdempotencyKeyHeader: "order-1"}
		first := serve(r, http.MethodPost, path, key)
		before := calls

		replay := serve(r, http.MethodPost, path, key)
		assert.Equal(t, before, calls)
		assert.Equal(t, first.Code, replay.Code)
		assert.JSONEq(t, first.Body.String(), replay.Body.String())
		assert.Equal(t, "true", replay.Header().Get("X-Idempotency-Replayed"))
	})
}

func TestIdempotencyRequired_ConcurrentSameKey(t *testing.T) {
	partners := memory.NewPartnerRepository()
	partner := newPartner(t, partners)
	keys := memory.NewIdempotencyRepository()

	var calls atomic.Int32
	r := gin.New()
	r.POST("/partners/:partner_id/orders", PartnerMiddleware(partners), IdempotencyRequired(IdempotencyConfig{
		Repo:   keys,
		Logger: zap.NewNop(),
	}), func(c *gin.Context) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		c.JSON(http.StatusCreated, gin.H{"order": "created"})
	})
	path := "/partners/" + partner.ID.String() + "/orders"
	key := map[string]string{IdempotencyKeyHeader: "double-tap"}

	start := make(chan struct{})
	results := make([]*httptest.ResponseRecorder, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i] = serve(r, http.MethodPost, path, key)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	fresh := 0
	for _, w := range results {
		switch {
		case w.Code == http.StatusConflict:
		case w.Header().Get("X-Idempotency-Replayed") == "true":
			assert.Equal(t, http.StatusCreated, w.Code)
		default:
			assert.Equal(t, http.StatusCreated, w.Code)
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)

	replay := serve(r, http.MethodPost, path, key)
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestIdempotencyRequired_ExpiredKeyIsReused(t *testing.T) {
	tests := []struct {
		name         string
		responseCode int
	}{
		{name: "completed key past its ttl", responseCode: http.StatusCreated},
		{name: "abandoned reservation", responseCode: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partners := memory.NewPartnerRepository()
			partner := newPartner(t, partners)
			keys := memory.NewIdempotencyRepository()

			ok, err := keys.Reserve(context.Background(), &entity.IdempotencyKey{
				Key:          "stale",
				PartnerID:    partner.ID,
				ResponseCode: tt.responseCode,
				ResponseBody: `{"order":"old"}`,
				ExpiresAt:    time.Now().Add(-time.Minute),
			})
			require.NoError(t, err)
			require.True(t, ok)

			calls := 0
			r := gin.New()
			r.POST("/partners/:partner_id/orders", PartnerMiddleware(partners), IdempotencyRequired(IdempotencyConfig{
				Repo:   keys,
				Logger: zap.NewNop(),
			}), func(c *gin.Context) {
				calls++
				c.JSON(http.StatusCreated, gin.H{"order": "new"})
			})

			w := serve(r, http.MethodPost, "/partners/"+partner.ID.String()+"/orders", map[string]string{IdempotencyKeyHeader: "stale"})
			assert.Equal(t, http.StatusCreated, w.Code)
			assert.Empty(t, w.Header().Get("X-Idempotency-Replayed"))
			assert.JSONEq(t, `{"order":"new"}`, w.Body.String())
			assert.Equal(t, 1, calls)

			stored, err := keys.GetByKey(context.Background(), "stale", partner.ID)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.False(t, stored.IsPending())
			assert.False(t, stored.IsExpired())
		})
	}
}
