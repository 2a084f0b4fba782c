package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inFlight(tenantID uuid.UUID, key, fingerprint string, expiresAt time.Time) *shared.IdempotencyRecord {
	return &shared.IdempotencyRecord{
		TenantID:    tenantID,
		Key:         key,
		Fingerprint: fingerprint,
		Status:      shared.IdempotencyInFlight,
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
}

func TestInMemoryIdempotencyStore_Reserve(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("first caller reserves", func(t *testing.T) {
		existing, reserved, err := store.Reserve(ctx, inFlight(tenantID, "k1", "fp", time.Now().Add(time.Minute)))
		require.NoError(t, err)
		assert.True(t, reserved)
		assert.Nil(t, existing)
	})

	t.Run("second caller sees the live record", func(t *testing.T) {
		existing, reserved, err := store.Reserve(ctx, inFlight(tenantID, "k1", "other", time.Now().Add(time.Minute)))
		require.NoError(t, err)
		assert.False(t, reserved)
		require.NotNil(t, existing)
		assert.Equal(t, "fp", existing.Fingerprint)
	})

	t.Run("keys are scoped per tenant", func(t *testing.T) {
		_, reserved, err := store.Reserve(ctx, inFlight(uuid.New(), "k1", "fp", time.Now().Add(time.Minute)))
		require.NoError(t, err)
		assert.True(t, reserved)
	})
}

func TestInMemoryIdempotencyStore_ConcurrentReserve(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	tenantID := uuid.New()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, reserved, err := store.Reserve(context.Background(), inFlight(tenantID, "race", "fp", time.Now().Add(time.Minute)))
			if err == nil && reserved {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestInMemoryIdempotencyStore_CommitReleaseAndExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := newInMemoryIdempotencyStore(time.Hour, clock)
	defer store.Close()
	ctx := context.Background()
	tenantID := uuid.New()

	_, reserved, err := store.Reserve(ctx, inFlight(tenantID, "k1", "fp", now.Add(2*time.Minute)))
	require.NoError(t, err)
	require.True(t, reserved)

	body := []byte(`{"success":true}`)
	err = store.Commit(ctx, tenantID, "k1", "wrong", shared.ResponseSnapshot{StatusCode: 200, Body: body}, now.Add(10*time.Minute))
	assert.ErrorIs(t, err, shared.ErrIdempotencyRecordLost)

	require.NoError(t, store.Commit(ctx, tenantID, "k1", "fp", shared.ResponseSnapshot{StatusCode: 200, Body: body}, now.Add(10*time.Minute)))
	body[0] = 'X'

	rec, err := store.Get(ctx, tenantID, "k1")
	require.NoError(t, err)
	require.True(t, rec.IsCommitted())
	assert.Equal(t, `{"success":true}`, string(rec.Response.Body), "stored body is a copy")

	require.NoError(t, store.Release(ctx, tenantID, "k1", "fp"))
	rec, err = store.Get(ctx, tenantID, "k1")
	require.NoError(t, err)
	assert.NotNil(t, rec, "committed records are not released")

	now = now.Add(10 * time.Minute)
	rec, err = store.Get(ctx, tenantID, "k1")
	require.NoError(t, err)
	assert.Nil(t, rec, "expiry is reached at expires_at")
	assert.Equal(t, 0, store.Size())

	t.Run("release frees an in-flight key", func(t *testing.T) {
		_, reserved, err := store.Reserve(ctx, inFlight(tenantID, "k2", "fp", now.Add(time.Minute)))
		require.NoError(t, err)
		require.True(t, reserved)
		require.NoError(t, store.Release(ctx, tenantID, "k2", "fp"))

		_, reserved, err = store.Reserve(ctx, inFlight(tenantID, "k2", "fp", now.Add(time.Minute)))
		require.NoError(t, err)
		assert.True(t, reserved)
	})
}

func TestInMemoryIdempotencyStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
