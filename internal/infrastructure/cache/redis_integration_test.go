package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newRedisContainerClient starts a throwaway Redis and returns a client for it
func newRedisContainerClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisIdempotencyStore_Lifecycle(t *testing.T) {
	client := newRedisContainerClient(t)
	store := NewRedisIdempotencyStoreWithClient(client, "test:idem:")
	ctx := context.Background()
	tenantID := uuid.New()

	_, reserved, err := store.Reserve(ctx, inFlight(tenantID, "k1", "fp", time.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.True(t, reserved)

	existing, reserved, err := store.Reserve(ctx, inFlight(tenantID, "k1", "other", time.Now().Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, "fp", existing.Fingerprint)

	resp := shared.ResponseSnapshot{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"ok":true}`)}
	assert.ErrorIs(t, store.Commit(ctx, tenantID, "k1", "other", resp, time.Now().Add(time.Minute)), shared.ErrIdempotencyRecordLost)
	require.NoError(t, store.Commit(ctx, tenantID, "k1", "fp", resp, time.Now().Add(10*time.Minute)))

	rec, err := store.Get(ctx, tenantID, "k1")
	require.NoError(t, err)
	require.True(t, rec.IsCommitted())
	assert.Equal(t, resp.Body, rec.Response.Body)

	ttl, err := client.PTTL(ctx, "test:idem:"+recordKey(tenantID, "k1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 5*time.Minute, "commit extends the key to the retention window")

	require.NoError(t, store.Release(ctx, tenantID, "k1", "fp"))
	rec, err = store.Get(ctx, tenantID, "k1")
	require.NoError(t, err)
	assert.NotNil(t, rec)

	assert.NoError(t, store.Close())
	assert.NoError(t, client.Ping(ctx).Err(), "shared client stays open")
}

func TestPolicyCache_RedisTierAndInvalidation(t *testing.T) {
	client := newRedisContainerClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tenantID := uuid.New()

	inv := NewRedisPolicyInvalidator(client)
	defer inv.Close()
	writer := NewPolicyCache(WithPolicyRedis(client), WithPolicyInvalidator(inv))
	defer writer.Close()

	reader := NewPolicyCache(WithPolicyRedis(client), WithPolicyInvalidator(NewRedisPolicyInvalidator(client)))
	defer reader.Close()
	go func() { _ = reader.StartInvalidationSubscription(ctx) }()

	var calls int32
	_, err := writer.Get(ctx, tenantID, countingLoader(&calls, 100))
	require.NoError(t, err)

	p, err := reader.Get(ctx, tenantID, countingLoader(&calls, 999))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls, "second instance is served from Redis")
	assert.True(t, p.Persisted)

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, writer.Invalidate(ctx, tenantID))

	assert.Eventually(t, func() bool {
		_, ok := reader.l1.Load(tenantID)
		return !ok
	}, 5*time.Second, 50*time.Millisecond)
}
