package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyKeyPrefix = "idempotency:request:"

// commitScript swaps the stored record for the committed one only when the
// caller still owns the in-flight record
var commitScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local rec = cjson.decode(cur)
if rec.fingerprint ~= ARGV[1] or rec.status ~= 'in_flight' then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// releaseScript deletes the record only while it is in flight for the caller
var releaseScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local rec = cjson.decode(cur)
if rec.fingerprint == ARGV[1] and rec.status == 'in_flight' then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisIdempotencyStore implements IdempotencyStore using Redis
// This is suitable for distributed deployments where multiple instances
// need to share idempotency state. Expiry is delegated to Redis key TTLs.
type RedisIdempotencyStore struct {
	client     redis.UniversalClient
	ownsClient bool
	keyPrefix  string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient creates a client and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisIdempotencyStore creates a new Redis-based idempotency store
func NewRedisIdempotencyStore(cfg RedisConfig) (*RedisIdempotencyStore, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	store := NewRedisIdempotencyStoreWithClient(client, "")
	store.ownsClient = true
	return store, nil
}

// NewRedisIdempotencyStoreWithClient creates a store with an existing Redis client.
// The caller retains ownership of the client and is responsible for closing it.
func NewRedisIdempotencyStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultIdempotencyKeyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisIdempotencyStore) redisKey(tenantID uuid.UUID, key string) string {
	return s.keyPrefix + recordKey(tenantID, key)
}

// Reserve uses SET NX with the record's remaining lifetime as TTL
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, rec *shared.IdempotencyRecord) (*shared.IdempotencyRecord, bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	ok, err := s.client.SetNX(ctx, s.redisKey(rec.TenantID, rec.Key), payload, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	existing, err := s.Get(ctx, rec.TenantID, rec.Key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Get returns the live record for the key
func (s *RedisIdempotencyStore) Get(ctx context.Context, tenantID uuid.UUID, key string) (*shared.IdempotencyRecord, error) {
	raw, err := s.client.Get(ctx, s.redisKey(tenantID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}

	var rec shared.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &rec, nil
}

// Commit replaces the in-flight record with the committed one
func (s *RedisIdempotencyStore) Commit(ctx context.Context, tenantID uuid.UUID, key, fingerprint string, resp shared.ResponseSnapshot, expiresAt time.Time) error {
	current, err := s.Get(ctx, tenantID, key)
	if err != nil {
		return err
	}
	if current == nil {
		return shared.ErrIdempotencyRecordLost
	}

	current.Status = shared.IdempotencyCommitted
	current.Response = &resp
	current.ExpiresAt = expiresAt
	payload, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	swapped, err := commitScript.Run(ctx, s.client,
		[]string{s.redisKey(tenantID, key)},
		fingerprint, payload, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to commit idempotency record: %w", err)
	}
	if swapped == 0 {
		return shared.ErrIdempotencyRecordLost
	}
	return nil
}

// Release deletes the in-flight record owned by fingerprint
func (s *RedisIdempotencyStore) Release(ctx context.Context, tenantID uuid.UUID, key, fingerprint string) error {
	err := releaseScript.Run(ctx, s.client, []string{s.redisKey(tenantID, key)}, fingerprint).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close closes the Redis client if the store created it
func (s *RedisIdempotencyStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// Ensure RedisIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
