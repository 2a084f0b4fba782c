package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPolicyCacheTTL    = 30 * time.Second
	defaultPolicyKeyPrefix   = "governance:policy:"
	defaultPolicyCleanupTick = 30 * time.Second
)

// PolicyLoader reads a tenant's effective policy from the store of record
type PolicyLoader = func(ctx context.Context, tenantID uuid.UUID) (*governance.CostPolicy, error)

// cacheEntry wraps a cached value with expiration time
type cacheEntry[T any] struct {
	value     *T
	expiresAt time.Time
}

func (e *cacheEntry[T]) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// cachedPolicy is the L2 payload. Persisted is not part of the policy JSON.
type cachedPolicy struct {
	Policy    *governance.CostPolicy `json:"policy"`
	Persisted bool                   `json:"persisted"`
}

// PolicyCache is a read-through cache of effective cost policies.
// L1: local in-memory map, L2: optional Redis shared across instances.
// Concurrent misses for one tenant share a single load.
type PolicyCache struct {
	l1          sync.Map // map[uuid.UUID]*cacheEntry[governance.CostPolicy]
	l2          redis.UniversalClient
	invalidator *RedisPolicyInvalidator
	group       singleflight.Group
	ttl         time.Duration
	keyPrefix   string
	logger      *zap.Logger
	now         func() time.Time
	stopCh      chan struct{}
	closeOnce   sync.Once

	hits   int64
	misses int64
}

// PolicyCacheOption is a functional option for configuring the cache
type PolicyCacheOption func(*PolicyCache)

// WithPolicyCacheTTL sets how long an entry is served without reloading
func WithPolicyCacheTTL(ttl time.Duration) PolicyCacheOption {
	return func(c *PolicyCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPolicyRedis enables the shared L2 tier
func WithPolicyRedis(client redis.UniversalClient) PolicyCacheOption {
	return func(c *PolicyCache) {
		c.l2 = client
	}
}

// WithPolicyInvalidator publishes invalidations to other instances
func WithPolicyInvalidator(inv *RedisPolicyInvalidator) PolicyCacheOption {
	return func(c *PolicyCache) {
		c.invalidator = inv
	}
}

// WithPolicyCacheLogger sets the logger for the cache
func WithPolicyCacheLogger(logger *zap.Logger) PolicyCacheOption {
	return func(c *PolicyCache) {
		c.logger = logger
	}
}

// NewPolicyCache creates a new policy cache
func NewPolicyCache(opts ...PolicyCacheOption) *PolicyCache {
	c := &PolicyCache{
		ttl:       defaultPolicyCacheTTL,
		keyPrefix: defaultPolicyKeyPrefix,
		logger:    zap.NewNop(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()
	return c
}

// Get returns the cached policy for the tenant, loading it on a miss.
// The returned policy is a copy and may be mutated by the caller.
func (c *PolicyCache) Get(ctx context.Context, tenantID uuid.UUID, load PolicyLoader) (*governance.CostPolicy, error) {
	if p := c.getL1(tenantID); p != nil {
		atomic.AddInt64(&c.hits, 1)
		return p.Clone(), nil
	}
	atomic.AddInt64(&c.misses, 1)

	v, err, _ := c.group.Do(tenantID.String(), func() (any, error) {
		if p := c.getL2(ctx, tenantID); p != nil {
			c.setL1(tenantID, p)
			return p, nil
		}
		p, err := load(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, errors.New("policy loader returned nil")
		}
		c.setL1(tenantID, p)
		c.setL2(ctx, tenantID, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*governance.CostPolicy).Clone(), nil
}

// Invalidate drops the tenant's entry locally, in Redis and on other instances
func (c *PolicyCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	c.l1.Delete(tenantID)
	c.group.Forget(tenantID.String())

	if c.l2 != nil {
		if err := c.l2.Del(ctx, c.redisKey(tenantID)).Err(); err != nil {
			return fmt.Errorf("failed to invalidate policy cache: %w", err)
		}
	}
	if c.invalidator != nil {
		if err := c.invalidator.PublishPolicyUpdate(ctx, tenantID); err != nil {
			c.logger.Warn("Failed to publish policy invalidation",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
		}
	}
	return nil
}

// StartInvalidationSubscription drops L1 entries invalidated by other
// instances. It blocks until ctx is cancelled.
func (c *PolicyCache) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, func(msg PolicyInvalidationMessage) {
		c.l1.Delete(msg.TenantID)
		c.logger.Debug("Invalidated local policy cache",
			zap.String("tenant_id", msg.TenantID.String()))
	})
}

// Stats returns L1 hit and miss counters
func (c *PolicyCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *PolicyCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	return nil
}

func (c *PolicyCache) getL1(tenantID uuid.UUID) *governance.CostPolicy {
	v, ok := c.l1.Load(tenantID)
	if !ok {
		return nil
	}
	entry := v.(*cacheEntry[governance.CostPolicy])
	if entry.isExpired(c.now()) {
		c.l1.Delete(tenantID)
		return nil
	}
	return entry.value
}

func (c *PolicyCache) setL1(tenantID uuid.UUID, p *governance.CostPolicy) {
	c.l1.Store(tenantID, &cacheEntry[governance.CostPolicy]{
		value:     p.Clone(),
		expiresAt: c.now().Add(c.ttl),
	})
}

func (c *PolicyCache) redisKey(tenantID uuid.UUID) string {
	return c.keyPrefix + tenantID.String()
}

// getL2 treats every Redis failure as a miss
func (c *PolicyCache) getL2(ctx context.Context, tenantID uuid.UUID) *governance.CostPolicy {
	if c.l2 == nil {
		return nil
	}
	data, err := c.l2.Get(ctx, c.redisKey(tenantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("L2 policy cache error", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		}
		return nil
	}
	var cached cachedPolicy
	if err := json.Unmarshal(data, &cached); err != nil || cached.Policy == nil {
		c.logger.Warn("Discarding malformed L2 policy entry", zap.String("tenant_id", tenantID.String()))
		return nil
	}
	cached.Policy.Persisted = cached.Persisted
	return cached.Policy
}

func (c *PolicyCache) setL2(ctx context.Context, tenantID uuid.UUID, p *governance.CostPolicy) {
	if c.l2 == nil {
		return
	}
	data, err := json.Marshal(cachedPolicy{Policy: p, Persisted: p.Persisted})
	if err != nil {
		return
	}
	if err := c.l2.Set(ctx, c.redisKey(tenantID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to populate L2 policy cache", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
}

func (c *PolicyCache) cleanupExpired() {
	ticker := time.NewTicker(defaultPolicyCleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := c.now()
			c.l1.Range(func(key, value any) bool {
				if value.(*cacheEntry[governance.CostPolicy]).isExpired(now) {
					c.l1.Delete(key)
				}
				return true
			})
		}
	}
}
