package cache

import (
	"fmt"
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/config"
	"github.com/costgov/backend/internal/infrastructure/persistence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Idempotency store kinds accepted by IdempotencyConfig.Store
const (
	StoreRedis    = "redis"
	StoreDatabase = "database"
	StoreMemory   = "memory"
)

// IdempotencyStoreFactory creates idempotency stores based on configuration
type IdempotencyStoreFactory struct {
	cfg                   config.IdempotencyConfig
	redisConfig           config.RedisConfig
	redisClient           redis.UniversalClient
	db                    *gorm.DB
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory store
// when the configured backend is unavailable. Default is false.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithDatabase supplies the connection used by the database store
func WithDatabase(db *gorm.DB) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.db = db
	}
}

// WithRedisClient shares an existing Redis client with the redis store
func WithRedisClient(client redis.UniversalClient) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.redisClient = client
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(cfg config.IdempotencyConfig, redisCfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		cfg:         cfg,
		redisConfig: redisCfg,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisStore creates a Redis-based idempotency store
func (f *IdempotencyStoreFactory) CreateRedisStore() (shared.IdempotencyStore, error) {
	if f.redisClient != nil {
		return NewRedisIdempotencyStoreWithClient(f.redisClient, f.cfg.KeyPrefix), nil
	}

	client, err := NewRedisClient(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis idempotency store: %w", err)
	}
	store := NewRedisIdempotencyStoreWithClient(client, f.cfg.KeyPrefix)
	store.ownsClient = true
	return store, nil
}

// CreateDatabaseStore creates a store on the idempotency_records table
func (f *IdempotencyStoreFactory) CreateDatabaseStore() (shared.IdempotencyStore, error) {
	if f.db == nil {
		return nil, fmt.Errorf("database idempotency store requires a database connection")
	}
	return persistence.NewGormIdempotencyStore(f.db,
		persistence.WithIdempotencyCleanup(time.Minute),
		persistence.WithIdempotencyLogger(f.logger),
	), nil
}

// CreateInMemoryStore creates an in-memory idempotency store
// WARNING: In-memory stores do not share state across process instances,
// so duplicate requests routed to different instances both execute
func (f *IdempotencyStoreFactory) CreateInMemoryStore() shared.IdempotencyStore {
	return NewInMemoryIdempotencyStore()
}

// CreateStore creates the configured idempotency store, falling back to
// in-memory only when explicitly allowed
func (f *IdempotencyStoreFactory) CreateStore() (shared.IdempotencyStore, error) {
	var (
		store shared.IdempotencyStore
		err   error
	)
	switch f.cfg.Store {
	case StoreMemory:
		f.logger.Warn("Using in-memory idempotency store; keys are not shared across instances")
		return f.CreateInMemoryStore(), nil
	case StoreRedis:
		store, err = f.CreateRedisStore()
	case StoreDatabase, "":
		store, err = f.CreateDatabaseStore()
	default:
		return nil, fmt.Errorf("unknown idempotency store %q", f.cfg.Store)
	}
	if err == nil {
		f.logger.Info("Using idempotency store", zap.String("store", f.cfg.Store))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("idempotency store %q unavailable: %w", f.cfg.Store, err)
	}

	f.logger.Warn("Idempotency store unavailable, falling back to in-memory store. "+
		"Duplicate requests routed to different instances may both execute.",
		zap.String("store", f.cfg.Store),
		zap.Error(err),
	)
	return f.CreateInMemoryStore(), nil
}
