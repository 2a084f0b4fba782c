package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormIdempotencyStore implements shared.IdempotencyStore on the
// idempotency_records table. The composite primary key makes Reserve atomic
// across every API instance sharing the database.
type GormIdempotencyStore struct {
	db        *gorm.DB
	logger    *zap.Logger
	sweep     time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// GormIdempotencyStoreOption configures a GormIdempotencyStore
type GormIdempotencyStoreOption func(*GormIdempotencyStore)

// WithIdempotencyCleanup purges expired rows every interval
func WithIdempotencyCleanup(interval time.Duration) GormIdempotencyStoreOption {
	return func(s *GormIdempotencyStore) {
		s.sweep = interval
	}
}

// WithIdempotencyLogger sets the logger used by the cleanup loop
func WithIdempotencyLogger(logger *zap.Logger) GormIdempotencyStoreOption {
	return func(s *GormIdempotencyStore) {
		s.logger = logger
	}
}

// NewGormIdempotencyStore creates a new GormIdempotencyStore
func NewGormIdempotencyStore(db *gorm.DB, opts ...GormIdempotencyStoreOption) *GormIdempotencyStore {
	s := &GormIdempotencyStore{
		db:       db,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweep > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(s.sweep)
	}
	return s
}

// Reserve inserts rec as in flight unless a live record holds the key
func (s *GormIdempotencyStore) Reserve(ctx context.Context, rec *shared.IdempotencyRecord) (*shared.IdempotencyRecord, bool, error) {
	db := s.db.WithContext(ctx)

	if err := db.
		Where("tenant_id = ? AND idempotency_key = ? AND expires_at <= ?", rec.TenantID, rec.Key, s.now()).
		Delete(&models.IdempotencyRecordModel{}).Error; err != nil {
		return nil, false, err
	}

	model := models.IdempotencyRecordModelFromDomain(rec)
	model.CreatedAt = model.CreatedAt.UTC()
	model.ExpiresAt = model.ExpiresAt.UTC()
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return nil, true, nil
	}

	existing, err := s.Get(ctx, rec.TenantID, rec.Key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Get returns the live record for the key
func (s *GormIdempotencyStore) Get(ctx context.Context, tenantID uuid.UUID, key string) (*shared.IdempotencyRecord, error) {
	var model models.IdempotencyRecordModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ? AND expires_at > ?", tenantID, key, s.now()).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Commit stores the response on the in-flight record owned by fingerprint
func (s *GormIdempotencyStore) Commit(ctx context.Context, tenantID uuid.UUID, key, fingerprint string, resp shared.ResponseSnapshot, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.IdempotencyRecordModel{}).
		Where("tenant_id = ? AND idempotency_key = ? AND fingerprint = ? AND status = ? AND expires_at > ?",
			tenantID, key, fingerprint, string(shared.IdempotencyInFlight), s.now()).
		Updates(map[string]any{
			"status":                string(shared.IdempotencyCommitted),
			"response_status":       resp.StatusCode,
			"response_content_type": resp.ContentType,
			"response_body":         resp.Body,
			"expires_at":            expiresAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrIdempotencyRecordLost
	}
	return nil
}

// Release deletes the record if it is still in flight for fingerprint
func (s *GormIdempotencyStore) Release(ctx context.Context, tenantID uuid.UUID, key, fingerprint string) error {
	return s.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ? AND fingerprint = ? AND status = ?",
			tenantID, key, fingerprint, string(shared.IdempotencyInFlight)).
		Delete(&models.IdempotencyRecordModel{}).Error
}

// PurgeExpired deletes every expired record and returns how many were removed
func (s *GormIdempotencyStore) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Delete(&models.IdempotencyRecordModel{})
	return result.RowsAffected, result.Error
}

// Close stops the cleanup loop. Safe to call multiple times.
func (s *GormIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *GormIdempotencyStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := s.PurgeExpired(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("Failed to purge expired idempotency records", zap.Error(err))
			} else if n > 0 {
				s.logger.Debug("Purged expired idempotency records", zap.Int64("count", n))
			}
		}
	}
}

// Ensure GormIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*GormIdempotencyStore)(nil)
