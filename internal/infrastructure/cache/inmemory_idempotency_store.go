package cache

import (
	"context"
	"sync"
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InMemoryIdempotencyStore implements IdempotencyStore using an in-memory map
// This is suitable for single-instance deployments and testing
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	records   map[string]shared.IdempotencyRecord
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyStore creates a new in-memory idempotency store
// It starts a background goroutine to clean up expired records
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return newInMemoryIdempotencyStore(time.Minute, time.Now)
}

func newInMemoryIdempotencyStore(sweep time.Duration, now func() time.Time) *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		records:  make(map[string]shared.IdempotencyRecord),
		now:      now,
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop(sweep)

	return store
}

func recordKey(tenantID uuid.UUID, key string) string {
	return tenantID.String() + ":" + key
}

// live returns the unexpired record for k. Caller holds s.mu.
func (s *InMemoryIdempotencyStore) live(k string) (shared.IdempotencyRecord, bool) {
	rec, ok := s.records[k]
	if !ok {
		return rec, false
	}
	if rec.IsExpired(s.now()) {
		delete(s.records, k)
		return rec, false
	}
	return rec, true
}

// Reserve inserts rec unless a live record exists for its key
func (s *InMemoryIdempotencyStore) Reserve(ctx context.Context, rec *shared.IdempotencyRecord) (*shared.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey(rec.TenantID, rec.Key)
	if existing, ok := s.live(k); ok {
		return cloneRecord(existing), false, nil
	}
	s.records[k] = *cloneRecord(*rec)
	return nil, true, nil
}

// Get returns the live record for the key
func (s *InMemoryIdempotencyStore) Get(ctx context.Context, tenantID uuid.UUID, key string) (*shared.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.live(recordKey(tenantID, key)); ok {
		return cloneRecord(rec), nil
	}
	return nil, nil
}

// Commit stores the response on the in-flight record owned by fingerprint
func (s *InMemoryIdempotencyStore) Commit(ctx context.Context, tenantID uuid.UUID, key, fingerprint string, resp shared.ResponseSnapshot, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey(tenantID, key)
	rec, ok := s.live(k)
	if !ok || rec.Fingerprint != fingerprint || rec.Status != shared.IdempotencyInFlight {
		return shared.ErrIdempotencyRecordLost
	}
	snapshot := resp
	snapshot.Body = append([]byte(nil), resp.Body...)
	rec.Status = shared.IdempotencyCommitted
	rec.Response = &snapshot
	rec.ExpiresAt = expiresAt
	s.records[k] = rec
	return nil
}

// Release removes an in-flight record owned by fingerprint
func (s *InMemoryIdempotencyStore) Release(ctx context.Context, tenantID uuid.UUID, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey(tenantID, key)
	if rec, ok := s.records[k]; ok && rec.Fingerprint == fingerprint && rec.Status == shared.IdempotencyInFlight {
		delete(s.records, k)
	}
	return nil
}

// Close stops the cleanup goroutine and releases resources
// Safe to call multiple times
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired records
func (s *InMemoryIdempotencyStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryIdempotencyStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, rec := range s.records {
		if rec.IsExpired(now) {
			delete(s.records, k)
		}
	}
}

// Size returns the number of records held, expired ones included
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func cloneRecord(rec shared.IdempotencyRecord) *shared.IdempotencyRecord {
	c := rec
	if rec.Response != nil {
		resp := *rec.Response
		resp.Body = append([]byte(nil), rec.Response.Body...)
		c.Response = &resp
	}
	return &c
}

// Ensure InMemoryIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
