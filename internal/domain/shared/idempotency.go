package shared

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// IdempotencyStatus is the lifecycle state of an idempotency record
type IdempotencyStatus string

const (
	IdempotencyInFlight  IdempotencyStatus = "in_flight"
	IdempotencyCommitted IdempotencyStatus = "committed"
)

// ResponseSnapshot is the response replayed verbatim for a committed key
type ResponseSnapshot struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdempotencyRecord tracks one client supplied idempotency key within a tenant
type IdempotencyRecord struct {
	TenantID    uuid.UUID         `json:"tenant_id"`
	Key         string            `json:"key"`
	Fingerprint string            `json:"fingerprint"`
	Status      IdempotencyStatus `json:"status"`
	Response    *ResponseSnapshot `json:"response,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// IsExpired reports whether the record no longer blocks reuse of its key
func (r *IdempotencyRecord) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// IsCommitted reports whether the record holds a replayable response
func (r *IdempotencyRecord) IsCommitted() bool {
	return r.Status == IdempotencyCommitted && r.Response != nil
}

// IdempotencyStore persists idempotency records. Implementations must make
// Reserve atomic: of all concurrent callers for the same (tenant, key) at
// most one observes reserved == true.
type IdempotencyStore interface {
	// Reserve inserts rec as an in-flight record unless a live record for the
	// same key exists. When it does not reserve, the live record is returned;
	// it may be nil if the record vanished between the attempt and the read.
	Reserve(ctx context.Context, rec *IdempotencyRecord) (existing *IdempotencyRecord, reserved bool, err error)

	// Get returns the live record for the key, or nil when none exists
	Get(ctx context.Context, tenantID uuid.UUID, key string) (*IdempotencyRecord, error)

	// Commit attaches the response to the in-flight record owned by the
	// fingerprint and extends its expiry to expiresAt
	Commit(ctx context.Context, tenantID uuid.UUID, key, fingerprint string, resp ResponseSnapshot, expiresAt time.Time) error

	// Release deletes the record if it is still in flight for fingerprint
	Release(ctx context.Context, tenantID uuid.UUID, key, fingerprint string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for request idempotency handling
type IdempotencyConfig struct {
	// Retention is how long a committed response is replayed
	Retention time.Duration
	// InFlightTTL bounds how long a crashed owner can hold a key
	InFlightTTL time.Duration
	// WaitTimeout bounds how long a concurrent duplicate waits for the owner
	WaitTimeout time.Duration
	// PollInterval is the initial delay between checks while waiting
	PollInterval time.Duration
	// MaxPollInterval caps the backoff between checks
	MaxPollInterval time.Duration
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		Retention:       10 * time.Minute,
		InFlightTTL:     2 * time.Minute,
		WaitTimeout:     30 * time.Second,
		PollInterval:    50 * time.Millisecond,
		MaxPollInterval: time.Second,
	}
}

// RequestFingerprint hashes the parts of a request that must match for a
// retry to be treated as the same request
func RequestFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ErrIdempotencyRecordLost is returned by Commit when the in-flight record
// expired or was replaced before the response could be stored
var ErrIdempotencyRecordLost = errors.New("idempotency record is no longer owned by this request")
