package governance

import (
	"context"
	"errors"
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BeginOutcome tells the caller how to handle a keyed request
type BeginOutcome int

const (
	// OutcomeProceed means the caller owns the key and must execute, then
	// Commit or Abort
	OutcomeProceed BeginOutcome = iota
	// OutcomeReplay means a committed response exists and must be returned as-is
	OutcomeReplay
	// OutcomeConflict means the key was used with a different request
	OutcomeConflict
)

// String returns the metric label of the outcome
func (o BeginOutcome) String() string {
	switch o {
	case OutcomeProceed:
		return "proceed"
	case OutcomeReplay:
		return "replay"
	default:
		return "conflict"
	}
}

// BeginResult is the result of IdempotencyGuard.Begin
type BeginResult struct {
	Outcome  BeginOutcome
	Response *shared.ResponseSnapshot
}

// IdempotencyGuard makes keyed mutations execute at most once. Concurrent
// duplicates wait for the owner and replay its response.
type IdempotencyGuard struct {
	store   shared.IdempotencyStore
	cfg     shared.IdempotencyConfig
	logger  *zap.Logger
	metrics Metrics
	now     func() time.Time
}

// IdempotencyGuardOption configures an IdempotencyGuard
type IdempotencyGuardOption func(*IdempotencyGuard)

// WithGuardLogger sets the guard logger
func WithGuardLogger(logger *zap.Logger) IdempotencyGuardOption {
	return func(g *IdempotencyGuard) {
		g.logger = logger
	}
}

// WithGuardMetrics sets the metrics sink
func WithGuardMetrics(m Metrics) IdempotencyGuardOption {
	return func(g *IdempotencyGuard) {
		g.metrics = m
	}
}

// NewIdempotencyGuard creates a guard over store. Zero config values fall
// back to shared.DefaultIdempotencyConfig.
func NewIdempotencyGuard(store shared.IdempotencyStore, cfg shared.IdempotencyConfig, opts ...IdempotencyGuardOption) *IdempotencyGuard {
	def := shared.DefaultIdempotencyConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.InFlightTTL <= 0 {
		cfg.InFlightTTL = def.InFlightTTL
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = max(def.MaxPollInterval, cfg.PollInterval)
	}

	g := &IdempotencyGuard{
		store:   store,
		cfg:     cfg,
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the effective configuration
func (g *IdempotencyGuard) Config() shared.IdempotencyConfig {
	return g.cfg
}

// Begin reserves the key or resolves it against an existing record. While
// another request holds the key, Begin polls with backoff until that request
// commits or aborts, the wait timeout passes (ErrIdempotencyInProgress) or
// ctx is done.
func (g *IdempotencyGuard) Begin(ctx context.Context, tenantID uuid.UUID, key, fingerprint string) (BeginResult, error) {
	if tenantID == uuid.Nil || key == "" || fingerprint == "" {
		return BeginResult{}, shared.NewDomainError(shared.CodeInvalidInput, "idempotency key, tenant and fingerprint are required")
	}

	deadline := g.now().Add(g.cfg.WaitTimeout)
	interval := g.cfg.PollInterval
	waited := false

	for {
		now := g.now()
		existing, reserved, err := g.store.Reserve(ctx, &shared.IdempotencyRecord{
			TenantID:    tenantID,
			Key:         key,
			Fingerprint: fingerprint,
			Status:      shared.IdempotencyInFlight,
			CreatedAt:   now,
			ExpiresAt:   now.Add(g.cfg.InFlightTTL),
		})
		if err != nil {
			return BeginResult{}, err
		}

		switch {
		case reserved:
			return g.resolve(ctx, BeginResult{Outcome: OutcomeProceed}), nil
		case existing == nil:
			// released or expired between the insert attempt and the read
			continue
		case existing.Fingerprint != fingerprint:
			return g.resolve(ctx, BeginResult{Outcome: OutcomeConflict}), nil
		case existing.IsCommitted():
			if waited {
				g.logger.Debug("Replaying response after wait", zap.String("idempotency_key", key))
			}
			return g.resolve(ctx, BeginResult{Outcome: OutcomeReplay, Response: existing.Response}), nil
		}

		remaining := deadline.Sub(g.now())
		if remaining <= 0 {
			g.metrics.IdempotencyOutcome(ctx, "in_progress")
			return BeginResult{}, shared.ErrIdempotencyInProgress
		}
		waited = true

		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return BeginResult{}, ctx.Err()
		case <-timer.C:
		}
		interval = min(interval*2, g.cfg.MaxPollInterval)
	}
}

func (g *IdempotencyGuard) resolve(ctx context.Context, r BeginResult) BeginResult {
	g.metrics.IdempotencyOutcome(ctx, r.Outcome.String())
	return r
}

// Commit stores the response of the owning request for replay
func (g *IdempotencyGuard) Commit(ctx context.Context, tenantID uuid.UUID, key, fingerprint string, resp shared.ResponseSnapshot) error {
	err := g.store.Commit(ctx, tenantID, key, fingerprint, resp, g.now().Add(g.cfg.Retention))
	if errors.Is(err, shared.ErrIdempotencyRecordLost) {
		g.logger.Warn("Idempotency record lost before commit",
			zap.String("tenant_id", tenantID.String()),
			zap.String("idempotency_key", key))
	}
	return err
}

// Abort frees the key so that a retry can execute
func (g *IdempotencyGuard) Abort(ctx context.Context, tenantID uuid.UUID, key, fingerprint string) error {
	return g.store.Release(ctx, tenantID, key, fingerprint)
}
