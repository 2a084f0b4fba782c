package governance

import (
	"context"
	"time"
)

// ArchiveStorage stores exported audit archives and hands out download links
type ArchiveStorage interface {
	// Upload writes data under key, replacing any existing object
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// GenerateDownloadURL returns a presigned GET URL and its expiry
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// Metrics receives governance counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	IdempotencyOutcome(ctx context.Context, outcome string)
	PolicyDecision(ctx context.Context, kind, decision string)
	ApprovalTransition(ctx context.Context, kind, action string)
	AuditAppended(ctx context.Context, action string)
}

type noopMetrics struct{}

func (noopMetrics) IdempotencyOutcome(context.Context, string)         {}
func (noopMetrics) PolicyDecision(context.Context, string, string)     {}
func (noopMetrics) ApprovalTransition(context.Context, string, string) {}
func (noopMetrics) AuditAppended(context.Context, string)              {}
