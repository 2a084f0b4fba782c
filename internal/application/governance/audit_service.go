package governance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ActionAuditExported is recorded when an archive is written
	ActionAuditExported = "audit.exported"
	// EntityTypeAuditArchive is the entity type of archive ledger entries
	EntityTypeAuditArchive = "audit_archive"

	archiveContentType = "application/x-ndjson"
)

// AuditService records and reads the audit ledger
type AuditService struct {
	repo          governance.AuditEventRepository
	gate          governance.AuthorizationGate
	storage       ArchiveStorage
	archiveExpiry time.Duration
	logger        *zap.Logger
	metrics       Metrics
}

// AuditServiceOption configures an AuditService
type AuditServiceOption func(*AuditService)

// WithArchiveStorage enables audit archive export
func WithArchiveStorage(storage ArchiveStorage, urlExpiry time.Duration) AuditServiceOption {
	return func(s *AuditService) {
		s.storage = storage
		s.archiveExpiry = urlExpiry
	}
}

// WithAuditLogger sets the service logger
func WithAuditLogger(logger *zap.Logger) AuditServiceOption {
	return func(s *AuditService) {
		s.logger = logger
	}
}

// WithAuditMetrics sets the metrics sink
func WithAuditMetrics(m Metrics) AuditServiceOption {
	return func(s *AuditService) {
		s.metrics = m
	}
}

// NewAuditService creates a new AuditService
func NewAuditService(repo governance.AuditEventRepository, gate governance.AuthorizationGate, opts ...AuditServiceOption) *AuditService {
	s := &AuditService{
		repo:    repo,
		gate:    gate,
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// recordEntry appends entry through repo. Callers pass the repository of
// their transaction so that a failed write rolls the mutation back.
func recordEntry(ctx context.Context, repo governance.AuditEventRepository, metrics Metrics, entry governance.AuditEntry) (*governance.AuditEvent, error) {
	event, err := governance.NewAuditEvent(entry)
	if err != nil {
		return nil, err
	}
	if err := repo.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append audit event %s: %w", entry.Action, err)
	}
	metrics.AuditAppended(ctx, entry.Action)
	return event, nil
}

// Record appends a ledger entry outside of any caller transaction and
// returns the new event id
func (s *AuditService) Record(ctx context.Context, entry governance.AuditEntry) (uuid.UUID, error) {
	event, err := recordEntry(ctx, s.repo, s.metrics, entry)
	if err != nil {
		return uuid.Nil, err
	}
	return event.ID, nil
}

// Query returns one page of the actor's tenant ledger, newest first
func (s *AuditService) Query(ctx context.Context, actor governance.Actor, q AuditQuery, page shared.PageRequest) (*shared.Paginated[governance.AuditEvent], error) {
	if err := authorize(s.gate, actor, governance.PermissionAuditView); err != nil {
		return nil, err
	}
	filter, err := q.toFilter(actor.TenantID)
	if err != nil {
		return nil, err
	}

	page = page.Normalize()
	events, total, err := s.repo.Query(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	result := shared.NewPaginated(events, total, page)
	return &result, nil
}

// Archive writes the matching events as NDJSON (oldest first) to archive
// storage, records audit.exported and returns a presigned download URL
func (s *AuditService) Archive(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, req ArchiveRequest) (*ArchiveResult, error) {
	if err := authorize(s.gate, actor, governance.PermissionAuditExport); err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Audit archive storage is not configured")
	}
	filter, err := req.Query.toFilter(actor.TenantID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	err = s.repo.Each(ctx, filter, func(ev *governance.AuditEvent) error {
		count++
		return enc.Encode(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("read audit events for archive: %w", err)
	}

	archiveID := uuid.New()
	key := fmt.Sprintf("audit/%s/%s-%s.ndjson", actor.TenantID, time.Now().UTC().Format("20060102T150405Z"), archiveID)
	if err := s.storage.Upload(ctx, key, buf.Bytes(), archiveContentType); err != nil {
		return nil, fmt.Errorf("upload audit archive: %w", err)
	}

	_, err = recordEntry(ctx, s.repo, s.metrics, governance.AuditEntry{
		TenantID:   actor.TenantID,
		ActorID:    actor.ID,
		Action:     ActionAuditExported,
		EntityType: EntityTypeAuditArchive,
		EntityID:   archiveID,
		ProjectID:  filter.ProjectID,
		After: map[string]any{
			"storage_key": key,
			"event_count": count,
			"module":      filter.Module,
			"date_from":   filter.DateFrom,
			"date_to":     filter.DateTo,
		},
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	url, expiresAt, err := s.storage.GenerateDownloadURL(ctx, key, s.archiveExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign audit archive %s: %w", key, err)
	}

	s.logger.Info("Audit archive exported",
		zap.String("tenant_id", actor.TenantID.String()),
		zap.String("key", key),
		zap.Int("events", count))

	return &ArchiveResult{
		ArchiveID:   archiveID,
		StorageKey:  key,
		EventCount:  count,
		DownloadURL: url,
		ExpiresAt:   expiresAt,
	}, nil
}
