package governance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AuditEvent is an immutable ledger entry describing one state change
type AuditEvent struct {
	Seq        int64           `json:"-"`
	ID         uuid.UUID       `json:"id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	ActorID    uuid.UUID       `json:"actor_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	ProjectID  *uuid.UUID      `json:"project_id,omitempty"`
	Before     json.RawMessage `json:"before"`
	After      json.RawMessage `json:"after"`
	IP         string          `json:"ip,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditEntry is the input for appending to the ledger. Before and After are
// serialized as-is; a nil value is stored as null.
type AuditEntry struct {
	TenantID   uuid.UUID
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   uuid.UUID
	ProjectID  *uuid.UUID
	Before     any
	After      any
	IP         string
	UserAgent  string
}

// RequestMeta carries the caller attributes copied onto every ledger entry
type RequestMeta struct {
	ActorID   uuid.UUID
	IP        string
	UserAgent string
}

// NewAuditEvent validates an entry and builds the event to persist
func NewAuditEvent(entry AuditEntry) (*AuditEvent, error) {
	if entry.TenantID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "audit event requires a tenant")
	}
	if strings.TrimSpace(entry.Action) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "audit event requires an action")
	}
	if strings.TrimSpace(entry.EntityType) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "audit event requires an entity type")
	}

	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return nil, fmt.Errorf("marshal before snapshot: %w", err)
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return nil, fmt.Errorf("marshal after snapshot: %w", err)
	}

	return &AuditEvent{
		ID:         uuid.New(),
		TenantID:   entry.TenantID,
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		ProjectID:  entry.ProjectID,
		Before:     before,
		After:      after,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(s) == 0 {
			return nil, nil
		}
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

// AuditFilter narrows an audit query. TenantID is mandatory.
type AuditFilter struct {
	TenantID   uuid.UUID
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	ProjectID  *uuid.UUID
	DateFrom   *time.Time
	DateTo     *time.Time
	Module     AuditModule
	Search     string
}

// Validate checks filter consistency
func (f AuditFilter) Validate() error {
	if f.TenantID == uuid.Nil {
		return shared.NewDomainError(shared.CodeInvalidInput, "tenant is required")
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return shared.NewValidationError("date_to must not be before date_from")
	}
	return nil
}
