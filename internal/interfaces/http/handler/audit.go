package handler

import (
	"context"
	"net/http"
	"time"

	govapp "github.com/costgov/backend/internal/application/governance"
	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dateOnly = "2006-01-02"

// AuditService is the audit ledger used by AuditHandler
type AuditService interface {
	Query(ctx context.Context, actor governance.Actor, q govapp.AuditQuery, page shared.PageRequest) (*shared.Paginated[governance.AuditEvent], error)
	Archive(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, req govapp.ArchiveRequest) (*govapp.ArchiveResult, error)
}

// AuditHandler serves the audit ledger
type AuditHandler struct {
	BaseHandler
	service AuditService
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// AuditFilterRequest carries audit filters from the query string or an
// archive body. Dates accept YYYY-MM-DD or RFC 3339; a date-only date_to
// covers the whole day.
type AuditFilterRequest struct {
	UserID     string `form:"user_id" json:"user_id" binding:"omitempty,uuid"`
	Action     string `form:"action" json:"action" binding:"max=100"`
	EntityType string `form:"entity_type" json:"entity_type" binding:"max=100"`
	EntityID   string `form:"entity_id" json:"entity_id" binding:"omitempty,uuid"`
	ProjectID  string `form:"project_id" json:"project_id" binding:"omitempty,uuid"`
	DateFrom   string `form:"date_from" json:"date_from"`
	DateTo     string `form:"date_to" json:"date_to"`
	Module     string `form:"module" json:"module"`
	Search     string `form:"search" json:"search" binding:"max=200"`
}

// AuditListRequest adds pagination to the filters
type AuditListRequest struct {
	AuditFilterRequest
	Page    int `form:"page" binding:"omitempty,gte=1,max=100000"`
	PerPage int `form:"per_page" binding:"omitempty,gte=1"`
}

func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func parseFilterDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return nil, shared.NewValidationError("dates must be YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (r AuditFilterRequest) toQuery() (govapp.AuditQuery, error) {
	from, err := parseFilterDate(r.DateFrom, false)
	if err != nil {
		return govapp.AuditQuery{}, err
	}
	to, err := parseFilterDate(r.DateTo, true)
	if err != nil {
		return govapp.AuditQuery{}, err
	}
	return govapp.AuditQuery{
		UserID:     optionalUUID(r.UserID),
		Action:     r.Action,
		EntityType: r.EntityType,
		EntityID:   optionalUUID(r.EntityID),
		ProjectID:  optionalUUID(r.ProjectID),
		DateFrom:   from,
		DateTo:     to,
		Module:     r.Module,
		Search:     r.Search,
	}, nil
}

// List returns a page of audit events, newest first.
// GET /api/v1/governance/audit-events
func (h *AuditHandler) List(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req AuditListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}
	q, err := req.toQuery()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.service.Query(c.Request.Context(), actor, q, shared.PageRequest{Page: req.Page, PerPage: req.PerPage})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPaginatedResponse(*page))
}

// Archive exports the filtered events to object storage and returns a
// download link.
// POST /api/v1/governance/audit-events/archive
func (h *AuditHandler) Archive(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req AuditFilterRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BindError(c, err)
			return
		}
	}
	q, err := req.toQuery()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.Archive(c.Request.Context(), actor, requestMeta(c, actor), govapp.ArchiveRequest{Query: q})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}
