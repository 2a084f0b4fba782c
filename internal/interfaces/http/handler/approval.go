package handler

import (
	"context"

	govapp "github.com/costgov/backend/internal/application/governance"
	"github.com/costgov/backend/internal/domain/governance"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ApprovalService is the approval state machine used by ApprovalHandler
type ApprovalService interface {
	Submit(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, kind governance.EntityKind, id uuid.UUID) (*govapp.ApprovalResult, error)
	Approve(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, kind governance.EntityKind, id uuid.UUID) (*govapp.ApprovalResult, error)
	Reject(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, kind governance.EntityKind, id uuid.UUID, reason string) (*govapp.ApprovalResult, error)
}

// ApprovalHandler drives change orders, certificates and payments through
// submit, approve and reject
type ApprovalHandler struct {
	BaseHandler
	service ApprovalService
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(service ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// RejectRequest is the body of a reject call
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

type approvalTarget struct {
	actor governance.Actor
	kind  governance.EntityKind
	id    uuid.UUID
}

func (h *ApprovalHandler) target(c *gin.Context) (approvalTarget, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return approvalTarget{}, false
	}
	kind, ok := governance.ParseEntityKind(c.Param("entity"))
	if !ok {
		h.BadRequest(c, "Unknown entity type: "+c.Param("entity"))
		return approvalTarget{}, false
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return approvalTarget{}, false
	}
	return approvalTarget{actor: actor, kind: kind, id: id}, true
}

// Submit evaluates the cost policy and moves the entity to proposed, or
// blocked when the policy blocks it.
// POST /api/v1/governance/:entity/:id/submit
func (h *ApprovalHandler) Submit(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	result, err := h.service.Submit(c.Request.Context(), t.actor, requestMeta(c, t.actor), t.kind, t.id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Approve records an approval, the first of two when dual approval applies.
// POST /api/v1/governance/:entity/:id/approve
func (h *ApprovalHandler) Approve(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	result, err := h.service.Approve(c.Request.Context(), t.actor, requestMeta(c, t.actor), t.kind, t.id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Reject ends the approval flow.
// POST /api/v1/governance/:entity/:id/reject
func (h *ApprovalHandler) Reject(c *gin.Context) {
	t, ok := h.target(c)
	if !ok {
		return
	}
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.service.Reject(c.Request.Context(), t.actor, requestMeta(c, t.actor), t.kind, t.id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
