package handler

import (
	"context"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/gin-gonic/gin"
)

// OverviewService is the governance aggregator used by OverviewHandler
type OverviewService interface {
	Overview(ctx context.Context, actor governance.Actor) (*governance.Overview, error)
}

// OverviewHandler serves the governance dashboard
type OverviewHandler struct {
	BaseHandler
	service OverviewService
}

// NewOverviewHandler creates a new OverviewHandler
func NewOverviewHandler(service OverviewService) *OverviewHandler {
	return &OverviewHandler{service: service}
}

// Get returns pending approvals, blocked counts and the top risk projects.
// GET /api/v1/governance/overview
func (h *OverviewHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	overview, err := h.service.Overview(c.Request.Context(), actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, overview)
}
