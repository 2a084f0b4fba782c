package router

import (
	"github.com/costgov/backend/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// GovernanceHandlers are the handlers served under /governance
type GovernanceHandlers struct {
	Approval   *handler.ApprovalHandler
	Audit      *handler.AuditHandler
	CostPolicy *handler.CostPolicyHandler
	Overview   *handler.OverviewHandler
}

// NewGovernanceRoutes builds the governance route group. idempotency wraps
// every mutation.
func NewGovernanceRoutes(h GovernanceHandlers, idempotency gin.HandlerFunc) *DomainGroup {
	g := NewDomainGroup("governance", "/governance")

	g.GET("/audit-events", h.Audit.List)
	g.POST("/audit-events/archive", idempotency, h.Audit.Archive)

	g.GET("/cost-policy", h.CostPolicy.Get)
	g.PUT("/cost-policy", idempotency, h.CostPolicy.Update)

	g.GET("/overview", h.Overview.Get)

	g.POST("/:entity/:id/submit", idempotency, h.Approval.Submit)
	g.POST("/:entity/:id/approve", idempotency, h.Approval.Approve)
	g.POST("/:entity/:id/reject", idempotency, h.Approval.Reject)

	return g
}

// NewSystemRoutes builds the system route group
func NewSystemRoutes(h *handler.SystemHandler) *DomainGroup {
	g := NewDomainGroup("system", "/system")
	g.GET("/info", h.GetSystemInfo)
	return g
}
