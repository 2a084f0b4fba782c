package handler

import (
	"context"

	govapp "github.com/costgov/backend/internal/application/governance"
	"github.com/costgov/backend/internal/domain/governance"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PolicyService is the policy store used by CostPolicyHandler
type PolicyService interface {
	GetPolicy(ctx context.Context, actor governance.Actor) (*govapp.PolicyResponse, error)
	UpsertPolicy(ctx context.Context, actor governance.Actor, meta governance.RequestMeta, update governance.CostPolicyUpdate) (*govapp.PolicyResponse, error)
}

// CostPolicyHandler serves the tenant cost policy
type CostPolicyHandler struct {
	BaseHandler
	service PolicyService
}

// NewCostPolicyHandler creates a new CostPolicyHandler
func NewCostPolicyHandler(service PolicyService) *CostPolicyHandler {
	return &CostPolicyHandler{service: service}
}

// UpdateCostPolicyRequest replaces every threshold. A null or missing
// field disables that rule.
type UpdateCostPolicyRequest struct {
	CODualThresholdAmount          *decimal.Decimal `json:"co_dual_threshold_amount"`
	CertificateDualThresholdAmount *decimal.Decimal `json:"certificate_dual_threshold_amount"`
	PaymentDualThresholdAmount     *decimal.Decimal `json:"payment_dual_threshold_amount"`
	OverBudgetThresholdPercent     *decimal.Decimal `json:"over_budget_threshold_percent"`
}

// Get returns the effective policy, defaults included.
// GET /api/v1/governance/cost-policy
func (h *CostPolicyHandler) Get(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	policy, err := h.service.GetPolicy(c.Request.Context(), actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, policy)
}

// Update replaces the tenant policy and records policy.updated.
// PUT /api/v1/governance/cost-policy
func (h *CostPolicyHandler) Update(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req UpdateCostPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	policy, err := h.service.UpsertPolicy(c.Request.Context(), actor, requestMeta(c, actor), governance.CostPolicyUpdate{
		CODualThresholdAmount:          req.CODualThresholdAmount,
		CertificateDualThresholdAmount: req.CertificateDualThresholdAmount,
		PaymentDualThresholdAmount:     req.PaymentDualThresholdAmount,
		OverBudgetThresholdPercent:     req.OverBudgetThresholdPercent,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, policy)
}
