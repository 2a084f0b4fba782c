package governance

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type approvalFixture struct {
	svc      *ApprovalService
	repo     *fakeApprovableRepo
	audit    *fakeAuditRepo
	scope    *fakeScope
	finance  *mockFinanceReader
	metrics  *recordingMetrics
	tenantID uuid.UUID
	project  uuid.UUID
}

func newApprovalFixture(t *testing.T, policy *governance.CostPolicy, gate governance.AuthorizationGate) *approvalFixture {
	t.Helper()
	f := &approvalFixture{
		repo:     newFakeApprovableRepo(),
		audit:    &fakeAuditRepo{},
		finance:  new(mockFinanceReader),
		metrics:  &recordingMetrics{},
		tenantID: uuid.New(),
		project:  uuid.New(),
	}
	f.scope = &fakeScope{approvables: f.repo, audit: f.audit}
	f.svc = NewApprovalService(f.scope, staticPolicies{policy: policy}, f.finance, gate,
		WithApprovalLogger(zaptest.NewLogger(t)),
		WithApprovalMetrics(f.metrics))
	return f
}

func (f *approvalFixture) seed(kind governance.EntityKind, amount string) governance.ApprovableEntity {
	e := newDraft(f.tenantID, f.project, kind, amount)
	f.repo.put(e)
	return e
}

func TestApprovalService_Submit_Allow(t *testing.T) {
	f := newApprovalFixture(t, nil, allowAll)
	e := f.seed(governance.EntityKindChangeOrder, "5000")
	actor := newActor(f.tenantID)

	res, err := f.svc.Submit(context.Background(), actor, testMeta(actor), governance.EntityKindChangeOrder, e.ID)
	require.NoError(t, err)

	assert.Equal(t, governance.StatusProposed, res.Status)
	assert.False(t, res.RequiresDualApproval)
	assert.Equal(t, governance.DecisionAllow, res.Decision)
	assert.Equal(t, 2, res.Version)
	assert.Equal(t, []string{"co.submitted"}, f.audit.actions())

	ev := f.audit.last()
	assert.Equal(t, actor.ID, ev.ActorID)
	assert.Equal(t, "change_order", ev.EntityType)
	assert.Equal(t, e.ID, ev.EntityID)
	require.NotNil(t, ev.ProjectID)
	assert.Equal(t, f.project, *ev.ProjectID)
	assert.Equal(t, "10.0.0.1", ev.IP)
	assert.Equal(t, "go-test", ev.UserAgent)
	assert.JSONEq(t, `"draft"`, string(mustField(t, ev.Before, "status")))
	assert.JSONEq(t, `"proposed"`, string(mustField(t, ev.After, "status")))

	assert.Equal(t, []string{"change_order:allow"}, f.metrics.decisions)
	f.finance.AssertNotCalled(t, "BudgetContexts", mock.Anything, mock.Anything, mock.Anything)
}

func TestApprovalService_Submit_RequiresDualApproval(t *testing.T) {
	policy := &governance.CostPolicy{PaymentDualThresholdAmount: dec("10000")}
	f := newApprovalFixture(t, policy, allowAll)

	above := f.seed(governance.EntityKindPayment, "10000.01")
	equal := f.seed(governance.EntityKindPayment, "10000")
	actor := newActor(f.tenantID)
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, actor, testMeta(actor), governance.EntityKindPayment, above.ID)
	require.NoError(t, err)
	assert.True(t, res.RequiresDualApproval)
	assert.Equal(t, governance.DecisionRequireDualApproval, res.Decision)

	res, err = f.svc.Submit(ctx, actor, testMeta(actor), governance.EntityKindPayment, equal.ID)
	require.NoError(t, err)
	assert.False(t, res.RequiresDualApproval, "amount equal to the threshold does not escalate")

	assert.Equal(t, []string{"payment.submitted", "payment.submitted"}, f.audit.actions())
}

// a certificate on a project 15% over budget with a 10% limit
func TestApprovalService_Submit_OverBudgetBlocks(t *testing.T) {
	policy := &governance.CostPolicy{
		OverBudgetThresholdPercent:     dec("10"),
		CertificateDualThresholdAmount: dec("1"),
	}
	f := newApprovalFixture(t, policy, allowAll)
	e := f.seed(governance.EntityKindCertificate, "250000")
	actor := newActor(f.tenantID)

	f.finance.On("BudgetContexts", mock.Anything, f.tenantID, []uuid.UUID{f.project}).
		Return(map[uuid.UUID]*governance.BudgetContext{
			f.project: {
				ProjectID:     f.project,
				ContractTotal: decimal.RequireFromString("1150000"),
				BudgetTotal:   decimal.RequireFromString("1000000"),
			},
		}, nil)

	res, err := f.svc.Submit(context.Background(), actor, testMeta(actor), governance.EntityKindCertificate, e.ID)
	require.NoError(t, err)

	assert.Equal(t, governance.StatusBlocked, res.Status)
	assert.Equal(t, governance.DecisionBlock, res.Decision)
	assert.Equal(t, governance.PolicyCodeOverBudget, res.PolicyCode)
	assert.False(t, res.RequiresDualApproval, "block takes precedence over dual approval")
	assert.Equal(t, governance.StatusBlocked, f.repo.get(e.ID).Status)

	assert.Equal(t, []string{"certificate.submitted", "certificate.policy_blocked"}, f.audit.actions())
	payload := governance.ParsePolicyPayload(f.audit.last().After)
	assert.Equal(t, "policy.over_budget", payload.Code)
	require.NotNil(t, payload.Amount)
	assert.True(t, payload.Amount.Equal(decimal.RequireFromString("250000")))
	require.NotNil(t, payload.Threshold)
	assert.True(t, payload.Threshold.Equal(decimal.RequireFromString("10")))
	assert.JSONEq(t, `"15"`, string(mustField(t, f.audit.last().After, "over_budget_percent")))

	_, err = f.svc.Approve(context.Background(), actor, testMeta(actor), governance.EntityKindCertificate, e.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState, "blocked is terminal")
}

func TestApprovalService_Submit_NoBudgetSkipsBlocking(t *testing.T) {
	policy := &governance.CostPolicy{OverBudgetThresholdPercent: dec("0")}
	f := newApprovalFixture(t, policy, allowAll)
	e := f.seed(governance.EntityKindChangeOrder, "100")
	actor := newActor(f.tenantID)

	f.finance.On("BudgetContexts", mock.Anything, f.tenantID, []uuid.UUID{f.project}).
		Return(map[uuid.UUID]*governance.BudgetContext{}, nil)

	res, err := f.svc.Submit(context.Background(), actor, testMeta(actor), governance.EntityKindChangeOrder, e.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusProposed, res.Status)
}

// dual approval with segregation of duties
func TestApprovalService_DualApproval(t *testing.T) {
	policy := &governance.CostPolicy{CODualThresholdAmount: dec("50000")}
	f := newApprovalFixture(t, policy, allowAll)
	e := f.seed(governance.EntityKindChangeOrder, "75000")
	submitter := newActor(f.tenantID)
	first := newActor(f.tenantID)
	second := newActor(f.tenantID)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, submitter, testMeta(submitter), governance.EntityKindChangeOrder, e.ID)
	require.NoError(t, err)

	res, err := f.svc.Approve(ctx, first, testMeta(first), governance.EntityKindChangeOrder, e.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusFirstApproved, res.Status)
	require.NotNil(t, res.FirstApprovedBy)
	assert.Equal(t, first.ID, *res.FirstApprovedBy)

	_, err = f.svc.Approve(ctx, first, testMeta(first), governance.EntityKindChangeOrder, e.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrSameApprover)
	assert.Equal(t, governance.StatusFirstApproved, f.repo.get(e.ID).Status, "same approver changes nothing")
	assert.Equal(t, 3, f.repo.get(e.ID).Version)

	res, err = f.svc.Approve(ctx, second, testMeta(second), governance.EntityKindChangeOrder, e.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusApproved, res.Status)
	require.NotNil(t, res.SecondApprovedBy)
	assert.Equal(t, second.ID, *res.SecondApprovedBy)
	assert.NotEqual(t, *res.FirstApprovedBy, *res.SecondApprovedBy)

	_, err = f.svc.Approve(ctx, first, testMeta(first), governance.EntityKindChangeOrder, e.ID)
	assert.ErrorIs(t, err, shared.ErrSameApprover, "first approver is refused after approval")
	assert.Equal(t, governance.StatusApproved, f.repo.get(e.ID).Status)
	assert.Equal(t, 4, f.repo.get(e.ID).Version)

	assert.Equal(t, []string{"co.submitted", "co.first_approved", "co.approved"}, f.audit.actions())
	assert.Equal(t, []string{"co.submitted", "co.first_approved", "co.approved"}, f.metrics.transitions)
}

func TestApprovalService_SingleApproval(t *testing.T) {
	f := newApprovalFixture(t, nil, allowAll)
	e := f.seed(governance.EntityKindPayment, "100")
	actor := newActor(f.tenantID)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, actor, testMeta(actor), governance.EntityKindPayment, e.ID)
	require.NoError(t, err)
	res, err := f.svc.Approve(ctx, actor, testMeta(actor), governance.EntityKindPayment, e.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusApproved, res.Status)
	assert.Equal(t, []string{"payment.submitted", "payment.approved"}, f.audit.actions())
}

func TestApprovalService_Reject(t *testing.T) {
	f := newApprovalFixture(t, nil, allowAll)
	e := f.seed(governance.EntityKindChangeOrder, "100")
	actor := newActor(f.tenantID)
	ctx := context.Background()

	_, err := f.svc.Reject(ctx, actor, testMeta(actor), governance.EntityKindChangeOrder, e.ID, "scope")
	assert.ErrorIs(t, err, shared.ErrInvalidState, "drafts cannot be rejected")

	_, err = f.svc.Submit(ctx, actor, testMeta(actor), governance.EntityKindChangeOrder, e.ID)
	require.NoError(t, err)
	res, err := f.svc.Reject(ctx, actor, testMeta(actor), governance.EntityKindChangeOrder, e.ID, "duplicate of CO-12")
	require.NoError(t, err)
	assert.Equal(t, governance.StatusRejected, res.Status)
	assert.Equal(t, "co.rejected", f.audit.last().Action)
	assert.JSONEq(t, `"duplicate of CO-12"`, string(mustField(t, f.audit.last().After, "reason")))
}

func TestApprovalService_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("forbidden", func(t *testing.T) {
		f := newApprovalFixture(t, nil, denyAll)
		e := f.seed(governance.EntityKindChangeOrder, "1")
		actor := newActor(f.tenantID)
		_, err := f.svc.Submit(ctx, actor, testMeta(actor), governance.EntityKindChangeOrder, e.ID)
		assert.ErrorIs(t, err, shared.ErrForbidden)
		assert.Equal(t, 0, f.scope.calls)
	})

	t.Run("permission is per kind and operation", func(t *testing.T) {
		var asked []string
		gate := governance.AuthorizationGateFunc(func(_ governance.Actor, p string) bool {
			asked = append(asked, p)
			return true
		})
		f := newApprovalFixture(t, nil, gate)
		e := f.seed(governance.EntityKindCertificate, "1")
		actor := newActor(f.tenantID)
		_, err := f.svc.Submit(ctx, actor, testMeta(actor), governance.EntityKindCertificate, e.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"certificate.submit"}, asked)
	})

	t.Run("not found in other tenant", func(t *testing.T) {
		f := newApprovalFixture(t, nil, allowAll)
		e := f.seed(governance.EntityKindChangeOrder, "1")
		outsider := newActor(uuid.New())
		_, err := f.svc.Submit(ctx, outsider, testMeta(outsider), governance.EntityKindChangeOrder, e.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("ledger failure aborts the mutation", func(t *testing.T) {
		f := newApprovalFixture(t, nil, allowAll)
		e := f.seed(governance.EntityKindChangeOrder, "1")
		f.audit.appendErr = errDatabaseDown
		actor := newActor(f.tenantID)
		_, err := f.svc.Submit(ctx, actor, testMeta(actor), governance.EntityKindChangeOrder, e.ID)
		assert.ErrorIs(t, err, errDatabaseDown)
		assert.Empty(t, f.metrics.transitions)
	})

	t.Run("stale state", func(t *testing.T) {
		tenantID := uuid.New()
		e := newDraft(tenantID, uuid.New(), governance.EntityKindChangeOrder, "1")
		repo := new(mockApprovableRepo)
		repo.On("FindByIDForTenant", mock.Anything, governance.EntityKindChangeOrder, tenantID, e.ID).Return(&e, nil)
		repo.On("SaveWithLock", mock.Anything, mock.Anything).Return(shared.ErrStaleState)
		audit := &fakeAuditRepo{}

		svc := NewApprovalService(&fakeScope{approvables: repo, audit: audit}, staticPolicies{}, new(mockFinanceReader), allowAll)
		actor := newActor(tenantID)
		_, err := svc.Submit(ctx, actor, testMeta(actor), governance.EntityKindChangeOrder, e.ID)
		assert.ErrorIs(t, err, shared.ErrStaleState)
		assert.True(t, shared.IsRetryable(err))
		assert.Empty(t, audit.actions())
		repo.AssertExpectations(t)
	})

	t.Run("policy load failure", func(t *testing.T) {
		f := newApprovalFixture(t, nil, allowAll)
		f.svc.policies = staticPolicies{err: errDatabaseDown}
		e := f.seed(governance.EntityKindChangeOrder, "1")
		actor := newActor(f.tenantID)
		_, err := f.svc.Submit(ctx, actor, testMeta(actor), governance.EntityKindChangeOrder, e.ID)
		assert.ErrorIs(t, err, errDatabaseDown)
		assert.Equal(t, governance.StatusDraft, f.repo.get(e.ID).Status)
	})
}

func mustField(t *testing.T, raw json.RawMessage, field string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	v, ok := fields[field]
	require.True(t, ok, "field %s missing in %s", field, raw)
	return v
}
