package governance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func auditEvent(action string, entityID uuid.UUID, projectID *uuid.UUID, after string) AuditEvent {
	ev := AuditEvent{
		ID:        uuid.New(),
		Action:    action,
		EntityID:  entityID,
		ProjectID: projectID,
		CreatedAt: time.Now().Add(-5 * 24 * time.Hour),
	}
	if after != "" {
		ev.After = json.RawMessage(after)
	}
	return ev
}

func TestCountBlocked_SingleChangeOrder(t *testing.T) {
	project := uuid.New()
	events := []AuditEvent{
		auditEvent("co.policy_blocked", uuid.New(), &project, `{"code":"policy.over_budget","amount":"10","threshold":"5"}`),
	}

	counts := CountBlocked(events)
	assert.Equal(t, int64(1), counts.ByKind[EntityKindChangeOrder])
	assert.Equal(t, int64(0), counts.ByKind[EntityKindCertificate])
	assert.Equal(t, int64(0), counts.ByKind[EntityKindPayment])
	assert.Equal(t, int64(1), counts.ByProject[project])
}

func TestCountBlocked_DualPathTakesMax(t *testing.T) {
	e1, e2, e3 := uuid.New(), uuid.New(), uuid.New()
	events := []AuditEvent{
		// action path only
		auditEvent("certificate.approval_blocked", e1, nil, `{"status":"blocked"}`),
		// payload path only, two entities
		auditEvent("certificate.updated", e2, nil, `{"code":"policy.threshold_exceeded"}`),
		auditEvent("certificate.updated", e3, nil, `{"code":"policy.over_budget"}`),
		// duplicates of the same entity count once
		auditEvent("certificate.updated", e3, nil, `{"code":"policy.over_budget"}`),
		// unrelated
		auditEvent("certificate.approved", uuid.New(), nil, `{"code":"other"}`),
		auditEvent("role.created", uuid.New(), nil, `{"code":"policy.over_budget"}`),
	}

	counts := CountBlocked(events)
	assert.Equal(t, int64(2), counts.ByKind[EntityKindCertificate])
	assert.Equal(t, int64(0), counts.ByKind[EntityKindChangeOrder])
}

func TestParsePolicyPayload(t *testing.T) {
	p := ParsePolicyPayload(json.RawMessage(`{"code":"policy.over_budget","amount":1250.5,"threshold":"10"}`))
	assert.Equal(t, "policy.over_budget", p.Code)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("1250.5")))
	assert.True(t, p.Threshold.Equal(decimal.NewFromInt(10)))

	empty := ParsePolicyPayload(nil)
	assert.Empty(t, empty.Code)
	assert.Nil(t, empty.Amount)

	broken := ParsePolicyPayload(json.RawMessage(`[1,2]`))
	assert.Empty(t, broken.Code)
}

func TestRankProjects(t *testing.T) {
	pct := decimal.NewFromInt(3)
	rows := []ProjectRisk{
		{ProjectName: "quiet"},
		{ProjectName: "pending", TotalPending: 7},
		{ProjectName: "awaiting", AwaitingDualApproval: 2, TotalPending: 2},
		{ProjectName: "blocked", BlockedByPolicy: 1},
		{ProjectName: "over budget", OverBudgetPercent: &pct},
	}
	for i := range rows {
		rows[i].ProjectID = uuid.New()
	}

	ranked := RankProjects(rows, 3)
	names := make([]string, 0, len(ranked))
	for _, r := range ranked {
		names = append(names, r.ProjectName)
	}
	assert.Equal(t, []string{"blocked", "awaiting", "pending"}, names)

	all := RankProjects(rows, 10)
	assert.Len(t, all, 4, "rows without any risk indicator are dropped")
}

func TestPermissionGranted(t *testing.T) {
	assert.True(t, PermissionGranted([]string{"co.approve"}, "co.approve"))
	assert.True(t, PermissionGranted([]string{"co.*"}, "co.approve"))
	assert.True(t, PermissionGranted([]string{"*"}, "policy.update"))
	assert.False(t, PermissionGranted([]string{"co.*"}, "contract.approve"))
	assert.False(t, PermissionGranted(nil, "audit.view"))
}
