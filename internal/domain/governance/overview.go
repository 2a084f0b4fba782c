package governance

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntitySummary is the overview rollup of one approvable kind
type EntitySummary struct {
	Total                int64 `json:"total"`
	PendingApproval      int64 `json:"pending_approval"`
	AwaitingDualApproval int64 `json:"awaiting_dual_approval"`
	BlockedByPolicy      int64 `json:"blocked_by_policy"`
}

// ProjectRisk is one row of the top projects by risk list
type ProjectRisk struct {
	ProjectID            uuid.UUID        `json:"project_id"`
	ProjectName          string           `json:"project_name"`
	TotalPending         int64            `json:"total_pending"`
	AwaitingDualApproval int64            `json:"awaiting_dual_approval"`
	BlockedByPolicy      int64            `json:"blocked_by_policy"`
	OverBudgetPercent    *decimal.Decimal `json:"over_budget_percent"`
}

// HasRisk reports whether any risk indicator is set
func (p ProjectRisk) HasRisk() bool {
	if p.TotalPending > 0 || p.AwaitingDualApproval > 0 || p.BlockedByPolicy > 0 {
		return true
	}
	return p.OverBudgetPercent != nil && p.OverBudgetPercent.IsPositive()
}

// PolicyEventView is a blocked ledger event prepared for the dashboard
type PolicyEventView struct {
	ID          uuid.UUID        `json:"id"`
	Action      string           `json:"action"`
	EntityType  string           `json:"entity_type"`
	EntityID    uuid.UUID        `json:"entity_id"`
	ProjectID   *uuid.UUID       `json:"project_id"`
	ProjectName string           `json:"project_name"`
	Code        string           `json:"code"`
	Amount      *decimal.Decimal `json:"amount"`
	Threshold   *decimal.Decimal `json:"threshold"`
	ActorID     uuid.UUID        `json:"actor_id"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Overview is the governance dashboard payload
type Overview struct {
	Summary            map[string]EntitySummary `json:"summary"`
	TopProjectsByRisk  []ProjectRisk            `json:"top_projects_by_risk"`
	RecentPolicyEvents []PolicyEventView        `json:"recent_policy_events"`
}

// PolicyPayload is the part of a blocked event's after snapshot read by dashboards
type PolicyPayload struct {
	Code      string
	Amount    *decimal.Decimal
	Threshold *decimal.Decimal
}

// PolicyMarkerCodes are the payload codes that flag a policy block
func PolicyMarkerCodes() []string {
	return []string{PolicyCodeThresholdExceeded, PolicyCodeOverBudget}
}

// ParsePolicyPayload extracts code, amount and threshold from a snapshot.
// Amounts may be JSON numbers or numeric strings.
func ParsePolicyPayload(raw json.RawMessage) PolicyPayload {
	var out PolicyPayload
	if len(raw) == 0 {
		return out
	}
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return out
	}
	if code, ok := fields["code"].(string); ok {
		out.Code = code
	}
	out.Amount = decimalField(fields["amount"])
	out.Threshold = decimalField(fields["threshold"])
	return out
}

func decimalField(v any) *decimal.Decimal {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = t
	default:
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// kindOfAction returns the approvable kind whose namespace contains action
func kindOfAction(action string) (EntityKind, bool) {
	for _, k := range AllEntityKinds() {
		if strings.HasPrefix(action, k.ActionPrefix()+".") {
			return k, true
		}
	}
	return "", false
}

func isBlockedAction(kind EntityKind, action string) bool {
	for _, verb := range BlockedVerbs() {
		if action == kind.Action(verb) {
			return true
		}
	}
	return false
}

func isMarkerCode(code string) bool {
	for _, c := range PolicyMarkerCodes() {
		if code == c {
			return true
		}
	}
	return false
}

// policyEventMatch classifies an event against both detection paths
func policyEventMatch(ev *AuditEvent) (kind EntityKind, byAction, byCode bool) {
	kind, ok := kindOfAction(ev.Action)
	if !ok {
		return "", false, false
	}
	byAction = isBlockedAction(kind, ev.Action)
	byCode = isMarkerCode(ParsePolicyPayload(ev.After).Code)
	return kind, byAction, byCode
}

// IsPolicyEvent reports whether either detection path flags the event
func IsPolicyEvent(ev *AuditEvent) bool {
	_, byAction, byCode := policyEventMatch(ev)
	return byAction || byCode
}

type blockedSets struct {
	byAction map[uuid.UUID]struct{}
	byCode   map[uuid.UUID]struct{}
}

func (s *blockedSets) add(entityID uuid.UUID, byAction, byCode bool) {
	if byAction {
		s.byAction[entityID] = struct{}{}
	}
	if byCode {
		s.byCode[entityID] = struct{}{}
	}
}

func (s *blockedSets) count() int64 {
	return int64(max(len(s.byAction), len(s.byCode)))
}

func newBlockedSets() *blockedSets {
	return &blockedSets{byAction: map[uuid.UUID]struct{}{}, byCode: map[uuid.UUID]struct{}{}}
}

// BlockedCounts holds distinct blocked entity counts per kind and per project
type BlockedCounts struct {
	ByKind    map[EntityKind]int64
	ByProject map[uuid.UUID]int64
}

// CountBlocked counts distinct blocked entities. The action-name path and
// the payload-code path are counted independently and the larger count wins.
func CountBlocked(events []AuditEvent) BlockedCounts {
	kinds := map[EntityKind]*blockedSets{}
	projects := map[uuid.UUID]*blockedSets{}

	for i := range events {
		ev := &events[i]
		kind, byAction, byCode := policyEventMatch(ev)
		if !byAction && !byCode {
			continue
		}
		if kinds[kind] == nil {
			kinds[kind] = newBlockedSets()
		}
		kinds[kind].add(ev.EntityID, byAction, byCode)

		if ev.ProjectID != nil {
			if projects[*ev.ProjectID] == nil {
				projects[*ev.ProjectID] = newBlockedSets()
			}
			projects[*ev.ProjectID].add(ev.EntityID, byAction, byCode)
		}
	}

	out := BlockedCounts{
		ByKind:    make(map[EntityKind]int64, len(AllEntityKinds())),
		ByProject: make(map[uuid.UUID]int64, len(projects)),
	}
	for _, k := range AllEntityKinds() {
		if s, ok := kinds[k]; ok {
			out.ByKind[k] = s.count()
		} else {
			out.ByKind[k] = 0
		}
	}
	for id, s := range projects {
		out.ByProject[id] = s.count()
	}
	return out
}

// NewPolicyEventView builds the dashboard view of a blocked event
func NewPolicyEventView(ev *AuditEvent, projectName string) PolicyEventView {
	payload := ParsePolicyPayload(ev.After)
	return PolicyEventView{
		ID:          ev.ID,
		Action:      ev.Action,
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		ProjectID:   ev.ProjectID,
		ProjectName: projectName,
		Code:        payload.Code,
		Amount:      payload.Amount,
		Threshold:   payload.Threshold,
		ActorID:     ev.ActorID,
		CreatedAt:   ev.CreatedAt,
	}
}

// RankProjects drops rows without risk, sorts by blocked, awaiting dual
// approval and pending counts (all descending) and keeps the first limit rows
func RankProjects(rows []ProjectRisk, limit int) []ProjectRisk {
	out := make([]ProjectRisk, 0, len(rows))
	for _, r := range rows {
		if r.HasRisk() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.BlockedByPolicy != b.BlockedByPolicy {
			return a.BlockedByPolicy > b.BlockedByPolicy
		}
		if a.AwaitingDualApproval != b.AwaitingDualApproval {
			return a.AwaitingDualApproval > b.AwaitingDualApproval
		}
		if a.TotalPending != b.TotalPending {
			return a.TotalPending > b.TotalPending
		}
		return a.ProjectID.String() < b.ProjectID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
