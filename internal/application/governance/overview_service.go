package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/google/uuid"
)

// OverviewConfig sizes the governance dashboard
type OverviewConfig struct {
	RiskWindow        time.Duration
	TopProjectsLimit  int
	RecentEventsLimit int
}

// DefaultOverviewConfig returns the default dashboard sizes
func DefaultOverviewConfig() OverviewConfig {
	return OverviewConfig{
		RiskWindow:        30 * 24 * time.Hour,
		TopProjectsLimit:  10,
		RecentEventsLimit: 20,
	}
}

// OverviewService builds the read-only governance dashboard
type OverviewService struct {
	stats   governance.ApprovableStatsReader
	audit   governance.AuditEventRepository
	finance governance.ProjectFinanceReader
	gate    governance.AuthorizationGate
	cfg     OverviewConfig
	now     func() time.Time
}

// NewOverviewService creates a new OverviewService. Zero config values use
// the defaults.
func NewOverviewService(
	stats governance.ApprovableStatsReader,
	audit governance.AuditEventRepository,
	finance governance.ProjectFinanceReader,
	gate governance.AuthorizationGate,
	cfg OverviewConfig,
) *OverviewService {
	def := DefaultOverviewConfig()
	if cfg.RiskWindow <= 0 {
		cfg.RiskWindow = def.RiskWindow
	}
	if cfg.TopProjectsLimit <= 0 {
		cfg.TopProjectsLimit = def.TopProjectsLimit
	}
	if cfg.RecentEventsLimit <= 0 {
		cfg.RecentEventsLimit = def.RecentEventsLimit
	}
	return &OverviewService{
		stats:   stats,
		audit:   audit,
		finance: finance,
		gate:    gate,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Overview returns the summary per kind, the riskiest projects and the
// latest policy blocks of the actor's tenant
func (s *OverviewService) Overview(ctx context.Context, actor governance.Actor) (*governance.Overview, error) {
	if err := authorize(s.gate, actor, governance.PermissionOverviewView); err != nil {
		return nil, err
	}
	tenantID := actor.TenantID
	since := s.now().UTC().Add(-s.cfg.RiskWindow)

	candidates, err := s.audit.FindPolicyCandidates(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("load policy events: %w", err)
	}
	policyEvents := make([]governance.AuditEvent, 0, len(candidates))
	for i := range candidates {
		if governance.IsPolicyEvent(&candidates[i]) {
			policyEvents = append(policyEvents, candidates[i])
		}
	}
	blocked := governance.CountBlocked(policyEvents)

	overview := &governance.Overview{
		Summary: make(map[string]governance.EntitySummary, len(governance.AllEntityKinds())),
	}
	projects := map[uuid.UUID]*governance.ProjectRisk{}
	project := func(id uuid.UUID) *governance.ProjectRisk {
		p, ok := projects[id]
		if !ok {
			p = &governance.ProjectRisk{ProjectID: id}
			projects[id] = p
		}
		return p
	}

	for _, kind := range governance.AllEntityKinds() {
		counts, err := s.stats.StatusCounts(ctx, kind, tenantID)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		overview.Summary[kind.SummaryKey()] = governance.EntitySummary{
			Total:                counts.Total,
			PendingApproval:      counts.PendingApproval,
			AwaitingDualApproval: counts.AwaitingDualApproval,
			BlockedByPolicy:      blocked.ByKind[kind],
		}

		pending, err := s.stats.PendingByProject(ctx, kind, tenantID)
		if err != nil {
			return nil, fmt.Errorf("count pending %s by project: %w", kind, err)
		}
		for _, row := range pending {
			p := project(row.ProjectID)
			p.TotalPending += row.PendingApproval
			p.AwaitingDualApproval += row.AwaitingDualApproval
		}
	}
	for id, n := range blocked.ByProject {
		project(id).BlockedByPolicy = n
	}
	// over budget alone is a risk, so every budgeted project is a candidate
	budgeted, err := s.finance.BudgetedProjects(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list budgeted projects: %w", err)
	}
	for _, id := range budgeted {
		project(id)
	}

	recent := policyEvents
	if len(recent) > s.cfg.RecentEventsLimit {
		recent = recent[:s.cfg.RecentEventsLimit]
	}

	ids := make([]uuid.UUID, 0, len(projects)+len(recent))
	for id := range projects {
		ids = append(ids, id)
	}
	for i := range recent {
		if pid := recent[i].ProjectID; pid != nil {
			if _, ok := projects[*pid]; !ok {
				ids = append(ids, *pid)
			}
		}
	}

	var names map[uuid.UUID]string
	if len(ids) > 0 {
		budgets, err := s.finance.BudgetContexts(ctx, tenantID, ids)
		if err != nil {
			return nil, fmt.Errorf("load budget contexts: %w", err)
		}
		for id, p := range projects {
			p.OverBudgetPercent = budgets[id].OverBudgetPercent()
		}
		names, err = s.finance.ProjectNames(ctx, tenantID, ids)
		if err != nil {
			return nil, fmt.Errorf("load project names: %w", err)
		}
	}

	rows := make([]governance.ProjectRisk, 0, len(projects))
	for id, p := range projects {
		p.ProjectName = names[id]
		rows = append(rows, *p)
	}
	overview.TopProjectsByRisk = governance.RankProjects(rows, s.cfg.TopProjectsLimit)

	overview.RecentPolicyEvents = make([]governance.PolicyEventView, 0, len(recent))
	for i := range recent {
		name := ""
		if pid := recent[i].ProjectID; pid != nil {
			name = names[*pid]
		}
		overview.RecentPolicyEvents = append(overview.RecentPolicyEvents, governance.NewPolicyEventView(&recent[i], name))
	}
	return overview, nil
}
