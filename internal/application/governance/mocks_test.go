package governance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

var (
	allowAll = governance.AuthorizationGateFunc(func(governance.Actor, string) bool { return true })
	denyAll  = governance.AuthorizationGateFunc(func(governance.Actor, string) bool { return false })
)

func newActor(tenantID uuid.UUID) governance.Actor {
	return governance.Actor{ID: uuid.New(), TenantID: tenantID}
}

func testMeta(actor governance.Actor) governance.RequestMeta {
	return governance.RequestMeta{ActorID: actor.ID, IP: "10.0.0.1", UserAgent: "go-test"}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// fakeAuditRepo is an in-memory ledger
type fakeAuditRepo struct {
	mu        sync.Mutex
	events    []governance.AuditEvent
	appendErr error
}

func (r *fakeAuditRepo) Append(_ context.Context, ev *governance.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	ev.Seq = int64(len(r.events) + 1)
	r.events = append(r.events, *ev)
	return nil
}

func (r *fakeAuditRepo) Query(_ context.Context, filter governance.AuditFilter, page shared.PageRequest) ([]governance.AuditEvent, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []governance.AuditEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].TenantID == filter.TenantID {
			out = append(out, r.events[i])
		}
	}
	total := int64(len(out))
	start := min(page.Offset(), len(out))
	end := min(start+page.PerPage, len(out))
	return out[start:end], total, nil
}

func (r *fakeAuditRepo) Each(_ context.Context, filter governance.AuditFilter, fn func(*governance.AuditEvent) error) error {
	r.mu.Lock()
	events := append([]governance.AuditEvent(nil), r.events...)
	r.mu.Unlock()
	for i := range events {
		if events[i].TenantID != filter.TenantID {
			continue
		}
		if filter.Module != "" && !filter.Module.Matches(events[i].Action) {
			continue
		}
		if err := fn(&events[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAuditRepo) FindPolicyCandidates(_ context.Context, tenantID uuid.UUID, since time.Time) ([]governance.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []governance.AuditEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		ev := r.events[i]
		if ev.TenantID == tenantID && !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Action
	}
	return out
}

func (r *fakeAuditRepo) last() governance.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// fakeApprovableRepo stores entities by id and enforces the version check
type fakeApprovableRepo struct {
	mu       sync.Mutex
	entities map[uuid.UUID]governance.ApprovableEntity
}

func newFakeApprovableRepo() *fakeApprovableRepo {
	return &fakeApprovableRepo{entities: map[uuid.UUID]governance.ApprovableEntity{}}
}

func (r *fakeApprovableRepo) put(e governance.ApprovableEntity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.ID] = e
}

func (r *fakeApprovableRepo) get(id uuid.UUID) governance.ApprovableEntity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entities[id]
}

func (r *fakeApprovableRepo) FindByIDForTenant(_ context.Context, kind governance.EntityKind, tenantID, id uuid.UUID) (*governance.ApprovableEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok || e.TenantID != tenantID || e.Kind != kind {
		return nil, nil
	}
	return &e, nil
}

func (r *fakeApprovableRepo) SaveWithLock(_ context.Context, e *governance.ApprovableEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.entities[e.ID]
	if !ok || stored.Version != e.Version-1 {
		return shared.ErrStaleState
	}
	saved := *e
	saved.ClearDomainEvents()
	r.entities[e.ID] = saved
	return nil
}

func newDraft(tenantID, projectID uuid.UUID, kind governance.EntityKind, amount string) governance.ApprovableEntity {
	e := governance.ApprovableEntity{
		Kind:      kind,
		ProjectID: projectID,
		Amount:    decimal.RequireFromString(amount),
		Status:    governance.StatusDraft,
	}
	e.ID = uuid.New()
	e.TenantID = tenantID
	e.Version = 1
	return e
}

// mockApprovableRepo is a testify mock for error paths
type mockApprovableRepo struct {
	mock.Mock
}

func (m *mockApprovableRepo) FindByIDForTenant(ctx context.Context, kind governance.EntityKind, tenantID, id uuid.UUID) (*governance.ApprovableEntity, error) {
	args := m.Called(ctx, kind, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*governance.ApprovableEntity), args.Error(1)
}

func (m *mockApprovableRepo) SaveWithLock(ctx context.Context, e *governance.ApprovableEntity) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// mockPolicyRepo is a mock implementation of governance.CostPolicyRepository
type mockPolicyRepo struct {
	mock.Mock
}

func (m *mockPolicyRepo) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*governance.CostPolicy, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*governance.CostPolicy).Clone(), args.Error(1)
}

func (m *mockPolicyRepo) Save(ctx context.Context, p *governance.CostPolicy) error {
	args := m.Called(ctx, p)
	if args.Error(0) == nil {
		p.Persisted = true
	}
	return args.Error(0)
}

// mockFinanceReader is a mock implementation of governance.ProjectFinanceReader
type mockFinanceReader struct {
	mock.Mock
}

func (m *mockFinanceReader) BudgetContexts(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*governance.BudgetContext, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*governance.BudgetContext), args.Error(1)
}

func (m *mockFinanceReader) BudgetedProjects(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *mockFinanceReader) ProjectNames(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]string), args.Error(1)
}

// mockStatsReader is a mock implementation of governance.ApprovableStatsReader
type mockStatsReader struct {
	mock.Mock
}

func (m *mockStatsReader) StatusCounts(ctx context.Context, kind governance.EntityKind, tenantID uuid.UUID) (governance.StatusCounts, error) {
	args := m.Called(ctx, kind, tenantID)
	return args.Get(0).(governance.StatusCounts), args.Error(1)
}

func (m *mockStatsReader) PendingByProject(ctx context.Context, kind governance.EntityKind, tenantID uuid.UUID) ([]governance.ProjectPendingCounts, error) {
	args := m.Called(ctx, kind, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]governance.ProjectPendingCounts), args.Error(1)
}

// fakeScope runs fn directly against the wrapped repositories
type fakeScope struct {
	approvables governance.ApprovableRepository
	policies    governance.CostPolicyRepository
	audit       governance.AuditEventRepository
	calls       int
}

func (s *fakeScope) Execute(_ context.Context, fn func(governance.TransactionalRepositories) error) error {
	s.calls++
	return fn(s)
}

func (s *fakeScope) Approvables() governance.ApprovableRepository { return s.approvables }
func (s *fakeScope) Policies() governance.CostPolicyRepository    { return s.policies }
func (s *fakeScope) AuditEvents() governance.AuditEventRepository { return s.audit }

// staticPolicies always returns the same policy
type staticPolicies struct {
	policy *governance.CostPolicy
	err    error
}

func (p staticPolicies) EffectivePolicy(_ context.Context, tenantID uuid.UUID) (*governance.CostPolicy, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.policy == nil {
		return governance.DefaultCostPolicy(tenantID), nil
	}
	return p.policy.Clone(), nil
}

// recordingMetrics keeps every observation
type recordingMetrics struct {
	mu          sync.Mutex
	idempotency []string
	decisions   []string
	transitions []string
	appended    []string
}

func (m *recordingMetrics) IdempotencyOutcome(_ context.Context, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idempotency = append(m.idempotency, outcome)
}

func (m *recordingMetrics) PolicyDecision(_ context.Context, kind, decision string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, kind+":"+decision)
}

func (m *recordingMetrics) ApprovalTransition(_ context.Context, _, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, action)
}

func (m *recordingMetrics) AuditAppended(_ context.Context, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended = append(m.appended, action)
}

func (m *recordingMetrics) idempotencyOutcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.idempotency...)
}

var errDatabaseDown = errors.New("database down")
