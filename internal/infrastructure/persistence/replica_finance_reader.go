package persistence

import (
	"context"
	"fmt"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ReplicaFinanceReader implements governance.ProjectFinanceReader on a
// read replica through pgx. The overview reads budget data for many projects
// at once and does not need to compete with approval writes on the primary.
type ReplicaFinanceReader struct {
	pool *pgxpool.Pool
}

// NewReplicaPool opens a pgx pool for the replica DSN
func NewReplicaPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence.NewReplicaPool: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("persistence.NewReplicaPool: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence.NewReplicaPool: ping: %w", err)
	}
	return pool, nil
}

// NewReplicaFinanceReader creates a new ReplicaFinanceReader
func NewReplicaFinanceReader(pool *pgxpool.Pool) *ReplicaFinanceReader {
	return &ReplicaFinanceReader{pool: pool}
}

const budgetContextsSQL = `
SELECT p.project_id,
       COALESCE(c.total, 0)::text,
       COALESCE(co.total, 0)::text,
       COALESCE(b.total, 0)::text
FROM unnest($2::uuid[]) AS p(project_id)
LEFT JOIN (
    SELECT project_id, SUM(amount) AS total FROM contracts
    WHERE tenant_id = $1 AND project_id = ANY($2::uuid[]) GROUP BY project_id
) c ON c.project_id = p.project_id
LEFT JOIN (
    SELECT project_id, SUM(amount) AS total FROM change_orders
    WHERE tenant_id = $1 AND project_id = ANY($2::uuid[]) AND status = $3 GROUP BY project_id
) co ON co.project_id = p.project_id
LEFT JOIN (
    SELECT project_id, SUM(amount) AS total FROM budget_lines
    WHERE tenant_id = $1 AND project_id = ANY($2::uuid[]) GROUP BY project_id
) b ON b.project_id = p.project_id`

// BudgetContexts computes contract and budget totals per project in one round trip
func (r *ReplicaFinanceReader) BudgetContexts(ctx context.Context, tenantID uuid.UUID, projectIDs []uuid.UUID) (map[uuid.UUID]*governance.BudgetContext, error) {
	result := make(map[uuid.UUID]*governance.BudgetContext, len(projectIDs))
	if len(projectIDs) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, budgetContextsSQL, tenantID, uuidStrings(projectIDs), string(governance.StatusApproved))
	if err != nil {
		return nil, fmt.Errorf("replicaFinanceReader.BudgetContexts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			projectID                 uuid.UUID
			contracts, changes, lines string
		)
		if err := rows.Scan(&projectID, &contracts, &changes, &lines); err != nil {
			return nil, fmt.Errorf("replicaFinanceReader.BudgetContexts: scan: %w", err)
		}

		contractTotal, err := sumDecimals(contracts, changes)
		if err != nil {
			return nil, fmt.Errorf("replicaFinanceReader.BudgetContexts: %w", err)
		}
		budgetTotal, err := decimal.NewFromString(lines)
		if err != nil {
			return nil, fmt.Errorf("replicaFinanceReader.BudgetContexts: %w", err)
		}
		result[projectID] = &governance.BudgetContext{
			ProjectID:     projectID,
			ContractTotal: contractTotal,
			BudgetTotal:   budgetTotal,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("replicaFinanceReader.BudgetContexts: rows: %w", err)
	}
	return result, nil
}

// BudgetedProjects lists the tenant's projects that have budget lines
func (r *ReplicaFinanceReader) BudgetedProjects(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT project_id FROM budget_lines WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("replicaFinanceReader.BudgetedProjects: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("replicaFinanceReader.BudgetedProjects: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("replicaFinanceReader.BudgetedProjects: rows: %w", err)
	}
	return ids, nil
}

// ProjectNames resolves project names by ID
func (r *ReplicaFinanceReader) ProjectNames(ctx context.Context, tenantID uuid.UUID, projectIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(projectIDs))
	if len(projectIDs) == 0 {
		return names, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, name FROM projects WHERE tenant_id = $1 AND id = ANY($2::uuid[])`,
		tenantID, uuidStrings(projectIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("replicaFinanceReader.ProjectNames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("replicaFinanceReader.ProjectNames: scan: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("replicaFinanceReader.ProjectNames: rows: %w", err)
	}
	return names, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func sumDecimals(values ...string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, nil
}

// Ensure ReplicaFinanceReader implements the domain interface
var _ governance.ProjectFinanceReader = (*ReplicaFinanceReader)(nil)
