package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockOverviewService struct {
	mock.Mock
}

func (m *mockOverviewService) Overview(ctx context.Context, actor governance.Actor) (*governance.Overview, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*governance.Overview), args.Error(1)
}

func TestOverviewHandler_Get(t *testing.T) {
	actor := testActor()
	svc := new(mockOverviewService)
	svc.On("Overview", mock.Anything, actor).Return(&governance.Overview{
		Summary: map[string]governance.EntitySummary{
			"change_order": {Total: 4, PendingApproval: 2, BlockedByPolicy: 1},
		},
		TopProjectsByRisk: []governance.ProjectRisk{{ProjectID: uuid.New(), ProjectName: "Tower A", TotalPending: 2}},
	}, nil)

	h := NewOverviewHandler(svc)
	r := newTestRouter(&actor)
	r.GET("/governance/overview", h.Get)

	w := performRequest(r, http.MethodGet, "/governance/overview", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := string(decodeEnvelope(t, w).Data)
	assert.Contains(t, data, `"blocked_by_policy":1`)
	assert.Contains(t, data, "Tower A")
}

func TestOverviewHandler_Get_Forbidden(t *testing.T) {
	actor := testActor()
	svc := new(mockOverviewService)
	svc.On("Overview", mock.Anything, actor).Return(nil, shared.ErrForbidden)

	h := NewOverviewHandler(svc)
	r := newTestRouter(&actor)
	r.GET("/governance/overview", h.Get)

	w := performRequest(r, http.MethodGet, "/governance/overview", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
