package devplan_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/devplan"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/scoring"
	"kpiflow/internal/platform/memstore"
)

var (
	hr       = auth.Actor{UserID: "hr-1", Name: "Hana", Role: auth.RoleHR}
	employee = auth.Actor{UserID: "emp-1", Name: "Eli", Role: auth.RoleEmployee}
	other    = auth.Actor{UserID: "emp-2", Name: "Pia", Role: auth.RoleEmployee}
)

type recordingGenerator struct {
	req  devplan.PlanRequest
	text string
	err  error
}

func (g *recordingGenerator) GeneratePlan(_ context.Context, req devplan.PlanRequest) (string, error) {
	g.req = req
	return g.text, g.err
}

func setup(t *testing.T, category scoring.Category) (*memstore.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	for _, u := range []auth.User{
		{ID: employee.UserID, Name: employee.Name, Email: "eli@example.com", Role: auth.RoleEmployee, JobTitle: "Software Engineer"},
		{ID: other.UserID, Name: other.Name, Email: "pia@example.com", Role: auth.RoleEmployee},
	} {
		_, err := store.CreateUser(ctx, u)
		require.NoError(t, err)
	}
	for i, q := range []period.Quarter{period.Q1, period.Q2} {
		key := period.NewKey(employee.UserID, q, 2025)
		require.NoError(t, store.InsertFinalReview(ctx, review.FinalReview{
			ID: key.String(), EmployeeID: employee.UserID, EmployeeName: employee.Name, Quarter: q, Year: 2025,
			FinalScore: 50 + i, Category: category, FinalizedAt: time.Now(),
		}))
	}
	return store, ctx
}

func TestGenerateUsesLatestReview(t *testing.T) {
	store, ctx := setup(t, scoring.NeedsImprovement)
	gen := &recordingGenerator{text: "### 1. Key Strengths\n..."}
	svc := devplan.NewService(store, store, store, gen)

	plan, err := svc.Generate(ctx, hr, employee.UserID, false)
	require.NoError(t, err)
	assert.Equal(t, period.Q2, gen.req.Quarter)
	assert.Equal(t, 51, gen.req.FinalScore)
	assert.Equal(t, "Software Engineer", gen.req.JobTitle)
	assert.True(t, strings.HasPrefix(plan.Markdown, "### 1."))

	got, err := svc.Get(ctx, employee, employee.UserID)
	require.NoError(t, err)
	assert.Equal(t, plan.Markdown, got.Markdown)
	require.NotNil(t, got.UpdatedAt)

	_, err = svc.Get(ctx, other, employee.UserID)
	assert.ErrorIs(t, err, devplan.ErrViewForbidden)

	candidates, err := svc.Candidates(ctx, hr, period.Q2, 2025)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.True(t, candidates[0].HasPlan)

	require.NoError(t, svc.Clear(ctx, hr, employee.UserID))
	_, err = svc.Get(ctx, hr, employee.UserID)
	assert.ErrorIs(t, err, devplan.ErrNoPlan)
}

func TestGenerateGuards(t *testing.T) {
	store, ctx := setup(t, scoring.Good)
	gen := &recordingGenerator{text: "plan"}
	svc := devplan.NewService(store, store, store, gen)

	_, err := svc.Generate(ctx, employee, employee.UserID, true)
	assert.ErrorIs(t, err, devplan.ErrForbidden)

	_, err = svc.Generate(ctx, hr, employee.UserID, false)
	assert.ErrorIs(t, err, devplan.ErrNotNeeded)

	_, err = svc.Generate(ctx, hr, other.UserID, true)
	assert.ErrorIs(t, err, devplan.ErrNoReview)

	_, err = svc.Generate(ctx, hr, employee.UserID, true)
	require.NoError(t, err)

	gen.err = errors.New("quota exceeded")
	_, err = svc.Generate(ctx, hr, employee.UserID, true)
	assert.ErrorIs(t, err, apperr.ErrExternal)
}
