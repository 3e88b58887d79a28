package kpi_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/settings"
	"kpiflow/internal/platform/memstore"
)

var (
	manager  = auth.Actor{UserID: "mgr-1", Name: "Maya Manager", Role: auth.RoleManager}
	manager2 = auth.Actor{UserID: "mgr-2", Name: "Omar Other", Role: auth.RoleManager}
	employee = auth.Actor{UserID: "emp-1", Name: "Eli Employee", Role: auth.RoleEmployee}
	hr       = auth.Actor{UserID: "hr-1", Name: "Hana HR", Role: auth.RoleHR}
	admin    = auth.Actor{UserID: "adm-1", Name: "Ada Admin", Role: auth.RoleAdmin}
)

type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	settings *settings.Service
	reviews  *review.Service
	kpis     *kpi.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	users := []auth.User{
		{ID: manager.UserID, Name: manager.Name, Email: "maya@example.com", Role: auth.RoleManager},
		{ID: manager2.UserID, Name: manager2.Name, Email: "omar@example.com", Role: auth.RoleManager},
		{ID: employee.UserID, Name: employee.Name, Email: "eli@example.com", Role: auth.RoleEmployee, ManagerID: manager.UserID},
		{ID: hr.UserID, Name: hr.Name, Email: "hana@example.com", Role: auth.RoleHR},
		{ID: admin.UserID, Name: admin.Name, Email: "ada@example.com", Role: auth.RoleAdmin},
	}
	for _, u := range users {
		_, err := store.CreateUser(ctx, u)
		require.NoError(t, err)
	}
	cfg := settings.NewService(store.Settings(), settings.Default(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)))
	reviews := review.NewService(store, store, cfg, store)
	return &fixture{
		ctx:      ctx,
		store:    store,
		settings: cfg,
		reviews:  reviews,
		kpis:     kpi.NewService(store, reviews, cfg, store),
	}
}

func (f *fixture) create(t *testing.T, title string, target float64, weight int, q period.Quarter) kpi.KPI {
	t.Helper()
	k, err := f.kpis.Create(f.ctx, manager, kpi.CreateInput{
		OwnerID:     employee.UserID,
		Title:       title,
		TargetValue: target,
		Weight:      weight,
		Quarter:     q,
		Year:        2025,
	})
	require.NoError(t, err)
	return k
}

func (f *fixture) approve(t *testing.T, id string) {
	t.Helper()
	_, err := f.kpis.Submit(f.ctx, employee, id, "")
	require.NoError(t, err)
	_, err = f.kpis.Approve(f.ctx, manager, id, "")
	require.NoError(t, err)
}

func TestCreateDefaultsAndBudget(t *testing.T) {
	f := newFixture(t)

	k := f.create(t, "  Close tickets  ", 10, 60, period.Q1)
	assert.Equal(t, "Close tickets", k.Title)
	assert.Equal(t, kpi.DefaultRubric, k.Rubric)
	assert.Equal(t, kpi.StatusActive, k.Status)
	assert.Equal(t, employee.Name, k.OwnerName)

	_, err := f.kpis.Create(f.ctx, manager, kpi.CreateInput{
		OwnerID: employee.UserID, Title: "Too heavy", TargetValue: 5, Weight: 41, Quarter: period.Q1, Year: 2025,
	})
	require.ErrorIs(t, err, kpi.ErrWeightExceeded)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	f.create(t, "Exactly fits", 5, 40, period.Q1)
	remaining, err := f.kpis.RemainingWeight(f.ctx, manager, period.NewKey(employee.UserID, period.Q1, 2025), "")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// Other periods have their own budget.
	f.create(t, "Next quarter", 5, 100, period.Q2)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	base := kpi.CreateInput{OwnerID: employee.UserID, Title: "Valid", TargetValue: 10, Weight: 10, Quarter: period.Q1, Year: 2025}

	in := base
	in.Title = "   "
	_, err := f.kpis.Create(f.ctx, manager, in)
	assert.ErrorIs(t, err, kpi.ErrTitleRequired)

	in = base
	in.TargetValue = 0
	_, err = f.kpis.Create(f.ctx, manager, in)
	assert.ErrorIs(t, err, kpi.ErrTargetInvalid)

	in = base
	in.Quarter = period.All
	_, err = f.kpis.Create(f.ctx, manager, in)
	assert.ErrorIs(t, err, period.ErrInvalidQuarter)

	in = base
	in.Weight = 0
	_, err = f.kpis.Create(f.ctx, manager, in)
	assert.ErrorIs(t, err, kpi.ErrWeightExceeded)

	in = base
	in.OwnerID = manager2.UserID
	_, err = f.kpis.Create(f.ctx, manager, in)
	assert.ErrorIs(t, err, kpi.ErrOwnerInvalid)
}

func TestCreateScopesManagers(t *testing.T) {
	f := newFixture(t)
	in := kpi.CreateInput{OwnerID: employee.UserID, Title: "Scoped", TargetValue: 10, Weight: 10, Quarter: period.Q1, Year: 2025}

	_, err := f.kpis.Create(f.ctx, manager2, in)
	assert.ErrorIs(t, err, kpi.ErrNotManager)

	_, err = f.kpis.Create(f.ctx, employee, in)
	assert.ErrorIs(t, err, kpi.ErrRoleNotAllowed)

	_, err = f.kpis.Create(f.ctx, hr, in)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestManagerEditsSwitch(t *testing.T) {
	f := newFixture(t)
	k := f.create(t, "Before switch", 10, 30, period.Q1)

	off := false
	_, err := f.settings.Update(f.ctx, admin, settings.Update{AllowManagerEdits: &off})
	require.NoError(t, err)

	in := kpi.CreateInput{OwnerID: employee.UserID, Title: "Blocked", TargetValue: 10, Weight: 10, Quarter: period.Q1, Year: 2025}
	_, err = f.kpis.Create(f.ctx, manager, in)
	assert.ErrorIs(t, err, kpi.ErrManagerEditsOff)
	_, err = f.kpis.Delete(f.ctx, manager, k.ID)
	assert.ErrorIs(t, err, kpi.ErrManagerEditsOff)

	created, err := f.kpis.Create(f.ctx, admin, in)
	require.NoError(t, err)
	assert.Equal(t, admin.UserID, created.CreatedBy)
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	k := f.create(t, "Ship feature", 10, 50, period.Q1)

	_, err := f.kpis.Approve(f.ctx, manager, k.ID, "")
	assert.ErrorIs(t, err, kpi.ErrInvalidTransition)

	_, err = f.kpis.Submit(f.ctx, manager, k.ID, "")
	assert.ErrorIs(t, err, kpi.ErrRoleNotAllowed)

	got, err := f.kpis.RequestChanges(f.ctx, manager, k.ID, "Please add the release notes")
	require.NoError(t, err)
	assert.Equal(t, kpi.StatusNeedsRevision, got.Status)

	got, err = f.kpis.Submit(f.ctx, employee, k.ID, "")
	require.NoError(t, err)
	assert.Equal(t, kpi.StatusPendingReview, got.Status)

	got, err = f.kpis.Approve(f.ctx, manager, k.ID, "Nice work")
	require.NoError(t, err)
	assert.Equal(t, kpi.StatusApproved, got.Status)

	comments, err := f.kpis.Comments(f.ctx, employee, k.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, kpi.TagRevisionRequired, comments[0].Tag)
	assert.Equal(t, kpi.TagInfo, comments[1].Tag)
	assert.Equal(t, auth.RoleManager, comments[1].UserRole)

	_, err = f.kpis.RequestChanges(f.ctx, manager, k.ID, "")
	assert.ErrorIs(t, err, kpi.ErrInvalidTransition)
	_, err = f.kpis.UpdateProgress(f.ctx, employee, k.ID, 5, "")
	assert.ErrorIs(t, err, kpi.ErrKPIApproved)
}

func TestUpdateProgress(t *testing.T) {
	f := newFixture(t)
	k := f.create(t, "Revenue", 100, 50, period.Q1)

	_, err := f.kpis.UpdateProgress(f.ctx, employee, k.ID, -1, "")
	assert.ErrorIs(t, err, kpi.ErrProgressNegative)

	_, err = f.kpis.UpdateProgress(f.ctx, manager, k.ID, 10, "")
	assert.ErrorIs(t, err, kpi.ErrRoleNotAllowed)

	got, err := f.kpis.UpdateProgress(f.ctx, employee, k.ID, 120, "Beat the target")
	require.NoError(t, err)
	assert.Equal(t, 120.0, got.CurrentValue)
	require.NotNil(t, got.LastUpdatedAt)

	history, err := f.kpis.ProgressHistory(f.ctx, manager, k.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 120.0, history[0].NewValue)
	assert.Equal(t, employee.UserID, history[0].UserID)

	comments, err := f.kpis.Comments(f.ctx, hr, k.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Beat the target", comments[0].Message)
	assert.Equal(t, kpi.TagInfo, comments[0].Tag)
}

func TestCommentsRejectReservedTag(t *testing.T) {
	f := newFixture(t)
	k := f.create(t, "Docs", 4, 20, period.Q1)

	_, err := f.kpis.AddComment(f.ctx, employee, k.ID, "generated", kpi.TagAIAudit)
	assert.ErrorIs(t, err, kpi.ErrCommentTag)

	_, err = f.kpis.AddComment(f.ctx, employee, k.ID, "  ", kpi.TagInfo)
	assert.ErrorIs(t, err, kpi.ErrCommentEmpty)

	_, err = f.kpis.AddComment(f.ctx, hr, k.ID, "hello", kpi.TagInfo)
	assert.ErrorIs(t, err, kpi.ErrRoleNotAllowed)

	c, err := f.kpis.AddComment(f.ctx, manager, k.ID, "Blocked on infra", kpi.TagBlocker)
	require.NoError(t, err)
	assert.Equal(t, kpi.TagBlocker, c.Tag)
}

func TestDeleteKeepsProgressHistory(t *testing.T) {
	f := newFixture(t)
	k := f.create(t, "Temporary", 10, 20, period.Q1)
	_, err := f.kpis.UpdateProgress(f.ctx, employee, k.ID, 3, "first pass")
	require.NoError(t, err)

	_, err = f.kpis.Delete(f.ctx, employee, k.ID)
	assert.ErrorIs(t, err, kpi.ErrRoleNotAllowed)

	deleted, err := f.kpis.Delete(f.ctx, manager, k.ID)
	require.NoError(t, err)
	assert.Equal(t, k.ID, deleted.ID)

	_, err = f.kpis.Get(f.ctx, manager, k.ID)
	assert.ErrorIs(t, err, kpi.ErrKPINotFound)

	comments, err := f.store.ListComments(f.ctx, k.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
	progress, err := f.store.ListProgressUpdates(f.ctx, k.ID)
	require.NoError(t, err)
	assert.Len(t, progress, 1)
}

func TestEditValidatesDestinationPeriod(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Q2 anchor", 10, 80, period.Q2)
	k := f.create(t, "Mover", 10, 30, period.Q1)

	edit := kpi.EditInput{Title: "Mover", TargetValue: 10, Weight: 30, Quarter: period.Q2, Year: 2025}
	_, err := f.kpis.Update(f.ctx, manager, k.ID, edit)
	assert.ErrorIs(t, err, kpi.ErrWeightExceeded)

	edit.Weight = 20
	moved, err := f.kpis.Update(f.ctx, manager, k.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, period.Q2, moved.Quarter)

	// Editing in place excludes the KPI's own weight.
	edit.Title = "Renamed"
	_, err = f.kpis.Update(f.ctx, manager, k.ID, edit)
	require.NoError(t, err)
}

func TestLockPropagationIsPerPeriod(t *testing.T) {
	f := newFixture(t)
	q1 := f.create(t, "Q1 goal", 10, 100, period.Q1)
	q2 := f.create(t, "Q2 goal", 10, 100, period.Q2)
	f.approve(t, q1.ID)

	feedback := 80.0
	_, err := f.reviews.Finalize(f.ctx, hr, review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: &feedback})
	require.NoError(t, err)

	_, err = f.kpis.AddComment(f.ctx, manager, q1.ID, "late note", kpi.TagInfo)
	assert.ErrorIs(t, err, kpi.ErrPeriodLocked)
	assert.ErrorIs(t, err, apperr.ErrLocked)
	_, err = f.kpis.Delete(f.ctx, manager, q1.ID)
	assert.ErrorIs(t, err, apperr.ErrLocked)

	_, err = f.kpis.UpdateProgress(f.ctx, employee, q2.ID, 4, "")
	require.NoError(t, err)
}

func TestSystemLockBlocksMutations(t *testing.T) {
	f := newFixture(t)
	k := f.create(t, "Frozen", 10, 50, period.Q1)

	_, err := f.settings.SetLocked(f.ctx, admin, true)
	require.NoError(t, err)

	_, err = f.kpis.UpdateProgress(f.ctx, employee, k.ID, 1, "")
	assert.ErrorIs(t, err, kpi.ErrSystemLocked)
	_, err = f.kpis.Submit(f.ctx, employee, k.ID, "")
	assert.ErrorIs(t, err, apperr.ErrLocked)

	_, err = f.settings.SetLocked(f.ctx, admin, false)
	require.NoError(t, err)
	_, err = f.kpis.UpdateProgress(f.ctx, employee, k.ID, 1, "")
	require.NoError(t, err)
}

func TestAuditScoreWritesValueAndComment(t *testing.T) {
	f := newFixture(t)
	k := f.create(t, "Audited", 10, 40, period.Q1)

	_, err := f.kpis.AuditTarget(f.ctx, manager, k.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.kpis.AttachEvidence(f.ctx, employee, k.ID, kpi.Evidence{Name: "report.txt", RawText: "closed 7 tickets"})
	require.NoError(t, err)

	_, err = f.kpis.AuditTarget(f.ctx, employee, k.ID)
	assert.ErrorIs(t, err, kpi.ErrRoleNotAllowed)

	got, comment, err := f.kpis.ApplyAuditScore(f.ctx, hr, k.ID, 7, "Seven tickets closed.")
	require.NoError(t, err)
	assert.Equal(t, 7.0, got.CurrentValue)
	assert.Equal(t, kpi.StatusActive, got.Status)
	assert.Equal(t, kpi.TagAIAudit, comment.Tag)
	assert.Equal(t, "Score 7/10. Seven tickets closed.", comment.Message)
}

func TestEmployeesSeeOnlyTheirKPIs(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Mine", 10, 10, period.Q1)

	list, err := f.kpis.List(f.ctx, employee, kpi.Filter{OwnerID: "someone-else"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.kpis.List(f.ctx, manager2, kpi.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.kpis.List(f.ctx, hr, kpi.Filter{Quarter: period.All})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
