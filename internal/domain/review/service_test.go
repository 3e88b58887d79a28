package review_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/scoring"
	"kpiflow/internal/domain/settings"
	"kpiflow/internal/platform/memstore"
)

var (
	manager  = auth.Actor{UserID: "mgr-1", Name: "Maya Manager", Role: auth.RoleManager}
	employee = auth.Actor{UserID: "emp-1", Name: "Eli Employee", Role: auth.RoleEmployee}
	peer     = auth.Actor{UserID: "emp-2", Name: "Pia Peer", Role: auth.RoleEmployee}
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
	for _, u := range []auth.User{
		{ID: manager.UserID, Name: manager.Name, Email: "maya@example.com", Role: auth.RoleManager},
		{ID: employee.UserID, Name: employee.Name, Email: "eli@example.com", Role: auth.RoleEmployee, ManagerID: manager.UserID},
		{ID: peer.UserID, Name: peer.Name, Email: "pia@example.com", Role: auth.RoleEmployee, ManagerID: manager.UserID},
		{ID: hr.UserID, Name: hr.Name, Email: "hana@example.com", Role: auth.RoleHR},
		{ID: admin.UserID, Name: admin.Name, Email: "ada@example.com", Role: auth.RoleAdmin},
	} {
		_, err := store.CreateUser(ctx, u)
		require.NoError(t, err)
	}
	cfg := settings.NewService(store.Settings(), settings.Default(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)))
	reviews := review.NewService(store, store, cfg, store)
	return &fixture{ctx: ctx, store: store, settings: cfg, reviews: reviews, kpis: kpi.NewService(store, reviews, cfg, store)}
}

// seed creates a KPI for owner with the given progress and drives it to
// Approved when approve is set.
func (f *fixture) seed(t *testing.T, owner auth.Actor, q period.Quarter, target, current float64, weight int, approve bool) kpi.KPI {
	t.Helper()
	k, err := f.kpis.Create(f.ctx, manager, kpi.CreateInput{
		OwnerID: owner.UserID, Title: "Goal", TargetValue: target, Weight: weight, Quarter: q, Year: 2025,
	})
	require.NoError(t, err)
	if current > 0 {
		k, err = f.kpis.UpdateProgress(f.ctx, owner, k.ID, current, "")
		require.NoError(t, err)
	}
	if approve {
		_, err = f.kpis.Submit(f.ctx, owner, k.ID, "")
		require.NoError(t, err)
		k, err = f.kpis.Approve(f.ctx, manager, k.ID, "")
		require.NoError(t, err)
	}
	return k
}

func feedback(v float64) *float64 { return &v }

func TestFinalizeScenario(t *testing.T) {
	f := newFixture(t)
	f.seed(t, employee, period.Q1, 10, 8, 60, true)
	f.seed(t, employee, period.Q1, 5, 5, 40, true)

	r, err := f.reviews.Finalize(f.ctx, hr, review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: feedback(80)})
	require.NoError(t, err)
	assert.Equal(t, "emp-1:Q1:2025", r.ID)
	assert.Equal(t, 88, r.KPIScore)
	assert.Equal(t, 86, r.FinalScore)
	assert.Equal(t, scoring.Good, r.Category)
	assert.Equal(t, 70, r.AppliedKPIWeight)
	assert.Equal(t, 30, r.AppliedFeedbackWeight)
	assert.Equal(t, 100, r.WeightCoverage)
	assert.Equal(t, 2, r.KPICount)
	assert.Equal(t, employee.Name, r.EmployeeName)
	assert.Equal(t, hr.UserID, r.FinalizedBy)

	locked, err := f.reviews.IsLocked(f.ctx, r.Key())
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestFinalizeTwiceKeepsOneReview(t *testing.T) {
	f := newFixture(t)
	f.seed(t, employee, period.Q1, 10, 10, 100, true)
	in := review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: feedback(90)}

	first, err := f.reviews.Finalize(f.ctx, admin, in)
	require.NoError(t, err)

	in.FeedbackScore = feedback(10)
	_, err = f.reviews.Finalize(f.ctx, hr, in)
	require.ErrorIs(t, err, review.ErrAlreadyFinalized)
	assert.ErrorIs(t, err, apperr.ErrAlreadyFinalized)

	all, err := f.reviews.List(f.ctx, hr, review.Filter{EmployeeID: employee.UserID})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first.FinalScore, all[0].FinalScore)
}

// staleReadStore reports no existing review so every caller reaches the
// insert, as concurrent finalizers do when their reads interleave.
type staleReadStore struct {
	review.StoreAPI
	insertErr error
}

func (s staleReadStore) FinalReviewExists(context.Context, period.Key) (bool, error) {
	return false, nil
}

func (s staleReadStore) InsertFinalReview(ctx context.Context, r review.FinalReview) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.StoreAPI.InsertFinalReview(ctx, r)
}

func TestConcurrentFinalizeWritesOneReview(t *testing.T) {
	f := newFixture(t)
	f.seed(t, employee, period.Q1, 10, 10, 100, true)
	racing := review.NewService(staleReadStore{StoreAPI: f.store}, f.store, f.settings, f.store)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = racing.Finalize(f.ctx, hr, review.FinalizeInput{
				EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: feedback(float64(50 + i)),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyFinalized)
	}
	assert.Equal(t, 1, succeeded)

	all, err := f.reviews.List(f.ctx, hr, review.Filter{EmployeeID: employee.UserID})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFinalizeInsertConflictMapsToAlreadyFinalized(t *testing.T) {
	f := newFixture(t)
	f.seed(t, employee, period.Q1, 10, 10, 100, true)
	in := review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: feedback(70)}

	conflicted := review.NewService(staleReadStore{StoreAPI: f.store, insertErr: review.ErrAlreadyFinalized}, f.store, f.settings, f.store)
	_, err := conflicted.Finalize(f.ctx, hr, in)
	require.ErrorIs(t, err, review.ErrAlreadyFinalized)
	kind, _ := apperr.KindOf(err)
	assert.Equal(t, apperr.KindAlreadyFinalized, kind)

	broken := review.NewService(staleReadStore{StoreAPI: f.store, insertErr: errors.New("connection reset")}, f.store, f.settings, f.store)
	_, err = broken.Finalize(f.ctx, hr, in)
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrAlreadyFinalized)
	assert.Equal(t, "storage_failure", apperr.CodeOf(err))
}

func TestFinalizeRequiresAllApproved(t *testing.T) {
	f := newFixture(t)
	in := review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: feedback(70)}

	_, err := f.reviews.Finalize(f.ctx, hr, in)
	assert.ErrorIs(t, err, apperr.ErrIncompleteApprovals, "zero kpis never finalize")

	f.seed(t, employee, period.Q1, 10, 10, 50, true)
	f.seed(t, employee, period.Q1, 10, 5, 50, false)
	_, err = f.reviews.Finalize(f.ctx, hr, in)
	assert.ErrorIs(t, err, review.ErrIncompleteApprovals)

	exists, err := f.reviews.IsLocked(f.ctx, period.NewKey(employee.UserID, period.Q1, 2025))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFinalizeValidatesInput(t *testing.T) {
	f := newFixture(t)
	f.seed(t, employee, period.Q1, 10, 10, 100, true)
	in := review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025}

	_, err := f.reviews.Finalize(f.ctx, manager, in)
	assert.ErrorIs(t, err, review.ErrFinalizeForbidden)

	_, err = f.reviews.Finalize(f.ctx, hr, in)
	assert.ErrorIs(t, err, review.ErrFeedbackRequired)

	in.FeedbackScore = feedback(101)
	_, err = f.reviews.Finalize(f.ctx, hr, in)
	assert.ErrorIs(t, err, review.ErrFeedbackRange)

	in.FeedbackScore = feedback(50)
	in.EmployeeID = "ghost"
	_, err = f.reviews.Finalize(f.ctx, hr, in)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFinalizeAllUsesActiveQuarter(t *testing.T) {
	f := newFixture(t)
	q2 := period.Q2
	_, err := f.settings.Update(f.ctx, admin, settings.Update{ActiveQuarter: &q2})
	require.NoError(t, err)
	f.seed(t, employee, period.Q2, 4, 4, 100, true)
	f.seed(t, employee, period.Q1, 4, 1, 100, false)

	r, err := f.reviews.Finalize(f.ctx, hr, review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.All, FeedbackScore: feedback(100)})
	require.NoError(t, err)
	assert.Equal(t, period.Q2, r.Quarter)
	assert.Equal(t, 2025, r.Year)
	assert.Equal(t, 100, r.FinalScore)
	assert.Equal(t, scoring.Outstanding, r.Category)
}

func TestFinalizeIgnoresSystemLock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, employee, period.Q1, 10, 6, 100, true)
	_, err := f.settings.SetLocked(f.ctx, admin, true)
	require.NoError(t, err)

	r, err := f.reviews.Finalize(f.ctx, hr, review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: feedback(50)})
	require.NoError(t, err)
	assert.Equal(t, 57, r.FinalScore)
	assert.Equal(t, scoring.NeedsImprovement, r.Category)
}

func TestReviewVisibility(t *testing.T) {
	f := newFixture(t)
	f.seed(t, employee, period.Q1, 10, 10, 100, true)
	r, err := f.reviews.Finalize(f.ctx, hr, review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: feedback(80)})
	require.NoError(t, err)

	_, err = f.reviews.Get(f.ctx, employee, r.Key())
	require.NoError(t, err)
	_, err = f.reviews.Get(f.ctx, manager, r.Key())
	require.NoError(t, err)
	_, err = f.reviews.Get(f.ctx, peer, r.Key())
	assert.ErrorIs(t, err, review.ErrReviewForbidden)

	mine, err := f.reviews.List(f.ctx, peer, review.Filter{})
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestCalibrationAndReport(t *testing.T) {
	f := newFixture(t)
	f.seed(t, employee, period.Q1, 10, 10, 100, true)
	f.seed(t, peer, period.Q1, 10, 5, 100, true)
	_, err := f.reviews.Finalize(f.ctx, hr, review.FinalizeInput{EmployeeID: employee.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: feedback(90)})
	require.NoError(t, err)
	_, err = f.reviews.Finalize(f.ctx, hr, review.FinalizeInput{EmployeeID: peer.UserID, Quarter: period.Q1, Year: 2025, FeedbackScore: feedback(40)})
	require.NoError(t, err)

	cal, err := f.reviews.Calibration(f.ctx, hr, period.Q1, 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, cal.Total)
	require.Len(t, cal.Buckets, len(scoring.Categories))
	assert.Equal(t, scoring.Outstanding, cal.Buckets[0].Category)
	assert.Equal(t, 1, cal.Buckets[0].Count)
	assert.Equal(t, 50.0, cal.Buckets[0].Percent)
	assert.Equal(t, 1, cal.Buckets[3].Count)
	// 97 and 47
	assert.Equal(t, 72.0, cal.AverageScore)

	r, kpis, err := f.reviews.Report(f.ctx, employee, period.NewKey(employee.UserID, period.Q1, 2025))
	require.NoError(t, err)
	require.Len(t, kpis, 1)

	var buf bytes.Buffer
	require.NoError(t, review.RenderReport(&buf, r, kpis))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestBuildCalibrationEmpty(t *testing.T) {
	cal := review.BuildCalibration(nil)
	assert.Zero(t, cal.Total)
	assert.Zero(t, cal.AverageScore)
	for _, b := range cal.Buckets {
		assert.Zero(t, b.Count)
		assert.Zero(t, b.Percent)
	}
}
