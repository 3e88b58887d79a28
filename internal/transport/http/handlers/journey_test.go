package handlers_test

import (
	"net/http"
	"strings"
	"testing"
)

type kpiView struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"ownerId"`
	Status       string  `json:"status"`
	CurrentValue float64 `json:"currentValue"`
	Weight       int     `json:"weight"`
	EvidenceName string  `json:"evidenceName"`
}

type reviewView struct {
	EmployeeID     string  `json:"employeeId"`
	KPIScore       int     `json:"kpiScore"`
	FeedbackScore  float64 `json:"feedbackScore"`
	FinalScore     int     `json:"finalScore"`
	Category       string  `json:"performanceCategory"`
	WeightCoverage int     `json:"weightCoverage"`
}

func TestQuarterReviewJourney(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Client()
	api := ts.URL + "/api/v1"

	manager := login(t, client, ts.URL, managerEmail, managerPass)
	eli := login(t, client, ts.URL, eliEmail, employeePass)
	hr := login(t, client, ts.URL, hrEmail, hrPass)

	coverage := createKPI(t, client, api, manager, "emp-1", "Unit Test Coverage", 10, 60)
	uptime := createKPI(t, client, api, manager, "emp-1", "Incident Follow-ups", 5, 40)

	remaining := decode[map[string]any](t, doJSON(t, client, http.MethodGet,
		api+"/kpis/remaining-weight?ownerId=emp-1&quarter=Q4&year=2025", manager, nil, http.StatusOK))
	if remaining["remaining"] != float64(0) {
		t.Fatalf("expected the weight budget to be used up, got %+v", remaining)
	}
	over := doJSON(t, client, http.MethodPost, api+"/kpis", manager, kpiPayload("emp-1", "One more", 1, 5), http.StatusBadRequest)
	assertErrorCode(t, over, "weight_exceeded")

	recordProgress(t, client, api, eli, coverage.ID, 8)
	recordProgress(t, client, api, eli, uptime.ID, 5)

	uploaded := decode[kpiView](t, uploadEvidence(t, client, api+"/kpis/"+coverage.ID+"/evidence", eli,
		"coverage.txt", "CI report: 81% statement coverage on main.", http.StatusOK))
	if uploaded.EvidenceName != "coverage.txt" {
		t.Fatalf("expected evidence name to be stored, got %+v", uploaded)
	}
	req := newRequest(t, http.MethodGet, api+"/kpis/"+coverage.ID+"/evidence", manager, nil)
	_, file := send(t, client, req, http.StatusOK)
	if !strings.Contains(string(file), "81% statement coverage") {
		t.Fatalf("unexpected evidence download %q", string(file))
	}
	audited := doJSON(t, client, http.MethodPost, api+"/kpis/"+coverage.ID+"/audit", manager, nil, http.StatusBadGateway)
	assertErrorCode(t, audited, "oracle_unavailable")

	early := doJSON(t, client, http.MethodPost, api+"/reviews/finalize", hr, finalizePayload("emp-1", 80), http.StatusConflict)
	assertErrorCode(t, early, "incomplete_approvals")

	for _, id := range []string{coverage.ID, uptime.ID} {
		submitted := decode[kpiView](t, doJSON(t, client, http.MethodPost, api+"/kpis/"+id+"/submit", eli,
			map[string]any{"message": "ready for review"}, http.StatusOK))
		if submitted.Status != "PendingReview" {
			t.Fatalf("expected PendingReview, got %s", submitted.Status)
		}
		approved := decode[kpiView](t, doJSON(t, client, http.MethodPost, api+"/kpis/"+id+"/approve", manager,
			map[string]any{"message": "looks good"}, http.StatusOK))
		if approved.Status != "Approved" {
			t.Fatalf("expected Approved, got %s", approved.Status)
		}
	}

	final := decode[reviewView](t, doJSON(t, client, http.MethodPost, api+"/reviews/finalize", hr, finalizePayload("emp-1", 80), http.StatusCreated))
	if final.KPIScore != 88 || final.FinalScore != 86 || final.Category != "Good" {
		t.Fatalf("unexpected final review %+v", final)
	}
	if final.WeightCoverage != 100 {
		t.Fatalf("expected full weight coverage, got %d", final.WeightCoverage)
	}

	again := doJSON(t, client, http.MethodPost, api+"/reviews/finalize", hr, finalizePayload("emp-1", 95), http.StatusConflict)
	assertErrorCode(t, again, "already_finalized")

	locked := doJSON(t, client, http.MethodPost, api+"/kpis/"+coverage.ID+"/comments", eli,
		map[string]any{"message": "one more thing"}, http.StatusLocked)
	assertErrorCode(t, locked, "period_locked")
	doJSON(t, client, http.MethodDelete, api+"/kpis/"+uptime.ID, manager, nil, http.StatusLocked)

	got := decode[reviewView](t, doJSON(t, client, http.MethodGet, api+"/reviews/emp-1/Q4/2025", eli, nil, http.StatusOK))
	if got.FinalScore != 86 {
		t.Fatalf("employee should see their own review, got %+v", got)
	}

	eligibility := decode[map[string]any](t, doJSON(t, client, http.MethodGet, api+"/rewards/eligibility/emp-1/Q4/2025", hr, nil, http.StatusOK))
	if eligible, _ := eligibility["eligible"].([]any); len(eligible) != 2 {
		t.Fatalf("expected Bonus and Recognition for Good, got %+v", eligibility["eligible"])
	}
	promo := doJSON(t, client, http.MethodPost, api+"/rewards", hr, rewardPayload("emp-1", "Promotion"), http.StatusBadRequest)
	assertErrorCode(t, promo, "reward_not_eligible")
	doJSON(t, client, http.MethodPost, api+"/rewards", hr, rewardPayload("emp-1", "Bonus"), http.StatusCreated)

	report := newRequest(t, http.MethodGet, api+"/reviews/emp-1/Q4/2025/report.pdf", hr, nil)
	resp, pdf := send(t, client, report, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if !strings.HasPrefix(string(pdf), "%PDF") {
		t.Fatal("expected a pdf document")
	}

	notes := decode[[]map[string]any](t, doJSON(t, client, http.MethodGet, api+"/notifications", eli, nil, http.StatusOK))
	types := map[string]bool{}
	for _, n := range notes {
		kind, _ := n["type"].(string)
		types[kind] = true
	}
	for _, want := range []string{"kpi_approved", "review_finalized", "reward_assigned"} {
		if !types[want] {
			t.Fatalf("expected a %s notification, got %+v", want, types)
		}
	}
	unread := decode[map[string]int](t, doJSON(t, client, http.MethodGet, api+"/notifications/unread-count", eli, nil, http.StatusOK))
	if unread["unread"] != len(notes) {
		t.Fatalf("expected %d unread, got %d", len(notes), unread["unread"])
	}

	admin := login(t, client, ts.URL, adminEmail, adminPass)
	events := decode[[]map[string]any](t, doJSON(t, client, http.MethodGet, api+"/audit?action=review.finalize", admin, nil, http.StatusOK))
	if len(events) != 1 || events[0]["entityId"] == "" {
		t.Fatalf("expected one finalize audit event, got %+v", events)
	}
}

func TestRewardPolicyRejectsBonusForNeedsImprovement(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Client()
	api := ts.URL + "/api/v1"

	manager := login(t, client, ts.URL, managerEmail, managerPass)
	priya := login(t, client, ts.URL, priyaEmail, employeePass)
	hr := login(t, client, ts.URL, hrEmail, hrPass)

	item := createKPI(t, client, api, manager, "emp-2", "Requirement Accuracy Rate", 10, 100)
	recordProgress(t, client, api, priya, item.ID, 2)
	doJSON(t, client, http.MethodPost, api+"/kpis/"+item.ID+"/submit", priya, nil, http.StatusOK)
	doJSON(t, client, http.MethodPost, api+"/kpis/"+item.ID+"/approve", manager, nil, http.StatusOK)

	final := decode[reviewView](t, doJSON(t, client, http.MethodPost, api+"/reviews/finalize", hr, finalizePayload("emp-2", 30), http.StatusCreated))
	if final.Category != "Needs Improvement" {
		t.Fatalf("expected Needs Improvement, got %+v", final)
	}

	bonus := doJSON(t, client, http.MethodPost, api+"/rewards", hr, rewardPayload("emp-2", "Bonus"), http.StatusBadRequest)
	assertErrorCode(t, bonus, "reward_not_eligible")

	calibration := decode[map[string]any](t, doJSON(t, client, http.MethodGet, api+"/reviews/calibration?quarter=Q4&year=2025", hr, nil, http.StatusOK))
	if calibration["total"] != float64(1) {
		t.Fatalf("expected one review in calibration, got %+v", calibration)
	}
}

func TestManagerRequestsChangesAndEmployeeResubmits(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Client()
	api := ts.URL + "/api/v1"

	manager := login(t, client, ts.URL, managerEmail, managerPass)
	eli := login(t, client, ts.URL, eliEmail, employeePass)

	item := createKPI(t, client, api, manager, "emp-1", "Sprint Velocity Improvement", 10, 40)
	doJSON(t, client, http.MethodPost, api+"/kpis/"+item.ID+"/submit", eli, nil, http.StatusOK)

	revised := decode[kpiView](t, doJSON(t, client, http.MethodPost, api+"/kpis/"+item.ID+"/request-changes", manager,
		map[string]any{"message": "attach the sprint report"}, http.StatusOK))
	if revised.Status != "NeedsRevision" {
		t.Fatalf("expected NeedsRevision, got %s", revised.Status)
	}

	comments := decode[[]map[string]any](t, doJSON(t, client, http.MethodGet, api+"/kpis/"+item.ID+"/comments", eli, nil, http.StatusOK))
	tagged := false
	for _, c := range comments {
		if c["tag"] == "Revision Required" && c["message"] == "attach the sprint report" {
			tagged = true
		}
	}
	if !tagged {
		t.Fatalf("expected a Revision Required comment, got %+v", comments)
	}

	wrong := doJSON(t, client, http.MethodPost, api+"/kpis/"+item.ID+"/approve", manager, nil, http.StatusBadRequest)
	assertErrorCode(t, wrong, "invalid_transition")
	doJSON(t, client, http.MethodPost, api+"/kpis/"+item.ID+"/submit", eli, nil, http.StatusOK)
}

func TestRoleBoundaries(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Client()
	api := ts.URL + "/api/v1"

	eli := login(t, client, ts.URL, eliEmail, employeePass)
	manager := login(t, client, ts.URL, managerEmail, managerPass)

	doJSON(t, client, http.MethodGet, api+"/kpis", "", nil, http.StatusUnauthorized)
	doJSON(t, client, http.MethodPost, api+"/kpis", eli, kpiPayload("emp-1", "Self-assigned", 1, 10), http.StatusForbidden)
	doJSON(t, client, http.MethodPost, api+"/reviews/finalize", manager, finalizePayload("emp-1", 80), http.StatusForbidden)
	doJSON(t, client, http.MethodPut, api+"/settings", manager, map[string]any{"kpiWeight": 50}, http.StatusForbidden)
	doJSON(t, client, http.MethodGet, api+"/dashboard/hr", manager, nil, http.StatusForbidden)
	doJSON(t, client, http.MethodGet, api+"/dashboard/team?quarter=Q4&year=2025", manager, nil, http.StatusOK)

	me := decode[map[string]any](t, doJSON(t, client, http.MethodGet, api+"/auth/me", eli, nil, http.StatusOK))
	if me["id"] != "emp-1" {
		t.Fatalf("expected emp-1, got %+v", me)
	}
	badPage := doJSON(t, client, http.MethodGet, api+"/notifications?limit=1000", eli, nil, http.StatusBadRequest)
	assertValidationErrorField(t, badPage, "limit")
}

func TestSystemLockBlocksKPIWrites(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Client()
	api := ts.URL + "/api/v1"

	admin := login(t, client, ts.URL, adminEmail, adminPass)
	manager := login(t, client, ts.URL, managerEmail, managerPass)

	cfg := decode[map[string]any](t, doJSON(t, client, http.MethodPut, api+"/settings", admin,
		map[string]any{"systemLocked": true}, http.StatusOK))
	if cfg["systemLocked"] != true {
		t.Fatalf("expected the system to be locked, got %+v", cfg)
	}
	blocked := doJSON(t, client, http.MethodPost, api+"/kpis", manager, kpiPayload("emp-1", "Blocked", 1, 10), http.StatusLocked)
	assertErrorCode(t, blocked, "system_locked")

	doJSON(t, client, http.MethodPut, api+"/settings", admin, map[string]any{"systemLocked": false}, http.StatusOK)
	createKPI(t, client, api, manager, "emp-1", "Unblocked", 1, 10)
}

func TestIdempotentRewardAssignment(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Client()
	api := ts.URL + "/api/v1"

	manager := login(t, client, ts.URL, managerEmail, managerPass)
	eli := login(t, client, ts.URL, eliEmail, employeePass)
	hr := login(t, client, ts.URL, hrEmail, hrPass)

	item := createKPI(t, client, api, manager, "emp-1", "System Uptime", 10, 100)
	recordProgress(t, client, api, eli, item.ID, 10)
	doJSON(t, client, http.MethodPost, api+"/kpis/"+item.ID+"/submit", eli, nil, http.StatusOK)
	doJSON(t, client, http.MethodPost, api+"/kpis/"+item.ID+"/approve", manager, nil, http.StatusOK)
	doJSON(t, client, http.MethodPost, api+"/reviews/finalize", hr, finalizePayload("emp-1", 100), http.StatusCreated)

	assign := func() *http.Response {
		req := newRequest(t, http.MethodPost, api+"/rewards", hr, rewardPayload("emp-1", "Promotion"))
		req.Header.Set("Idempotency-Key", "promo-emp-1-q4")
		resp, _ := send(t, client, req, http.StatusCreated)
		return resp
	}
	if assign().Header.Get("Idempotent-Replayed") != "" {
		t.Fatal("first request must not be a replay")
	}
	if assign().Header.Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected the retry to be replayed")
	}

	rewards := decode[[]map[string]any](t, doJSON(t, client, http.MethodGet, api+"/rewards?employeeId=emp-1", hr, nil, http.StatusOK))
	if len(rewards) != 1 {
		t.Fatalf("expected one reward, got %d", len(rewards))
	}
}

func kpiPayload(owner, title string, target float64, weight int) map[string]any {
	return map[string]any{
		"ownerId":     owner,
		"title":       title,
		"targetValue": target,
		"unit":        "points",
		"weight":      weight,
		"quarter":     "Q4",
		"year":        2025,
	}
}

func finalizePayload(employeeID string, feedback float64) map[string]any {
	return map[string]any{
		"employeeId":    employeeID,
		"quarter":       "Q4",
		"year":          2025,
		"feedbackScore": feedback,
	}
}

func rewardPayload(employeeID, rewardType string) map[string]any {
	return map[string]any{
		"employeeId": employeeID,
		"quarter":    "Q4",
		"year":       2025,
		"rewardType": rewardType,
	}
}

func createKPI(t *testing.T, client *http.Client, api, token, owner, title string, target float64, weight int) kpiView {
	t.Helper()
	created := decode[kpiView](t, doJSON(t, client, http.MethodPost, api+"/kpis", token, kpiPayload(owner, title, target, weight), http.StatusCreated))
	if created.ID == "" || created.Status != "Active" {
		t.Fatalf("unexpected kpi %+v", created)
	}
	return created
}

func recordProgress(t *testing.T, client *http.Client, api, token, id string, value float64) {
	t.Helper()
	updated := decode[kpiView](t, doJSON(t, client, http.MethodPost, api+"/kpis/"+id+"/progress", token,
		map[string]any{"value": value}, http.StatusOK))
	if updated.CurrentValue != value {
		t.Fatalf("expected currentValue %v, got %v", value, updated.CurrentValue)
	}
}

func TestHRTracksRaterTraining(t *testing.T) {
	ts := newTestServer(t)
	client := ts.Client()
	api := ts.URL + "/api/v1"

	hr := login(t, client, ts.URL, hrEmail, hrPass)
	manager := login(t, client, ts.URL, managerEmail, managerPass)

	raters := decode[[]map[string]any](t, doJSON(t, client, http.MethodGet, api+"/users?role=Manager", hr, nil, http.StatusOK))
	if len(raters) != 1 || raters[0]["id"] != "mgr-1" || raters[0]["trainingCompleted"] != false {
		t.Fatalf("expected one untrained manager, got %+v", raters)
	}

	trained := decode[map[string]any](t, doJSON(t, client, http.MethodPost, api+"/users/mgr-1/training", hr,
		map[string]any{"completed": true}, http.StatusOK))
	if trained["trainingCompleted"] != true || trained["trainingDate"] == nil {
		t.Fatalf("expected a training date, got %+v", trained)
	}
	me := decode[map[string]any](t, doJSON(t, client, http.MethodGet, api+"/auth/me", manager, nil, http.StatusOK))
	if me["trainingCompleted"] != true {
		t.Fatalf("expected the manager to see the certification, got %+v", me)
	}

	revoked := decode[map[string]any](t, doJSON(t, client, http.MethodPost, api+"/users/mgr-1/training", hr,
		map[string]any{"completed": false}, http.StatusOK))
	if revoked["trainingCompleted"] != false {
		t.Fatalf("expected revoked training, got %+v", revoked)
	}
	if _, ok := revoked["trainingDate"]; ok {
		t.Fatalf("expected the training date to be cleared, got %+v", revoked)
	}

	notRater := doJSON(t, client, http.MethodPost, api+"/users/emp-1/training", hr, map[string]any{"completed": true}, http.StatusBadRequest)
	assertErrorCode(t, notRater, "not_a_rater")
	missing := doJSON(t, client, http.MethodPost, api+"/users/mgr-1/training", hr, map[string]any{}, http.StatusBadRequest)
	assertValidationErrorField(t, missing, "completed")
	badRole := doJSON(t, client, http.MethodGet, api+"/users?role=Intern", hr, nil, http.StatusBadRequest)
	assertValidationErrorField(t, badRole, "role")

	doJSON(t, client, http.MethodPost, api+"/users/mgr-1/training", manager, map[string]any{"completed": true}, http.StatusForbidden)
	doJSON(t, client, http.MethodGet, api+"/users", manager, nil, http.StatusForbidden)
}
