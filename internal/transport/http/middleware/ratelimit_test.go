package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/requestctx"
)

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRateLimitUsesActorKeyBeforeIPFallback(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	actorCtx := requestctx.WithActor(context.Background(), auth.Actor{UserID: "user-1", Role: auth.RoleHR})

	first := httptest.NewRequest(http.MethodPost, "/api/v1/reviews/finalize", nil).WithContext(actorCtx)
	first.RemoteAddr = "198.51.100.11:2222"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/reviews/finalize", nil).WithContext(actorCtx)
	second.RemoteAddr = "198.51.100.12:3333"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by actor key, got %d", secondRec.Code)
	}
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	first := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	first.RemoteAddr = "203.0.113.10:4444"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	second.RemoteAddr = "203.0.113.10:5555"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by ip key, got %d", secondRec.Code)
	}
	if secondRec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if secondRec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected zero remaining, got %q", secondRec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitRefills(t *testing.T) {
	limited := RateLimit(1, 40*time.Millisecond)(noContent())

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/kpis", nil)
		req.RemoteAddr = "192.0.2.20:1111"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", code)
	}
	time.Sleep(60 * time.Millisecond)
	if code := send(); code != http.StatusNoContent {
		t.Fatalf("expected request after refill to pass, got %d", code)
	}
}

func TestSensitiveLimitThrottlesLoginPerEmail(t *testing.T) {
	// base 4 gives the login bucket a single token
	limited := SensitiveMutationRateLimit(4, time.Minute)(noContent())

	login := func(email, ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"`+email+`"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := login("dana@example.com", "192.0.2.1:1"); code != http.StatusNoContent {
		t.Fatalf("expected first login to pass, got %d", code)
	}
	if code := login("DANA@example.com", "192.0.2.2:1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected same email from another ip to be throttled, got %d", code)
	}
}

func TestSensitiveLimitSkipsReads(t *testing.T) {
	limited := SensitiveMutationRateLimit(2, time.Minute)(noContent())
	actorCtx := requestctx.WithActor(context.Background(), auth.Actor{UserID: "hr-1", Role: auth.RoleHR})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reviews/calibration", nil).WithContext(actorCtx)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected read %d to pass, got %d", i+1, rec.Code)
		}
	}

	codes := []int{}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rewards", nil).WithContext(actorCtx)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes for reward mutations: %v", codes)
	}
}

func TestSensitiveRateScope(t *testing.T) {
	cases := map[string]struct {
		method string
		path   string
		want   sensitiveScope
	}{
		"login":          {http.MethodPost, "/api/v1/auth/login", sensitiveScopeAuth},
		"finalize":       {http.MethodPost, "/api/v1/reviews/finalize", sensitiveScopeActor},
		"evidence":       {http.MethodPost, "/api/v1/kpis/k1/evidence", sensitiveScopeActor},
		"ai audit":       {http.MethodPost, "/api/v1/kpis/k1/audit", sensitiveScopeActor},
		"devplan":        {http.MethodPost, "/api/v1/devplans/emp-1", sensitiveScopeActor},
		"devplan delete": {http.MethodDelete, "/api/v1/devplans/emp-1", sensitiveScopeNone},
		"kpi update":     {http.MethodPatch, "/api/v1/kpis/k1", sensitiveScopeNone},
		"read":           {http.MethodGet, "/api/v1/settings", sensitiveScopeNone},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if got := sensitiveRateScope(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
