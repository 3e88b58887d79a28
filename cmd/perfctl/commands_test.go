package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/scoring"
	"kpiflow/internal/domain/settings"
)

func init() {
	color.NoColor = true
}

func TestCalibrationRowsKeepTierOrder(t *testing.T) {
	cal := review.BuildCalibration([]review.FinalReview{
		{FinalScore: 92, Category: scoring.Outstanding},
		{FinalScore: 86, Category: scoring.Good},
		{FinalScore: 80, Category: scoring.Good},
		{FinalScore: 40, Category: scoring.NeedsImprovement},
	})
	rows := calibrationRows(cal)
	if len(rows) != len(scoring.Categories) {
		t.Fatalf("expected %d rows, got %d", len(scoring.Categories), len(rows))
	}
	want := [][]string{
		{"Outstanding", "1", "25.0%"},
		{"Good", "2", "50.0%"},
		{"Satisfactory", "0", "0.0%"},
		{"Needs Improvement", "1", "25.0%"},
	}
	for i, row := range want {
		if strings.Join(rows[i], "|") != strings.Join(row, "|") {
			t.Fatalf("row %d: expected %v, got %v", i, row, rows[i])
		}
	}
}

func TestReviewRowsFallBackToEmployeeID(t *testing.T) {
	rows := reviewRows([]review.FinalReview{{
		EmployeeID:    "emp-1",
		Quarter:       period.Q4,
		Year:          2025,
		KPIScore:      88,
		FeedbackScore: 80,
		FinalScore:    86,
		Category:      scoring.Good,
		FinalizedAt:   time.Date(2025, 12, 20, 9, 0, 0, 0, time.UTC),
	}})
	got := strings.Join(rows[0], "|")
	if got != "emp-1|Q4 2025|88|80|86|Good|2025-12-20" {
		t.Fatalf("unexpected row %q", got)
	}
}

func TestPrintSettingsShowsLockState(t *testing.T) {
	cfg := settings.Default(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg.SystemLocked = true

	var buf bytes.Buffer
	printSettings(&buf, cfg)
	out := buf.String()
	if !strings.Contains(out, "locked") {
		t.Fatalf("expected lock state in output:\n%s", out)
	}
	if !strings.Contains(out, "Q4 2025") {
		t.Fatalf("expected active period in output:\n%s", out)
	}
}
