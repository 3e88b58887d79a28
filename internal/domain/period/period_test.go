package period

import (
	"errors"
	"testing"

	"kpiflow/internal/domain/apperr"
)

func TestParseQuarter(t *testing.T) {
	cases := map[string]Quarter{"Q1": Q1, "q3": Q3, " Q4 ": Q4, "all": All, "All": All}
	for raw, want := range cases {
		got, err := ParseQuarter(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}
	if _, err := ParseQuarter("Q5"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveAll(t *testing.T) {
	if got := All.Resolve(Q2); got != Q2 {
		t.Fatalf("expected All to resolve to active quarter, got %s", got)
	}
	if got := Q1.Resolve(Q2); got != Q1 {
		t.Fatalf("expected explicit quarter to win, got %s", got)
	}
}

func TestKeyString(t *testing.T) {
	key := NewKey("emp-1", Q1, 2025)
	if key.String() != "emp-1:Q1:2025" {
		t.Fatalf("unexpected key %q", key.String())
	}
	if err := key.Validate(); err != nil {
		t.Fatalf("expected valid key, got %v", err)
	}
	if err := NewKey("emp-1", All, 2025).Validate(); err == nil {
		t.Fatal("expected All to be rejected as a stored quarter")
	}
}
