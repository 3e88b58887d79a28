package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKindSentinel(t *testing.T) {
	errWeight := New(KindValidation, "weight_exceeded", "weight exceeds remaining budget")
	wrapped := fmt.Errorf("create kpi: %w", errWeight.Withf("weight %d exceeds remaining %d", 50, 40))

	if !errors.Is(wrapped, ErrValidation) {
		t.Fatal("expected validation kind match")
	}
	if !errors.Is(wrapped, errWeight) {
		t.Fatal("expected coded sentinel match")
	}
	if errors.Is(wrapped, ErrLocked) {
		t.Fatal("did not expect locked match")
	}
	if errors.Is(wrapped, New(KindValidation, "title_required", "")) {
		t.Fatal("did not expect match on a different code")
	}
}

func TestStorageClassifiesOnce(t *testing.T) {
	raw := errors.New("connection reset")
	err := Storage("list kpis", raw)
	if kind, _ := KindOf(err); kind != KindExternal {
		t.Fatalf("expected external kind, got %q", kind)
	}
	if !errors.Is(err, raw) {
		t.Fatal("expected cause to be preserved")
	}

	notFound := New(KindNotFound, "kpi_not_found", "kpi not found")
	if got := Storage("get kpi", notFound); got != notFound {
		t.Fatalf("expected classified error to pass through, got %v", got)
	}
	if Storage("noop", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestCodeOfFallsBackToKind(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", ErrLocked)); got != string(KindLocked) {
		t.Fatalf("expected kind as code, got %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
}
