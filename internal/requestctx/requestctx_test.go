package requestctx

import (
	"context"
	"testing"

	"kpiflow/internal/domain/auth"
)

func TestRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithActor(ctx, auth.Actor{UserID: "u1", Role: auth.RoleHR})
	ctx = WithClientIP(ctx, "203.0.113.9")

	if GetRequestID(ctx) != "req-1" {
		t.Fatalf("unexpected request id %q", GetRequestID(ctx))
	}
	actor, ok := GetActor(ctx)
	if !ok || actor.UserID != "u1" {
		t.Fatalf("unexpected actor %+v", actor)
	}
	if GetClientIP(ctx) != "203.0.113.9" {
		t.Fatalf("unexpected ip %q", GetClientIP(ctx))
	}
}

func TestEmptyActorIsAbsent(t *testing.T) {
	ctx := WithActor(context.Background(), auth.Actor{})
	if _, ok := GetActor(ctx); ok {
		t.Fatal("expected empty actor to be treated as anonymous")
	}
}
