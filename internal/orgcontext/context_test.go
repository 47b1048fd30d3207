package orgcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
)

func TestOrgIDRoundTrip(t *testing.T) {
	ctx := WithOrgID(context.Background(), snowflake.ID(42))
	id, ok := OrgIDFromContext(ctx)
	if !ok || id != 42 {
		t.Fatalf("expected 42, got %v (%v)", id, ok)
	}
}

func TestOrgIDMissingOrZero(t *testing.T) {
	if _, ok := OrgIDFromContext(context.Background()); ok {
		t.Fatal("expected missing org")
	}
	if _, ok := OrgIDFromContext(WithOrgID(context.Background(), 0)); ok {
		t.Fatal("expected zero org to be rejected")
	}
}

func TestActorDefaultsToSystem(t *testing.T) {
	if got := ActorFromContext(context.Background()); got != "system" {
		t.Fatalf("expected system, got %q", got)
	}
	if got := ActorFromContext(WithActor(context.Background(), " clerk-7 ")); got != "clerk-7" {
		t.Fatalf("expected clerk-7, got %q", got)
	}
}
