package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/bursar/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithOrgID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "user", "bursar-office")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id, got %v", fields["request_id"])
	}
	if fields["school_id"] != "42" {
		t.Fatalf("expected school_id, got %v", fields["school_id"])
	}
	if fields["actor_id"] != "bursar-office" {
		t.Fatalf("expected actor_id, got %v", fields["actor_id"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"select * from charges":                         "SELECT",
		"WITH x AS (SELECT 1) UPDATE charges SET a = 1": "SELECT",
		"  insert into payments values (1)":             "INSERT",
		"VACUUM":                                        "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}
