// Package orgcontext carries the active school and acting user through
// request contexts. A school is the tenant ("organization") of every record.
package orgcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// OrgContextKey is the request context key for the active school ID.
type OrgContextKey struct{}

type actorContextKey struct{}

// WithOrgID stores the school ID in the context.
func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, OrgContextKey{}, orgID)
}

// OrgIDFromContext returns the school ID from context, if set.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	switch typed := ctx.Value(OrgContextKey{}).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}

// WithActor stores the acting user identifier used for audit attribution.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, strings.TrimSpace(actorID))
}

// ActorFromContext returns the acting user, or "system" when none is set.
func ActorFromContext(ctx context.Context) string {
	if ctx != nil {
		if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
			return actor
		}
	}
	return "system"
}
