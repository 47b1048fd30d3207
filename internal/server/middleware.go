package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	obscontext "github.com/smallbiznis/bursar/internal/observability/context"
	"github.com/smallbiznis/bursar/internal/orgcontext"
)

const (
	HeaderSchool = "X-School-ID"
	HeaderActor  = "X-Actor-ID"
)

// SchoolContext resolves the school and acting user from request headers.
// Every /api route is scoped to exactly one school.
func SchoolContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderSchool))
		if raw == "" {
			AbortWithError(c, newValidationError("school_id", "missing_school_id", HeaderSchool+" header is required"))
			return
		}
		schoolID, err := snowflake.ParseString(raw)
		if err != nil || schoolID <= 0 {
			AbortWithError(c, newValidationError("school_id", "invalid_school_id", "invalid "+HeaderSchool+" header"))
			return
		}

		ctx := c.Request.Context()
		ctx = orgcontext.WithOrgID(ctx, schoolID)
		ctx = obscontext.WithOrgID(ctx, schoolID.String())

		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx = orgcontext.WithActor(ctx, actor)
			ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeUser), actor)
		} else {
			ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "system")
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
