package middleware

import (
	"context"

	"collaborative-ide/internal/errors"

	"github.com/gin-gonic/gin"
)

type AccessChecker interface {
	CanAccess(ctx context.Context, userID, projectID string) (bool, error)
}

// ProjectAccess gates a route on the caller's access to the project named by
// the projectId path parameter or query parameter. Runs after Auth.
func ProjectAccess(checker AccessChecker) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		projectID := ctx.Param("projectId")
		if projectID == "" {
			projectID = ctx.Query("projectId")
		}
		if projectID == "" {
			ctx.Error(errors.BadRequest("projectId is required", nil))
			ctx.Abort()
			return
		}

		ok, err := checker.CanAccess(ctx.Request.Context(), ctx.GetString("user_id"), projectID)
		if err != nil {
			ctx.Error(err)
			ctx.Abort()
			return
		}
		if !ok {
			ctx.Error(errors.Forbidden("No access to this project", nil))
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
