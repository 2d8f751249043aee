package middleware

import (
	"context"
	"strings"

	"collaborative-ide/auth"
	"collaborative-ide/internal/errors"

	"github.com/gin-gonic/gin"
)

type TokenVerifier interface {
	Verify(token, kind string) (auth.Claims, error)
}

// SessionValidator reports whether a token version is still current for an
// active user.
type SessionValidator interface {
	CheckTokenVersion(ctx context.Context, userID string, version uint64) error
}

// Auth accepts the token as a bearer header or, for websocket upgrades
// where browsers cannot set headers, as the token query parameter.
func Auth(tokens TokenVerifier, users SessionValidator) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		var token string
		if authHeader != "" {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else if q := ctx.Query("token"); q != "" {
			token = q
		} else {
			ctx.Error(errors.Unauthorized("Authorization is not found!", nil))
			ctx.Abort()
			return
		}

		claims, err := tokens.Verify(token, auth.KindAccess)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		if err := users.CheckTokenVersion(ctx.Request.Context(), claims.UserID, claims.Version); err != nil {
			ctx.Error(err)
			ctx.Abort()
			return
		}

		ctx.Set("user_id", claims.UserID)
		ctx.Next()
	}
}
