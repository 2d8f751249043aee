package middleware

import (
	"errors"

	apiError "collaborative-ide/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next() // Execute the handler first

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *apiError.APIError
		if !errors.As(err, &apiErr) {
			// If it's a raw error we didn't wrap, treat as Internal
			apiErr = apiError.Internal(err)
		}

		event := log.Info()
		if apiErr.Status >= 500 {
			event = log.Error()
		}
		event.Err(apiErr.Internal).
			Int("status", apiErr.Status).
			Str("path", c.FullPath()).
			Msg(apiErr.Message)

		c.AbortWithStatusJSON(apiErr.Status, apiErr)
	}
}
