package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// GetPaginationParams reads page and per_page, falling back to the first
// page of ten for missing or out-of-range values.
func GetPaginationParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPerPage {
		pageSize = defaultPerPage
	}

	return page, pageSize
}
