package gateway

import (
	"net/http"
	"net/http/httptest"
)

func httptestRequest(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws/sync", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}
