package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/s/:token", func(c *gin.Context) {
		c.Status(http.StatusGone)
	})

	matched := HTTPRequestsTotal.WithLabelValues("GET", "/s/:token", "410")
	unmatched := HTTPRequestsTotal.WithLabelValues("GET", "/other", "404")
	before := testutil.ToFloat64(matched)
	beforeOther := testutil.ToFloat64(unmatched)

	for _, path := range []string{"/s/abc", "/s/def", "/nope"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, before+2, testutil.ToFloat64(matched))
	assert.Equal(t, beforeOther+1, testutil.ToFloat64(unmatched))
}
