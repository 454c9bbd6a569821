package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/boom", func(c *gin.Context) { c.String(http.StatusInternalServerError, "boom") })
	return r
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	r := newRouter(RequestLogger(logger.NewNop(), "test"), OtelTracing("test"))

	for path, want := range map[string]int{"/ok": 200, "/boom": 500, "/missing": 404} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

func TestRateLimit(t *testing.T) {
	t.Run("disabled when rate is zero", func(t *testing.T) {
		r := newRouter(RateLimit(0, 0, logger.NewNop()))
		for i := 0; i < 50; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("rejects requests beyond the burst", func(t *testing.T) {
		r := newRouter(RateLimit(0.001, 2, logger.NewNop()))

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{200, 200, http.StatusTooManyRequests}, codes)
	})
}
