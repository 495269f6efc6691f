package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsetrack/pulse/internal/pkg/metrics"
	"github.com/pulsetrack/pulse/internal/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitPerIP(t *testing.T) {
	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	l := ratelimit.NewMemory(ratelimit.WithClock(quartz.NewMock(t)))
	policy := ratelimit.Policy{Name: "api", Prefix: "api", Window: time.Minute, Max: 2}

	r := gin.New()
	r.Use(RateLimit(l, policy, zap.NewNop(), m))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := func(ip string) *httptest.ResponseRecorder {
		rq := httptest.NewRequest(http.MethodGet, "/x", nil)
		rq.RemoteAddr = ip + ":1234"
		return serve(r, rq)
	}

	assert.Equal(t, http.StatusOK, req("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, req("10.0.0.1").Code)
	rec := req("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"ok":0,"code":429,"error":"Rate limit exceeded. Please try again later."}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, req("10.0.0.2").Code)
	assert.InDelta(t, 1, promtest.ToFloat64(m.RateLimited.WithLabelValues("api")), 0)
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, time.Duration, int) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(failingLimiter{}, ratelimit.DefaultPolicies().API, nil, nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestAdminAuth(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AdminAuth("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"s3cret", http.StatusUnauthorized},
		{"Bearer s3cret", http.StatusOK},
		{"bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		rq := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if tc.header != "" {
			rq.Header.Set("Authorization", tc.header)
		}
		assert.Equal(t, tc.want, serve(r, rq).Code, "header %q", tc.header)
	}
}

func TestAdminAuthWithoutKeyRejectsEverything(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AdminAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	rq := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rq.Header.Set("Authorization", "Bearer ")
	assert.Equal(t, http.StatusUnauthorized, serve(r, rq).Code)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(time.Second))
	r.GET("/x", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestPublicCORSAndNoStore(t *testing.T) {
	r := gin.New()
	g := r.Group("", PublicCORS(), NoStore())
	g.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.OPTIONS("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))

	rec = serve(r, httptest.NewRequest(http.MethodOptions, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}
