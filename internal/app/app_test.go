package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsetrack/pulse/internal/config"
	"github.com/pulsetrack/pulse/internal/database/dbtest"
	"github.com/pulsetrack/pulse/internal/pkg/nativelog"
)

const testAdminKey = "admin-secret"

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(nativelog.EnvLogDir, dir)

	cfg := config.Default()
	cfg.Env = "production"
	cfg.AdminKey = testAdminKey
	cfg.PublicURL = "https://pulse.example.com"
	cfg.Paths.Logs = dir
	return cfg
}

func newApp(t *testing.T, cfg *config.AppConfig, opts ...Option) *App {
	t.Helper()
	clk := quartz.NewMock(t)
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{WithDB(dbtest.New(t)), WithClock(clk)}, opts...)

	a, err := New(context.Background(), nil, cfg, opts...)
	require.NoError(t, err)
	return a
}

type call struct {
	method, target, body string
	header               map[string]string
}

func (a *App) serve(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.target, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	return rec
}

func createToken(t *testing.T, a *App) string {
	t.Helper()
	rec := a.serve(t, call{method: http.MethodPost, target: "/api/tokens", body: `{"siteName":"Example"}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func onlineOf(t *testing.T, a *App, tok string) float64 {
	t.Helper()
	rec := a.serve(t, call{method: http.MethodGet, target: "/api/online?token=" + tok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out["online"]
}

func TestEndToEnd(t *testing.T) {
	a := newApp(t, testConfig(t))
	tok := createToken(t, a)

	rec := a.serve(t, call{
		method: http.MethodPost,
		target: "/api/collect",
		body:   `{"token":"` + tok + `","visitorId":"v_1","type":"pageview","path":"/"}`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.EqualValues(t, 1, onlineOf(t, a, tok))

	rec = a.serve(t, call{method: http.MethodGet, target: "/api/top-pages?token=" + tok})
	assert.JSONEq(t, `{"pages":[{"path":"/","visitor_count":1}]}`, rec.Body.String())

	rec = a.serve(t, call{method: http.MethodGet, target: "/d.js"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"https://pulse.example.com"`)

	rec = a.serve(t, call{method: http.MethodGet, target: "/metrics"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pulse_collect_requests_total{outcome="recorded",type="pageview"} 1`)
	assert.Contains(t, rec.Body.String(), "pulse_tokens_created_total 1")

	rec = a.serve(t, call{method: http.MethodGet, target: "/api/health"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":true}`, rec.Body.String())

	rec = a.serve(t, call{method: http.MethodGet, target: "/api/nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectPreflight(t *testing.T) {
	a := newApp(t, testConfig(t))
	rec := a.serve(t, call{
		method: http.MethodOptions,
		target: "/api/collect",
		header: map[string]string{"Origin": "https://blog.example", "Access-Control-Request-Method": "POST"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAdminRoutes(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowedOrigins = []string{"admin.example.com"}
	a := newApp(t, cfg)
	createToken(t, a)

	rec := a.serve(t, call{method: http.MethodGet, target: "/api/admin/stats"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	auth := map[string]string{"Authorization": "Bearer " + testAdminKey}
	rec = a.serve(t, call{method: http.MethodGet, target: "/api/admin/stats", header: auth})
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["totalTokens"])

	rec = a.serve(t, call{method: http.MethodGet, target: "/api/admin/cron", header: auth})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, name := range []string{"sweep_rate_limits", "cleanup_presence", "purge_events", "detect_abuse"} {
		assert.Contains(t, rec.Body.String(), `"name":"`+name+`"`)
	}

	rec = a.serve(t, call{
		method: http.MethodOptions,
		target: "/api/admin/tokens",
		header: map[string]string{"Origin": "https://admin.example.com", "Access-Control-Request-Method": "PATCH"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = a.serve(t, call{
		method: http.MethodGet,
		target: "/api/admin/stats",
		header: map[string]string{"Origin": "https://evil.example", "Authorization": "Bearer " + testAdminKey},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enable = true
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Presence.Backend = config.BackendRedis

	a := newApp(t, cfg, WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})))
	tok := createToken(t, a)

	beat := call{
		method: http.MethodPost,
		target: "/api/collect",
		body:   `{"token":"` + tok + `","visitorId":"v_1","type":"heartbeat","path":"/"}`,
	}
	rec := a.serve(t, beat)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	rec = a.serve(t, beat)
	assert.JSONEq(t, `{"success":true,"skipped":true}`, rec.Body.String())
	assert.EqualValues(t, 1, onlineOf(t, a, tok))

	rec = a.serve(t, call{method: http.MethodGet, target: "/api/health"})
	assert.JSONEq(t, `{"status":"ok","database":true,"redis":true}`, rec.Body.String())

	jobs := a.sched.List()
	for _, j := range jobs {
		assert.NotEqual(t, "sweep_rate_limits", j.Name, "redis windows expire on their own")
	}
}

func TestDetectAbuseAlerts(t *testing.T) {
	var pushes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.Abuse.Threshold = 1
	cfg.Abuse.BarkKey = "device"
	cfg.Abuse.BarkServerURL = srv.URL
	a := newApp(t, cfg)
	tok := createToken(t, a)

	for _, v := range []string{"v_1", "v_2"} {
		rec := a.serve(t, call{
			method: http.MethodPost,
			target: "/api/collect",
			body:   `{"token":"` + tok + `","visitorId":"` + v + `","type":"pageview","path":"/"}`,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.NoError(t, a.detectAbuse(context.Background()))
	require.NoError(t, a.detectAbuse(context.Background()))
	assert.EqualValues(t, 1, pushes.Load(), "alerts are throttled per token")
}

func TestStartAndShutdown(t *testing.T) {
	a := newApp(t, testConfig(t))
	a.Start(context.Background())
	a.Shutdown(context.Background())
}

func TestMatchOriginPattern(t *testing.T) {
	assert.True(t, matchOriginPattern("admin.example.com", "admin.example.com"))
	assert.True(t, matchOriginPattern("*.example.com", "a.example.com"))
	assert.False(t, matchOriginPattern("*.example.com", "example.org"))
	assert.True(t, matchOriginPattern("localhost:*", "localhost:5173"))
	assert.Equal(t, "admin.example.com", extractOriginHost("https://admin.example.com"))
}

func TestParseTimezoneLocation(t *testing.T) {
	loc, err := parseTimezoneLocation("+05:30")
	require.NoError(t, err)
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 5*3600+30*60, offset)

	loc, err = parseTimezoneLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = parseTimezoneLocation("Mars/Olympus")
	assert.Error(t, err)
}
