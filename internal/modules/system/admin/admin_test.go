package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pulsetrack/pulse/internal/database/dbtest"
	"github.com/pulsetrack/pulse/internal/middleware"
	"github.com/pulsetrack/pulse/internal/models"
	"github.com/pulsetrack/pulse/internal/modules/site/token"
	"github.com/pulsetrack/pulse/internal/modules/tracking/events"
	"github.com/pulsetrack/pulse/internal/modules/tracking/presence"
)

const adminKey = "s3cret"

type env struct {
	r        *gin.Engine
	db       *gorm.DB
	clock    *quartz.Mock
	presence *presence.Service
	events   *events.Service
}

func setup(t *testing.T, threshold int) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := quartz.NewMock(t)
	clk.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	db := dbtest.New(t)

	e := &env{
		r:        gin.New(),
		db:       db,
		clock:    clk,
		presence: presence.NewService(presence.NewSQLStore(db), presence.WithClock(clk)),
		events:   events.NewService(events.NewSQLLog(db), events.WithClock(clk)),
	}
	tokens := token.NewService(db, token.WithPurgers(e.presence, e.events))
	svc := NewService(tokens, e.presence, e.events, threshold, nil)
	NewHandler(svc).RegisterRoutes(e.r.Group("/api/admin", middleware.AdminAuth(adminKey)))

	for i, tok := range []string{"site01", "site02", "banned"} {
		require.NoError(t, db.Create(&models.TokenModel{
			Token:     tok,
			IsBlocked: tok == "banned",
			CreatedAt: clk.Now().Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	return e
}

func (e *env) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+adminKey)
	rec := httptest.NewRecorder()
	e.r.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func (e *env) view(t *testing.T, tok, visitor string, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.presence.Touch(ctx, tok, visitor, "/", ""))
	for range n {
		require.NoError(t, e.events.RecordPageview(ctx, tok, visitor, "/", ""))
	}
}

func TestRequiresAdminKey(t *testing.T) {
	e := setup(t, 10000)
	rec := httptest.NewRecorder()
	e.r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	e.r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListTokensWithUsage(t *testing.T) {
	e := setup(t, 10000)
	e.view(t, "site01", "v1", 3)
	e.view(t, "site01", "v2", 1)

	code, body := e.do(t, http.MethodGet, "/api/admin/tokens?page=1&limit=2", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["limit"])
	assert.EqualValues(t, 2, body["totalPages"])

	tokens := body["tokens"].([]any)
	require.Len(t, tokens, 2)
	newest := tokens[0].(map[string]any)
	assert.Equal(t, "banned", newest["token"])
	assert.Equal(t, true, newest["is_blocked"])

	second := tokens[1].(map[string]any)
	assert.Equal(t, "site02", second["token"])

	_, body = e.do(t, http.MethodGet, "/api/admin/tokens?page=2&limit=2", "")
	last := body["tokens"].([]any)[0].(map[string]any)
	assert.Equal(t, "site01", last["token"])
	assert.EqualValues(t, 2, last["online_count"])
	assert.EqualValues(t, 4, last["events_24h"])
}

func TestStats(t *testing.T) {
	e := setup(t, 2)
	e.view(t, "site01", "v1", 3)
	e.view(t, "site02", "v1", 1)

	code, body := e.do(t, http.MethodGet, "/api/admin/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["totalTokens"])
	assert.EqualValues(t, 1, body["blockedTokens"])
	assert.EqualValues(t, 2, body["activeTokens"])
	assert.EqualValues(t, 4, body["events24h"])
	assert.EqualValues(t, 4, body["eventsLastHour"])
	assert.EqualValues(t, 2, body["totalOnline"])

	top := body["topTokens"].([]any)
	require.Len(t, top, 2)
	assert.Equal(t, map[string]any{"token": "site01", "event_count": float64(3)}, top[0])
	assert.Equal(t, []any{map[string]any{"token": "site01", "event_count": float64(3)}}, body["potentialAbuse"])

	e.clock.Advance(2 * time.Hour)
	_, body = e.do(t, http.MethodGet, "/api/admin/stats", "")
	assert.EqualValues(t, 0, body["eventsLastHour"])
	assert.EqualValues(t, 4, body["events24h"])
	assert.EqualValues(t, 0, body["totalOnline"])
}

func TestModeration(t *testing.T) {
	e := setup(t, 10000)

	code, body := e.do(t, http.MethodPatch, "/api/admin/tokens", `{"token":"site01","is_blocked":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["token"].(map[string]any)["is_blocked"])

	code, body = e.do(t, http.MethodPatch, "/api/admin/tokens", `{"token":"site01"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", body["error"])

	code, _ = e.do(t, http.MethodPatch, "/api/admin/tokens", `{"token":"nosuch","is_blocked":false}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDeleteCascades(t *testing.T) {
	e := setup(t, 10000)
	e.view(t, "site01", "v1", 2)
	e.view(t, "site02", "v1", 1)

	code, body := e.do(t, http.MethodDelete, "/api/admin/tokens", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Token is required", body["error"])

	code, _ = e.do(t, http.MethodDelete, "/api/admin/tokens?token=site01", "")
	require.Equal(t, http.StatusOK, code)

	var n int64
	require.NoError(t, e.db.Model(&models.EventModel{}).Where("token = ?", "site01").Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, e.db.Model(&models.PresenceModel{}).Where("token = ?", "site01").Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, e.db.Model(&models.EventModel{}).Where("token = ?", "site02").Count(&n).Error)
	assert.EqualValues(t, 1, n)

	code, _ = e.do(t, http.MethodDelete, "/api/admin/tokens?token=site01", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAboveThreshold(t *testing.T) {
	counts := []events.TokenCount{{Token: "a", Events: 11}, {Token: "b", Events: 10}}
	assert.Equal(t, []events.TokenCount{{Token: "a", Events: 11}}, AboveThreshold(counts, 10))
	assert.Empty(t, AboveThreshold(nil, 10))
}
