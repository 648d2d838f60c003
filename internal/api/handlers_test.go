package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-engine/internal/config"
	"github.com/ignite/engagement-engine/internal/engine"
	"github.com/ignite/engagement-engine/internal/service/accountpool"
	"github.com/ignite/engagement-engine/internal/service/strategy"
)

type fakeEngine struct {
	running bool
	stats   []engine.Stats
	arms    map[string][]strategy.Arm
	armsErr error

	lastSegment, lastSource string
}

func (f *fakeEngine) IsRunning() bool       { return f.running }
func (f *fakeEngine) Stats() []engine.Stats { return f.stats }

func (f *fakeEngine) Arms(_ context.Context, tenantID, segment, sourceID string) ([]strategy.Arm, error) {
	f.lastSegment, f.lastSource = segment, sourceID
	if f.armsErr != nil {
		return nil, f.armsErr
	}
	arms, ok := f.arms[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownTenant, tenantID)
	}
	return arms, nil
}

func runningEngine() *fakeEngine {
	return &fakeEngine{
		running: true,
		stats: []engine.Stats{{
			TenantID: "acme",
			Pool:     accountpool.Stats{Total: 3, Connected: 2, ByStatus: map[string]int{"active": 3}},
			Monitor:  map[string]int64{"posted": 7, "ticks": 12},
		}},
		arms: map[string][]strategy.Arm{
			"acme": {{Strategy: "question", Attempts: 4, Successes: 2, Score: 0.5}},
		},
	}
}

func newTestServer(e Engine, hc *HealthChecker) http.Handler {
	if hc == nil {
		hc = NewHealthChecker(nil, nil, e)
	}
	return NewServer(config.ServerConfig{Port: 0}, e, hc).Handler()
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestGetStats(t *testing.T) {
	w, body := get(t, newTestServer(runningEngine(), nil), "/stats")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, true, body["running"])

	tenants := body["tenants"].([]interface{})
	require.Len(t, tenants, 1)
	tenant := tenants[0].(map[string]interface{})
	assert.Equal(t, "acme", tenant["tenant_id"])
	assert.Equal(t, float64(7), tenant["monitor"].(map[string]interface{})["posted"])
	assert.Equal(t, float64(2), tenant["pool"].(map[string]interface{})["connected"])
}

func TestGetArms(t *testing.T) {
	e := runningEngine()
	h := newTestServer(e, nil)

	w, body := get(t, h, "/tenants/acme/arms?segment=crypto&source=src-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "crypto", e.lastSegment)
	assert.Equal(t, "src-1", e.lastSource)
	arms := body["arms"].([]interface{})
	require.Len(t, arms, 1)
	assert.Equal(t, "question", arms[0].(map[string]interface{})["strategy"])

	_, body = get(t, h, "/tenants/acme/arms?segment=crypto")
	assert.Equal(t, "*", body["source"])
	assert.Equal(t, "*", e.lastSource)
}

func TestGetArms_Errors(t *testing.T) {
	e := runningEngine()
	h := newTestServer(e, nil)

	w, body := get(t, h, "/tenants/nobody/arms")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, body["error"], "unknown tenant")

	e.armsErr = errors.New("connection refused")
	w, body = get(t, h, "/tenants/acme/arms")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, body["error"], "connection refused")
}

func TestHealth_Liveness(t *testing.T) {
	w, body := get(t, newTestServer(&fakeEngine{}, nil), "/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", body["status"])
}

func TestHealth_ReadinessMemoryMode(t *testing.T) {
	w, body := get(t, newTestServer(runningEngine(), nil), "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "healthy", body["status"])
}

func TestHealth_ReadinessEngineStopped(t *testing.T) {
	w, body := get(t, newTestServer(&fakeEngine{running: false}, nil), "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, "unhealthy", body["status"])
}

func TestHealth_BackendPings(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	e := runningEngine()
	hc := NewHealthChecker(db, rdb, e)
	h := newTestServer(e, hc)

	mock.ExpectPing()
	w, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "up", checks["database"].(map[string]interface{})["status"])
	assert.Equal(t, "up", checks["redis"].(map[string]interface{})["status"])

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	w, body = get(t, h, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", body["status"])

	mr.Close()
	mock.ExpectPing()
	w, body = get(t, h, "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code, "redis down degrades but keeps the engine ready")
	assert.Equal(t, "degraded", body["status"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDetermineOverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]ComponentCheck
		want   string
	}{
		{"all up", map[string]ComponentCheck{"database": {Status: "up"}, "engine": {Status: "up"}}, "healthy"},
		{"unconfigured backends", map[string]ComponentCheck{
			"database": {Status: "down", Message: notConfigured},
			"redis":    {Status: "down", Message: notConfigured},
			"engine":   {Status: "up"},
		}, "healthy"},
		{"db down", map[string]ComponentCheck{"database": {Status: "down", Message: "ping failed"}}, "unhealthy"},
		{"engine down", map[string]ComponentCheck{"engine": {Status: "down", Message: "loops not running"}}, "unhealthy"},
		{"no sessions", map[string]ComponentCheck{"engine": {Status: "degraded"}}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineOverallStatus(tt.checks))
		})
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5e9))
	assert.Equal(t, "2m 5s", formatUptime(125e9))
	assert.Equal(t, "1d 0h 0m 1s", formatUptime(86401e9))
}
