package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/serverpool/internal/common/config"
	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/kandev/serverpool/internal/pool"
)

func freeBasePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testConfig(basePort int) *config.Config {
	return &config.Config{
		Pool: config.PoolConfig{
			BasePort:        basePort,
			BindHost:        "127.0.0.1",
			DisposeMode:     config.DisposeModeSync,
			StopTimeout:     2,
			StopConcurrency: 4,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*ControlServer, *pool.Manager) {
	t.Helper()
	log := logger.NewNop()
	mgr := pool.NewManager(cfg.Pool, nil, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	cs := NewControlServer(cfg, mgr, nil, log)
	gin.SetMode(gin.TestMode)
	return cs, mgr
}

func doRequest(t *testing.T, cs *ControlServer, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	cs.Router().ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func idsOf(body map[string]interface{}) []string {
	raw, _ := body["ids"].([]interface{})
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, v.(string))
	}
	return ids
}

func TestControlServer_Lifecycle(t *testing.T) {
	base := freeBasePort(t)
	cs, _ := newTestServer(t, testConfig(base))

	w, first := doRequest(t, cs, http.MethodPost, "/api/v1/servers")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(base), first["port"])
	assert.NotEmpty(t, first["id"])

	w, second := doRequest(t, cs, http.MethodPost, "/api/v1/servers")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(base+1), second["port"])

	w, list := doRequest(t, cs, http.MethodGet, "/api/v1/servers")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{first["id"].(string), second["id"].(string)}, idsOf(list))
	assert.Len(t, list["servers"], 2)

	w, info := doRequest(t, cs, http.MethodGet, "/api/v1/servers/"+first["id"].(string))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "listening", info["state"])
	assert.Equal(t, float64(0), info["ping_count"])

	w, ack := doRequest(t, cs, http.MethodDelete, "/api/v1/servers/"+first["id"].(string))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, ack["accepted"])

	_, list = doRequest(t, cs, http.MethodGet, "/api/v1/servers")
	assert.Equal(t, []string{second["id"].(string)}, idsOf(list))

	w, ack = doRequest(t, cs, http.MethodDelete, "/api/v1/servers")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, ack["accepted"])

	_, list = doRequest(t, cs, http.MethodGet, "/api/v1/servers")
	assert.Empty(t, idsOf(list))
}

func TestControlServer_Health(t *testing.T) {
	cs, mgr := newTestServer(t, testConfig(freeBasePort(t)))
	_, err := mgr.Create(context.Background())
	require.NoError(t, err)

	w, body := doRequest(t, cs, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["instances"])
}

func TestControlServer_UnknownIDs(t *testing.T) {
	cs, _ := newTestServer(t, testConfig(freeBasePort(t)))

	w, body := doRequest(t, cs, http.MethodGet, "/api/v1/servers/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, body["code"])

	w, body = doRequest(t, cs, http.MethodDelete, "/api/v1/servers/nope")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["accepted"])
}

func TestControlServer_BindFailure(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = blocker.Close() }()

	cs, mgr := newTestServer(t, testConfig(blocker.Addr().(*net.TCPAddr).Port))

	w, body := doRequest(t, cs, http.MethodPost, "/api/v1/servers")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeBindFailed, body["code"])
	assert.Empty(t, mgr.List())
}

func TestControlServer_PortsExhausted(t *testing.T) {
	cs, _ := newTestServer(t, testConfig(pool.MaxPort+1))

	w, body := doRequest(t, cs, http.MethodPost, "/api/v1/servers")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodePortsExhausted, body["code"])
}

func TestControlServer_RateLimit(t *testing.T) {
	cfg := testConfig(freeBasePort(t))
	cfg.API.RateLimit = 0.001
	cfg.API.RateBurst = 2
	cs, _ := newTestServer(t, cfg)

	w, _ := doRequest(t, cs, http.MethodGet, "/api/v1/servers")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doRequest(t, cs, http.MethodGet, "/api/v1/servers")
	assert.Equal(t, http.StatusOK, w.Code)
	w, body := doRequest(t, cs, http.MethodGet, "/api/v1/servers")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", body["code"])

	// health is outside the limited group
	w, _ = doRequest(t, cs, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}
