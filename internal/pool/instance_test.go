package pool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/serverpool/internal/common/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serveInstance(inst *Instance, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	inst.Handler().ServeHTTP(w, req)
	return w
}

func TestInstance_IndexPage(t *testing.T) {
	inst := newTestInstance("0f3c9a2e-id", 10086)

	w := serveInstance(inst, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, "0f3c9a2e-id")
	assert.Contains(t, body, "10086")
	assert.Contains(t, body, "fetch('./ping?port=10086')")
	assert.Equal(t, int64(0), inst.PingCount(), "the page itself is not activity")
}

func TestInstance_Routing(t *testing.T) {
	var activity atomic.Int32
	inst := newInstance("abc", "127.0.0.1", 10087, func(*Instance) { activity.Add(1) }, logger.NewNop())

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		countsPing bool
	}{
		{"ping", http.MethodGet, "/ping", PingReply, true},
		{"ping with query", http.MethodGet, "/ping?port=10087", PingReply, true},
		{"ping subpath", http.MethodGet, "/ping/extra", PingReply, true},
		{"ping prefix", http.MethodGet, "/pingpong", PingReply, true},
		{"ping trailing slash", http.MethodGet, "/ping/", PingReply, true},
		{"ping via POST", http.MethodPost, "/ping", PingReply, true},
		{"fallback", http.MethodGet, "/foo", FallbackReply, false},
		{"fallback nested", http.MethodGet, "/foo/ping", FallbackReply, false},
		{"fallback POST", http.MethodPost, "/anything", FallbackReply, false},
	}

	var pings int32
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveInstance(inst, tt.method, tt.path)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
			if tt.countsPing {
				pings++
			}
			assert.Equal(t, pings, activity.Load())
			assert.Equal(t, int64(pings), inst.PingCount())
		})
	}

	info := inst.Info()
	require.NotNil(t, info.LastPingAt)
	assert.Equal(t, int64(pings), info.PingCount)
}

func TestInstance_URL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:10086/", newInstance("a", "127.0.0.1", 10086, nil, logger.NewNop()).URL())
	assert.Equal(t, "http://localhost:10086/", newInstance("a", "0.0.0.0", 10086, nil, logger.NewNop()).URL())
	assert.Equal(t, "http://localhost:10086/", newInstance("a", "", 10086, nil, logger.NewNop()).URL())
	assert.Equal(t, "http://[::1]:10086/", newInstance("a", "::1", 10086, nil, logger.NewNop()).URL())
}

func TestInstance_StopIsIdempotent(t *testing.T) {
	inst, err := startInstance("stop-me", "127.0.0.1", 0, nil, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, StateListening, inst.State())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, inst.Stop(ctx))
	assert.Equal(t, StateDisposed, inst.State())
	assert.NoError(t, inst.Stop(ctx))
	assert.Equal(t, StateDisposed, inst.State())
}

func TestInstance_StopBeforeListen(t *testing.T) {
	inst := newTestInstance("never-started", 1)
	assert.Equal(t, StateStarting, inst.State())

	assert.NoError(t, inst.Stop(context.Background()))
	assert.Equal(t, StateDisposed, inst.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "disposed", StateDisposed.String())
	assert.Equal(t, "unknown", State(42).String())
}
