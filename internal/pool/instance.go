package pool

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kandev/serverpool/internal/common/httpmw"
	"github.com/kandev/serverpool/internal/common/logger"
)

const (
	// PingReply is the body returned for any path starting with /ping.
	PingReply = "check your control panel to see the notification."

	// FallbackReply is the body returned for every other non-root path.
	FallbackReply = "nothing to reply."
)

// State is the lifecycle state of an instance. It only moves forward:
// starting -> listening -> disposed.
type State int32

const (
	StateStarting State = iota
	StateListening
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// ActivityFunc is called once for every ping an instance receives.
type ActivityFunc func(inst *Instance)

var pageTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>server {{.ID}}</title>
</head>
<body>
<h1>server {{.ID}}</h1>
<p>listening on port {{.Port}}</p>
<button id="ping">Ping</button>
<script>
document.getElementById("ping").addEventListener("click", function () {
  fetch('./ping?port={{.Port}}')
    .then(function (res) { return res.text(); })
    .then(function (text) { alert(text); });
});
</script>
</body>
</html>
`))

// Instance is a single pooled HTTP server bound to its own port.
type Instance struct {
	// ID is the unique identifier for this instance
	ID string

	// Port is the TCP port this instance is listening on
	Port int

	// Host is the address the listener is bound to
	Host string

	// CreatedAt is the timestamp when this instance was created
	CreatedAt time.Time

	state      atomic.Int32
	pingCount  atomic.Int64
	lastPingAt atomic.Int64 // unix nanos, 0 when never pinged

	router     *gin.Engine
	server     *http.Server
	listener   net.Listener
	serveDone  chan struct{}
	onActivity ActivityFunc
	logger     *logger.Logger
}

// InstanceInfo contains serializable information about an instance for API responses.
type InstanceInfo struct {
	ID         string     `json:"id"`
	Port       int        `json:"port"`
	State      string     `json:"state"`
	URL        string     `json:"url"`
	CreatedAt  time.Time  `json:"created_at"`
	PingCount  int64      `json:"ping_count"`
	LastPingAt *time.Time `json:"last_ping_at,omitempty"`
}

// CreateResponse contains the result of creating a new instance.
type CreateResponse struct {
	ID   string `json:"id"`
	Port int    `json:"port"`
	URL  string `json:"url"`
}

// newInstance builds an instance in the starting state. Nothing is bound yet.
func newInstance(id, host string, port int, onActivity ActivityFunc, log *logger.Logger) *Instance {
	inst := &Instance{
		ID:         id,
		Port:       port,
		Host:       host,
		CreatedAt:  time.Now(),
		serveDone:  make(chan struct{}),
		onActivity: onActivity,
		logger:     log.WithInstance(id, port),
	}
	inst.state.Store(int32(StateStarting))
	inst.router = inst.buildRouter()
	return inst
}

// startInstance binds the instance's port and starts serving.
// A failed bind returns a *BindError and leaves nothing running.
func startInstance(id, host string, port int, onActivity ActivityFunc, log *logger.Logger) (*Instance, error) {
	inst := newInstance(id, host, port, onActivity, log)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		inst.state.Store(int32(StateDisposed))
		return nil, &BindError{Addr: addr, Port: port, Err: err}
	}

	inst.serve(ln)
	return inst, nil
}

func (i *Instance) buildRouter() *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(httpmw.OtelTracing("serverpool-instance", attribute.String("instance.id", i.ID)))
	router.Use(httpmw.RequestLogger(i.logger, "instance"))
	router.SetHTMLTemplate(pageTemplate)

	router.Any("/", i.handleIndex)
	router.Any("/ping", i.handlePing)
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/ping") {
			i.handlePing(c)
			return
		}
		c.String(http.StatusOK, FallbackReply)
	})
	return router
}

func (i *Instance) serve(ln net.Listener) {
	i.listener = ln
	i.server = &http.Server{
		Handler:           i.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	i.state.CompareAndSwap(int32(StateStarting), int32(StateListening))

	go func() {
		defer close(i.serveDone)
		if err := i.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.logger.Error("instance server error", zap.Error(err))
		}
	}()
}

func (i *Instance) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index", gin.H{
		"ID":   i.ID,
		"Port": i.Port,
	})
}

func (i *Instance) handlePing(c *gin.Context) {
	i.pingCount.Add(1)
	i.lastPingAt.Store(time.Now().UnixNano())
	if i.onActivity != nil {
		i.onActivity(i)
	}
	c.String(http.StatusOK, PingReply)
}

// Handler returns the instance's HTTP handler.
func (i *Instance) Handler() http.Handler {
	return i.router
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	return State(i.state.Load())
}

// URL returns the address a browser should open for this instance.
func (i *Instance) URL() string {
	host := i.Host
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s/", net.JoinHostPort(host, strconv.Itoa(i.Port)))
}

// PingCount returns how many pings the instance has served.
func (i *Instance) PingCount() int64 {
	return i.pingCount.Load()
}

// Info returns a safe copy of the instance data for API serialization.
func (i *Instance) Info() *InstanceInfo {
	info := &InstanceInfo{
		ID:        i.ID,
		Port:      i.Port,
		State:     i.State().String(),
		URL:       i.URL(),
		CreatedAt: i.CreatedAt,
		PingCount: i.pingCount.Load(),
	}
	if ns := i.lastPingAt.Load(); ns != 0 {
		t := time.Unix(0, ns)
		info.LastPingAt = &t
	}
	return info
}

// Stop closes the listener and shuts the server down, waiting for in-flight
// requests until ctx expires. Connections still open after that are closed
// forcibly. Stop is idempotent; only the first call does any work.
func (i *Instance) Stop(ctx context.Context) error {
	if !i.state.CompareAndSwap(int32(StateListening), int32(StateDisposed)) {
		i.state.CompareAndSwap(int32(StateStarting), int32(StateDisposed))
		return nil
	}

	shutdownErr := i.server.Shutdown(ctx)
	if shutdownErr != nil {
		i.logger.Warn("graceful shutdown timed out; closing connections", zap.Error(shutdownErr))
		if err := i.server.Close(); err != nil {
			i.logger.Debug("error force-closing instance server", zap.Error(err))
		}
	}

	// Serve closes the listener on return, so the port is free after this.
	select {
	case <-i.serveDone:
	case <-ctx.Done():
		if err := i.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			i.logger.Debug("error closing instance listener", zap.Error(err))
		}
	}

	if shutdownErr != nil {
		return fmt.Errorf("instance %s did not stop gracefully: %w", i.ID, shutdownErr)
	}
	return nil
}
