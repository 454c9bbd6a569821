// Package api provides the HTTP REST control API of the server pool.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/serverpool/internal/common/config"
	"github.com/kandev/serverpool/internal/common/httpmw"
	"github.com/kandev/serverpool/internal/common/logger"
	gateway "github.com/kandev/serverpool/internal/gateway/websocket"
	"github.com/kandev/serverpool/internal/pool"
)

// Error codes returned in the "code" field of failed responses.
const (
	CodeBindFailed     = "BIND_FAILED"
	CodePortsExhausted = "PORTS_EXHAUSTED"
	CodeUnavailable    = "UNAVAILABLE"
	CodeNotFound       = "NOT_FOUND"
	CodeInternalError  = "INTERNAL_ERROR"
)

// ServerPool is the pool manager surface exposed over REST.
type ServerPool interface {
	List() []string
	ListInfo() []*pool.InstanceInfo
	Get(id string) (*pool.Instance, bool)
	Create(ctx context.Context) (*pool.CreateResponse, error)
	Dispose(ctx context.Context, id string) bool
	DisposeAll(ctx context.Context) bool
}

// ControlServer provides server CRUD endpoints and the WebSocket gateway on the control port.
type ControlServer struct {
	cfg     *config.Config
	pool    ServerPool
	gateway *gateway.Gateway
	logger  *logger.Logger
	router  *gin.Engine
}

// NewControlServer creates a new ControlServer. gw may be nil to serve REST only.
func NewControlServer(cfg *config.Config, serverPool ServerPool, gw *gateway.Gateway, log *logger.Logger) *ControlServer {
	gin.SetMode(gin.ReleaseMode)

	cs := &ControlServer{
		cfg:     cfg,
		pool:    serverPool,
		gateway: gw,
		logger:  log.WithFields(zap.String("component", "control-server")),
		router:  gin.New(),
	}

	cs.setupRoutes()
	return cs
}

// Router returns the HTTP handler for the control server.
func (m *ControlServer) Router() http.Handler {
	return m.router
}

func (m *ControlServer) setupRoutes() {
	m.router.Use(gin.Recovery())
	m.router.Use(httpmw.OtelTracing("serverpool-control"))
	m.router.Use(httpmw.RequestLogger(m.logger, "control"))

	m.router.GET("/health", m.handleHealth)

	api := m.router.Group("/api/v1")
	api.Use(httpmw.RateLimit(m.cfg.API.RateLimit, m.cfg.API.RateBurst, m.logger))
	api.GET("/servers", m.handleListServers)
	api.POST("/servers", m.handleCreateServer)
	api.DELETE("/servers", m.handleDisposeAll)
	api.GET("/servers/:id", m.handleGetServer)
	api.DELETE("/servers/:id", m.handleDisposeServer)

	if m.gateway != nil {
		m.gateway.SetupRoutes(m.router)
	}
}

func (m *ControlServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"instances": len(m.pool.List()),
	})
}

func (m *ControlServer) handleListServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ids":     m.pool.List(),
		"servers": m.pool.ListInfo(),
	})
}

func (m *ControlServer) handleCreateServer(c *gin.Context) {
	resp, err := m.pool.Create(c.Request.Context())
	if err != nil {
		status, code := errorStatus(err)
		c.JSON(status, gin.H{
			"code":  code,
			"error": "failed to create server: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (m *ControlServer) handleGetServer(c *gin.Context) {
	inst, found := m.pool.Get(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  CodeNotFound,
			"error": "server not found",
		})
		return
	}

	c.JSON(http.StatusOK, inst.Info())
}

func (m *ControlServer) handleDisposeServer(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"accepted": m.pool.Dispose(c.Request.Context(), c.Param("id")),
	})
}

func (m *ControlServer) handleDisposeAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"accepted": m.pool.DisposeAll(c.Request.Context()),
	})
}

// errorStatus maps a pool error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pool.ErrBind):
		return http.StatusServiceUnavailable, CodeBindFailed
	case errors.Is(err, pool.ErrPortsExhausted):
		return http.StatusServiceUnavailable, CodePortsExhausted
	case errors.Is(err, pool.ErrManagerClosed):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}
