package websocket

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/kandev/serverpool/internal/events/bus"
	ws "github.com/kandev/serverpool/pkg/websocket"
)

// Gateway represents the WebSocket command surface of the pool
type Gateway struct {
	Hub        *Hub
	Dispatcher *ws.Dispatcher
	Handler    *Handler

	eventBus bus.EventBus
	logger   *logger.Logger
}

// NewGateway creates a new WebSocket gateway with all handlers registered
func NewGateway(serverPool ServerPool, eventBus bus.EventBus, log *logger.Logger) *Gateway {
	dispatcher := ws.NewDispatcher()
	hub := NewHub(dispatcher, log)
	handler := NewHandler(hub, log)

	RegisterHealthHandler(dispatcher)
	RegisterServerHandlers(dispatcher, serverPool, log)

	return &Gateway{
		Hub:        hub,
		Dispatcher: dispatcher,
		Handler:    handler,
		eventBus:   eventBus,
		logger:     log,
	}
}

// Start runs the hub and forwards pool events to clients until ctx is done.
func (g *Gateway) Start(ctx context.Context) {
	RegisterServerNotifications(ctx, g.eventBus, g.Hub, g.logger)
	go g.Hub.Run(ctx)
}

// SetupRoutes adds the WebSocket routes to the Gin router
func (g *Gateway) SetupRoutes(router gin.IRouter) {
	router.GET("/ws", g.Handler.HandleConnection)
}
