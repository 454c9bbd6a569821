package websocket

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/kandev/serverpool/internal/pool"
	ws "github.com/kandev/serverpool/pkg/websocket"
)

// ServerPool is the part of the pool manager the gateway drives.
type ServerPool interface {
	List() []string
	Create(ctx context.Context) (*pool.CreateResponse, error)
	Dispose(ctx context.Context, id string) bool
	DisposeAll(ctx context.Context) bool
}

// DisposeRequest is the payload for server.dispose
type DisposeRequest struct {
	ID string `json:"id"`
}

type serverHandlers struct {
	pool   ServerPool
	logger *logger.Logger
}

// RegisterServerHandlers registers the server.* command actions.
func RegisterServerHandlers(d *ws.Dispatcher, serverPool ServerPool, log *logger.Logger) {
	h := &serverHandlers{
		pool:   serverPool,
		logger: log.WithFields(zap.String("component", "ws_server_handlers")),
	}
	d.RegisterFunc(ws.ActionServerStat, h.handleStat)
	d.RegisterFunc(ws.ActionServerSetup, h.handleSetup)
	d.RegisterFunc(ws.ActionServerDispose, h.handleDispose)
	d.RegisterFunc(ws.ActionServerClearAll, h.handleClearAll)
}

func (h *serverHandlers) handleStat(_ context.Context, msg *ws.Message) (*ws.Message, error) {
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"ids": h.pool.List(),
	})
}

func (h *serverHandlers) handleSetup(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	resp, err := h.pool.Create(ctx)
	if err != nil {
		h.logger.Warn("server.setup failed", zap.Error(err))
		return ws.NewError(msg.ID, msg.Action, errorCode(err), err.Error(), nil)
	}
	return ws.NewResponse(msg.ID, msg.Action, resp)
}

func (h *serverHandlers) handleDispose(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req DisposeRequest
	if err := msg.ParsePayload(&req); err != nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
	}
	if req.ID == "" {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeValidation, "id is required", nil)
	}

	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"accepted": h.pool.Dispose(ctx, req.ID),
	})
}

func (h *serverHandlers) handleClearAll(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"accepted": h.pool.DisposeAll(ctx),
	})
}

// errorCode maps pool errors to protocol error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, pool.ErrBind):
		return ws.ErrorCodeBindFailed
	case errors.Is(err, pool.ErrPortsExhausted):
		return ws.ErrorCodePortsExhausted
	case errors.Is(err, pool.ErrManagerClosed):
		return ws.ErrorCodeUnavailable
	default:
		return ws.ErrorCodeInternalError
	}
}
