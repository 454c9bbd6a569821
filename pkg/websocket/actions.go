package websocket

// Action constants for WebSocket messages
const (
	// Health
	ActionHealthCheck = "health.check"

	// Server pool commands
	ActionServerStat     = "server.stat"
	ActionServerSetup    = "server.setup"
	ActionServerDispose  = "server.dispose"
	ActionServerClearAll = "server.clearAll"

	// Server pool notifications (server -> client)
	ActionServerActivity = "server.activity"
	ActionServerCreated  = "server.created"
	ActionServerDisposed = "server.disposed"
)

// Error codes
const (
	ErrorCodeBadRequest     = "BAD_REQUEST"
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeInternalError  = "INTERNAL_ERROR"
	ErrorCodeValidation     = "VALIDATION_ERROR"
	ErrorCodeUnknownAction  = "UNKNOWN_ACTION"
	ErrorCodeBindFailed     = "BIND_FAILED"
	ErrorCodePortsExhausted = "PORTS_EXHAUSTED"
	ErrorCodeUnavailable    = "UNAVAILABLE"
)
