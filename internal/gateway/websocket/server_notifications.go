package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/kandev/serverpool/internal/events"
	"github.com/kandev/serverpool/internal/events/bus"
	ws "github.com/kandev/serverpool/pkg/websocket"
)

// ServerEventBroadcaster forwards pool events from the bus to every connected client.
type ServerEventBroadcaster struct {
	hub           *Hub
	subscriptions []bus.Subscription
	logger        *logger.Logger
}

// RegisterServerNotifications subscribes the hub to pool events until ctx is done.
func RegisterServerNotifications(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) *ServerEventBroadcaster {
	b := &ServerEventBroadcaster{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws-server-broadcaster")),
	}
	if eventBus == nil {
		return b
	}

	b.subscribe(eventBus, events.ServerActivity, ws.ActionServerActivity)
	b.subscribe(eventBus, events.ServerCreated, ws.ActionServerCreated)
	b.subscribe(eventBus, events.ServerDisposed, ws.ActionServerDisposed)

	go func() {
		<-ctx.Done()
		b.Close()
	}()

	return b
}

// Close drops every bus subscription.
func (b *ServerEventBroadcaster) Close() {
	for _, sub := range b.subscriptions {
		if sub != nil && sub.IsValid() {
			_ = sub.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

func (b *ServerEventBroadcaster) subscribe(eventBus bus.EventBus, subject, action string) {
	sub, err := eventBus.Subscribe(subject, func(_ context.Context, event *bus.Event) error {
		activity, err := events.DecodeActivity(event)
		if err != nil {
			b.logger.Warn("dropping malformed pool event", zap.String("subject", subject), zap.Error(err))
			return nil
		}
		msg, err := ws.NewNotification(action, activity)
		if err != nil {
			b.logger.Error("failed to build websocket notification", zap.String("action", action), zap.Error(err))
			return nil
		}
		b.hub.Broadcast(msg)
		return nil
	})
	if err != nil {
		b.logger.Error("failed to subscribe to events", zap.String("subject", subject), zap.Error(err))
		return
	}
	b.subscriptions = append(b.subscriptions, sub)
}
