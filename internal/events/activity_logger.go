package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/kandev/serverpool/internal/events/bus"
)

// SubscribeActivityLogger logs every server activity event seen on the bus.
func SubscribeActivityLogger(eventBus bus.EventBus, log *logger.Logger) (bus.Subscription, error) {
	log = log.WithFields(zap.String("component", "activity-logger"))

	return eventBus.Subscribe(ServerActivity, func(_ context.Context, event *bus.Event) error {
		activity, err := DecodeActivity(event)
		if err != nil {
			log.Warn("malformed activity event", zap.Error(err))
			return nil
		}
		log.WithInstance(activity.InstanceID, activity.Port).Info("a user interaction occurred on a client",
			zap.Time("at", activity.Timestamp))
		return nil
	})
}
