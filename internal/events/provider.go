package events

import (
	"fmt"
	"strings"

	"github.com/kandev/serverpool/internal/common/config"
	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/kandev/serverpool/internal/events/bus"
)

// ProvidedBus wraps the active event bus implementation.
type ProvidedBus struct {
	Bus    bus.EventBus
	Memory *bus.MemoryEventBus
	NATS   *bus.NATSEventBus
}

// Provide builds the configured event bus: NATS when a URL is set, in-memory otherwise.
func Provide(cfg *config.Config, log *logger.Logger) (*ProvidedBus, func(), error) {
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		return &ProvidedBus{Bus: natsBus, NATS: natsBus}, natsBus.Close, nil
	}

	memBus := bus.NewMemoryEventBus(log)
	return &ProvidedBus{Bus: memBus, Memory: memBus}, memBus.Close, nil
}
