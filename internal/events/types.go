// Package events provides the event types and helpers of the serverpool event system.
package events

import (
	"fmt"
	"time"

	"github.com/kandev/serverpool/internal/events/bus"
)

// Event types for server instances. Each is also the subject it is published on.
const (
	ServerActivity = "server.activity"
	ServerCreated  = "server.created"
	ServerDisposed = "server.disposed"
)

// SourcePool is the Source of every event emitted by the pool.
const SourcePool = "serverpool"

// Activity is the decoded payload of a ServerActivity event.
type Activity struct {
	InstanceID string    `json:"id"`
	Port       int       `json:"port"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewInstanceEvent builds a pool event carrying an instance's id and port.
func NewInstanceEvent(eventType, instanceID string, port int) *bus.Event {
	return bus.NewEvent(eventType, SourcePool, map[string]interface{}{
		"instance_id": instanceID,
		"port":        port,
	})
}

// DecodeActivity extracts the instance id and port from a pool event.
// Ports decoded from JSON (NATS) arrive as float64.
func DecodeActivity(event *bus.Event) (Activity, error) {
	if event == nil || event.Data == nil {
		return Activity{}, fmt.Errorf("event has no data")
	}
	id, ok := event.Data["instance_id"].(string)
	if !ok || id == "" {
		return Activity{}, fmt.Errorf("event %s has no instance_id", event.ID)
	}

	var port int
	switch p := event.Data["port"].(type) {
	case int:
		port = p
	case int64:
		port = int(p)
	case float64:
		port = int(p)
	default:
		return Activity{}, fmt.Errorf("event %s has no port", event.ID)
	}

	return Activity{InstanceID: id, Port: port, Timestamp: event.Timestamp}, nil
}
