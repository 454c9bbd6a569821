package events

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kandev/serverpool/internal/common/config"
	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/kandev/serverpool/internal/events/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeActivity(t *testing.T) {
	t.Run("in-process event", func(t *testing.T) {
		ev := NewInstanceEvent(ServerActivity, "abc-123", 10086)

		act, err := DecodeActivity(ev)
		require.NoError(t, err)
		assert.Equal(t, "abc-123", act.InstanceID)
		assert.Equal(t, 10086, act.Port)
		assert.Equal(t, ev.Timestamp, act.Timestamp)
		assert.Equal(t, SourcePool, ev.Source)
	})

	t.Run("event that travelled as JSON", func(t *testing.T) {
		raw, err := json.Marshal(NewInstanceEvent(ServerActivity, "def-456", 10087))
		require.NoError(t, err)
		var ev bus.Event
		require.NoError(t, json.Unmarshal(raw, &ev))

		act, err := DecodeActivity(&ev)
		require.NoError(t, err)
		assert.Equal(t, "def-456", act.InstanceID)
		assert.Equal(t, 10087, act.Port)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := DecodeActivity(nil)
		assert.Error(t, err)

		_, err = DecodeActivity(bus.NewEvent(ServerActivity, SourcePool, map[string]interface{}{"port": 1}))
		assert.Error(t, err)

		_, err = DecodeActivity(bus.NewEvent(ServerActivity, SourcePool, map[string]interface{}{"instance_id": "x"}))
		assert.Error(t, err)
	})
}

func TestProvide_DefaultsToMemory(t *testing.T) {
	provided, cleanup, err := Provide(&config.Config{}, logger.NewNop())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, provided.Memory)
	assert.Nil(t, provided.NATS)
	assert.True(t, provided.Bus.IsConnected())
}

func TestSubscribeActivityLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "info", Format: "json", OutputPath: path})
	require.NoError(t, err)

	eventBus := bus.NewMemoryEventBus(logger.NewNop())
	defer eventBus.Close()

	sub, err := SubscribeActivityLogger(eventBus, log)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, eventBus.Publish(context.Background(), ServerActivity, NewInstanceEvent(ServerActivity, "abc", 10086)))

	require.Eventually(t, func() bool {
		_ = log.Sync()
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), "a user interaction occurred on a client")
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"instance_id":"abc"`)
	assert.Contains(t, string(data), `"port":10086`)
}
