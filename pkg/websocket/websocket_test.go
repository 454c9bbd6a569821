package websocket

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RoutesByAction(t *testing.T) {
	d := NewDispatcher()
	d.RegisterFunc(ActionHealthCheck, func(_ context.Context, msg *Message) (*Message, error) {
		return NewResponse(msg.ID, msg.Action, map[string]string{"status": "ok"})
	})
	assert.True(t, d.HasHandler(ActionHealthCheck))
	assert.False(t, d.HasHandler(ActionServerSetup))

	req, err := NewRequest("req-1", ActionHealthCheck, nil)
	require.NoError(t, err)

	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, MessageTypeResponse, resp.Type)

	var payload map[string]string
	require.NoError(t, resp.ParsePayload(&payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestDispatcher_UnknownAction(t *testing.T) {
	d := NewDispatcher()

	req, err := NewRequest("req-2", "server.explode", map[string]string{})
	require.NoError(t, err)

	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeError, resp.Type)
	assert.Equal(t, "req-2", resp.ID)

	errPayload, ok := resp.ParseError()
	require.True(t, ok)
	assert.Equal(t, ErrorCodeUnknownAction, errPayload.Code)
	assert.Contains(t, errPayload.Message, "server.explode")
}

func TestMessage_Envelope(t *testing.T) {
	msg, err := NewNotification(ActionServerActivity, map[string]interface{}{"id": "abc", "port": 10086})
	require.NoError(t, err)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "notification", decoded["type"])
	assert.Equal(t, ActionServerActivity, decoded["action"])
	assert.NotContains(t, decoded, "id", "notifications carry no request id")
	assert.Contains(t, decoded, "timestamp")

	payload := decoded["payload"].(map[string]interface{})
	assert.Equal(t, "abc", payload["id"])
	assert.Equal(t, float64(10086), payload["port"])
}

func TestMessage_ParsePayloadEmpty(t *testing.T) {
	msg := &Message{Action: ActionServerStat}
	var v struct{ ID string }
	assert.NoError(t, msg.ParsePayload(&v))

	_, ok := msg.ParseError()
	assert.False(t, ok)
}
