package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymeet/focus/internal/v1/iqrouter"
	"github.com/relaymeet/focus/internal/v1/model"
)

// fakeConn is an in-memory wsConnection a test drives directly instead of
// opening a real socket.
type fakeConn struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 8),
		outbound: make(chan []byte, 8),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, websocket.ErrCloseSent
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case f.outbound <- append([]byte(nil), data...):
		return nil
	case <-f.closed:
		return websocket.ErrCloseSent
	}
}

func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func TestClient_RoutesInboundFrameAndRepliesWithResult(t *testing.T) {
	conn := newFakeConn()
	route := func(ctx context.Context, req iqrouter.Request) (any, error) {
		assert.Equal(t, iqrouter.ElementName("mute"), req.Element)
		return "muted", nil
	}
	c := newClient(conn, model.ParseRoomName("standup"), model.ParticipantID("alice"), route)

	go c.writePump()
	go c.readPump()
	defer c.closeConn()

	conn.inbound <- []byte(`{"id":"r1","element":"mute","stanza":{}}`)

	select {
	case data := <-conn.outbound:
		var env outboundEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, "r1", env.ID)
		assert.Equal(t, "muted", env.Result)
		assert.Empty(t, env.Error)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestClient_RouteErrorIsReturnedInEnvelope(t *testing.T) {
	conn := newFakeConn()
	route := func(ctx context.Context, req iqrouter.Request) (any, error) {
		return nil, assert.AnError
	}
	c := newClient(conn, model.ParseRoomName("standup"), model.ParticipantID("bob"), route)

	go c.writePump()
	go c.readPump()
	defer c.closeConn()

	conn.inbound <- []byte(`{"id":"r2","element":"jingle","stanza":{}}`)

	select {
	case data := <-conn.outbound:
		var env outboundEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, "r2", env.ID)
		assert.Nil(t, env.Result)
		assert.NotEmpty(t, env.Error)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestClient_SendPushesNotificationWithoutID(t *testing.T) {
	conn := newFakeConn()
	c := newClient(conn, model.ParseRoomName("standup"), model.ParticipantID("carol"), nil)

	go c.writePump()
	defer c.closeConn()

	require.NoError(t, c.Send(context.Background(), map[string]string{"kind": "source-add"}))

	select {
	case data := <-conn.outbound:
		var env outboundEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Empty(t, env.ID)
		assert.NotNil(t, env.Result)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestClient_SendAfterCloseIsANoop(t *testing.T) {
	conn := newFakeConn()
	c := newClient(conn, model.ParseRoomName("standup"), model.ParticipantID("dave"), nil)
	c.closeConn()

	assert.NoError(t, c.Send(context.Background(), "anything"))
}
