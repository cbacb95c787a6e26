// Package transport implements the WebSocket signaling channel carrying
// request/response and notification stanzas between a focus process and one
// participant's client, the concrete model.StanzaSender this deployment
// wires into Session and the Conference (9. DESIGN NOTES: the core depends
// only on StanzaSender/RequestResponder, never on a transport concretely).
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/iqrouter"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/metrics"
	"github.com/relaymeet/focus/internal/v1/model"
)

// wsConnection narrows *websocket.Conn to what Client needs, so tests can
// supply a fake instead of a real socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

const writeWait = 10 * time.Second

// inboundEnvelope is one client-originated frame: a request stanza plus the
// id the client uses to correlate its reply.
type inboundEnvelope struct {
	ID      string          `json:"id"`
	Element string          `json:"element"`
	Stanza  json.RawMessage `json:"stanza"`
}

// outboundEnvelope is one focus-originated frame: either the reply to a
// request (ID set) or an unprompted notification (ID empty).
type outboundEnvelope struct {
	ID     string `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Client is one participant's WebSocket connection, implementing
// model.StanzaSender over it.
type Client struct {
	conn        wsConnection
	room        model.RoomName
	participant model.ParticipantID
	principal   string
	route       func(ctx context.Context, req iqrouter.Request) (any, error)

	send      chan outboundEnvelope
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func newClient(conn wsConnection, room model.RoomName, participant model.ParticipantID, route func(context.Context, iqrouter.Request) (any, error)) *Client {
	return newAuthenticatedClient(conn, room, participant, "", route)
}

func newAuthenticatedClient(conn wsConnection, room model.RoomName, participant model.ParticipantID, principal string, route func(context.Context, iqrouter.Request) (any, error)) *Client {
	return &Client{
		conn:        conn,
		room:        room,
		participant: participant,
		principal:   principal,
		route:       route,
		send:        make(chan outboundEnvelope, 256),
	}
}

// Send implements model.StanzaSender: push a notification (no correlation
// id) to this participant.
func (c *Client) Send(ctx context.Context, stanza any) error {
	c.trySend(ctx, outboundEnvelope{Result: stanza})
	return nil
}

// trySend enqueues env for delivery, dropping it (with a warning) if the
// queue is full or the connection has already closed. Checking c.closed
// under the lock before selecting on c.send avoids sending on a channel a
// concurrent closeConn is about to close.
func (c *Client) trySend(ctx context.Context, env outboundEnvelope) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.send <- env:
	default:
		logging.Warn(ctx, "client send channel full, dropping frame",
			zap.String("participant", string(c.participant)))
	}
}

// readPump decodes inbound frames and routes them through the IqRouter,
// replying with exactly one outboundEnvelope per decoded text frame. Frames
// that are not text, or that fail to decode, get no reply.
func (c *Client) readPump() {
	defer c.closeConn()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env inboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.Warn(context.Background(), "failed to decode inbound frame", zap.Error(err))
			continue
		}

		req := iqrouter.Request{
			Element:         iqrouter.ElementName(env.Element),
			Room:            c.room,
			From:            c.participant,
			Stanza:          env.Stanza,
			AuthenticatedAs: c.principal,
		}

		resp, err := c.route(context.Background(), req)
		reply := outboundEnvelope{ID: env.ID, Result: resp}
		if err != nil {
			reply.Error = err.Error()
			reply.Result = nil
		}
		c.trySend(context.Background(), reply)
	}
}

func (c *Client) writePump() {
	defer c.closeConn()

	for env := range c.send {
		data, err := json.Marshal(env)
		if err != nil {
			logging.Error(context.Background(), "failed to encode outbound frame", zap.Error(err))
			continue
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		_ = c.conn.Close()
		close(c.send)
		metrics.TransportConnections.Dec()
	})
}

var _ model.StanzaSender = (*Client)(nil)
