package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/iqrouter"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/metrics"
	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/ratelimit"
)

// cleanupGracePeriod is how long an empty room's client registry is kept
// around before it is dropped, so a brief reconnect doesn't thrash the map.
const cleanupGracePeriod = 5 * time.Second

// Hub is the process-wide registry of open WebSocket connections, keyed by
// room and participant, and the gin handler that accepts new ones. It is the
// concrete transport underneath every conference.SessionFactory this
// deployment hands to a Conference.
type Hub struct {
	mu             sync.Mutex
	rooms          map[string]map[model.ParticipantID]*Client
	pendingCleanup map[string]*time.Timer

	authority      model.AuthenticationAuthority
	router         *iqrouter.Router
	allowedOrigins []string
	limiter        *ratelimit.RateLimiter

	// OnConnect/OnDisconnect notify the caller's roster tracking (the
	// chatroom.Room bound to the room) that an occupant's connection came
	// up or went away, since this JSON transport doubles as the presence
	// source a real XMPP MUC connection would otherwise provide.
	OnConnect    func(room model.RoomName, participant model.ParticipantID)
	OnDisconnect func(room model.RoomName, participant model.ParticipantID)
}

// NewHub constructs a Hub. authority validates the session token presented
// at connect time (4.I); router is where every inbound frame is dispatched,
// the same Router wired to the gin conference-request handler. limiter may
// be nil, in which case connect-time rate limiting is skipped.
func NewHub(authority model.AuthenticationAuthority, router *iqrouter.Router, allowedOrigins []string, limiter *ratelimit.RateLimiter) *Hub {
	return &Hub{
		rooms:          make(map[string]map[model.ParticipantID]*Client),
		pendingCleanup: make(map[string]*time.Timer),
		authority:      authority,
		router:         router,
		allowedOrigins: allowedOrigins,
		limiter:        limiter,
	}
}

// ServeWs authenticates the session token and upgrades the request to a
// WebSocket connection bound to one room and participant.
func (h *Hub) ServeWs(c *gin.Context) {
	room := model.ParseRoomName(c.Param("room"))
	participant := model.ParticipantID(c.Query("participant"))
	token := c.Query("token")
	machineUID := c.Query("machine_uid")

	if room.Bare() == "" || participant == "" || token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room, participant, and token are required"})
		return
	}

	if h.limiter != nil && !h.limiter.CheckWebSocket(c) {
		return // limiter already wrote the rejection response
	}

	principal, err := h.authority.Validate(c.Request.Context(), token, machineUID)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket session token rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
		return
	}

	if h.limiter != nil {
		if err := h.limiter.CheckWebSocketUser(c.Request.Context(), participant); err != nil {
			logging.Warn(c.Request.Context(), "websocket connect rate limited", zap.String("participant", string(participant)))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections for this participant"})
			return
		}
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return validateOrigin(r, h.allowedOrigins) == nil },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	logging.Info(c.Request.Context(), "websocket session established",
		zap.String("room", room.Bare()), zap.String("participant", string(participant)), zap.String("principal", principal))

	h.HandleConnection(conn, room, participant, principal)
}

// HandleConnection registers conn under (room, participant) and starts its
// read/write pumps. Exported so tests can drive it with a fake wsConnection
// without going through gin.
func (h *Hub) HandleConnection(conn wsConnection, room model.RoomName, participant model.ParticipantID, principal string) *Client {
	client := newAuthenticatedClient(conn, room, participant, principal, h.router.Route)

	h.mu.Lock()
	bare := room.Bare()
	if _, ok := h.rooms[bare]; !ok {
		h.rooms[bare] = make(map[model.ParticipantID]*Client)
	}
	h.rooms[bare][participant] = client
	if timer, ok := h.pendingCleanup[bare]; ok {
		timer.Stop()
		delete(h.pendingCleanup, bare)
	}
	h.mu.Unlock()

	metrics.TransportConnections.Inc()

	go client.writePump()
	go h.runReadPump(client, bare, participant)

	if h.OnConnect != nil {
		h.OnConnect(room, participant)
	}

	return client
}

// runReadPump drives client.readPump and deregisters it once the connection
// closes, scheduling a grace-period sweep of the room entry if it is left
// empty.
func (h *Hub) runReadPump(client *Client, bare string, participant model.ParticipantID) {
	client.readPump()
	h.unregister(bare, participant, client)
	if h.OnDisconnect != nil {
		h.OnDisconnect(model.ParseRoomName(bare), participant)
	}
}

func (h *Hub) unregister(bare string, participant model.ParticipantID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[bare]; ok {
		if room[participant] == client {
			delete(room, participant)
		}
		if len(room) == 0 {
			h.scheduleCleanup(bare)
		}
	}
}

// scheduleCleanup drops an empty room's registry entry after a grace period,
// mirroring the conference store's own tolerance for a participant's brief
// disconnect-reconnect. Caller holds h.mu.
func (h *Hub) scheduleCleanup(bare string) {
	if _, ok := h.pendingCleanup[bare]; ok {
		return
	}
	h.pendingCleanup[bare] = time.AfterFunc(cleanupGracePeriod, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if room, ok := h.rooms[bare]; ok && len(room) == 0 {
			delete(h.rooms, bare)
		}
		delete(h.pendingCleanup, bare)
	})
}

func (h *Hub) lookup(room model.RoomName, participant model.ParticipantID) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[room.Bare()]; ok {
		return room[participant]
	}
	return nil
}

// Shutdown closes every open connection. Each Client's own close path
// decrements TransportConnections and unblocks its pumps.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := make([]*Client, 0)
	for _, room := range h.rooms {
		for _, client := range room {
			clients = append(clients, client)
		}
	}
	for _, timer := range h.pendingCleanup {
		timer.Stop()
	}
	h.pendingCleanup = make(map[string]*time.Timer)
	h.mu.Unlock()

	for _, client := range clients {
		client.closeConn()
	}
	return nil
}

// validateOrigin checks the request's Origin header against the allowed
// list, permitting requests with no Origin header (non-browser clients).
func validateOrigin(r *http.Request, allowed []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	for _, a := range allowed {
		if a == origin || a == "*" {
			return nil
		}
	}
	return focuserr.New(focuserr.Forbidden, "origin not allowed: "+origin)
}
