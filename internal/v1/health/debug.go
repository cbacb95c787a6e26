package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/store"
)

// DebugHandler serves the read-only /debug endpoints (6. EXTERNAL INTERFACES,
// "Debug": "all endpoints are read-only and safe under concurrent calls").
type DebugHandler struct {
	store *store.Store
}

// NewDebugHandler constructs a DebugHandler over a ConferenceStore.
func NewDebugHandler(s *store.Store) *DebugHandler {
	return &DebugHandler{store: s}
}

type conferenceSnapshot struct {
	Room              string    `json:"room"`
	State             string    `json:"state"`
	CreatedAt         time.Time `json:"createdAt"`
	HasHadParticipant bool      `json:"hasHadParticipant"`
	ParticipantCount  int       `json:"participantCount"`
}

// Debug implements GET /debug: a summary snapshot of every tracked room.
func (h *DebugHandler) Debug(c *gin.Context) {
	rooms := h.store.Snapshot()
	out := make([]conferenceSnapshot, 0, len(rooms))
	for _, room := range rooms {
		conf, ok := h.store.LookupByRoom(model.ParseRoomName(room))
		if !ok {
			continue
		}
		out = append(out, toSnapshot(room, conf))
	}
	c.JSON(http.StatusOK, gin.H{"conferences": out})
}

// Conferences implements GET /debug/conferences: the bare array of room names.
func (h *DebugHandler) Conferences(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Snapshot())
}

// Conference implements GET /debug/conference/{id}.
func (h *DebugHandler) Conference(c *gin.Context) {
	room := c.Param("id")
	conf, ok := h.store.LookupByRoom(model.ParseRoomName(room))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, toSnapshot(room, conf))
}

func toSnapshot(room string, conf store.Conference) conferenceSnapshot {
	return conferenceSnapshot{
		Room:              room,
		State:             string(conf.State()),
		CreatedAt:         conf.CreatedAt(),
		HasHadParticipant: conf.HasHadParticipant(),
		ParticipantCount:  conf.ParticipantCount(),
	}
}
