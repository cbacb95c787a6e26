package main

import (
	"context"
	"sync"

	"github.com/relaymeet/focus/internal/v1/chatroom"
	"github.com/relaymeet/focus/internal/v1/model"
)

// roomRegistry maps a bare room name to its chatroom.Room, letting the
// WebSocket hub's connect/disconnect events drive occupant join/leave the
// way a real MUC connection would (transport/hub.go's OnConnect/OnDisconnect
// hooks exist for exactly this).
type roomRegistry struct {
	mu    sync.Mutex
	rooms map[string]*chatroom.Room
}

func newRoomRegistry() *roomRegistry {
	return &roomRegistry{rooms: make(map[string]*chatroom.Room)}
}

func (r *roomRegistry) register(bare string, room *chatroom.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[bare] = room
}

func (r *roomRegistry) unregister(bare string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, bare)
}

func (r *roomRegistry) get(bare string) (*chatroom.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[bare]
	return room, ok
}

// handleConnect is wired to transport.Hub.OnConnect. The first occupant of a
// room becomes its moderator, matching the convention the admission gate
// otherwise has no other signal to establish.
func (r *roomRegistry) handleConnect(room model.RoomName, participant model.ParticipantID) {
	chatRoom, ok := r.get(room.Bare())
	if !ok {
		return
	}
	role := model.RoleGuest
	if len(chatRoom.Roster()) == 0 {
		role = model.RoleModer
	}
	chatRoom.HandleOccupantJoin(context.Background(), participant, role)
}

// handleDisconnect is wired to transport.Hub.OnDisconnect.
func (r *roomRegistry) handleDisconnect(room model.RoomName, participant model.ParticipantID) {
	chatRoom, ok := r.get(room.Bare())
	if !ok {
		return
	}
	chatRoom.HandleOccupantLeave(context.Background(), participant)
}
