// Package chatroom implements the ChatRoom adapter: the focus's view of one
// MUC room's occupant roster, with an optional cross-instance fan-out so
// every replica that has the same room open converges on one roster.
package chatroom

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/bus"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/metrics"
	"github.com/relaymeet/focus/internal/v1/model"
)

// rosterEvent is the cross-instance fan-out payload published over bus.Service
// for 4.D.1 ("ChatRoom presence diffs ... published on a per-room broadcast
// channel").
type rosterEvent struct {
	Kind    string                     `json:"kind"` // join, leave, kick, role, presence
	ID      model.ParticipantID        `json:"id"`
	Role    model.Role                 `json:"role,omitempty"`
	Presence []model.PresenceExtension `json:"presence,omitempty"`
}

const (
	eventJoin     = "join"
	eventLeave    = "leave"
	eventKick     = "kick"
	eventRole     = "role"
	eventPresence = "presence"
)

// Room is the production model.ChatRoomAdapter for one bare room name.
type Room struct {
	id       model.RoomName
	senderID string
	bus      *bus.Service

	mu        sync.RWMutex
	occupants map[model.ParticipantID]model.Role
	presence  map[model.ParticipantID][]model.PresenceExtension
	local     []model.PresenceExtension // this focus instance's own outbound presence

	onJoin     func(model.ParticipantID)
	onLeave    func(model.ParticipantID)
	onKick     func(model.ParticipantID)
	onRole     func(model.ParticipantID, model.Role)
	onPresence func(model.ParticipantID, []model.PresenceExtension)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Room adapter. busService may be nil for single-instance
// deployments (4.D.1 is then a no-op, as bus.Service already degrades to
// no-op on a nil receiver).
func New(id model.RoomName, busService *bus.Service) *Room {
	r := &Room{
		id:        id,
		senderID:  uuid.NewString(),
		bus:       busService,
		occupants: make(map[model.ParticipantID]model.Role),
		presence:  make(map[model.ParticipantID][]model.PresenceExtension),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Join implements model.ChatRoomAdapter. It starts the cross-instance roster
// subscription, if a bus is configured.
func (r *Room) Join(ctx context.Context) error {
	if r.bus == nil {
		return nil
	}
	r.bus.Subscribe(r.ctx, r.id.Bare(), &r.wg, r.handleRemoteEvent)
	logging.Info(ctx, "chatroom joined", zap.String("room", r.id.Bare()))
	return nil
}

// Leave implements model.ChatRoomAdapter.
func (r *Room) Leave(ctx context.Context) error {
	r.cancel()
	r.wg.Wait()
	return nil
}

func (r *Room) OnOccupantJoin(f func(model.ParticipantID))                         { r.onJoin = f }
func (r *Room) OnOccupantLeave(f func(model.ParticipantID))                        { r.onLeave = f }
func (r *Room) OnOccupantKicked(f func(model.ParticipantID))                       { r.onKick = f }
func (r *Room) OnRoleChanged(f func(model.ParticipantID, model.Role))              { r.onRole = f }
func (r *Room) OnPresenceUpdate(f func(model.ParticipantID, []model.PresenceExtension)) { r.onPresence = f }

// HandleOccupantJoin records a locally-observed join, mirrors it into the
// Redis-backed roster set so another replica can recover it, and fans it out.
func (r *Room) HandleOccupantJoin(ctx context.Context, id model.ParticipantID, role model.Role) {
	r.mu.Lock()
	r.occupants[id] = role
	r.mu.Unlock()

	metrics.RoomParticipants.WithLabelValues(r.id.Bare()).Set(float64(r.occupantCount()))
	if err := r.bus.AddRosterMember(ctx, r.id, bus.RosterMember{ID: id, Role: role}); err != nil {
		logging.Warn(ctx, "chatroom roster add failed", zap.Error(err), zap.String("room", r.id.Bare()))
	}
	if r.onJoin != nil {
		r.onJoin(id)
	}
	r.publish(ctx, rosterEvent{Kind: eventJoin, ID: id, Role: role})
}

// HandleOccupantLeave records a locally-observed departure, removes it from
// the distributed roster set, and fans it out.
func (r *Room) HandleOccupantLeave(ctx context.Context, id model.ParticipantID) {
	r.mu.Lock()
	role := r.occupants[id]
	delete(r.occupants, id)
	delete(r.presence, id)
	r.mu.Unlock()

	if n := r.occupantCount(); n > 0 {
		metrics.RoomParticipants.WithLabelValues(r.id.Bare()).Set(float64(n))
	} else {
		metrics.RoomParticipants.DeleteLabelValues(r.id.Bare())
	}
	if err := r.bus.RemoveRosterMember(ctx, r.id, bus.RosterMember{ID: id, Role: role}); err != nil {
		logging.Warn(ctx, "chatroom roster remove failed", zap.Error(err), zap.String("room", r.id.Bare()))
	}
	if r.onLeave != nil {
		r.onLeave(id)
	}
	r.publish(ctx, rosterEvent{Kind: eventLeave, ID: id})
}

// HandleOccupantKicked records a locally-observed kick, removes it from the
// distributed roster set, and fans it out.
func (r *Room) HandleOccupantKicked(ctx context.Context, id model.ParticipantID) {
	r.mu.Lock()
	role := r.occupants[id]
	delete(r.occupants, id)
	delete(r.presence, id)
	r.mu.Unlock()

	if err := r.bus.RemoveRosterMember(ctx, r.id, bus.RosterMember{ID: id, Role: role}); err != nil {
		logging.Warn(ctx, "chatroom roster remove failed", zap.Error(err), zap.String("room", r.id.Bare()))
	}
	if r.onKick != nil {
		r.onKick(id)
	}
	r.publish(ctx, rosterEvent{Kind: eventKick, ID: id})
}

// HandleRoleChanged records a locally-observed role change, updates the
// occupant's distributed roster entry (its member value is role-keyed, so a
// role change must remove the stale entry before adding the new one), and
// fans it out.
func (r *Room) HandleRoleChanged(ctx context.Context, id model.ParticipantID, role model.Role) {
	r.mu.Lock()
	previous := r.occupants[id]
	r.occupants[id] = role
	r.mu.Unlock()

	if previous != role {
		if err := r.bus.RemoveRosterMember(ctx, r.id, bus.RosterMember{ID: id, Role: previous}); err != nil {
			logging.Warn(ctx, "chatroom roster remove failed", zap.Error(err), zap.String("room", r.id.Bare()))
		}
		if err := r.bus.AddRosterMember(ctx, r.id, bus.RosterMember{ID: id, Role: role}); err != nil {
			logging.Warn(ctx, "chatroom roster add failed", zap.Error(err), zap.String("room", r.id.Bare()))
		}
	}

	if r.onRole != nil {
		r.onRole(id, role)
	}
	r.publish(ctx, rosterEvent{Kind: eventRole, ID: id, Role: role})
}

// HandlePresenceUpdate records locally-observed presence extensions and
// fans them out.
func (r *Room) HandlePresenceUpdate(ctx context.Context, id model.ParticipantID, ext []model.PresenceExtension) {
	r.mu.Lock()
	r.presence[id] = ext
	r.mu.Unlock()

	if r.onPresence != nil {
		r.onPresence(id, ext)
	}
	r.publish(ctx, rosterEvent{Kind: eventPresence, ID: id, Presence: ext})
}

// SetPresenceExtension implements model.ChatRoomAdapter: atomically replace
// every extension of kind with a single new value.
func (r *Room) SetPresenceExtension(kind model.PresenceExtensionKind, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = replaceKind(r.local, nil, []model.PresenceExtension{{Kind: kind, Value: value}})
	return nil
}

// ModifyPresence implements model.ChatRoomAdapter.
func (r *Room) ModifyPresence(remove []model.PresenceExtensionKind, add []model.PresenceExtension) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = replaceKind(r.local, remove, add)
	return nil
}

// LocalPresence returns this instance's own outbound presence snapshot.
func (r *Room) LocalPresence() []model.PresenceExtension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.PresenceExtension, len(r.local))
	copy(out, r.local)
	return out
}

// Roster returns a snapshot of the occupant -> role map.
func (r *Room) Roster() map[model.ParticipantID]model.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.ParticipantID]model.Role, len(r.occupants))
	for k, v := range r.occupants {
		out[k] = v
	}
	return out
}

func (r *Room) occupantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.occupants)
}

func (r *Room) publish(ctx context.Context, ev rosterEvent) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, r.id, "roster", ev, r.senderID, nil); err != nil {
		logging.Warn(ctx, "chatroom roster publish failed", zap.Error(err), zap.String("room", r.id.Bare()))
	}
}

func (r *Room) handleRemoteEvent(payload bus.PubSubPayload) {
	if payload.SenderID == r.senderID {
		return // echo prevention, 4.D.1
	}
	var ev rosterEvent
	if err := json.Unmarshal(payload.Payload, &ev); err != nil {
		logging.Warn(r.ctx, "chatroom roster decode failed", zap.Error(err))
		return
	}

	switch ev.Kind {
	case eventJoin:
		r.HandleOccupantJoin(r.ctx, ev.ID, ev.Role)
	case eventLeave:
		r.HandleOccupantLeave(r.ctx, ev.ID)
	case eventKick:
		r.HandleOccupantKicked(r.ctx, ev.ID)
	case eventRole:
		r.HandleRoleChanged(r.ctx, ev.ID, ev.Role)
	case eventPresence:
		r.HandlePresenceUpdate(r.ctx, ev.ID, ev.Presence)
	}
}

// replaceKind drops every entry whose Kind is in remove or reused by add,
// then appends add, giving ModifyPresence/SetPresenceExtension their atomic
// per-kind replacement semantics.
func replaceKind(current []model.PresenceExtension, remove []model.PresenceExtensionKind, add []model.PresenceExtension) []model.PresenceExtension {
	drop := make(map[model.PresenceExtensionKind]bool, len(remove)+len(add))
	for _, k := range remove {
		drop[k] = true
	}
	for _, a := range add {
		drop[a.Kind] = true
	}
	out := make([]model.PresenceExtension, 0, len(current)+len(add))
	for _, c := range current {
		if !drop[c.Kind] {
			out = append(out, c)
		}
	}
	return append(out, add...)
}
