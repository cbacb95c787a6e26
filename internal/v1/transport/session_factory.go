package transport

import (
	"context"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/model"
)

// participantSender is a model.StanzaSender bound to one (room, participant)
// pair. It resolves the live *Client at send time rather than capturing one,
// since a Session can be created before its participant's WebSocket connects
// and must keep working across a reconnect.
type participantSender struct {
	hub         *Hub
	room        model.RoomName
	participant model.ParticipantID
}

// Send implements model.StanzaSender.
func (s *participantSender) Send(ctx context.Context, stanza any) error {
	client := s.hub.lookup(s.room, s.participant)
	if client == nil {
		return focuserr.New(focuserr.ServiceUnavailable, "participant has no open connection")
	}
	return client.Send(ctx, stanza)
}

var _ model.StanzaSender = (*participantSender)(nil)

// RoomSessionFactory is the conference.SessionFactory for one room, backed
// by this Hub's connection registry.
type RoomSessionFactory struct {
	hub  *Hub
	room model.RoomName
}

// SessionFactoryFor returns the SessionFactory a Conference for room should
// use to build its Sessions' StanzaSenders.
func (h *Hub) SessionFactoryFor(room model.RoomName) *RoomSessionFactory {
	return &RoomSessionFactory{hub: h, room: room}
}

// NewSender implements conference.SessionFactory.
func (f *RoomSessionFactory) NewSender(id model.ParticipantID) model.StanzaSender {
	return &participantSender{hub: f.hub, room: f.room, participant: id}
}
