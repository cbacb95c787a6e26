package main

import (
	"context"
	"encoding/json"

	"github.com/relaymeet/focus/internal/v1/conference"
	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/iqrouter"
	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/stanza"
	"github.com/relaymeet/focus/internal/v1/store"
)

// dispatcher owns the iqrouter handlers: the global conference-less ones
// (conference, login, logout) and the per-conference ones reached once a
// room exists. It is the only place that reaches past store.Conference's
// narrow interface to the concrete *conference.Conference.
type dispatcher struct {
	store      *store.Store
	authority  model.AuthenticationAuthority
	authRequired bool
	newMeetingID func() model.MeetingID
}

// decodeStanza reads req into T, whether it arrived as the json.RawMessage
// every WebSocket frame carries or as an already-typed value an in-process
// caller (e.g. the HTTP conference-request handler) constructed directly.
func decodeStanza[T any](req any) (T, error) {
	var v T
	if typed, ok := req.(T); ok {
		return typed, nil
	}
	raw, ok := req.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(req)
		if err != nil {
			return v, focuserr.Wrap(focuserr.BadRequest, err, "failed to re-encode stanza")
		}
		raw = b
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, focuserr.Wrap(focuserr.BadRequest, err, "failed to decode stanza")
	}
	return v, nil
}

// conferenceFor resolves req.Room to its live *conference.Conference, the
// step every per-conference handler below shares.
func (d *dispatcher) conferenceFor(room model.RoomName) (*conference.Conference, error) {
	c, ok := d.store.LookupByRoom(room)
	if !ok {
		return nil, focuserr.New(focuserr.ItemNotFound, "no conference for room")
	}
	conf, ok := c.(*conference.Conference)
	if !ok {
		return nil, focuserr.New(focuserr.InternalServer, "conference store entry has unexpected type")
	}
	return conf, nil
}

// global handles conference-less elements: conference-request (admission,
// 4.F step 2), login, and logout.
func (d *dispatcher) global(ctx context.Context, req iqrouter.Request) (any, error) {
	switch req.Element {
	case iqrouter.ElementConference:
		return d.handleConferenceRequest(ctx, req)
	case iqrouter.ElementLogin:
		return d.handleLogin(ctx, req)
	case iqrouter.ElementLogout:
		return d.handleLogout(ctx, req)
	default:
		return nil, focuserr.Tagged(focuserr.BadRequest, "unrecognized-element", string(req.Element))
	}
}

func (d *dispatcher) handleConferenceRequest(ctx context.Context, req iqrouter.Request) (any, error) {
	body, err := decodeStanza[stanza.ConferenceRequest](req.Stanza)
	if err != nil {
		return nil, err
	}
	room := model.ParseRoomName(body.Room)

	meetingID := model.MeetingID("")
	if d.newMeetingID != nil {
		meetingID = d.newMeetingID()
	}
	conf, err := d.store.GetOrCreate(room, meetingID)
	if err != nil {
		return nil, err
	}
	c, ok := conf.(*conference.Conference)
	if !ok {
		return nil, focuserr.New(focuserr.InternalServer, "conference store entry has unexpected type")
	}

	return c.HandleConferenceRequest(ctx, conference.AdmissionRequest{
		Stanza:          body,
		AuthenticatedAs: req.AuthenticatedAs,
		AuthRequired:    d.authRequired,
	})
}

func (d *dispatcher) handleLogin(ctx context.Context, req iqrouter.Request) (any, error) {
	body, err := decodeStanza[stanza.LoginRequest](req.Stanza)
	if err != nil {
		return nil, err
	}
	token, err := d.authority.Authenticate(ctx, body.Principal, body.MachineUID)
	if err != nil {
		return nil, err
	}
	return stanza.LoginResult{Token: token}, nil
}

func (d *dispatcher) handleLogout(ctx context.Context, req iqrouter.Request) (any, error) {
	body, err := decodeStanza[stanza.LogoutRequest](req.Stanza)
	if err != nil {
		return nil, err
	}
	if err := d.authority.Logout(ctx, body.Token); err != nil {
		return nil, err
	}
	return stanza.LogoutResult{}, nil
}

// handleJingle implements the jingle element: today only session-accept is
// meaningful inbound (4.F step 4); transport-info is relayed to the pending
// Session round trip, anything else is rejected.
func (d *dispatcher) handleJingle(ctx context.Context, req iqrouter.Request) (any, error) {
	conf, err := d.conferenceFor(req.Room)
	if err != nil {
		return nil, err
	}
	iq, err := decodeStanza[stanza.JingleIQ](req.Stanza)
	if err != nil {
		return nil, err
	}

	switch iq.Action {
	case stanza.ActionSessionAccept:
		sources, err := wireSources(iq)
		if err != nil {
			return nil, err
		}
		// Best-effort: a session-accept answers the offer's blocked Initiate
		// call, but topology validation below is the operation that matters
		// even if Initiate already gave up waiting.
		_ = conf.ResolvePendingSession(req.From, iq)
		if err := conf.HandleSessionAccept(req.From, sources); err != nil {
			return nil, err
		}
		return stanza.JingleIQ{Action: stanza.ActionSessionAccept, SID: iq.SID}, nil

	case stanza.ActionTransportInfo:
		return nil, conf.ResolvePendingSession(req.From, iq)

	default:
		return nil, focuserr.Tagged(focuserr.BadRequest, "unhandled-jingle-action", string(iq.Action))
	}
}

func wireSources(iq stanza.JingleIQ) (model.SourceSet, error) {
	if len(iq.CompactSources) > 0 {
		return model.ParseWireContents(iq.CompactSources)
	}
	return model.NewSourceSet(nil, nil)
}

func (d *dispatcher) handleMute(kind model.MediaKind) iqrouter.Handler {
	return func(ctx context.Context, req iqrouter.Request) (any, error) {
		conf, err := d.conferenceFor(req.Room)
		if err != nil {
			return nil, err
		}
		body, err := decodeStanza[stanza.MuteRequest](req.Stanza)
		if err != nil {
			return nil, err
		}

		if body.Muted {
			if err := conf.MuteParticipant(req.From, body.Target, kind); err != nil {
				return nil, err
			}
			return stanza.MuteResult{}, nil
		}

		if body.Target != req.From {
			return nil, focuserr.New(focuserr.Forbidden, "a participant may only request its own unmute")
		}
		if err := conf.RequestUnmute(body.Target, kind); err != nil {
			return nil, err
		}
		return stanza.MuteResult{}, nil
	}
}

func (d *dispatcher) handleJibri(ctx context.Context, req iqrouter.Request) (any, error) {
	conf, err := d.conferenceFor(req.Room)
	if err != nil {
		return nil, err
	}
	body, err := decodeStanza[stanza.JibriRequest](req.Stanza)
	if err != nil {
		return nil, err
	}
	if err := conf.HandleJibri(ctx, req.From, body.Action, body.StreamID); err != nil {
		return nil, err
	}
	return stanza.JibriResult{}, nil
}

func (d *dispatcher) handleJigasi(ctx context.Context, req iqrouter.Request) (any, error) {
	conf, err := d.conferenceFor(req.Room)
	if err != nil {
		return nil, err
	}
	body, err := decodeStanza[stanza.JigasiRequest](req.Stanza)
	if err != nil {
		return nil, err
	}
	if err := conf.HandleJigasi(ctx, req.From, body.Action, body.Destination); err != nil {
		return nil, err
	}
	return stanza.JigasiResult{}, nil
}

func (d *dispatcher) handleDial(ctx context.Context, req iqrouter.Request) (any, error) {
	conf, err := d.conferenceFor(req.Room)
	if err != nil {
		return nil, err
	}
	body, err := decodeStanza[stanza.DialRequest](req.Stanza)
	if err != nil {
		return nil, err
	}
	if err := conf.HandleDial(ctx, req.From, body.Number); err != nil {
		return nil, err
	}
	return stanza.DialResult{}, nil
}

func (d *dispatcher) handleRoomMetadata(ctx context.Context, req iqrouter.Request) (any, error) {
	conf, err := d.conferenceFor(req.Room)
	if err != nil {
		return nil, err
	}
	body, err := decodeStanza[stanza.RoomMetadataRequest](req.Stanza)
	if err != nil {
		return nil, err
	}
	if err := conf.HandleRoomMetadata(req.From, body.Key, body.Value); err != nil {
		return nil, err
	}
	return stanza.RoomMetadataResult{}, nil
}

// dispatchMap builds the per-conference element -> handler table iqrouter.New
// takes, wired against d.
func (d *dispatcher) dispatchMap() map[iqrouter.ElementName]iqrouter.Handler {
	return map[iqrouter.ElementName]iqrouter.Handler{
		iqrouter.ElementJingle:       d.handleJingle,
		iqrouter.ElementMute:         d.handleMute(model.MediaAudio),
		iqrouter.ElementMuteVideo:    d.handleMute(model.MediaVideo),
		iqrouter.ElementJibri:        d.handleJibri,
		iqrouter.ElementJigasi:       d.handleJigasi,
		iqrouter.ElementDial:         d.handleDial,
		iqrouter.ElementRoomMetadata: d.handleRoomMetadata,
	}
}
