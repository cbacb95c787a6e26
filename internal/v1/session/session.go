// Package session implements the per-participant signaling Session (4.B):
// one offer/answer negotiation, then its incremental mutations.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/stanza"
	"go.uber.org/zap"
)

// defaultTimeout is the fixed per-operation response timeout (4.B: "default:
// 15 s for a request/response exchange").
const defaultTimeout = 15 * time.Second

// pending is one outstanding request/response slot, keyed by an id roundTrip
// generates locally and does not put in the stanza (9. DESIGN NOTES:
// "one-shot response slot").
type pending struct {
	done chan struct{}
	resp any
	err  error
}

// Session is the production implementation of 4.B.
type Session struct {
	SID         string
	participant model.ParticipantID
	sender      model.StanzaSender

	mu    sync.Mutex
	state model.SessionState

	pendingMu sync.Mutex
	waiters   map[string]*pending
}

// New constructs a Session bound to one participant's outbound sender.
func New(sid string, participantID model.ParticipantID, sender model.StanzaSender) *Session {
	return &Session{
		SID:         sid,
		participant: participantID,
		sender:      sender,
		state:       model.SessionPending,
		waiters:     make(map[string]*pending),
	}
}

// State returns the Session's current state-machine value.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st model.SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Initiate implements 4.B initiate(): builds and ships a session-initiate,
// then blocks for the peer's session-accept (or failure/timeout).
func (s *Session) Initiate(ctx context.Context, contents []stanza.Content, sources []model.WireContainer, extra []model.PresenceExtension, jsonSources bool) error {
	iq := stanza.JingleIQ{Action: stanza.ActionSessionInitiate, SID: s.SID, Contents: contents}
	if jsonSources {
		iq.CompactSources = sources
	}

	resp, err := s.roundTrip(ctx, iq)
	if err != nil {
		s.setState(model.SessionEnded)
		return err
	}
	if _, ok := resp.(stanza.JingleIQ); ok {
		s.setState(model.SessionActive)
		return nil
	}
	s.setState(model.SessionEnded)
	return focuserr.New(focuserr.BadRequest, "unexpected reply to session-initiate")
}

// ReplaceTransport implements 4.B replaceTransport(): transport
// renegotiation while keeping the session id, valid only from active state.
func (s *Session) ReplaceTransport(ctx context.Context, transport *stanza.Transport) error {
	if s.State() != model.SessionActive {
		return focuserr.New(focuserr.SessionInvalid, "transport-replace on non-active session")
	}
	iq := stanza.JingleIQ{
		Action: stanza.ActionTransportReplace,
		SID:    s.SID,
		Contents: []stanza.Content{{Transport: transport}},
	}
	_, err := s.roundTrip(ctx, iq)
	return err
}

// SendAddSource implements 4.B sendAddSource(). When blocking is false this
// is fire-and-forget; when true it waits for a success answer.
func (s *Session) SendAddSource(sources model.SourceSet, blocking bool) error {
	iq := stanza.JingleIQ{Action: stanza.ActionSourceAdd, SID: s.SID, CompactSources: sources.ToWireContents()}
	if !blocking {
		return s.sender.Send(context.Background(), iq)
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	_, err := s.roundTrip(ctx, iq)
	return err
}

// SendMute pushes an unsolicited forced-mute notification to this session's
// own participant (4.F step 6's moderator-forced mute). Always
// fire-and-forget: the moderator's request is acknowledged separately via
// MuteResult, and the muted participant has no reply to give.
func (s *Session) SendMute(kind model.MediaKind, muted bool) error {
	return s.sender.Send(context.Background(), stanza.MuteNotification{Kind: string(kind), Muted: muted})
}

// SendRemoveSource implements 4.B sendRemoveSource(): always fire-and-forget
// (5. CONCURRENCY / 4.F step 5: "source-remove is never delayed").
func (s *Session) SendRemoveSource(sources model.SourceSet) error {
	iq := stanza.JingleIQ{Action: stanza.ActionSourceRemove, SID: s.SID, CompactSources: sources.ToWireContents()}
	return s.sender.Send(context.Background(), iq)
}

// Terminate implements 4.B terminate(). sendStanza is false when the peer
// already terminated us, to avoid echoing a termination it already knows.
func (s *Session) Terminate(reason, message string, sendStanza bool) error {
	s.abandonWaiters(focuserr.New(focuserr.Cancelled, "session terminated"))
	s.setState(model.SessionEnded)
	if !sendStanza {
		return nil
	}
	iq := stanza.JingleIQ{Action: stanza.ActionSessionTerminate, SID: s.SID, Reason: reason}
	return s.sender.Send(context.Background(), iq)
}

// ProcessIncoming implements 4.B processIncoming(): dispatches
// session-accept, transport-info, source-add, source-remove.
func (s *Session) ProcessIncoming(ctx context.Context, iq stanza.JingleIQ, correlationID string) error {
	switch iq.Action {
	case stanza.ActionSessionAccept, stanza.ActionTransportInfo:
		return s.resolve(correlationID, iq, nil)
	case stanza.ActionSourceAdd, stanza.ActionSourceRemove:
		logging.Info(ctx, "session received source mutation",
			zap.String("sid", s.SID), zap.String("action", string(iq.Action)))
		return nil
	default:
		return focuserr.Tagged(focuserr.BadRequest, "unknown-action", string(iq.Action))
	}
}

func (s *Session) roundTrip(ctx context.Context, iq stanza.JingleIQ) (any, error) {
	id := fmt.Sprintf("%s-%d", s.SID, time.Now().UnixNano())
	p := &pending{done: make(chan struct{})}

	s.pendingMu.Lock()
	s.waiters[id] = p
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.waiters, id)
		s.pendingMu.Unlock()
	}()

	if err := s.sender.Send(ctx, iq); err != nil {
		return nil, focuserr.Wrap(focuserr.NotAuthorized, err, "failed to send stanza")
	}

	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		return nil, focuserr.New(focuserr.Timeout, "no reply within timeout")
	}
}

// LatestPendingID returns the correlation id of the sole outstanding
// request, for inbound replies that arrive over a transport with no slot of
// their own for one (the JSON envelope carries an id for the request it
// opens, not for the focus-initiated round trip it is answering). A
// participant has at most one request-type exchange in flight at a time, so
// this is unambiguous in practice.
func (s *Session) LatestPendingID() (string, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id := range s.waiters {
		return id, true
	}
	return "", false
}

func (s *Session) resolve(id string, resp any, err error) error {
	s.pendingMu.Lock()
	p, ok := s.waiters[id]
	s.pendingMu.Unlock()
	if !ok {
		return focuserr.New(focuserr.ItemNotFound, "no pending request for correlation id")
	}
	p.resp, p.err = resp, err
	close(p.done)
	return nil
}

func (s *Session) abandonWaiters(err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, p := range s.waiters {
		p.err = err
		close(p.done)
		delete(s.waiters, id)
	}
}
