// Package conference implements the Conference orchestrator (4.F): the
// component that joins a room, admits participants, negotiates their
// Sessions, and keeps every participant's view of the source topology
// converged.
package conference

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/participant"
	"github.com/relaymeet/focus/internal/v1/session"
)

// startTimeout bounds how long a freshly-created conference waits for its
// first participant before ConferenceStore's sweeper stops it (4.G).
const startTimeout = 60 * time.Second

// featureDiscoveryTimeout bounds feature discovery per participant
// (4.F step 3, 5. CONCURRENCY).
const featureDiscoveryTimeout = 5 * time.Second

// FeatureDiscoverer performs the one-shot capability probe against a newly
// joined occupant. The production implementation round-trips a disco#info
// style stanza; tests supply a canned responder.
type FeatureDiscoverer interface {
	Discover(ctx context.Context, id model.ParticipantID) (model.Capabilities, error)
}

// SessionFactory builds the StanzaSender a new Session sends over. The
// transport (MUC connection, HTTP long-poll, whatever carries stanzas to
// this participant) is supplied by the caller composing the focus.
type SessionFactory interface {
	NewSender(id model.ParticipantID) model.StanzaSender
}

// Config is the per-conference construction input.
type Config struct {
	Room         model.RoomName
	MeetingID    model.MeetingID
	Adapter      model.ChatRoomAdapter
	Selector     model.BridgeSelector
	BridgeClient model.BridgeClient
	Discoverer   FeatureDiscoverer
	Sessions     SessionFactory
	Catalogue    Catalogue
	Quota        model.Quota
	Clock        model.Clock
	LocalRegion  string
	OnTerminated func(model.RoomName)

	// AVClient reaches the recording/SIP-gateway/dial-out workers over
	// their narrow RPC contract (6. EXTERNAL INTERFACES). Nil disables the
	// jibri/jigasi/dial elements, each failing with service-unavailable.
	AVClient model.AVServiceClient

	// Reservation gates room creation against the external reservation
	// backend (4.I). Nil disables the gate: every conference-request is
	// admitted without a reservation check.
	Reservation model.ReservationGate

	// CountVisitorsTowardStart resolves Open Question 2 (see DESIGN.md):
	// whether a visitor-only room counts as "someone has joined" for the
	// start-timeout decision. Default false.
	CountVisitorsTowardStart bool
}

// avModeration is one media kind's moderation gate (4.F step 6).
type avModeration struct {
	enabled   bool
	whitelist map[model.ParticipantID]bool
}

// Conference is the production implementation of 4.F. All field access
// outside of the worker goroutine started by Run must go through the
// exported methods, which marshal onto cmdCh.
type Conference struct {
	cfg Config

	cmdCh chan func()
	quit  chan struct{}

	state             model.ConferenceState
	createdAt         time.Time
	hasHadParticipant bool

	participants map[model.ParticipantID]*participant.Participant
	sessions     map[model.ParticipantID]*session.Session
	sourceMap    model.ConferenceSourceMap
	bridgeOf     map[model.ParticipantID]model.BridgeID
	pin          *model.BridgePin

	moderation map[model.MediaKind]*avModeration
	borda      *BordaAggregator

	propagator *propagator

	// reservationID is the authoritative record returned by the
	// reservation backend's accept or 409-conflict response; empty until
	// the first conference-request clears the gate, and for the lifetime
	// of a conference with no Reservation configured.
	reservationID   string
	reservationDone bool
}

// New constructs a Conference in the Initializing state. Call Run in its own
// goroutine to start the worker, then Join to enter the room.
func New(cfg Config) *Conference {
	if cfg.Clock == nil {
		cfg.Clock = model.SystemClock{}
	}
	c := &Conference{
		cfg:          cfg,
		cmdCh:        make(chan func(), 256),
		quit:         make(chan struct{}),
		state:        model.ConferenceInitializing,
		createdAt:    cfg.Clock.Now(),
		participants: make(map[model.ParticipantID]*participant.Participant),
		sessions:     make(map[model.ParticipantID]*session.Session),
		sourceMap:    make(model.ConferenceSourceMap),
		bridgeOf:     make(map[model.ParticipantID]model.BridgeID),
		moderation: map[model.MediaKind]*avModeration{
			model.MediaAudio: {whitelist: make(map[model.ParticipantID]bool)},
			model.MediaVideo: {whitelist: make(map[model.ParticipantID]bool)},
		},
		borda: NewBordaAggregator(),
	}
	c.propagator = newPropagator(c)
	return c
}

// Run drains the command queue until Terminate closes quit. Callers start
// this in its own goroutine; it is the conference's single writer
// (5. CONCURRENCY).
func (c *Conference) Run() {
	for {
		select {
		case f := <-c.cmdCh:
			f()
		case <-c.quit:
			c.drain()
			return
		}
	}
}

// drain empties any commands still queued at shutdown, giving each an
// abandoned reply rather than leaking a blocked caller
// (5. CONCURRENCY: "drains its queue with a terminal marker").
func (c *Conference) drain() {
	for {
		select {
		case f := <-c.cmdCh:
			f()
		default:
			return
		}
	}
}

// submit posts f to the worker and blocks for its result, or returns
// cancelled if the conference has already terminated.
func submit[T any](c *Conference, f func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	select {
	case c.cmdCh <- func() { v, err := f(); ch <- result{v, err} }:
	case <-c.quit:
		var zero T
		return zero, focuserr.New(focuserr.Cancelled, "conference terminated")
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-c.quit:
		var zero T
		return zero, focuserr.New(focuserr.Cancelled, "conference terminated")
	}
}

// post is submit's fire-and-forget twin for notifications that do not need
// a caller-visible result.
func (c *Conference) post(f func()) {
	select {
	case c.cmdCh <- f:
	case <-c.quit:
	}
}

// Join enters the room via the ChatRoom adapter and registers roster
// callbacks (4.F step 1).
func (c *Conference) Join(ctx context.Context) error {
	c.cfg.Adapter.OnOccupantJoin(func(id model.ParticipantID) { c.post(func() { c.ingest(id) }) })
	c.cfg.Adapter.OnOccupantLeave(func(id model.ParticipantID) { c.post(func() { c.departed(id) }) })
	c.cfg.Adapter.OnOccupantKicked(func(id model.ParticipantID) { c.post(func() { c.departed(id) }) })
	c.cfg.Adapter.OnRoleChanged(func(id model.ParticipantID, role model.Role) {
		c.post(func() { c.setRole(id, role) })
	})

	if err := c.cfg.Adapter.Join(ctx); err != nil {
		return focuserr.Wrap(focuserr.ServiceUnavailable, err, "failed to join room")
	}
	_, err := submit(c, func() (struct{}, error) {
		c.state = model.ConferenceRunning
		logging.Info(logging.WithMeetingID(ctx, c.cfg.MeetingID), "conference joined room", zap.String("room", c.cfg.Room.Bare()))
		return struct{}{}, nil
	})
	return err
}

func (c *Conference) setRole(id model.ParticipantID, role model.Role) {
	if p, ok := c.participants[id]; ok {
		p.Role = role
	}
}

// State returns the conference's current lifecycle state.
func (c *Conference) State() model.ConferenceState {
	v, _ := submit(c, func() (model.ConferenceState, error) { return c.state, nil })
	return v
}

// ParticipantCount returns the number of tracked participants, for /debug
// and the ConferenceStore sweeper.
func (c *Conference) ParticipantCount() int {
	v, _ := submit(c, func() (int, error) { return len(c.participants), nil })
	return v
}

// HasHadParticipant reports whether any non-visitor participant has ever
// joined, the ConferenceStore sweeper's eligibility check (4.G).
func (c *Conference) HasHadParticipant() bool {
	v, _ := submit(c, func() (bool, error) { return c.hasHadParticipant, nil })
	return v
}

// CreatedAt returns the conference's creation timestamp.
func (c *Conference) CreatedAt() time.Time { return c.createdAt }

