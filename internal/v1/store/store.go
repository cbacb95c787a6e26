// Package store implements the ConferenceStore (4.G): the process-wide
// registry mapping a bare room name, and optionally an opaque meeting id,
// onto its Conference, plus the idle sweeper that reclaims conferences no
// one ever joined.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/model"
)

// sweepInterval is how often the idle sweeper scans for conferences that
// never had a participant (4.G: "A background sweeper runs every 5 s").
const sweepInterval = 5 * time.Second

// Conference is the narrow surface the store needs from a conference.Conference,
// kept as an interface here so store does not import conference (which would
// import store's own future consumers) and so tests can supply a fake.
type Conference interface {
	State() model.ConferenceState
	CreatedAt() time.Time
	HasHadParticipant() bool
	CheckStartTimeout(now time.Time) bool
	Terminate(ctx context.Context, reason string)
	ParticipantCount() int
}

// Factory constructs a new Conference for a just-created room entry and
// starts its worker goroutine; the store calls this exactly once per room
// under its lock.
type Factory func(room model.RoomName, meetingID model.MeetingID) (Conference, error)

// Store is the production ConferenceStore.
type Store struct {
	mu          sync.Mutex
	byRoom      map[string]Conference
	byMeetingID map[model.MeetingID]string // meeting id -> bare room
	pins        map[string]model.BridgePin

	factory Factory
	clock   model.Clock

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Store and starts its sweeper goroutine.
func New(factory Factory, clock model.Clock) *Store {
	if clock == nil {
		clock = model.SystemClock{}
	}
	s := &Store{
		byRoom:      make(map[string]Conference),
		byMeetingID: make(map[model.MeetingID]string),
		pins:        make(map[string]model.BridgePin),
		factory:     factory,
		clock:       clock,
		stop:        make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweep()
	return s
}

// GetOrCreate implements conferenceRequest's idempotent lookup/create (4.G).
// A second caller for an existing room reuses it. The conference's
// start-timeout is not reset by a repeat call; it keeps counting from the
// conference's creation.
func (s *Store) GetOrCreate(room model.RoomName, meetingID model.MeetingID) (Conference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.byRoom[room.Bare()]; ok {
		return c, nil
	}

	c, err := s.factory(room, meetingID)
	if err != nil {
		return nil, focuserr.Wrap(focuserr.InternalServer, err, "failed to create conference")
	}
	s.byRoom[room.Bare()] = c

	if meetingID != "" {
		if err := s.registerMeetingIDLocked(room, meetingID); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// registerMeetingIDLocked implements "Meeting-id registration is
// first-writer-wins; a duplicate is rejected." Caller holds s.mu.
func (s *Store) registerMeetingIDLocked(room model.RoomName, meetingID model.MeetingID) error {
	if existingRoom, ok := s.byMeetingID[meetingID]; ok && existingRoom != room.Bare() {
		return focuserr.Tagged(focuserr.Conflict, "meeting-id-taken",
			fmt.Sprintf("meeting id %s already bound to room %s", meetingID, existingRoom))
	}
	s.byMeetingID[meetingID] = room.Bare()
	return nil
}

// LookupByRoom returns the conference bound to a bare room name, if any.
func (s *Store) LookupByRoom(room model.RoomName) (Conference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byRoom[room.Bare()]
	return c, ok
}

// LookupByMeetingID resolves an opaque meeting id to its conference.
func (s *Store) LookupByMeetingID(meetingID model.MeetingID) (Conference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.byMeetingID[meetingID]
	if !ok {
		return nil, false
	}
	c, ok := s.byRoom[room]
	return c, ok
}

// Remove drops a room's entry, e.g. once its conference has terminated.
func (s *Store) Remove(room model.RoomName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRoom, room.Bare())
	for mid, r := range s.byMeetingID {
		if r == room.Bare() {
			delete(s.byMeetingID, mid)
		}
	}
	delete(s.pins, room.Bare())
}

// SetPin records a bridge-version pin for a room, truncated to second
// precision per 4.G.
func (s *Store) SetPin(room model.RoomName, pin model.BridgePin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pin.Expiry = pin.Expiry.Truncate(time.Second)
	s.pins[room.Bare()] = pin
}

// Pin returns a room's bridge-version pin, expiring (and dropping) it first
// if it has lapsed (4.G: "a helper expires stale pins on every read").
func (s *Store) Pin(room model.RoomName) *model.BridgePin {
	s.mu.Lock()
	defer s.mu.Unlock()
	pin, ok := s.pins[room.Bare()]
	if !ok {
		return nil
	}
	if pin.Expired(s.clock.Now()) {
		delete(s.pins, room.Bare())
		return nil
	}
	return &pin
}

// Snapshot returns every known room name, for GET /debug/conferences.
func (s *Store) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byRoom))
	for room := range s.byRoom {
		out = append(out, room)
	}
	return out
}

// sweep runs the idle sweeper: every sweepInterval, snapshot candidate
// conferences under the lock, release it, then stop each one that has
// exceeded the start-timeout without a participant (5. CONCURRENCY:
// "the sweeper takes the same lock briefly to snapshot ... and then
// releases it before calling their stop operations").
func (s *Store) sweep() {
	defer s.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Store) sweepOnce() {
	now := s.clock.Now()

	s.mu.Lock()
	candidates := make(map[string]Conference, len(s.byRoom))
	for room, c := range s.byRoom {
		if !c.HasHadParticipant() {
			candidates[room] = c
		}
	}
	s.mu.Unlock()

	for room, c := range candidates {
		if c.CheckStartTimeout(now) {
			logging.Info(context.Background(), "sweeper stopping idle conference", zap.String("room", room))
			c.Terminate(context.Background(), "start-timeout")
			s.Remove(model.ParseRoomName(room))
		}
	}
}

// Shutdown stops the sweeper and terminates every tracked conference.
func (s *Store) Shutdown(ctx context.Context) {
	close(s.stop)
	s.wg.Wait()

	s.mu.Lock()
	conferences := make([]Conference, 0, len(s.byRoom))
	for _, c := range s.byRoom {
		conferences = append(conferences, c)
	}
	s.mu.Unlock()

	for _, c := range conferences {
		c.Terminate(ctx, "shutdown")
	}
}
