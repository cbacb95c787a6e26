package conference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/stanza"
)

// recordingSender captures every stanza handed to one participant's
// session, so a test can assert a forced mute actually reached its target
// rather than only acknowledging the moderator's request.
type recordingSender struct {
	mu   sync.Mutex
	sent []any
}

func (r *recordingSender) Send(ctx context.Context, s any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, s)
	return nil
}

func (r *recordingSender) notifications() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.sent))
	copy(out, r.sent)
	return out
}

// recordingSessionFactory hands out one recordingSender per participant so
// a test can inspect what each of them individually received.
type recordingSessionFactory struct {
	mu      sync.Mutex
	senders map[model.ParticipantID]*recordingSender
}

func newRecordingSessionFactory() *recordingSessionFactory {
	return &recordingSessionFactory{senders: make(map[model.ParticipantID]*recordingSender)}
}

func (f *recordingSessionFactory) NewSender(id model.ParticipantID) model.StanzaSender {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &recordingSender{}
	f.senders[id] = s
	return s
}

func (f *recordingSessionFactory) senderFor(id model.ParticipantID) *recordingSender {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.senders[id]
}

// newModerationTestConference builds a Conference wired to a
// recordingSessionFactory, so its tests can both drive a participant to an
// active session and inspect what was sent to it.
func newModerationTestConference(t *testing.T) (*Conference, *fakeAdapter, *recordingSessionFactory) {
	t.Helper()
	adapter := &fakeAdapter{}
	factory := newRecordingSessionFactory()
	cfg := Config{
		Room:         model.ParseRoomName("team-standup"),
		MeetingID:    "meeting-1",
		Adapter:      adapter,
		Selector:     &fakeSelector{bridge: model.Bridge{ID: "b1"}, hasOne: true},
		BridgeClient: fakeBridgeClient{},
		Discoverer:   fakeDiscoverer{caps: model.Capabilities{Audio: true, Video: true}},
		Sessions:     factory,
		Catalogue:    DefaultCatalogue(),
		Quota:        model.Quota{MaxAudio: 4, MaxVideo: 4},
	}
	c := New(cfg)
	go c.Run()
	require.NoError(t, c.Join(context.Background()))
	t.Cleanup(func() {
		c.post(func() { c.Terminate(context.Background(), "test-cleanup") })
	})
	return c, adapter, factory
}

// activate joins id and drives its session through session-accept so it
// reaches model.SessionActive, mirroring the real offer/answer exchange
// ingest kicks off.
func activate(t *testing.T, c *Conference, adapter *fakeAdapter, id model.ParticipantID) {
	t.Helper()
	adapter.onJoin(id)
	require.Eventually(t, func() bool {
		return c.ResolvePendingSession(id, stanza.JingleIQ{Action: stanza.ActionSessionAccept, SID: string(id)}) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestMuteParticipant_RejectsNonModerator(t *testing.T) {
	c, adapter, _ := newModerationTestConference(t)
	activate(t, c, adapter, "alice")
	activate(t, c, adapter, "bob")

	err := c.MuteParticipant("alice", "bob", model.MediaAudio)
	assert.Error(t, err)
}

func TestMuteParticipant_RejectsUnknownTarget(t *testing.T) {
	c, adapter, _ := newModerationTestConference(t)
	activate(t, c, adapter, "mod")
	adapter.onRole("mod", model.RoleModer)

	err := c.MuteParticipant("mod", "ghost", model.MediaAudio)
	assert.Error(t, err)
}

func TestMuteParticipant_RelaysForcedMuteToTarget(t *testing.T) {
	c, adapter, factory := newModerationTestConference(t)
	activate(t, c, adapter, "mod")
	activate(t, c, adapter, "alice")
	adapter.onRole("mod", model.RoleModer)

	require.NoError(t, c.MuteParticipant("mod", "alice", model.MediaVideo))

	aliceSender := factory.senderFor("alice")
	require.NotNil(t, aliceSender)
	require.Eventually(t, func() bool {
		for _, s := range aliceSender.notifications() {
			if n, ok := s.(stanza.MuteNotification); ok && n.Kind == string(model.MediaVideo) && n.Muted {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	modSender := factory.senderFor("mod")
	require.NotNil(t, modSender)
	for _, s := range modSender.notifications() {
		if _, ok := s.(stanza.MuteNotification); ok {
			t.Fatal("forced mute notification sent to the moderator instead of the target")
		}
	}
}
