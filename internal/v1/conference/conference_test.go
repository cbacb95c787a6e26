package conference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymeet/focus/internal/v1/model"
)

type fakeAdapter struct {
	mu       sync.Mutex
	onJoin   func(model.ParticipantID)
	onLeave  func(model.ParticipantID)
	onKick   func(model.ParticipantID)
	onRole   func(model.ParticipantID, model.Role)
	joined   bool
	left     bool
}

func (f *fakeAdapter) Join(ctx context.Context) error  { f.joined = true; return nil }
func (f *fakeAdapter) Leave(ctx context.Context) error { f.left = true; return nil }
func (f *fakeAdapter) OnOccupantJoin(g func(model.ParticipantID))                            { f.onJoin = g }
func (f *fakeAdapter) OnOccupantLeave(g func(model.ParticipantID))                           { f.onLeave = g }
func (f *fakeAdapter) OnOccupantKicked(g func(model.ParticipantID))                          { f.onKick = g }
func (f *fakeAdapter) OnRoleChanged(g func(model.ParticipantID, model.Role))                 { f.onRole = g }
func (f *fakeAdapter) OnPresenceUpdate(g func(model.ParticipantID, []model.PresenceExtension)) {}
func (f *fakeAdapter) SetPresenceExtension(model.PresenceExtensionKind, string) error { return nil }
func (f *fakeAdapter) ModifyPresence([]model.PresenceExtensionKind, []model.PresenceExtension) error {
	return nil
}

type fakeSelector struct {
	mu       sync.Mutex
	bridge   model.Bridge
	hasOne   bool
	failures []model.BridgeID
}

func (f *fakeSelector) Select(region string, pin *model.BridgePin) (model.Bridge, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bridge, f.hasOne
}
func (f *fakeSelector) ReportFailure(id model.BridgeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, id)
}
func (f *fakeSelector) ApplyStats(model.BridgeID, model.BridgeStats, time.Time) {}

type fakeBridgeClient struct{}

func (fakeBridgeClient) Allocate(context.Context, model.BridgeID, model.MeetingID, model.ParticipantID) error {
	return nil
}
func (fakeBridgeClient) Modify(context.Context, model.BridgeID, model.MeetingID, model.ParticipantID, model.SourceSet) error {
	return nil
}
func (fakeBridgeClient) Expire(context.Context, model.BridgeID, model.MeetingID, model.ParticipantID) error {
	return nil
}

type fakeDiscoverer struct{ caps model.Capabilities }

func (f fakeDiscoverer) Discover(ctx context.Context, id model.ParticipantID) (model.Capabilities, error) {
	return f.caps, nil
}

type noopSender struct{}

func (noopSender) Send(ctx context.Context, s any) error { return nil }

type fakeSessionFactory struct{}

func (fakeSessionFactory) NewSender(model.ParticipantID) model.StanzaSender { return noopSender{} }

func newTestConference(t *testing.T, selector *fakeSelector) (*Conference, *fakeAdapter) {
	t.Helper()
	adapter := &fakeAdapter{}
	cfg := Config{
		Room:         model.ParseRoomName("team-standup"),
		MeetingID:    "meeting-1",
		Adapter:      adapter,
		Selector:     selector,
		BridgeClient: fakeBridgeClient{},
		Discoverer:   fakeDiscoverer{caps: model.Capabilities{Audio: true, Video: true}},
		Sessions:     fakeSessionFactory{},
		Catalogue:    DefaultCatalogue(),
		Quota:        model.Quota{MaxAudio: 4, MaxVideo: 4},
	}
	c := New(cfg)
	go c.Run()
	require.NoError(t, c.Join(context.Background()))
	t.Cleanup(func() {
		c.post(func() { c.Terminate(context.Background(), "test-cleanup") })
	})
	return c, adapter
}

func TestJoin_EntersRunningState(t *testing.T) {
	c, adapter := newTestConference(t, &fakeSelector{})
	assert.True(t, adapter.joined)
	assert.Equal(t, model.ConferenceRunning, c.State())
}

func TestIngest_CreatesParticipantOnOccupantJoin(t *testing.T) {
	c, adapter := newTestConference(t, &fakeSelector{bridge: model.Bridge{ID: "b1"}, hasOne: true})
	adapter.onJoin("alice")

	assert.Eventually(t, func() bool { return c.ParticipantCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, c.HasHadParticipant())
}

func TestDeparted_TerminatesConferenceWhenLastParticipantLeaves(t *testing.T) {
	c, adapter := newTestConference(t, &fakeSelector{bridge: model.Bridge{ID: "b1"}, hasOne: true})
	adapter.onJoin("alice")
	require.Eventually(t, func() bool { return c.ParticipantCount() == 1 }, time.Second, 5*time.Millisecond)

	adapter.onLeave("alice")
	require.Eventually(t, func() bool { return c.State() == model.ConferenceTerminated }, time.Second, 5*time.Millisecond)
}

func TestSetAVModeration_RejectsNonModerator(t *testing.T) {
	c, adapter := newTestConference(t, &fakeSelector{bridge: model.Bridge{ID: "b1"}, hasOne: true})
	adapter.onJoin("alice")
	require.Eventually(t, func() bool { return c.ParticipantCount() == 1 }, time.Second, 5*time.Millisecond)

	err := c.SetAVModeration("alice", model.MediaAudio, true, nil)
	assert.Error(t, err)
}

func TestSetAVModeration_AllowsModerator(t *testing.T) {
	c, adapter := newTestConference(t, &fakeSelector{bridge: model.Bridge{ID: "b1"}, hasOne: true})
	adapter.onJoin("mod")
	require.Eventually(t, func() bool { return c.ParticipantCount() == 1 }, time.Second, 5*time.Millisecond)
	adapter.onRole("mod", model.RoleModer)

	err := c.SetAVModeration("mod", model.MediaAudio, true, []model.ParticipantID{"mod"})
	assert.NoError(t, err)

	assert.NoError(t, c.RequestUnmute("mod", model.MediaAudio))
	assert.Error(t, c.RequestUnmute("someone-else", model.MediaAudio))
}

func TestRehostBridge_TerminatesWhenNoReplacement(t *testing.T) {
	selector := &fakeSelector{bridge: model.Bridge{ID: "b1"}, hasOne: true}
	c, adapter := newTestConference(t, selector)
	adapter.onJoin("alice")
	require.Eventually(t, func() bool { return c.ParticipantCount() == 1 }, time.Second, 5*time.Millisecond)

	selector.mu.Lock()
	selector.hasOne = false
	selector.mu.Unlock()

	c.RehostBridge("b1")
	require.Eventually(t, func() bool { return c.State() == model.ConferenceTerminated }, time.Second, 5*time.Millisecond)
}
