package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymeet/focus/internal/v1/model"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

func TestSelect_PrefersMatchingRegion(t *testing.T) {
	now := time.Now()
	s := New("eu", fakeClock{now}, nil)
	s.Discover(model.Bridge{ID: "a", Stats: model.BridgeStats{Region: "us", Stress: 0.1}})
	s.Discover(model.Bridge{ID: "b", Stats: model.BridgeStats{Region: "eu", Stress: 0.9}})

	b, ok := s.Select("eu", nil)
	require.True(t, ok)
	assert.Equal(t, model.BridgeID("b"), b.ID)
}

func TestSelect_FallsBackToLocalRegion(t *testing.T) {
	now := time.Now()
	s := New("eu", fakeClock{now}, nil)
	s.Discover(model.Bridge{ID: "a", Stats: model.BridgeStats{Region: "eu", Stress: 0.5}})

	b, ok := s.Select("ap", nil)
	require.True(t, ok)
	assert.Equal(t, model.BridgeID("a"), b.ID)
}

func TestSelect_TiebreaksByStressThenCountThenID(t *testing.T) {
	now := time.Now()
	s := New("eu", fakeClock{now}, nil)
	s.Discover(model.Bridge{ID: "z", Stats: model.BridgeStats{Region: "eu", Stress: 0.2, ConferenceCount: 5}})
	s.Discover(model.Bridge{ID: "a", Stats: model.BridgeStats{Region: "eu", Stress: 0.2, ConferenceCount: 5}})

	b, ok := s.Select("eu", nil)
	require.True(t, ok)
	assert.Equal(t, model.BridgeID("a"), b.ID)
}

func TestSelect_ExcludesNonOperationalAndShuttingDown(t *testing.T) {
	now := time.Now()
	s := New("eu", fakeClock{now}, nil)
	s.Discover(model.Bridge{ID: "a", Stats: model.BridgeStats{Region: "eu"}})
	s.entries["a"].bridge.InGracefulShutdown = true

	_, ok := s.Select("eu", nil)
	assert.False(t, ok)
}

func TestSelect_HonorsVersionPin(t *testing.T) {
	now := time.Now()
	s := New("eu", fakeClock{now}, nil)
	s.Discover(model.Bridge{ID: "old", Stats: model.BridgeStats{Region: "eu", Version: "1.0"}})
	s.Discover(model.Bridge{ID: "new", Stats: model.BridgeStats{Region: "eu", Version: "2.0", Stress: -1}})

	pin := &model.BridgePin{Version: "1.0", Expiry: now.Add(time.Minute)}
	b, ok := s.Select("eu", pin)
	require.True(t, ok)
	assert.Equal(t, model.BridgeID("old"), b.ID)
}

func TestSelect_NoneWhenEmpty(t *testing.T) {
	s := New("eu", fakeClock{time.Now()}, nil)
	_, ok := s.Select("eu", nil)
	assert.False(t, ok)
}

func TestReportFailure_MarksNonOperational(t *testing.T) {
	s := New("eu", fakeClock{time.Now()}, func(id model.BridgeID) bool { return true })
	s.Discover(model.Bridge{ID: "a", Stats: model.BridgeStats{Region: "eu"}})

	s.ReportFailure("a")
	_, ok := s.Select("eu", nil)
	assert.False(t, ok, "failed bridge must be excluded immediately")
}

func TestApplyStats_DiscardsStaleObservation(t *testing.T) {
	now := time.Now()
	s := New("eu", fakeClock{now}, nil)
	s.Discover(model.Bridge{ID: "a"})

	s.ApplyStats("a", model.BridgeStats{Stress: 0.5}, now.Add(-time.Hour))
	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Zero(t, snap[0].Stats.Stress)
}

func TestApplyStats_IgnoresOutOfOrderUpdate(t *testing.T) {
	now := time.Now()
	s := New("eu", fakeClock{now}, nil)
	s.Discover(model.Bridge{ID: "a"})

	s.ApplyStats("a", model.BridgeStats{Stress: 0.9}, now)
	s.ApplyStats("a", model.BridgeStats{Stress: 0.1}, now.Add(-time.Second))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 0.9, snap[0].Stats.Stress)
}
