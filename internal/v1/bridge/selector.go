// Package bridge implements the BridgeSelector: the registry of known media
// bridges and the region/stress-aware selection policy the conference
// orchestrator uses to place each participant.
package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/relaymeet/focus/internal/v1/model"
)

const (
	// statsTTL is how long a bridge's last-reported BridgeStats stays
	// trusted before applyStats treats it as stale (4.C, "stats older
	// than a TTL are discarded").
	statsTTL = 45 * time.Second

	// failureResetDelay is how long reportFailure waits before probing a
	// failed bridge for recovery.
	failureResetDelay = 15 * time.Second
)

// Prober re-checks one bridge's liveness after a failure. The bridge package
// does not know how to dial a bridge; pkg/bridgeclient supplies this.
type Prober func(id model.BridgeID) bool

// entry is the selector's bookkeeping record for one bridge, separate from
// model.Bridge so stats-age tracking doesn't leak into the shared vocabulary
// type.
type entry struct {
	bridge    model.Bridge
	statsAt   time.Time
	localTime bool // true once applyStats has set a real Stats value
}

// Selector is the production BridgeSelector (4.C). It is safe for
// concurrent use by every conference's placement decision.
type Selector struct {
	mu          sync.RWMutex
	entries     map[model.BridgeID]*entry
	localRegion string
	clock       model.Clock
	probe       Prober

	mockTimers bool // test hook: suppress the real AfterFunc probe schedule
}

// New constructs a Selector. localRegion is the focus's own region, used as
// the second preference tier (4.C step 4).
func New(localRegion string, clock model.Clock, probe Prober) *Selector {
	if clock == nil {
		clock = model.SystemClock{}
	}
	return &Selector{
		entries:     make(map[model.BridgeID]*entry),
		localRegion: localRegion,
		clock:       clock,
		probe:       probe,
	}
}

// Discover registers or refreshes a bridge entry, marking it operational.
func (s *Selector) Discover(b model.Bridge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Operational = true
	b.LastSeen = s.clock.Now()
	s.entries[b.ID] = &entry{bridge: b}
}

// Forget removes a bridge entirely, e.g. on registry deregistration.
func (s *Selector) Forget(id model.BridgeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Select implements model.BridgeSelector.
func (s *Selector) Select(forRegion string, pin *model.BridgePin) (model.Bridge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	candidates := make([]model.Bridge, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.bridge.Operational || e.bridge.InGracefulShutdown {
			continue
		}
		if !pin.Expired(now) && e.bridge.Stats.Version != pin.Version {
			continue
		}
		candidates = append(candidates, e.bridge)
	}
	if len(candidates) == 0 {
		return model.Bridge{}, false
	}

	if b, ok := pickByRegion(candidates, forRegion); ok {
		return b, true
	}
	if forRegion != s.localRegion {
		if b, ok := pickByRegion(candidates, s.localRegion); ok {
			return b, true
		}
	}
	return pickBest(candidates), true
}

func pickByRegion(candidates []model.Bridge, region string) (model.Bridge, bool) {
	if region == "" {
		return model.Bridge{}, false
	}
	var tier []model.Bridge
	for _, b := range candidates {
		if b.Stats.Region == region {
			tier = append(tier, b)
		}
	}
	if len(tier) == 0 {
		return model.Bridge{}, false
	}
	return pickBest(tier), true
}

// pickBest applies step 3's tiebreak chain: lowest stress, then lowest
// conference count, then lowest identity.
func pickBest(candidates []model.Bridge) model.Bridge {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Stats.Stress != b.Stats.Stress {
			return a.Stats.Stress < b.Stats.Stress
		}
		if a.Stats.ConferenceCount != b.Stats.ConferenceCount {
			return a.Stats.ConferenceCount < b.Stats.ConferenceCount
		}
		return a.ID < b.ID
	})
	return candidates[0]
}

// ReportFailure implements model.BridgeSelector.
func (s *Selector) ReportFailure(id model.BridgeID) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.bridge.Operational = false
	s.mu.Unlock()

	if s.probe == nil || s.mockTimers {
		return
	}
	time.AfterFunc(failureResetDelay, func() {
		if s.probe(id) {
			s.mu.Lock()
			if e, ok := s.entries[id]; ok {
				e.bridge.Operational = true
			}
			s.mu.Unlock()
		}
	})
}

// ApplyStats implements model.BridgeSelector.
func (s *Selector) ApplyStats(id model.BridgeID, stats model.BridgeStats, observedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	if !e.statsAt.IsZero() && observedAt.Before(e.statsAt) {
		return
	}
	if s.clock.Now().Sub(observedAt) > statsTTL {
		return
	}
	e.bridge.Stats = stats
	e.bridge.InGracefulShutdown = stats.GracefulShutdown
	e.statsAt = observedAt
	e.localTime = true
	e.bridge.LastSeen = s.clock.Now()
}

// Snapshot returns every known bridge, for /debug.
func (s *Selector) Snapshot() []model.Bridge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Bridge, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.bridge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
