package conference

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/model"
)

// delayStepTable maps "how many participants are already in the
// conference" to the source-add coalescing delay (4.F step 5: "delayed by a
// per-participant-count step table"). Indexed by min(count, len-1).
var delayStepTable = []time.Duration{
	0,
	200 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
}

// propagator batches outbound source-add relays so a burst of joins doesn't
// fan out one stanza per join per existing participant (4.F step 5).
// source-remove bypasses it entirely, per the same step.
type propagator struct {
	c *Conference

	pending map[model.ParticipantID]model.SourceSet // owner -> coalesced not-yet-flushed sources
	timer   *time.Timer
}

func newPropagator(c *Conference) *propagator {
	return &propagator{c: c, pending: make(map[model.ParticipantID]model.SourceSet)}
}

func (p *propagator) delay() time.Duration {
	n := len(p.c.participants)
	if n >= len(delayStepTable) {
		n = len(delayStepTable) - 1
	}
	return delayStepTable[n]
}

// scheduleAdd coalesces owner's newly-validated sources into the pending
// batch and arms (or leaves armed) the flush timer, measured from the first
// not-yet-flushed change (4.F step 5).
func (p *propagator) scheduleAdd(owner model.ParticipantID, sources model.SourceSet) {
	if existing, ok := p.pending[owner]; ok {
		p.pending[owner] = existing.Add(sources)
	} else {
		p.pending[owner] = sources
	}

	if p.timer != nil {
		return // already armed; this change coalesces into the pending flush
	}
	d := p.delay()
	if d == 0 {
		p.flush()
		return
	}
	p.timer = time.AfterFunc(d, func() { p.c.post(p.flush) })
}

// flush relays every pending owner's coalesced sources to every other
// active participant. Must run on the worker goroutine.
func (p *propagator) flush() {
	p.timer = nil
	batch := p.pending
	p.pending = make(map[model.ParticipantID]model.SourceSet)

	for owner, sources := range batch {
		for id, target := range p.c.participants {
			if id == owner || !target.IsActive() {
				continue
			}
			if err := target.OnSourceAdd(sources); err != nil {
				logging.Warn(context.Background(), "source-add relay failed",
					zap.String("room", p.c.cfg.Room.Bare()), zap.String("to", string(id)), zap.Error(err))
			}
		}
	}
}

// removeImmediately relays a departed owner's source removal to every other
// participant without delay (4.F step 5: "source-remove is never delayed").
func (p *propagator) removeImmediately(owner model.ParticipantID, removed model.SourceSet) {
	if removed.Empty() {
		return
	}
	delete(p.pending, owner)
	for id, target := range p.c.participants {
		if id == owner || !target.IsActive() {
			continue
		}
		if err := target.OnSourceRemove(removed); err != nil {
			logging.Warn(context.Background(), "source-remove relay failed",
				zap.String("room", p.c.cfg.Room.Bare()), zap.String("to", string(id)), zap.Error(err))
		}
	}
}
