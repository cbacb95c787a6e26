// Package participant holds the per-occupant state the Conference
// orchestrator drives: capability flags, the bound Session, and the
// occupant's current SourceSet.
package participant

import (
	"sync"
	"sync/atomic"

	"github.com/relaymeet/focus/internal/v1/model"
)

// SessionHandle is the narrow subset of a Session the Participant relays
// source changes onto; the concrete implementation lives in package session.
type SessionHandle interface {
	SendAddSource(sources model.SourceSet, blocking bool) error
	SendRemoveSource(sources model.SourceSet) error
	State() model.SessionState
}

// OfferOptions is the intersection input/output of applyOfferConstraints
// (4.E): the Conference's desired offer shape narrowed by what this
// participant's capabilities actually support.
type OfferOptions struct {
	Audio           bool
	Video           bool
	DataChannel     bool
	Simulcast       bool
	JSONSourcesOnly bool
}

// Participant is the production implementation of 4.E.
type Participant struct {
	ID       model.ParticipantID
	Role     model.Role
	IsVisitor bool

	mu    sync.RWMutex
	caps  model.Capabilities
	capsDiscovered bool
	session SessionHandle
	sources model.SourceSet

	joined atomic.Bool
	active atomic.Bool
}

// New constructs a Participant awaiting feature discovery.
func New(id model.ParticipantID, role model.Role) *Participant {
	return &Participant{ID: id, Role: role}
}

// SetCapabilities records the result of one-shot feature discovery (4.F
// step 3: "perform feature discovery (bounded; 5 s)").
func (p *Participant) SetCapabilities(caps model.Capabilities) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caps = caps
	p.capsDiscovered = true
}

// Capabilities returns the discovered capability set. The zero value is
// returned, with ok=false, until SetCapabilities has run.
func (p *Participant) Capabilities() (model.Capabilities, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.caps, p.capsDiscovered
}

// BindSession attaches the Session this Participant's offer/answer exchange
// runs over, marking the participant joined.
func (p *Participant) BindSession(s SessionHandle) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
	p.joined.Store(true)
}

// MarkActive flags the participant as having completed its offer/answer
// exchange (session-accept received, sources validated).
func (p *Participant) MarkActive() { p.active.Store(true) }

// MarkLeaving clears the active flag; stanzas arriving afterward are ignored
// per 5. CONCURRENCY ("Participants in the leaving state ignore further
// stanzas").
func (p *Participant) MarkLeaving() { p.active.Store(false) }

// HasJoined implements 4.E hasJoined().
func (p *Participant) HasJoined() bool { return p.joined.Load() }

// IsActive implements 4.E isActive().
func (p *Participant) IsActive() bool { return p.active.Load() }

// ApplyOfferConstraints implements 4.E applyOfferConstraints(options): the
// intersection of the conference's desired options and this participant's
// discovered capabilities.
func (p *Participant) ApplyOfferConstraints(want OfferOptions) OfferOptions {
	caps, _ := p.Capabilities()
	return OfferOptions{
		Audio:           want.Audio && caps.Audio,
		Video:           want.Video && caps.Video,
		DataChannel:     want.DataChannel && caps.DataChannel,
		Simulcast:       want.Simulcast && caps.Simulcast,
		JSONSourcesOnly: want.JSONSourcesOnly && caps.JSONSourceSignaling,
	}
}

// Sources returns the participant's current SourceSet.
func (p *Participant) Sources() model.SourceSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sources
}

// SetSources replaces the participant's SourceSet wholesale, e.g. after a
// validated session-accept.
func (p *Participant) SetSources(s model.SourceSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = s
}

// OnSourceAdd implements 4.E: relay another owner's newly-added sources to
// this participant's Session as an outbound source-add.
func (p *Participant) OnSourceAdd(ownerSources model.SourceSet) error {
	p.mu.RLock()
	s := p.session
	p.mu.RUnlock()
	if s == nil || s.State() != model.SessionActive {
		return nil
	}
	return s.SendAddSource(ownerSources, false)
}

// OnSourceRemove implements 4.E: relay another owner's removed sources to
// this participant's Session as an outbound source-remove.
func (p *Participant) OnSourceRemove(ownerSources model.SourceSet) error {
	p.mu.RLock()
	s := p.session
	p.mu.RUnlock()
	if s == nil || s.State() != model.SessionActive {
		return nil
	}
	return s.SendRemoveSource(ownerSources)
}
