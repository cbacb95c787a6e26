package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"k8s.io/utils/set"
)

// MediaKind distinguishes audio from video sources.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// VideoType classifies a video Source's origin.
type VideoType string

const (
	VideoTypeCamera  VideoType = "camera"
	VideoTypeDesktop VideoType = "desktop"
)

// GroupSemantics names the SourceGroup grouping kind (3. DATA MODEL).
type GroupSemantics string

const (
	GroupSIM   GroupSemantics = "SIM"
	GroupFID   GroupSemantics = "FID"
	GroupFECFR GroupSemantics = "FEC-FR"
)

// SSRC is the 32-bit numeric source identifier.
type SSRC uint32

// Source is one media stream, identified by its SSRC.
type Source struct {
	SSRC      SSRC
	Kind      MediaKind
	Owner     ParticipantID // empty for Injected sources (Invariant 5)
	MSID      string
	VideoType VideoType // only meaningful for Kind == MediaVideo
	Injected  bool
	Params    map[string]string
}

// SourceGroup types a grouping of sibling sources (simulcast, RTX pair, FEC).
type SourceGroup struct {
	Semantics GroupSemantics
	Members   []SSRC // ordered
}

// arity validates Invariant 4: FID groups have exactly two members, SIM
// groups have two or more.
func (g SourceGroup) arity() error {
	switch g.Semantics {
	case GroupFID:
		if len(g.Members) != 2 {
			return focuserr.Tagged(focuserr.BadRequest, "group-arity", "FID group must have exactly two members")
		}
	case GroupSIM:
		if len(g.Members) < 2 {
			return focuserr.Tagged(focuserr.BadRequest, "group-arity", "SIM group must have at least two members")
		}
	case GroupFECFR:
		// FEC-FR pairs a primary with an FEC source; no additional arity rule.
	default:
		return focuserr.Tagged(focuserr.BadRequest, "unsupported-group", string(g.Semantics))
	}
	return nil
}

// SourceSet is the immutable (set of Sources, set of SourceGroups) owned by
// one participant. All mutation produces a new SourceSet (5. CONCURRENCY:
// "SourceSet objects are immutable value types").
type SourceSet struct {
	sources map[SSRC]Source
	groups  []SourceGroup
}

// NewSourceSet builds a SourceSet from the given sources and groups,
// rejecting duplicate SSRCs within the owner (Invariant 1, scoped here per
// media kind) up front so every SourceSet in memory is already well-formed.
func NewSourceSet(sources []Source, groups []SourceGroup) (SourceSet, error) {
	byKind := map[MediaKind]set.Set[SSRC]{MediaAudio: set.New[SSRC](), MediaVideo: set.New[SSRC]()}
	m := make(map[SSRC]Source, len(sources))
	for _, s := range sources {
		if _, exists := m[s.SSRC]; exists {
			return SourceSet{}, focuserr.Tagged(focuserr.BadRequest, "duplicate-source", fmt.Sprintf("ssrc %d repeated", s.SSRC))
		}
		if byKind[s.Kind].Has(s.SSRC) {
			return SourceSet{}, focuserr.Tagged(focuserr.BadRequest, "duplicate-source", fmt.Sprintf("ssrc %d repeated for kind %s", s.SSRC, s.Kind))
		}
		byKind[s.Kind].Insert(s.SSRC)
		m[s.SSRC] = s
	}
	for _, g := range groups {
		if err := g.arity(); err != nil {
			return SourceSet{}, err
		}
		for _, mem := range g.Members {
			if _, ok := m[mem]; !ok {
				return SourceSet{}, focuserr.Tagged(focuserr.BadRequest, "group-member-missing", fmt.Sprintf("group member %d not in source set", mem))
			}
		}
	}
	return SourceSet{sources: m, groups: append([]SourceGroup(nil), groups...)}, nil
}

// Sources returns the set's sources in stable (ascending SSRC) order.
func (s SourceSet) Sources() []Source {
	out := make([]Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SSRC < out[j].SSRC })
	return out
}

// Groups returns the set's groups in insertion order.
func (s SourceSet) Groups() []SourceGroup { return s.groups }

// Has reports whether ssrc is a member of this set.
func (s SourceSet) Has(ssrc SSRC) bool {
	_, ok := s.sources[ssrc]
	return ok
}

func (s SourceSet) Empty() bool { return len(s.sources) == 0 }

// Add returns a new SourceSet that is the union of s and other; commutative
// within one owner per 4.A.
func (s SourceSet) Add(other SourceSet) SourceSet {
	merged := make(map[SSRC]Source, len(s.sources)+len(other.sources))
	for k, v := range s.sources {
		merged[k] = v
	}
	for k, v := range other.sources {
		merged[k] = v
	}
	groups := append(append([]SourceGroup(nil), s.groups...), other.groups...)
	return SourceSet{sources: merged, groups: dedupeGroups(groups)}
}

// Remove returns a new SourceSet with every source (and any group mentioning
// it) in other removed from s.
func (s SourceSet) Remove(other SourceSet) SourceSet {
	remaining := make(map[SSRC]Source, len(s.sources))
	for k, v := range s.sources {
		if !other.Has(k) {
			remaining[k] = v
		}
	}
	groups := make([]SourceGroup, 0, len(s.groups))
	for _, g := range s.groups {
		keep := true
		for _, m := range g.Members {
			if other.Has(m) {
				keep = false
				break
			}
		}
		if keep {
			groups = append(groups, g)
		}
	}
	return SourceSet{sources: remaining, groups: groups}
}

func dedupeGroups(groups []SourceGroup) []SourceGroup {
	seen := set.New[string]()
	out := make([]SourceGroup, 0, len(groups))
	for _, g := range groups {
		key := fmt.Sprintf("%s:%v", g.Semantics, g.Members)
		if seen.Has(key) {
			continue
		}
		seen.Insert(key)
		out = append(out, g)
	}
	return out
}

// Quota caps the number of sources of one kind a single owner may hold.
type Quota struct {
	MaxAudio int
	MaxVideo int
}

// ConferenceSourceMap is the mapping owner -> SourceSet for one Conference.
type ConferenceSourceMap map[ParticipantID]SourceSet

// Validate checks candidate against the invariants in DATA MODEL and the
// conference-wide map passed in existing, per 4.A. It returns the subset of
// candidate's sources safe to admit, or a typed error naming the first
// violation found.
func Validate(owner ParticipantID, candidate SourceSet, existing ConferenceSourceMap, quota Quota) (SourceSet, error) {
	audioCount, videoCount := 0, 0
	allKnown := set.New[SSRC]()
	for other, set_ := range existing {
		if other == owner {
			continue
		}
		for _, s := range set_.Sources() {
			allKnown.Insert(s.SSRC)
		}
	}

	resolved := make([]Source, 0, len(candidate.sources))
	for _, s := range candidate.Sources() {
		if s.Injected && s.Owner != "" {
			return SourceSet{}, focuserr.Tagged(focuserr.BadRequest, "invalid-owner", "injected source must not have an owner")
		}
		if allKnown.Has(s.SSRC) {
			return SourceSet{}, focuserr.Tagged(focuserr.BadRequest, "ssrc-conflict", fmt.Sprintf("ssrc %d already used elsewhere in conference", s.SSRC))
		}
		owned := s
		if owned.Owner == "" && !owned.Injected {
			inferred, ok := inferOwner(s, candidate, owner)
			if !ok {
				return SourceSet{}, focuserr.Tagged(focuserr.BadRequest, "invalid-owner", fmt.Sprintf("cannot infer owner for ssrc %d", s.SSRC))
			}
			owned.Owner = inferred
		}
		switch owned.Kind {
		case MediaAudio:
			audioCount++
		case MediaVideo:
			videoCount++
		}
		resolved = append(resolved, owned)
	}
	if quota.MaxAudio > 0 && audioCount > quota.MaxAudio {
		return SourceSet{}, focuserr.Tagged(focuserr.BadRequest, "quota-exceeded", "audio source quota exceeded")
	}
	if quota.MaxVideo > 0 && videoCount > quota.MaxVideo {
		return SourceSet{}, focuserr.Tagged(focuserr.BadRequest, "quota-exceeded", "video source quota exceeded")
	}

	return NewSourceSet(resolved, candidate.Groups())
}

// inferOwner resolves an un-owned source's owner by matching any of its group
// peers to a known owner, falling back to the candidate owner (4.A
// "Algorithmic notes"). When several group peers have owners, the peer with
// the lowest numeric id decides.
func inferOwner(s Source, candidate SourceSet, fallback ParticipantID) (ParticipantID, bool) {
	var best SSRC
	var bestOwner ParticipantID
	for _, g := range candidate.Groups() {
		memberOf := false
		for _, m := range g.Members {
			if m == s.SSRC {
				memberOf = true
				break
			}
		}
		if !memberOf {
			continue
		}
		for _, m := range g.Members {
			if peer, ok := candidate.sources[m]; ok && peer.Owner != "" {
				if bestOwner == "" || m < best {
					best, bestOwner = m, peer.Owner
				}
			}
		}
	}
	if bestOwner != "" {
		return bestOwner, true
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

// WireContainer mirrors the "per-media containers" shape of toWireContents.
type WireContainer struct {
	Kind    MediaKind     `json:"kind"`
	Sources []WireSource  `json:"sources"`
	Groups  []WireGroup   `json:"groups,omitempty"`
}

type WireSource struct {
	SSRC      SSRC              `json:"ssrc"`
	Owner     string            `json:"owner,omitempty"`
	MSID      string            `json:"msid,omitempty"`
	VideoType VideoType         `json:"videoType,omitempty"`
	Injected  bool              `json:"injected,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

type WireGroup struct {
	Semantics GroupSemantics `json:"semantics"`
	Members   []SSRC         `json:"members"`
}

// ToWireContents emits the per-media ("audio", "video") containers, each
// listing its sources in stable ascending-SSRC order. Every group, in the
// order it was added, is attached to the audio container.
func (s SourceSet) ToWireContents() []WireContainer {
	var audio, video []WireSource
	for _, src := range s.Sources() {
		ws := WireSource{SSRC: src.SSRC, Owner: string(src.Owner), MSID: src.MSID, VideoType: src.VideoType, Injected: src.Injected, Params: src.Params}
		if src.Kind == MediaAudio {
			audio = append(audio, ws)
		} else {
			video = append(video, ws)
		}
	}
	var groups []WireGroup
	for _, g := range s.groups {
		groups = append(groups, WireGroup{Semantics: g.Semantics, Members: append([]SSRC(nil), g.Members...)})
	}
	out := []WireContainer{{Kind: MediaAudio, Sources: audio}}
	if len(groups) > 0 {
		out[0].Groups = groups
	}
	out = append(out, WireContainer{Kind: MediaVideo, Sources: video})
	return out
}

// ToCompactJSON encodes ToWireContents' per-media container list as a JSON
// array, the form used when both peers of a Session advertise JSON source
// signaling (6. EXTERNAL INTERFACES). It does not produce an object keyed by
// owner; each source's owner is carried in its own entry.
func (s SourceSet) ToCompactJSON() ([]byte, error) {
	return json.Marshal(s.ToWireContents())
}

// ParseCompactJSON reverses ToCompactJSON, completing the round-trip property
// required by 8.1: parse(toCompactJson(S)) == S for every representable S.
func ParseCompactJSON(data []byte) (SourceSet, error) {
	var containers []WireContainer
	if err := json.Unmarshal(data, &containers); err != nil {
		return SourceSet{}, focuserr.Wrap(focuserr.BadRequest, err, "malformed compact source json")
	}
	return ParseWireContents(containers)
}

// ParseWireContents reconstructs a SourceSet from the output of
// ToWireContents, used by both sides of the round-trip property in 8.1.
func ParseWireContents(containers []WireContainer) (SourceSet, error) {
	var sources []Source
	var groups []SourceGroup
	for _, c := range containers {
		for _, ws := range c.Sources {
			sources = append(sources, Source{
				SSRC: ws.SSRC, Kind: c.Kind, Owner: ParticipantID(ws.Owner),
				MSID: ws.MSID, VideoType: ws.VideoType, Injected: ws.Injected, Params: ws.Params,
			})
		}
		for _, wg := range c.Groups {
			groups = append(groups, SourceGroup{Semantics: wg.Semantics, Members: wg.Members})
		}
	}
	return NewSourceSet(sources, groups)
}
