// Package model defines the shared domain vocabulary of the conference focus:
// room identity, participant identity, the source-topology types, and the
// small set of interfaces that let the orchestration packages (conference,
// store, iqrouter) talk to their collaborators (chatroom, bridge, session)
// without importing each other directly.
package model

import "strings"

// RoomName is an opaque structured identifier with a bare and full form, the
// way an XMPP JID has a bare (user@domain) and full (user@domain/resource)
// form. All conference lookups compare bare forms; the full form identifies
// one occupant inside the room.
type RoomName struct {
	bare, resource string
}

// ParseRoomName splits "bare" or "bare/resource" into a RoomName.
func ParseRoomName(s string) RoomName {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return RoomName{bare: s[:i], resource: s[i+1:]}
	}
	return RoomName{bare: s}
}

// Bare returns the room-address-only form, used for all ConferenceStore and
// Conference-identity comparisons.
func (r RoomName) Bare() string { return r.bare }

// Resource returns the occupant-identifying suffix, empty for a bare name.
func (r RoomName) Resource() string { return r.resource }

// WithResource returns the full form for a given occupant resource.
func (r RoomName) WithResource(resource string) RoomName {
	return RoomName{bare: r.bare, resource: resource}
}

// IsBare reports whether this RoomName carries no occupant resource.
func (r RoomName) IsBare() bool { return r.resource == "" }

func (r RoomName) String() string {
	if r.resource == "" {
		return r.bare
	}
	return r.bare + "/" + r.resource
}

// Equal compares two RoomNames by bare form only, per the identity contract.
func (r RoomName) Equal(other RoomName) bool { return r.bare == other.bare }

// ParticipantID is the occupant form of the room identity: stable for the
// lifetime of one Participant.
type ParticipantID string

// MeetingID is an opaque caller-assigned identifier a Conference may also be
// looked up by, in addition to its bare room name.
type MeetingID string

// Role is a participant's MUC-derived authorization level.
type Role string

const (
	RoleGuest   Role = "guest"
	RoleModer   Role = "moderator"
	RoleAdmin   Role = "administrator"
	RoleUnknown Role = "unknown"
)

// AtLeastModerator reports whether r authorizes moderator-only operations
// (4.F.6: mute, role, and AV-moderation).
func (r Role) AtLeastModerator() bool {
	return r == RoleModer || r == RoleAdmin
}

// Liveness is a Participant's coarse lifecycle state.
type Liveness string

const (
	LivenessJoining Liveness = "joining"
	LivenessActive  Liveness = "active"
	LivenessLeaving Liveness = "leaving"
	LivenessGone    Liveness = "gone"
)

// ConferenceState is the Conference lifecycle state machine's current value.
type ConferenceState string

const (
	ConferenceInitializing ConferenceState = "initializing"
	ConferenceRunning      ConferenceState = "running"
	ConferenceTerminating  ConferenceState = "terminating"
	ConferenceTerminated   ConferenceState = "terminated"
)

// SessionState is the per-participant signaling Session's state machine value.
type SessionState string

const (
	SessionPending SessionState = "pending"
	SessionActive  SessionState = "active"
	SessionEnded   SessionState = "ended"
)

// Capabilities is the boolean capability set discovered for one participant
// (3. DATA MODEL, Participant). Capabilities gate which parts of an offer the
// Conference generates (4.F.3) and whether a Participant counts as
// receive-only for bridge-selection purposes (GLOSSARY, Visitor).
type Capabilities struct {
	Audio                 bool
	Video                 bool
	DataChannel           bool
	Retransmission        bool
	BandwidthEstimationFB bool
	TransportCCFeedback   bool
	AudioRedundancy       bool
	Simulcast             bool
	LayerDescriptors      bool
	JSONSourceSignaling   bool
	ReceiveOnly           bool
}
