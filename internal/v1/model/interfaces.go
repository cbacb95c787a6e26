package model

import (
	"context"
	"time"
)

// StanzaSender is the narrow outbound channel a Session (4.B) uses to ship a
// signaling stanza to its participant, and a ChatRoom adapter (4.D) uses to
// edit outbound presence. The transport itself (the MUC connection) is out
// of scope; this interface is the only thing the core depends on.
type StanzaSender interface {
	// Send ships one stanza (request or notification) to the remote peer.
	// For request-type stanzas the caller correlates the reply out of band
	// via RequestResponder.
	Send(ctx context.Context, stanza any) error
}

// RequestResponder issues a request-type stanza and blocks for its `result`
// or `error` reply, honoring ctx's deadline. It is the "one-shot response
// slot keyed by request id" pattern from 9. DESIGN NOTES.
type RequestResponder interface {
	Request(ctx context.Context, stanza any, timeout time.Duration) (any, error)
}

// ChatRoomAdapter is the contract the Conference depends on for MUC presence
// (4.D). One adapter instance is bound to one room for its lifetime.
type ChatRoomAdapter interface {
	Join(ctx context.Context) error
	Leave(ctx context.Context) error

	OnOccupantJoin(func(ParticipantID))
	OnOccupantLeave(func(ParticipantID))
	OnOccupantKicked(func(ParticipantID))
	OnRoleChanged(func(ParticipantID, Role))
	OnPresenceUpdate(func(ParticipantID, []PresenceExtension))

	SetPresenceExtension(kind PresenceExtensionKind, value string) error
	ModifyPresence(remove []PresenceExtensionKind, add []PresenceExtension) error
}

// BridgeSelector is the contract 4.F uses to acquire and release bridges for
// a conference's participants. Implementations must be safe for concurrent
// callers (5. CONCURRENCY: "BridgeSelector is internally synchronized").
type BridgeSelector interface {
	Select(forRegion string, pin *BridgePin) (Bridge, bool)
	ReportFailure(id BridgeID)
	ApplyStats(id BridgeID, stats BridgeStats, observedAt time.Time)
}

// BridgePin forces selection onto a specific bridge software version until
// Expiry (3. DATA MODEL, Conference: "pinned bridge-version").
type BridgePin struct {
	Version string
	Expiry  time.Time
}

// Expired reports whether the pin is no longer in effect at t.
func (p *BridgePin) Expired(t time.Time) bool {
	return p == nil || !t.Before(p.Expiry)
}

// BridgeClient is the narrow RPC contract to one bridge (4.C.1, 6. EXTERNAL
// INTERFACES "Focus <-> bridge").
type BridgeClient interface {
	Allocate(ctx context.Context, bridge BridgeID, conference MeetingID, participant ParticipantID) error
	Modify(ctx context.Context, bridge BridgeID, conference MeetingID, participant ParticipantID, sources SourceSet) error
	Expire(ctx context.Context, bridge BridgeID, conference MeetingID, participant ParticipantID) error
}

// ReservationGate is the contract 4.I's reservation check is reached through.
type ReservationGate interface {
	// Reserve returns the authoritative conference id and duration, or an
	// error (possibly a *focuserr.ReservationError) rejecting creation.
	Reserve(ctx context.Context, room RoomName, startTime time.Time, mailOwner string) (id string, duration time.Duration, err error)
	Release(ctx context.Context, id string) error
}

// AuthenticationAuthority is the contract 4.I's admission check is reached
// through; XMPPDomainAuthority and ExternalAuthority are its two modes.
type AuthenticationAuthority interface {
	// Authenticate returns a session token for principal, bound to machineUID.
	Authenticate(ctx context.Context, principal, machineUID string) (token string, err error)
	// Validate resolves a previously issued token, enforcing the
	// machine-UID binding (4.I: "not-acceptable" on mismatch).
	Validate(ctx context.Context, token, machineUID string) (principal string, err error)
	// Logout invalidates a previously issued token ahead of its natural
	// expiry, reached through the `logout` element.
	Logout(ctx context.Context, token string) error
}

// AVServiceClient is the narrow RPC contract to the recording ("jibri"),
// SIP-gateway ("jigasi"), and dial-out workers (6. EXTERNAL INTERFACES):
// each is a command against one conference, accepted or rejected
// synchronously, the same shape as BridgeClient's control channel.
type AVServiceClient interface {
	Execute(ctx context.Context, op string, conference MeetingID, params map[string]string) error
}
