package stanza

import "github.com/relaymeet/focus/internal/v1/model"

// MuteRequest is the wire payload for the `mute` and `mute-video` elements
// (4.F step 6): either a moderator forcing Target's media off (Muted true),
// or a participant requesting its own unmute (Muted false, Target must equal
// the sender).
type MuteRequest struct {
	Target model.ParticipantID `json:"target"`
	Muted  bool                `json:"muted"`
}

// MuteResult is the empty acknowledgment of a successful mute.
type MuteResult struct{}

// MuteNotification is the unsolicited push a moderator's forced mute
// delivers to the muted participant's own session, distinct from
// MuteResult (which only acknowledges the moderator's request). Kind
// mirrors model.MediaKind's wire values ("audio"/"video").
type MuteNotification struct {
	Kind  string `json:"kind"`
	Muted bool   `json:"muted"`
}

// JibriRequest starts or stops a recording/streaming session against the
// caller's conference.
type JibriRequest struct {
	Action   string `json:"action"` // "start" | "stop"
	StreamID string `json:"stream_id,omitempty"`
}

// JibriResult is the empty acknowledgment of an accepted recording command.
type JibriResult struct{}

// JigasiRequest starts or stops a SIP-gateway session against the caller's
// conference.
type JigasiRequest struct {
	Action      string `json:"action"` // "start" | "stop"
	Destination string `json:"destination,omitempty"`
}

// JigasiResult is the empty acknowledgment of an accepted SIP-gateway
// command.
type JigasiResult struct{}

// DialRequest asks the conference to place an outbound PSTN call.
type DialRequest struct {
	Number string `json:"number"`
}

// DialResult is the empty acknowledgment of an accepted dial-out command.
type DialResult struct{}

// RoomMetadataRequest updates one key in the room's shared metadata,
// propagated to occupants via presence.
type RoomMetadataRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RoomMetadataResult is the empty acknowledgment of an accepted metadata
// update.
type RoomMetadataResult struct{}

// LoginRequest carries the credential presented to the authentication
// authority. For XMPP-domain mode Principal is the already-authenticated
// XMPP identity; for external mode it is the raw bearer JWT.
type LoginRequest struct {
	Principal  string `json:"principal"`
	MachineUID string `json:"machine_uid"`
}

// LoginResult carries the issued session token.
type LoginResult struct {
	Token string `json:"token"`
}

// LogoutRequest invalidates a previously issued session token.
type LogoutRequest struct {
	Token string `json:"token"`
}

// LogoutResult is the empty acknowledgment of a logout.
type LogoutResult struct{}
