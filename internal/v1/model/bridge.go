package model

import "time"

// BridgeID is a media bridge's opaque address.
type BridgeID string

// BridgeStats is a periodic statistics extension published by one bridge
// (3. DATA MODEL, Bridge).
type BridgeStats struct {
	ConferenceCount int
	Stress          float64 // normalized load, 0..∞
	Region          string
	Version         string
	GracefulShutdown bool
}

// Bridge is one entry in the BridgeSelector's registry.
type Bridge struct {
	ID               BridgeID
	Operational      bool
	InGracefulShutdown bool
	Stats            BridgeStats
	LastSeen         time.Time
}

// PresenceExtensionKind names one of the typed presence-extension blobs a
// ChatRoom adapter delivers with a presence update (4.D).
type PresenceExtensionKind string

const (
	PresenceAudioMuted PresenceExtensionKind = "audio-muted"
	PresenceVideoMuted PresenceExtensionKind = "video-muted"
	PresenceRegion     PresenceExtensionKind = "region"
	PresenceStatsID    PresenceExtensionKind = "stats-id"
	PresenceStartMuted PresenceExtensionKind = "start-muted"
	PresenceRobot      PresenceExtensionKind = "robot"
	PresenceSourceInfo PresenceExtensionKind = "source-info"
)

// PresenceExtension is one opaque blob carried by a ChatRoom presence update.
type PresenceExtension struct {
	Kind  PresenceExtensionKind
	Value string
}

// Clock abstracts wall-clock reads so rate limiters, aggregators, and
// sweepers take `now` as a parameter and stay deterministic under test
// (9. DESIGN NOTES: "pure value types that take a `now` clock parameter").
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
