package stanza

import "github.com/relaymeet/focus/internal/v1/model"

// BridgeOp names one focus<->bridge command (6. EXTERNAL INTERFACES,
// "Focus <-> bridge").
type BridgeOp string

const (
	BridgeOpAllocate BridgeOp = "allocate"
	BridgeOpModify   BridgeOp = "modify"
	BridgeOpExpire   BridgeOp = "expire"
)

// BridgeCommand is one request the focus sends to a bridge; the bridge
// replies with a BridgeResult or an error.
type BridgeCommand struct {
	Op            BridgeOp              `json:"op"`
	Conference    string                `json:"conference"`
	Participant   string                `json:"participant,omitempty"`
	Sources       []model.WireContainer `json:"sources,omitempty"`
	RTCStatsEnabled bool                `json:"rtcstatsEnabled,omitempty"`
}

// BridgeResult is a bridge's reply to a BridgeCommand.
type BridgeResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// BridgeStatsReport is the periodic out-of-band statistics publication a
// bridge sends, consumed by the BridgeSelector (4.C).
type BridgeStatsReport struct {
	BridgeID         string  `json:"bridgeId"`
	ConferenceCount  int     `json:"conferenceCount"`
	Stress           float64 `json:"stress"`
	Region           string  `json:"region"`
	Version          string  `json:"version"`
	GracefulShutdown bool    `json:"gracefulShutdown"`
}

// ToModelStats converts the wire report to the internal BridgeStats shape.
func (r BridgeStatsReport) ToModelStats() model.BridgeStats {
	return model.BridgeStats{
		ConferenceCount:  r.ConferenceCount,
		Stress:           r.Stress,
		Region:           r.Region,
		Version:          r.Version,
		GracefulShutdown: r.GracefulShutdown,
	}
}
