// Package stanza defines the wire shapes exchanged at every boundary of the
// focus: client<->focus conference-request/response, focus<->participant
// Jingle-style signaling, and focus<->bridge allocation commands. Each shape
// carries both its stanza (XML) and HTTP (JSON) tags so a single Go type
// serves both transports named in EXTERNAL INTERFACES.
package stanza

// ConferenceRequest is the client's admission request, carried either as a
// <conference/> stanza in namespace http://jitsi.org/protocol/focus or as the
// JSON body of POST /conference-request/v1.
type ConferenceRequest struct {
	XMLName    struct{}          `xml:"http://jitsi.org/protocol/focus conference" json:"-"`
	Room       string            `xml:"room,attr" json:"room"`
	SessionID  string            `xml:"session-id,attr,omitempty" json:"sessionId,omitempty"`
	MachineUID string            `xml:"machine-uid,attr,omitempty" json:"machineUID,omitempty"`
	Vnode      string            `xml:"vnode,attr,omitempty" json:"vnode,omitempty"`
	FocusJID   string            `xml:"focusjid,attr,omitempty" json:"focusJid,omitempty"`
	Properties map[string]string `xml:"-" json:"properties,omitempty"`
}

// ConferenceResponse answers a ConferenceRequest.
type ConferenceResponse struct {
	Ready      bool              `xml:"ready,attr" json:"ready"`
	FocusJID   string            `xml:"focusjid,attr,omitempty" json:"focusJid,omitempty"`
	Vnode      string            `xml:"vnode,attr,omitempty" json:"vnode,omitempty"`
	SessionID  string            `xml:"session-id,attr,omitempty" json:"sessionId,omitempty"`
	Properties map[string]string `xml:"-" json:"properties,omitempty"`

	SIPGatewayEnabled    bool `xml:"-" json:"sipGatewayEnabled,omitempty"`
	LobbyEnabled         bool `xml:"-" json:"lobbyEnabled,omitempty"`
	VisitorsEnabled      bool `xml:"-" json:"visitorsEnabled,omitempty"`
	TranscriberAvailable bool `xml:"-" json:"transcriberAvailable,omitempty"`
	RTCStatsEnabled      bool `xml:"-" json:"rtcstatsEnabled,omitempty"`
}

// Property is one stanza-form <property name="" value=""/> child, used only
// by the XML encoding; ConferenceRequest.Properties is flattened to/from
// this slice by the stanza codec at the transport edge.
type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// HealthStatus is the body of GET /about/health: empty on success, populated
// only on failure so operators get a reason without a second round trip.
type HealthStatus struct {
	Reason string `json:"reason,omitempty"`
}
