package stanza

import "github.com/relaymeet/focus/internal/v1/model"

// Action is one Jingle action name carried by a JingleIQ.
type Action string

const (
	ActionSessionInitiate  Action = "session-initiate"
	ActionSessionAccept    Action = "session-accept"
	ActionSessionTerminate Action = "session-terminate"
	ActionTransportReplace Action = "transport-replace"
	ActionTransportInfo    Action = "transport-info"
	ActionSourceAdd        Action = "source-add"
	ActionSourceRemove     Action = "source-remove"
)

// JingleIQ is one request-type stanza the focus exchanges with a
// participant's Session (4.B). Sid is opaque and stable for the session's
// lifetime; correlating a result/error reply to the outstanding request is
// the transport's job, not this type's.
type JingleIQ struct {
	XMLName struct{} `xml:"jingle" json:"-"`
	Action  Action   `xml:"action,attr" json:"action"`
	SID     string   `xml:"sid,attr" json:"sid"`
	Initiator string `xml:"initiator,attr,omitempty" json:"initiator,omitempty"`

	// Contents carries the per-media content/description trees.
	// Session.Initiate always fills it; source-add and source-remove leave
	// it empty.
	Contents []Content `xml:"content,omitempty" json:"contents,omitempty"`

	// CompactSources carries source topology as SourceSet.ToWireContents'
	// per-media container list. Session.Initiate fills it, alongside
	// Contents, only when jsonSources is true; source-add and source-remove
	// always use it.
	CompactSources []model.WireContainer `xml:"-" json:"sources,omitempty"`

	Reason string `xml:"reason>text,omitempty" json:"reason,omitempty"`
}

// Content is one media content's description tree, the non-compact carrier
// of a participant's SourceSet.
type Content struct {
	Name        string       `xml:"name,attr" json:"name"`
	Senders     string       `xml:"senders,attr,omitempty" json:"senders,omitempty"`
	Description *Description `xml:"description,omitempty" json:"description,omitempty"`
	Transport   *Transport   `xml:"transport,omitempty" json:"transport,omitempty"`
}

// Description carries one content's sources and source groups.
type Description struct {
	Media   string                `xml:"media,attr" json:"media"`
	Sources []model.WireSource    `xml:"source,omitempty" json:"sources,omitempty"`
	Groups  []model.WireGroup     `xml:"ssrc-group,omitempty" json:"ssrcGroups,omitempty"`
}

// Transport is an opaque ICE/DTLS transport blob; the focus forwards it
// between bridge and participant without interpreting it.
type Transport struct {
	UFrag       string `xml:"ufrag,attr,omitempty" json:"ufrag,omitempty"`
	Fingerprint string `xml:"fingerprint,omitempty" json:"fingerprint,omitempty"`
	Candidates  []byte `xml:"-" json:"candidates,omitempty"`
}
