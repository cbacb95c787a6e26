package conference

import "github.com/relaymeet/focus/internal/v1/stanza"

// CodecName enumerates the codec entries recognized by offer construction
// (4.F.3).
type CodecName string

const (
	CodecOpus           CodecName = "opus"
	CodecTelephoneEvent CodecName = "telephone-event"
	CodecVP8            CodecName = "vp8"
	CodecVP9            CodecName = "vp9"
	CodecH264           CodecName = "h264"
	CodecAV1            CodecName = "av1"
)

// HeaderExtension enumerates the recognized RTP header extensions (4.F.3).
type HeaderExtension string

const (
	ExtAudioLevel              HeaderExtension = "ssrc-audio-level"
	ExtMid                     HeaderExtension = "mid"
	ExtAbsSendTime             HeaderExtension = "abs-send-time"
	ExtTimeOffset              HeaderExtension = "time-offset"
	ExtFramemarking            HeaderExtension = "framemarking"
	ExtVideoContentType        HeaderExtension = "video-content-type"
	ExtRID                     HeaderExtension = "rid"
	ExtTransportWideCC         HeaderExtension = "transport-wide-cc"
	ExtAV1DependencyDescriptor HeaderExtension = "av1-dependency-descriptor"
	ExtVideoLayersAllocation   HeaderExtension = "video-layers-allocation"
)

// CodecEntry is one enabled codec in the conference's catalogue. The same
// PayloadType must be used for the same codec across every participant in
// one conference (4.F.3: "the same number must be used for the same meaning
// across all participants in a conference").
type CodecEntry struct {
	Name           CodecName
	PayloadType    int
	ClockRate      int
	Channels       int // 0 for video codecs
	MinPTime       int // opus only
	UseInbandFEC   bool
	RED            bool // opus only: wrap in a RED payload
	REDPayloadType int

	// RTX, when non-nil, is the paired retransmission codec for a video
	// codec entry; APT points back at PayloadType.
	RTX *RTXEntry

	FeedbackCCMFIR     bool
	FeedbackNACK       bool
	FeedbackNACKPLI    bool
	FeedbackTransportCC bool
	FeedbackGoogREMB   bool
}

// RTXEntry is a video codec's paired retransmission payload.
type RTXEntry struct {
	PayloadType int
	APT         int
}

// FmtLine renders the codec's fmtp parameter string, where applicable.
func (c CodecEntry) FmtLine() string {
	switch c.Name {
	case CodecOpus:
		line := ""
		if c.MinPTime > 0 {
			line = "minptime=" + itoa(c.MinPTime)
		}
		if c.UseInbandFEC {
			if line != "" {
				line += ";"
			}
			line += "useinbandfec=1"
		}
		return line
	case CodecH264:
		return "profile-level-id=42e01f;level-asymmetry-allowed=1;packetization-mode=1"
	default:
		return ""
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// Catalogue is a conference's enabled codec and header-extension set,
// sourced from config at conference creation (4.F.3).
type Catalogue struct {
	Codecs           []CodecEntry
	HeaderExtensions map[HeaderExtension]int // extension -> id
}

// DefaultCatalogue returns a representative enabled set; production
// deployments override payload-type/extension-id numbers via config, never
// the set of recognized names.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		Codecs: []CodecEntry{
			{Name: CodecOpus, PayloadType: 111, ClockRate: 48000, Channels: 2, MinPTime: 10, UseInbandFEC: true},
			{Name: CodecTelephoneEvent, PayloadType: 126, ClockRate: 8000},
			{Name: CodecVP8, PayloadType: 96, ClockRate: 90000,
				RTX:                &RTXEntry{PayloadType: 97, APT: 96},
				FeedbackCCMFIR:     true, FeedbackNACK: true, FeedbackNACKPLI: true,
				FeedbackTransportCC: true, FeedbackGoogREMB: true},
			{Name: CodecVP9, PayloadType: 98, ClockRate: 90000,
				RTX:                &RTXEntry{PayloadType: 99, APT: 98},
				FeedbackCCMFIR:     true, FeedbackNACK: true, FeedbackNACKPLI: true,
				FeedbackTransportCC: true},
			{Name: CodecH264, PayloadType: 100, ClockRate: 90000,
				RTX:                &RTXEntry{PayloadType: 101, APT: 100},
				FeedbackCCMFIR:     true, FeedbackNACK: true, FeedbackNACKPLI: true},
			{Name: CodecAV1, PayloadType: 102, ClockRate: 90000,
				RTX:            &RTXEntry{PayloadType: 103, APT: 102},
				FeedbackNACK:   true, FeedbackNACKPLI: true},
		},
		HeaderExtensions: map[HeaderExtension]int{
			ExtAudioLevel:              1,
			ExtMid:                     2,
			ExtAbsSendTime:             3,
			ExtTimeOffset:              4,
			ExtFramemarking:            5,
			ExtVideoContentType:        6,
			ExtRID:                     7,
			ExtTransportWideCC:         8,
			ExtAV1DependencyDescriptor: 9,
			ExtVideoLayersAllocation:   10,
		},
	}
}

// Filter returns the subset of the catalogue's video codecs whose Name is in
// allowed, preserving catalogue order. Audio codecs and telephone-event are
// always retained; this is the hook 4.F.1's aggregator uses to drop codecs a
// visitor cohort doesn't unanimously support.
func (c Catalogue) Filter(allowedVideo map[CodecName]bool) Catalogue {
	out := c
	out.Codecs = nil
	for _, entry := range c.Codecs {
		switch entry.Name {
		case CodecOpus, CodecTelephoneEvent:
			out.Codecs = append(out.Codecs, entry)
		default:
			if allowedVideo == nil || allowedVideo[entry.Name] {
				out.Codecs = append(out.Codecs, entry)
			}
		}
	}
	return out
}

// BuildContent returns the Jingle content element for one media kind (name,
// senders "both", description media), honoring the caller's audio/video
// gate. The catalogue's codec and header-extension entries are not included.
func (c Catalogue) BuildContent(media string, wantAudio, wantVideo bool) *stanza.Content {
	if media == "audio" && !wantAudio {
		return nil
	}
	if media == "video" && !wantVideo {
		return nil
	}
	return &stanza.Content{
		Name:    media,
		Senders: "both",
		Description: &stanza.Description{
			Media: media,
		},
	}
}
