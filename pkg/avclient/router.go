package avclient

import (
	"context"
	"strings"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/model"
)

// Router fans one model.AVServiceClient call out to the worker kind its op
// names, since each of jibri/jigasi/dial is its own control endpoint and
// circuit breaker. conference.Config takes a single AVClient; Router is
// what lets it serve all three elements.
type Router struct {
	jibri, jigasi, dial *Client
}

// NewRouter wires up to three worker clients. A nil entry leaves that
// element's ops failing with service-unavailable.
func NewRouter(jibri, jigasi, dial *Client) *Router {
	return &Router{jibri: jibri, jigasi: jigasi, dial: dial}
}

// Execute implements model.AVServiceClient, selecting the worker by op's
// "jibri-"/"jigasi-" prefix, or treating any other op as a dial command.
func (r *Router) Execute(ctx context.Context, op string, conference model.MeetingID, params map[string]string) error {
	switch {
	case strings.HasPrefix(op, "jibri-"):
		if r.jibri == nil {
			return focuserr.New(focuserr.ServiceUnavailable, "jibri worker not configured")
		}
		return r.jibri.Execute(ctx, op, conference, params)
	case strings.HasPrefix(op, "jigasi-"):
		if r.jigasi == nil {
			return focuserr.New(focuserr.ServiceUnavailable, "jigasi worker not configured")
		}
		return r.jigasi.Execute(ctx, op, conference, params)
	default:
		if r.dial == nil {
			return focuserr.New(focuserr.ServiceUnavailable, "dial worker not configured")
		}
		return r.dial.Execute(ctx, op, conference, params)
	}
}

var _ model.AVServiceClient = (*Router)(nil)
