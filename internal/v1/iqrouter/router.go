// Package iqrouter implements the IqRouter (4.H): routes inbound request
// stanzas to the target conference's single-consumer FIFO queue, or to a
// global handler for conference-less requests, and guarantees exactly one
// reply per request.
package iqrouter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/metrics"
	"github.com/relaymeet/focus/internal/v1/model"
)

// ElementName is one of the recognized request stanza element names (4.H).
type ElementName string

const (
	ElementConference    ElementName = "conference"
	ElementJingle        ElementName = "jingle"
	ElementMute          ElementName = "mute"
	ElementMuteVideo     ElementName = "mute-video"
	ElementJibri         ElementName = "jibri"
	ElementJigasi        ElementName = "jigasi"
	ElementDial          ElementName = "dial"
	ElementRoomMetadata  ElementName = "room-metadata"
	ElementLogin         ElementName = "login"
	ElementLogout        ElementName = "logout"
)

// queueLength is each conference queue's bound; overflow yields
// resource-constraint (4.H: "Queues have bounded length; overflow yields
// resource-constraint errors").
const queueLength = 128

// Request is one inbound request stanza awaiting routing.
type Request struct {
	Element ElementName
	Room    model.RoomName // empty for conference-less requests (pre-creation conference-request)
	From    model.ParticipantID
	Stanza  any

	// AuthenticatedAs is the principal the transport edge's session-token
	// validation resolved for From, empty if the connection presented none
	// (4.I: authentication happens at the transport edge, before the
	// Conference ever sees the stanza).
	AuthenticatedAs string
}

// Handler computes exactly one reply per request. It is invoked on the
// target queue's single worker goroutine, so handlers for one conference
// never run concurrently (4.H, 5. CONCURRENCY: "Stanzas for one conference
// are processed in arrival order").
type Handler func(ctx context.Context, req Request) (any, error)

// item is one queued request paired with its reply channel.
type item struct {
	ctx   context.Context
	req   Request
	reply chan<- result
}

type result struct {
	resp any
	err  error
}

// queue is one conference's FIFO with its own worker goroutine.
type queue struct {
	ch   chan item
	stop chan struct{}
}

// Router is the production IqRouter.
type Router struct {
	mu      sync.Mutex
	queues  map[string]*queue
	global  Handler
	dispatch map[ElementName]Handler
}

// New constructs a Router. global handles conference-less requests such as
// the pre-creation conference-request; dispatch maps every other recognized
// element name to its handler.
func New(global Handler, dispatch map[ElementName]Handler) *Router {
	return &Router{
		queues:   make(map[string]*queue),
		global:   global,
		dispatch: dispatch,
	}
}

// Route implements 4.H: route req to its target conference's queue (or the
// global handler), and block for the synchronously-computed reply.
func (r *Router) Route(ctx context.Context, req Request) (any, error) {
	if req.Room.Bare() == "" {
		if r.global == nil {
			return nil, focuserr.Tagged(focuserr.BadRequest, "no-global-handler", string(req.Element))
		}
		return r.global(ctx, req)
	}

	q := r.queueFor(req.Room.Bare())
	replyCh := make(chan result, 1)

	select {
	case q.ch <- item{ctx: ctx, req: req, reply: replyCh}:
	default:
		return nil, focuserr.New(focuserr.ResourceConstraint, "conference queue full")
	}

	select {
	case res := <-replyCh:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, focuserr.New(focuserr.Cancelled, "request cancelled while queued")
	}
}

func (r *Router) queueFor(room string) *queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[room]; ok {
		return q
	}
	q := &queue{ch: make(chan item, queueLength), stop: make(chan struct{})}
	r.queues[room] = q
	go r.work(room, q)
	return q
}

func (r *Router) work(room string, q *queue) {
	for {
		select {
		case it := <-q.ch:
			r.handle(room, it)
		case <-q.stop:
			r.drain(room, q)
			return
		}
	}
}

// drain gives every stanza still queued at shutdown a terminal reply rather
// than leaving its caller blocked (5. CONCURRENCY: "in-flight handlers
// observing this marker abandon their reply, sending service-unavailable").
func (r *Router) drain(room string, q *queue) {
	for {
		select {
		case it := <-q.ch:
			it.reply <- result{err: focuserr.New(focuserr.ServiceUnavailable, "conference is shutting down")}
		default:
			return
		}
	}
}

func (r *Router) handle(room string, it item) {
	h, ok := r.dispatch[it.req.Element]
	if !ok {
		metrics.StanzaEvents.WithLabelValues(string(it.req.Element), "unrecognized").Inc()
		it.reply <- result{err: focuserr.Tagged(focuserr.BadRequest, "unrecognized-element", string(it.req.Element))}
		return
	}

	start := time.Now()
	resp, err := h(it.ctx, it.req)
	metrics.StanzaProcessingDuration.WithLabelValues(string(it.req.Element)).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StanzaEvents.WithLabelValues(string(it.req.Element), status).Inc()

	logging.Info(it.ctx, "iqrouter handled request",
		zap.String("room", room), zap.String("element", string(it.req.Element)), zap.Bool("ok", err == nil))
	it.reply <- result{resp: resp, err: err}
}

// CloseQueue stops and drains one conference's queue, e.g. on conference
// termination.
func (r *Router) CloseQueue(room model.RoomName) {
	r.mu.Lock()
	q, ok := r.queues[room.Bare()]
	if ok {
		delete(r.queues, room.Bare())
	}
	r.mu.Unlock()
	if ok {
		close(q.stop)
		r.drain(room.Bare(), q)
	}
}
