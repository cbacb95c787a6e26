package conference

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/metrics"
	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/participant"
	"github.com/relaymeet/focus/internal/v1/session"
	"github.com/relaymeet/focus/internal/v1/stanza"
)

// ingest implements 4.F step 3: construct a Participant, discover its
// capabilities, allocate a bridge, build and send the initial offer. Runs on
// the worker goroutine (invoked via c.post from the ChatRoom callback).
func (c *Conference) ingest(id model.ParticipantID) {
	if _, exists := c.participants[id]; exists {
		return
	}
	p := participant.New(id, model.RoleGuest)
	c.participants[id] = p
	if !p.IsVisitor || c.cfg.CountVisitorsTowardStart {
		c.hasHadParticipant = true
	}
	metrics.ActiveRooms.Inc()

	go c.discoverAndOffer(id)
}

// discoverAndOffer runs off the worker goroutine (it blocks on I/O) and
// posts its result back through the queue, preserving single-writer
// semantics on every field it touches.
func (c *Conference) discoverAndOffer(id model.ParticipantID) {
	ctx, cancel := context.WithTimeout(context.Background(), featureDiscoveryTimeout)
	defer cancel()
	ctx = logging.WithMeetingID(ctx, c.cfg.MeetingID)
	ctx = logging.WithParticipantID(ctx, id)

	var caps model.Capabilities
	var err error
	if c.cfg.Discoverer != nil {
		caps, err = c.cfg.Discoverer.Discover(ctx, id)
	}
	if err != nil {
		logging.Warn(ctx, "feature discovery failed, using defaults", zap.Error(err))
	}

	c.post(func() {
		p, ok := c.participants[id]
		if !ok {
			return // departed while discovery was in flight
		}
		p.SetCapabilities(caps)

		b, ok := c.cfg.Selector.Select(c.cfg.LocalRegion, c.pin)
		if !ok {
			logging.Warn(ctx, "no bridge available for participant")
			return
		}
		c.bridgeOf[id] = b.ID

		sender := c.cfg.Sessions.NewSender(id)
		sess := session.New(string(id), id, sender)
		c.sessions[id] = sess
		p.BindSession(sess)

		contents := c.buildOfferContents(p)
		go c.sendInitialOffer(id, sess, contents)
	})
}

func (c *Conference) buildOfferContents(p *participant.Participant) []stanza.Content {
	want := participant.OfferOptions{Audio: true, Video: true, DataChannel: true, Simulcast: true}
	got := p.ApplyOfferConstraints(want)

	var contents []stanza.Content
	if content := c.cfg.Catalogue.BuildContent("audio", got.Audio, got.Video); content != nil {
		contents = append(contents, *content)
	}
	if content := c.cfg.Catalogue.BuildContent("video", got.Audio, got.Video); content != nil {
		contents = append(contents, *content)
	}
	return contents
}

// sendInitialOffer runs off the worker goroutine since Session.Initiate
// blocks up to the response timeout (5. CONCURRENCY).
func (c *Conference) sendInitialOffer(id model.ParticipantID, sess *session.Session, contents []stanza.Content) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	ctx = logging.WithMeetingID(ctx, c.cfg.MeetingID)
	ctx = logging.WithParticipantID(ctx, id)

	if err := c.cfg.BridgeClient.Allocate(ctx, c.bridgeOf[id], c.cfg.MeetingID, id); err != nil {
		logging.Warn(ctx, "bridge allocate failed", zap.Error(err))
		c.post(func() { c.cfg.Selector.ReportFailure(c.bridgeOf[id]) })
		return
	}

	err := sess.Initiate(ctx, contents, nil, nil, false)
	c.post(func() {
		p, ok := c.participants[id]
		if !ok {
			return
		}
		if err != nil {
			logging.Warn(ctx, "session initiate failed", zap.Error(err))
			return
		}
		p.MarkActive()
	})
}

// HandleSessionAccept implements 4.F step 4: validate the answer's sources
// against the conference-wide invariants and, if valid, merge and
// propagate.
func (c *Conference) HandleSessionAccept(id model.ParticipantID, candidate model.SourceSet) error {
	_, err := submit(c, func() (struct{}, error) {
		p, ok := c.participants[id]
		if !ok {
			return struct{}{}, nil
		}
		existing := c.sourceMap
		validated, err := model.Validate(id, candidate, existing, c.cfg.Quota)
		if err != nil {
			return struct{}{}, err
		}
		p.SetSources(validated)
		c.sourceMap[id] = validated
		c.propagator.scheduleAdd(id, validated)
		return struct{}{}, nil
	})
	return err
}

// ResolvePendingSession feeds an inbound reply to whichever request the
// participant's Session is currently blocked on. The JSON transport carries
// no correlation id of its own for it (4.I), so this relies on a
// participant having at most one request-type exchange outstanding at a
// time (Session.LatestPendingID).
func (c *Conference) ResolvePendingSession(id model.ParticipantID, iq stanza.JingleIQ) error {
	_, err := submit(c, func() (struct{}, error) {
		sess, ok := c.sessions[id]
		if !ok {
			return struct{}{}, focuserr.New(focuserr.ItemNotFound, "unknown participant")
		}
		pendingID, ok := sess.LatestPendingID()
		if !ok {
			return struct{}{}, focuserr.New(focuserr.BadRequest, "no pending request to answer")
		}
		return struct{}{}, sess.ProcessIncoming(context.Background(), iq, pendingID)
	})
	return err
}

// departed implements roster-driven teardown: a participant left or was
// kicked. Terminates their Session, expires their bridge channel, removes
// their sources, and relays the removal.
func (c *Conference) departed(id model.ParticipantID) {
	p, ok := c.participants[id]
	if !ok {
		return
	}
	p.MarkLeaving()

	if sess, ok := c.sessions[id]; ok {
		_ = sess.Terminate("gone", "", false)
		delete(c.sessions, id)
	}
	if bridgeID, ok := c.bridgeOf[id]; ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.cfg.BridgeClient.Expire(ctx, bridgeID, c.cfg.MeetingID, id)
		cancel()
		delete(c.bridgeOf, id)
	}

	removed := c.sourceMap[id]
	delete(c.sourceMap, id)
	delete(c.participants, id)
	metrics.RoomParticipants.WithLabelValues(c.cfg.Room.Bare()).Set(float64(len(c.participants)))

	c.propagator.removeImmediately(id, removed)

	if len(c.participants) == 0 {
		c.post(func() { c.Terminate(context.Background(), "gone") })
	}
}

// RehostBridge implements 4.F step 7: on bridge failure, re-select and
// issue transport-replace for every affected participant; terminate the
// conference if no replacement exists.
func (c *Conference) RehostBridge(failed model.BridgeID) {
	c.post(func() {
		var affected []model.ParticipantID
		for id, b := range c.bridgeOf {
			if b == failed {
				affected = append(affected, id)
			}
		}
		if len(affected) == 0 {
			return
		}

		replacement, ok := c.cfg.Selector.Select(c.cfg.LocalRegion, c.pin)
		if !ok {
			logging.Warn(logging.WithMeetingID(context.Background(), c.cfg.MeetingID),
				"no replacement bridge, terminating conference", zap.String("failedBridge", string(failed)))
			c.Terminate(context.Background(), "failed")
			return
		}

		for _, id := range affected {
			c.bridgeOf[id] = replacement.ID
			if sess, ok := c.sessions[id]; ok {
				go func(s *session.Session) {
					ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
					defer cancel()
					_ = s.ReplaceTransport(ctx, &stanza.Transport{})
				}(sess)
			}
		}
	})
}

// Terminate implements 4.F step 8. Must be called from the worker goroutine
// (it is not itself submitted through the queue, since it is the mechanism
// that shuts the queue down).
func (c *Conference) Terminate(ctx context.Context, reason string) {
	if c.state == model.ConferenceTerminating || c.state == model.ConferenceTerminated {
		return
	}
	c.state = model.ConferenceTerminating
	logging.Info(logging.WithMeetingID(ctx, c.cfg.MeetingID), "conference terminating",
		zap.String("room", c.cfg.Room.Bare()), zap.String("reason", reason))

	for id, sess := range c.sessions {
		_ = sess.Terminate(reason, "", true)
		if bridgeID, ok := c.bridgeOf[id]; ok {
			expireCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.cfg.BridgeClient.Expire(expireCtx, bridgeID, c.cfg.MeetingID, id)
			cancel()
		}
	}
	_ = c.cfg.Adapter.Leave(ctx)

	if c.cfg.Reservation != nil && c.reservationID != "" {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.cfg.Reservation.Release(releaseCtx, c.reservationID); err != nil {
			logging.Warn(logging.WithMeetingID(ctx, c.cfg.MeetingID), "reservation release failed", zap.Error(err))
		}
		cancel()
	}

	c.state = model.ConferenceTerminated
	metrics.ActiveRooms.Dec()
	metrics.RoomParticipants.DeleteLabelValues(c.cfg.Room.Bare())

	if c.cfg.OnTerminated != nil {
		c.cfg.OnTerminated(c.cfg.Room)
	}
	close(c.quit)
}

// CheckStartTimeout implements the ConferenceStore sweeper's eligibility
// test (4.G): stop a conference that has never had a participant once it
// has outlived startTimeout.
func (c *Conference) CheckStartTimeout(now time.Time) bool {
	v, _ := submit(c, func() (bool, error) {
		if c.hasHadParticipant {
			return false, nil
		}
		return now.Sub(c.createdAt) > startTimeout, nil
	})
	return v
}
