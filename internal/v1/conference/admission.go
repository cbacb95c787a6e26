package conference

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/stanza"
)

// AdmissionRequest carries the caller's identity alongside the wire request,
// since authentication happens at the transport edge (4.I) before the
// Conference sees the stanza.
type AdmissionRequest struct {
	Stanza          stanza.ConferenceRequest
	AuthenticatedAs string // empty if the caller presented no valid token
	AuthRequired    bool
}

// HandleConferenceRequest implements 4.F step 2. It does not reset the
// start-timeout: CheckStartTimeout measures from the conference's creation
// time, and neither this method nor the ConferenceStore changes it.
func (c *Conference) HandleConferenceRequest(ctx context.Context, req AdmissionRequest) (stanza.ConferenceResponse, error) {
	if req.AuthRequired && req.AuthenticatedAs == "" {
		return stanza.ConferenceResponse{}, focuserr.New(focuserr.NotAuthorized, "conference requires authentication")
	}

	if err := c.ensureReservation(ctx, req); err != nil {
		return stanza.ConferenceResponse{}, err
	}

	return submit(c, func() (stanza.ConferenceResponse, error) {
		if c.state == model.ConferenceTerminating || c.state == model.ConferenceTerminated {
			return stanza.ConferenceResponse{}, focuserr.New(focuserr.ServiceUnavailable, "conference is shutting down")
		}

		resp := stanza.ConferenceResponse{
			Ready:                true,
			SessionID:            req.Stanza.SessionID,
			SIPGatewayEnabled:    false,
			LobbyEnabled:         false,
			VisitorsEnabled:      true,
			TranscriberAvailable: false,
			RTCStatsEnabled:      true,
		}
		return resp, nil
	})
}

// ensureReservation implements 4.I's reservation gate: the first
// conference-request for a room, if a Reservation backend is configured,
// reserves it before the conference is admitted to proceed; every
// subsequent request against the same (already-running) conference is a
// no-op. Runs the RPC off the worker goroutine, the same two-phase
// check-then-post shape discoverAndOffer uses for its own blocking I/O, so
// a slow or stuck reservation backend cannot stall the conference's single
// writer.
func (c *Conference) ensureReservation(ctx context.Context, req AdmissionRequest) error {
	if c.cfg.Reservation == nil {
		return nil
	}
	done, err := submit(c, func() (bool, error) { return c.reservationDone, nil })
	if err != nil || done {
		return err
	}

	mailOwner := req.Stanza.Properties["mail_owner"]
	id, duration, err := c.cfg.Reservation.Reserve(ctx, c.cfg.Room, c.cfg.Clock.Now(), mailOwner)
	if err != nil {
		return err
	}

	_, err = submit(c, func() (struct{}, error) {
		if c.reservationDone {
			return struct{}{}, nil // lost a race with a concurrent conference-request; first writer wins
		}
		c.reservationID = id
		c.reservationDone = true
		if duration > 0 {
			time.AfterFunc(duration, func() {
				c.post(func() { c.Terminate(context.Background(), "reservation-expired") })
			})
		}
		logging.Info(logging.WithMeetingID(ctx, c.cfg.MeetingID), "reservation secured",
			zap.String("room", c.cfg.Room.Bare()), zap.String("reservationID", id))
		return struct{}{}, nil
	})
	return err
}
