package conference

import (
	"context"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/model"
)

// requireAVClient implements the "each reached via a narrow RPC contract"
// guard shared by jibri, jigasi, and dial: without a configured AVClient
// the element fails closed rather than silently no-opping.
func (c *Conference) requireAVClient() error {
	if c.cfg.AVClient == nil {
		return focuserr.New(focuserr.ServiceUnavailable, "av-service worker not configured")
	}
	return nil
}

// HandleJibri starts or stops a recording/streaming session. Moderator-only,
// the same gate as AV moderation (4.F step 6).
func (c *Conference) HandleJibri(ctx context.Context, caller model.ParticipantID, action, streamID string) error {
	_, err := submit(c, func() (struct{}, error) {
		if err := c.requireModerator(caller); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.requireAVClient()
	})
	if err != nil {
		return err
	}
	return c.cfg.AVClient.Execute(ctx, "jibri-"+action, c.cfg.MeetingID, map[string]string{"stream_id": streamID})
}

// HandleJigasi starts or stops a SIP-gateway session. Moderator-only.
func (c *Conference) HandleJigasi(ctx context.Context, caller model.ParticipantID, action, destination string) error {
	_, err := submit(c, func() (struct{}, error) {
		if err := c.requireModerator(caller); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, c.requireAVClient()
	})
	if err != nil {
		return err
	}
	return c.cfg.AVClient.Execute(ctx, "jigasi-"+action, c.cfg.MeetingID, map[string]string{"destination": destination})
}

// HandleDial places an outbound PSTN call. Rate limiting is the caller's
// responsibility (5.1: "Rate limiters ... gate client-initiated expensive
// actions (dial, room-metadata updates)"), not gated on moderator role here.
func (c *Conference) HandleDial(ctx context.Context, caller model.ParticipantID, number string) error {
	_, err := submit(c, func() (struct{}, error) {
		if _, ok := c.participants[caller]; !ok {
			return struct{}{}, focuserr.New(focuserr.ItemNotFound, "unknown participant")
		}
		return struct{}{}, c.requireAVClient()
	})
	if err != nil {
		return err
	}
	return c.cfg.AVClient.Execute(ctx, "dial", c.cfg.MeetingID, map[string]string{"number": number})
}

// HandleRoomMetadata updates one key of the room's shared metadata via
// presence, moderator-only.
func (c *Conference) HandleRoomMetadata(caller model.ParticipantID, key, value string) error {
	_, err := submit(c, func() (struct{}, error) {
		if err := c.requireModerator(caller); err != nil {
			return struct{}{}, err
		}
		err := c.cfg.Adapter.SetPresenceExtension(model.PresenceExtensionKind("room-metadata:"+key), value)
		return struct{}{}, err
	})
	return err
}
