package conference

import (
	"context"

	"go.uber.org/zap"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/logging"
	"github.com/relaymeet/focus/internal/v1/model"
)

// requireModerator implements 4.F step 6's role gate. Must run on the
// worker goroutine.
func (c *Conference) requireModerator(caller model.ParticipantID) error {
	p, ok := c.participants[caller]
	if !ok {
		return focuserr.New(focuserr.ItemNotFound, "unknown participant")
	}
	if !p.Role.AtLeastModerator() {
		return focuserr.New(focuserr.Forbidden, "moderator-only operation")
	}
	return nil
}

// SetAVModeration implements 4.F step 6: enable/disable moderation for one
// media kind and replace its whitelist.
func (c *Conference) SetAVModeration(caller model.ParticipantID, kind model.MediaKind, enabled bool, whitelist []model.ParticipantID) error {
	_, err := submit(c, func() (struct{}, error) {
		if err := c.requireModerator(caller); err != nil {
			return struct{}{}, err
		}
		m := c.moderation[kind]
		m.enabled = enabled
		m.whitelist = make(map[model.ParticipantID]bool, len(whitelist))
		for _, id := range whitelist {
			m.whitelist[id] = true
		}
		return struct{}{}, nil
	})
	return err
}

// RequestUnmute implements 4.F step 6's refusal rule: "unmute is refused
// unless !enabled || in-whitelist".
func (c *Conference) RequestUnmute(target model.ParticipantID, kind model.MediaKind) error {
	_, err := submit(c, func() (struct{}, error) {
		m := c.moderation[kind]
		if m.enabled && !m.whitelist[target] {
			return struct{}{}, focuserr.New(focuserr.Forbidden, "unmute refused by AV moderation")
		}
		return struct{}{}, nil
	})
	return err
}

// MuteParticipant implements 4.F step 6's moderator-only forced mute: it
// pushes the mute onto the target's own session so its client actually
// stops sending that media kind, not just a bookkeeping acknowledgment to
// the caller.
func (c *Conference) MuteParticipant(caller, target model.ParticipantID, kind model.MediaKind) error {
	_, err := submit(c, func() (struct{}, error) {
		if err := c.requireModerator(caller); err != nil {
			return struct{}{}, err
		}
		if _, ok := c.participants[target]; !ok {
			return struct{}{}, focuserr.New(focuserr.ItemNotFound, "unknown participant")
		}

		sess, ok := c.sessions[target]
		if !ok || sess.State() != model.SessionActive {
			return struct{}{}, nil
		}
		if err := sess.SendMute(kind, true); err != nil {
			logging.Warn(context.Background(), "forced mute relay failed",
				zap.String("room", c.cfg.Room.Bare()), zap.String("target", string(target)), zap.Error(err))
		}
		return struct{}{}, nil
	})
	return err
}
