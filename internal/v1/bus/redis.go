// Package bus fans conference events out across focus replicas over Redis,
// so a room whose occupants land on different pods still converges on one
// roster and one event stream (4.D.1).
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/relaymeet/focus/internal/v1/metrics"
	"github.com/relaymeet/focus/internal/v1/model"
)

// PubSubPayload is the envelope carried between replicas over a room or
// participant channel.
type PubSubPayload struct {
	RoomID   string          `json:"roomId"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"` // identifies the publishing replica, for echo prevention
	Roles    []string        `json:"roles,omitempty"`
}

// RosterMember is one occupant tracked in a room's Redis-backed roster set,
// kept in sync with chatroom.Room's in-memory occupant map so a replica that
// restarts (or never saw the join) can recover who is actually present.
type RosterMember struct {
	ID   model.ParticipantID `json:"id"`
	Role model.Role          `json:"role"`
}

// Service handles all interaction with the Redis cluster.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService creates a robust Redis connection with automatic retries.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("connected to redis pub/sub", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// Publish broadcasts event to every other replica watching room. roles is
// carried in the envelope's Roles field (nil/empty leaves it unset);
// Subscribe delivers every message regardless of it.
func (s *Service) Publish(ctx context.Context, room model.RoomName, event string, payload any, senderID string, roles []model.Role) error {
	if s == nil || s.client == nil {
		return nil // single-instance mode, no Redis configured
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload: %w", err)
		}

		msg := PubSubPayload{
			RoomID:   room.Bare(),
			Event:    event,
			Payload:  innerBytes,
			SenderID: senderID,
			Roles:    roleStrings(roles),
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pubsub envelope: %w", err)
		}

		return nil, s.client.Publish(ctx, roomChannel(room), data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: dropping publish", "room", room.Bare())
			return nil // degrade gracefully, don't crash the caller
		}
		slog.Error("redis publish failed", "room", room.Bare(), "error", err)
		return err
	}

	return nil
}

// PublishDirect sends event to one participant's own channel, bypassing the
// room broadcast (used for moderation directives that target a single
// occupant rather than the whole roster).
func (s *Service) PublishDirect(ctx context.Context, target model.ParticipantID, event string, payload any, senderID string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload for direct message: %w", err)
		}

		msg := PubSubPayload{
			Event:    event,
			Payload:  innerBytes,
			SenderID: senderID,
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal direct message envelope: %w", err)
		}

		return nil, s.client.Publish(ctx, participantChannel(target), data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: dropping direct message", "participant", string(target))
			return nil
		}
		slog.Error("redis publish-direct failed", "participant", string(target), "senderID", senderID, "event", event, "error", err)
		return err
	}

	return nil
}

// Subscribe starts a background goroutine delivering every message another
// replica publishes to room until ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, room string, wg *sync.WaitGroup, handler func(PubSubPayload)) {
	if s == nil || s.client == nil {
		return
	}

	channel := fmt.Sprintf("focus:conference:%s:events", room)
	pubsub := s.client.Subscribe(ctx, channel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		slog.Info("subscribed to redis channel", "channel", channel)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("redis subscription channel closed", "channel", channel)
					return
				}

				var payload PubSubPayload
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					slog.Error("failed to unmarshal redis message", "error", err, "raw", msg.Payload)
					continue
				}

				handler(payload)
			}
		}
	}()
}

// Ping checks Redis connectivity, used by the about/health endpoint.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// SetAdd adds a member to a Redis Set.
func (s *Service) SetAdd(ctx context.Context, key string, member string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.SAdd(ctx, key, member).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: skipping SetAdd", "key", key)
			return nil
		}
		slog.Error("redis SetAdd failed", "key", key, "member", member, "error", err)
		return fmt.Errorf("failed to add to set: %w", err)
	}
	return nil
}

// SetRem removes a member from a Redis Set.
func (s *Service) SetRem(ctx context.Context, key string, member string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.SRem(ctx, key, member).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: skipping SetRem", "key", key)
			return nil
		}
		slog.Error("redis SetRem failed", "key", key, "member", member, "error", err)
		return fmt.Errorf("failed to remove from set: %w", err)
	}
	return nil
}

// SetMembers retrieves all members of a Redis Set.
func (s *Service) SetMembers(ctx context.Context, key string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}

	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.SMembers(ctx, key).Result()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("redis circuit breaker open: returning empty set members", "key", key)
			return nil, nil
		}
		slog.Error("redis SetMembers failed", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get set members: %w", err)
	}
	return res.([]string), nil
}

// AddRosterMember records an occupant in room's distributed roster set
// (chatroom.Room.HandleOccupantJoin/HandleRoleChanged).
func (s *Service) AddRosterMember(ctx context.Context, room model.RoomName, member RosterMember) error {
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to marshal roster member: %w", err)
	}
	return s.SetAdd(ctx, rosterKey(room), string(data))
}

// RemoveRosterMember drops an occupant from room's distributed roster set
// (chatroom.Room.HandleOccupantLeave/HandleOccupantKicked).
func (s *Service) RemoveRosterMember(ctx context.Context, room model.RoomName, member RosterMember) error {
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to marshal roster member: %w", err)
	}
	return s.SetRem(ctx, rosterKey(room), string(data))
}

// RosterMembers returns every occupant another replica has recorded for
// room, skipping any entry that fails to decode.
func (s *Service) RosterMembers(ctx context.Context, room model.RoomName) ([]RosterMember, error) {
	raw, err := s.SetMembers(ctx, rosterKey(room))
	if err != nil {
		return nil, err
	}
	out := make([]RosterMember, 0, len(raw))
	for _, r := range raw {
		var m RosterMember
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func rosterKey(room model.RoomName) string {
	return fmt.Sprintf("focus:conference:%s:roster", room.Bare())
}

func roomChannel(room model.RoomName) string {
	return fmt.Sprintf("focus:conference:%s:events", room.Bare())
}

func participantChannel(id model.ParticipantID) string {
	return fmt.Sprintf("focus:participant:%s:events", string(id))
}

func roleStrings(roles []model.Role) []string {
	if len(roles) == 0 {
		return nil
	}
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
