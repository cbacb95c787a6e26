// Package bridgeclient implements the focus side of the focus<->bridge RPC
// contract: allocate/modify/expire commands over a plain HTTP control
// channel, wrapped in a per-bridge circuit breaker, plus gRPC health checks
// against the bridge's standard health service.
package bridgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/relaymeet/focus/internal/v1/metrics"
	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/stanza"
)

// Client is one media bridge's RPC endpoint. It implements model.BridgeClient.
type Client struct {
	id         model.BridgeID
	controlURL string // e.g. http://bridge-1.internal:8080/colibri
	healthAddr string // gRPC address for the health service, e.g. bridge-1.internal:8090
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// New constructs a Client for one bridge. controlURL is the JSON command
// endpoint; healthAddr is the gRPC address backing the standard health
// service the bridge exposes alongside its media plane.
func New(id model.BridgeID, controlURL, healthAddr string) *Client {
	st := gobreaker.Settings{
		Name:        string(id),
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
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
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}
	return &Client{
		id:         id,
		controlURL: controlURL,
		healthAddr: healthAddr,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cb:         gobreaker.NewCircuitBreaker(st),
	}
}

func (c *Client) do(ctx context.Context, cmd stanza.BridgeCommand) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.send(ctx, cmd)
	})
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues(string(c.id)).Inc()
		metrics.BridgeAllocationAttempts.WithLabelValues(string(cmd.Op), "circuit-open").Inc()
		return fmt.Errorf("bridge %s: circuit breaker open", c.id)
	}
	if err != nil {
		metrics.BridgeAllocationAttempts.WithLabelValues(string(cmd.Op), "error").Inc()
	} else {
		metrics.BridgeAllocationAttempts.WithLabelValues(string(cmd.Op), "ok").Inc()
	}
	return err
}

func (c *Client) send(ctx context.Context, cmd stanza.BridgeCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.controlURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("bridge %s: command %s rejected, status %d", c.id, cmd.Op, resp.StatusCode)
	}
	var result stanza.BridgeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if !result.Accepted {
		return fmt.Errorf("bridge %s: command %s refused: %s", c.id, cmd.Op, result.Reason)
	}
	return nil
}

// Allocate implements model.BridgeClient.
func (c *Client) Allocate(ctx context.Context, bridge model.BridgeID, conference model.MeetingID, participant model.ParticipantID) error {
	return c.do(ctx, stanza.BridgeCommand{
		Op:          stanza.BridgeOpAllocate,
		Conference:  string(conference),
		Participant: string(participant),
	})
}

// Modify implements model.BridgeClient.
func (c *Client) Modify(ctx context.Context, bridge model.BridgeID, conference model.MeetingID, participant model.ParticipantID, sources model.SourceSet) error {
	return c.do(ctx, stanza.BridgeCommand{
		Op:          stanza.BridgeOpModify,
		Conference:  string(conference),
		Participant: string(participant),
		Sources:     sources.ToWireContents(),
	})
}

// Expire implements model.BridgeClient.
func (c *Client) Expire(ctx context.Context, bridge model.BridgeID, conference model.MeetingID, participant model.ParticipantID) error {
	return c.do(ctx, stanza.BridgeCommand{
		Op:          stanza.BridgeOpExpire,
		Conference:  string(conference),
		Participant: string(participant),
	})
}

// CheckHealth reports whether the bridge's gRPC health service answers
// SERVING. Pool.Probe uses it as the BridgeSelector's recovery probe after
// ReportFailure; a false result leaves the bridge non-operational.
func (c *Client) CheckHealth(ctx context.Context) bool {
	conn, err := grpc.NewClient(c.healthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil {
		return false
	}
	return resp.Status == healthpb.HealthCheckResponse_SERVING
}

// ID returns the bridge address this client targets.
func (c *Client) ID() model.BridgeID { return c.id }
