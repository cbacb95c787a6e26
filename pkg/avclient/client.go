// Package avclient implements the focus side of the narrow RPC contract to
// the recording ("jibri"), SIP-gateway ("jigasi"), and dial-out workers (6.
// EXTERNAL INTERFACES): one JSON command over HTTP per request, wrapped in a
// circuit breaker, the same shape as pkg/bridgeclient's control channel.
package avclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/relaymeet/focus/internal/v1/metrics"
	"github.com/relaymeet/focus/internal/v1/model"
)

// Client is one av-service worker's RPC endpoint (a jibri, jigasi, or dial
// gateway instance). It implements model.AVServiceClient.
type Client struct {
	service    string // "jibri" | "jigasi" | "dial", used as the metrics label
	controlURL string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// New constructs a Client for one av-service worker. service names the
// worker kind for metrics and logging; controlURL is its JSON command
// endpoint.
func New(service, controlURL string) *Client {
	st := gobreaker.Settings{
		Name:        service,
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
		service:    service,
		controlURL: controlURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cb:         gobreaker.NewCircuitBreaker(st),
	}
}

type command struct {
	Op         string            `json:"op"`
	Conference string            `json:"conference"`
	Params     map[string]string `json:"params,omitempty"`
}

type result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Execute implements model.AVServiceClient.
func (c *Client) Execute(ctx context.Context, op string, conference model.MeetingID, params map[string]string) error {
	timer := time.Now()
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.send(ctx, op, conference, params)
	})
	metrics.AVServiceRequestDuration.WithLabelValues(c.service, op).Observe(time.Since(timer).Seconds())

	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues(c.service).Inc()
		metrics.AVServiceRequests.WithLabelValues(c.service, op, "circuit-open").Inc()
		return fmt.Errorf("%s: circuit breaker open", c.service)
	}
	if err != nil {
		metrics.AVServiceRequests.WithLabelValues(c.service, op, "error").Inc()
		return err
	}
	metrics.AVServiceRequests.WithLabelValues(c.service, op, "ok").Inc()
	return nil
}

func (c *Client) send(ctx context.Context, op string, conference model.MeetingID, params map[string]string) error {
	body, err := json.Marshal(command{Op: op, Conference: string(conference), Params: params})
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
		return fmt.Errorf("%s: command %s rejected, status %d", c.service, op, resp.StatusCode)
	}
	var res result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return err
	}
	if !res.Accepted {
		return fmt.Errorf("%s: command %s refused: %s", c.service, op, res.Reason)
	}
	return nil
}

var _ model.AVServiceClient = (*Client)(nil)
