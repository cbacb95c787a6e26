// Package reservation implements the ReservationGate (4.I) over the
// external reservation REST API: a plain HTTP control channel, mirroring
// bridgeclient's POST-JSON-and-decode shape but without a circuit breaker,
// since a reservation rejection is meant to be surfaced to the requester,
// not retried transparently.
package reservation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/metrics"
	"github.com/relaymeet/focus/internal/v1/model"
)

// Client is the production ReservationGate, talking to RESERVATION_BASE_URL
// (6.1).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Client against baseURL, e.g.
// "https://reservation.internal/v1".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type reserveRequest struct {
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	MailOwner string `json:"mail_owner,omitempty"`
}

type reserveAccepted struct {
	ID       string `json:"id"`
	Duration int64  `json:"duration"` // seconds
}

type reserveConflict struct {
	ConflictID string `json:"conflict_id"`
}

type reserveRejected struct {
	Message string `json:"message"`
}

// Reserve implements model.ReservationGate: POST {name, start_time,
// mail_owner?}, handling 200/201 acceptance, 409 conflict (followed by a GET
// for the authoritative record), and any other 4xx as rejection.
func (c *Client) Reserve(ctx context.Context, room model.RoomName, startTime time.Time, mailOwner string) (string, time.Duration, error) {
	body, err := json.Marshal(reserveRequest{
		Name:      room.Bare(),
		StartTime: startTime.UTC().Format(time.RFC3339),
		MailOwner: mailOwner,
	})
	if err != nil {
		return "", 0, focuserr.Wrap(focuserr.InternalServer, err, "failed to encode reservation request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/conferences", bytes.NewReader(body))
	if err != nil {
		return "", 0, focuserr.Wrap(focuserr.InternalServer, err, "failed to build reservation request")
	}
	req.Header.Set("Content-Type", "application/json")

	timer := prometheus.NewTimer(metrics.ReservationRequestDuration.WithLabelValues("reserve"))
	resp, err := c.httpClient.Do(req)
	timer.ObserveDuration()
	if err != nil {
		metrics.ReservationRequests.WithLabelValues("reserve", "unreachable").Inc()
		return "", 0, focuserr.Wrap(focuserr.ServiceUnavailable, err, "reservation service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var accepted reserveAccepted
		if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
			metrics.ReservationRequests.WithLabelValues("reserve", "decode-error").Inc()
			return "", 0, focuserr.Wrap(focuserr.InternalServer, err, "failed to decode reservation response")
		}
		metrics.ReservationRequests.WithLabelValues("reserve", "accepted").Inc()
		return accepted.ID, time.Duration(accepted.Duration) * time.Second, nil

	case resp.StatusCode == http.StatusConflict:
		var conflict reserveConflict
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err != nil {
			metrics.ReservationRequests.WithLabelValues("reserve", "decode-error").Inc()
			return "", 0, focuserr.Wrap(focuserr.InternalServer, err, "failed to decode conflict response")
		}
		metrics.ReservationRequests.WithLabelValues("reserve", "conflict").Inc()
		return c.fetchAuthoritative(ctx, conflict.ConflictID)

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var rejected reserveRejected
		_ = json.NewDecoder(resp.Body).Decode(&rejected)
		metrics.ReservationRequests.WithLabelValues("reserve", "rejected").Inc()
		return "", 0, &focuserr.ReservationError{HTTPCode: resp.StatusCode, Message: rejected.Message}

	default:
		metrics.ReservationRequests.WithLabelValues("reserve", "error").Inc()
		return "", 0, &focuserr.ReservationError{HTTPCode: resp.StatusCode, Message: "reservation service error"}
	}
}

// fetchAuthoritative resolves a 409 conflict to its existing authoritative
// reservation record via GET.
func (c *Client) fetchAuthoritative(ctx context.Context, id string) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/conferences/%s", c.baseURL, id), nil)
	if err != nil {
		return "", 0, focuserr.Wrap(focuserr.InternalServer, err, "failed to build conflict lookup request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, focuserr.Wrap(focuserr.ServiceUnavailable, err, "reservation service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", 0, &focuserr.ReservationError{HTTPCode: resp.StatusCode, Message: "conflicting reservation not found"}
	}
	var accepted reserveAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return "", 0, focuserr.Wrap(focuserr.InternalServer, err, "failed to decode conflict record")
	}
	return accepted.ID, time.Duration(accepted.Duration) * time.Second, nil
}

// Release implements model.ReservationGate: DELETE on destruction or expiry.
func (c *Client) Release(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/conferences/%s", c.baseURL, id), nil)
	if err != nil {
		return focuserr.Wrap(focuserr.InternalServer, err, "failed to build release request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return focuserr.Wrap(focuserr.ServiceUnavailable, err, "reservation service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return &focuserr.ReservationError{HTTPCode: resp.StatusCode, Message: "failed to release reservation"}
	}
	return nil
}

var _ model.ReservationGate = (*Client)(nil)
