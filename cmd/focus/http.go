package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/iqrouter"
	"github.com/relaymeet/focus/internal/v1/model"
)

// newConferenceRequestHandler serves POST /conference-request/v1, the
// pre-WebSocket admission path (4.F step 2, 6. EXTERNAL INTERFACES): a
// client may ask for a room's readiness and properties before it ever opens
// a session-token-authenticated connection.
func newConferenceRequestHandler(d *dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeFocusErr(c, focuserr.Wrap(focuserr.BadRequest, err, "failed to read request body"))
			return
		}

		req := iqrouter.Request{
			Element:         iqrouter.ElementConference,
			From:            model.ParticipantID(c.Query("participant")),
			Stanza:          json.RawMessage(body),
			AuthenticatedAs: c.GetHeader("X-Authenticated-As"),
		}
		resp, err := d.global(c.Request.Context(), req)
		if err != nil {
			writeFocusErr(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// newIQHandler serves a conference-less element (login, logout) over plain
// HTTP, for callers that authenticate before ever reaching a WebSocket.
func newIQHandler(router *iqrouter.Router, element iqrouter.ElementName) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeFocusErr(c, focuserr.Wrap(focuserr.BadRequest, err, "failed to read request body"))
			return
		}

		req := iqrouter.Request{
			Element: element,
			Stanza:  json.RawMessage(body),
		}
		resp, err := router.Route(c.Request.Context(), req)
		if err != nil {
			writeFocusErr(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// writeFocusErr maps a focuserr.Kind to its HTTP status (6. EXTERNAL
// INTERFACES error mapping) and writes the JSON error body. A
// reservation-gate rejection carries its own upstream HTTP-style code
// instead of one from the core taxonomy, and surfaces the backend's
// message verbatim (4.I: "rejected ... with the server's message surfaced
// to the client").
func writeFocusErr(c *gin.Context, err error) {
	var resErr *focuserr.ReservationError
	if errors.As(err, &resErr) {
		c.JSON(resErr.HTTPCode, gin.H{"error": resErr.Message})
		return
	}
	c.JSON(httpStatusFor(focuserr.KindOf(err)), gin.H{"error": err.Error()})
}

// httpStatusFor maps the closed error taxonomy onto its HTTP status, the
// same mapping the stanza codec uses for its XMPP error conditions.
func httpStatusFor(k focuserr.Kind) int {
	switch k {
	case focuserr.NotAuthorized, focuserr.SessionInvalid:
		return http.StatusUnauthorized
	case focuserr.Forbidden:
		return http.StatusForbidden
	case focuserr.NotAcceptable:
		return http.StatusNotAcceptable
	case focuserr.BadRequest:
		return http.StatusBadRequest
	case focuserr.ItemNotFound:
		return http.StatusNotFound
	case focuserr.ServiceUnavailable:
		return http.StatusServiceUnavailable
	case focuserr.ResourceConstraint:
		return http.StatusTooManyRequests
	case focuserr.Conflict:
		return http.StatusConflict
	case focuserr.Timeout:
		return http.StatusGatewayTimeout
	case focuserr.Cancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
