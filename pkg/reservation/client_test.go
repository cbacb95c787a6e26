package reservation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/model"
)

func TestReserve_AcceptedReturnsIDAndDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"res-1","duration":3600}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	id, dur, err := c.Reserve(context.Background(), model.ParseRoomName("standup"), time.Now(), "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, "res-1", id)
	assert.Equal(t, time.Hour, dur)
}

func TestReserve_ConflictFollowsUpWithGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"conflict_id":"res-existing"}`))
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"res-existing","duration":1800}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	id, dur, err := c.Reserve(context.Background(), model.ParseRoomName("standup"), time.Now(), "")
	require.NoError(t, err)
	assert.Equal(t, "res-existing", id)
	assert.Equal(t, 30*time.Minute, dur)
}

func TestReserve_RejectionReturnsReservationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"room name not permitted"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, _, err := c.Reserve(context.Background(), model.ParseRoomName("standup"), time.Now(), "")
	require.Error(t, err)
	var resErr *focuserr.ReservationError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, http.StatusForbidden, resErr.HTTPCode)
}

func TestRelease_TreatsNotFoundAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Release(context.Background(), "res-1")
	assert.NoError(t, err)
}
