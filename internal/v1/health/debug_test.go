package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymeet/focus/internal/v1/model"
	"github.com/relaymeet/focus/internal/v1/store"
)

type fakeDebugConference struct{ createdAt time.Time }

func (f *fakeDebugConference) State() model.ConferenceState    { return model.ConferenceRunning }
func (f *fakeDebugConference) CreatedAt() time.Time            { return f.createdAt }
func (f *fakeDebugConference) HasHadParticipant() bool         { return true }
func (f *fakeDebugConference) CheckStartTimeout(time.Time) bool { return false }
func (f *fakeDebugConference) Terminate(context.Context, string) {}
func (f *fakeDebugConference) ParticipantCount() int           { return 2 }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	created := &fakeDebugConference{createdAt: time.Now()}
	s := store.New(func(room model.RoomName, meetingID model.MeetingID) (store.Conference, error) {
		return created, nil
	}, nil)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func TestDebugHandler_ConferencesListsRoomNames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestStore(t)
	_, err := s.GetOrCreate(model.ParseRoomName("standup"), "")
	require.NoError(t, err)

	h := NewDebugHandler(s)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/debug/conferences", nil)

	h.Conferences(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "standup")
}

func TestDebugHandler_ConferenceNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestStore(t)

	h := NewDebugHandler(s)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "nonexistent"}}

	h.Conference(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDebugHandler_ConferenceReturnsSnapshot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestStore(t)
	_, err := s.GetOrCreate(model.ParseRoomName("standup"), "")
	require.NoError(t, err)

	h := NewDebugHandler(s)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "standup"}}

	h.Conference(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"participantCount":2`)
}
