package iqrouter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymeet/focus/internal/v1/focuserr"
	"github.com/relaymeet/focus/internal/v1/model"
)

func TestRoute_GlobalHandlerForConferenceLessRequest(t *testing.T) {
	r := New(func(ctx context.Context, req Request) (any, error) {
		return "created", nil
	}, nil)

	resp, err := r.Route(context.Background(), Request{Element: ElementConference})
	require.NoError(t, err)
	assert.Equal(t, "created", resp)
}

func TestRoute_DispatchesToConferenceQueue(t *testing.T) {
	r := New(nil, map[ElementName]Handler{
		ElementJingle: func(ctx context.Context, req Request) (any, error) {
			return "ok", nil
		},
	})

	resp, err := r.Route(context.Background(), Request{Element: ElementJingle, Room: model.ParseRoomName("standup")})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestRoute_UnrecognizedElementReturnsBadRequest(t *testing.T) {
	r := New(nil, map[ElementName]Handler{})

	_, err := r.Route(context.Background(), Request{Element: "bogus", Room: model.ParseRoomName("standup")})
	require.Error(t, err)
	fe, ok := focuserr.As(err)
	require.True(t, ok)
	assert.Equal(t, focuserr.BadRequest, fe.Kind)
}

func TestRoute_ProcessesOneConferenceInArrivalOrder(t *testing.T) {
	var order []int32
	var counter atomic.Int32
	release := make(chan struct{})

	r := New(nil, map[ElementName]Handler{
		ElementJingle: func(ctx context.Context, req Request) (any, error) {
			n := counter.Add(1)
			if n == 1 {
				<-release
			}
			order = append(order, n)
			return nil, nil
		},
	})

	room := model.ParseRoomName("standup")
	done := make(chan struct{}, 2)
	go func() {
		_, _ = r.Route(context.Background(), Request{Element: ElementJingle, Room: room})
		done <- struct{}{}
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		_, _ = r.Route(context.Background(), Request{Element: ElementJingle, Room: room})
		done <- struct{}{}
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	<-done
	<-done
	require.Len(t, order, 2)
	assert.Equal(t, int32(1), order[0])
}

func TestRoute_OverflowReturnsResourceConstraint(t *testing.T) {
	block := make(chan struct{})
	r := New(nil, map[ElementName]Handler{
		ElementJingle: func(ctx context.Context, req Request) (any, error) {
			<-block
			return nil, nil
		},
	})
	defer close(block)

	room := model.ParseRoomName("standup")
	// First request occupies the worker.
	go func() { _, _ = r.Route(context.Background(), Request{Element: ElementJingle, Room: room}) }()
	time.Sleep(10 * time.Millisecond)

	// Fill the queue to capacity.
	for i := 0; i < queueLength; i++ {
		go func() { _, _ = r.Route(context.Background(), Request{Element: ElementJingle, Room: room}) }()
	}
	time.Sleep(20 * time.Millisecond)

	_, err := r.Route(context.Background(), Request{Element: ElementJingle, Room: room})
	require.Error(t, err)
	fe, ok := focuserr.As(err)
	require.True(t, ok)
	assert.Equal(t, focuserr.ResourceConstraint, fe.Kind)
}

func TestCloseQueue_DrainsWithServiceUnavailable(t *testing.T) {
	block := make(chan struct{})
	r := New(nil, map[ElementName]Handler{
		ElementJingle: func(ctx context.Context, req Request) (any, error) {
			<-block
			return nil, nil
		},
	})

	room := model.ParseRoomName("standup")
	resultCh := make(chan error, 1)
	go func() {
		_, err := r.Route(context.Background(), Request{Element: ElementJingle, Room: room})
		resultCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	queued := make(chan error, 1)
	go func() {
		_, err := r.Route(context.Background(), Request{Element: ElementJingle, Room: room})
		queued <- err
	}()
	time.Sleep(10 * time.Millisecond)

	r.CloseQueue(room)

	select {
	case err := <-queued:
		require.Error(t, err)
		fe, ok := focuserr.As(err)
		require.True(t, ok)
		assert.Equal(t, focuserr.ServiceUnavailable, fe.Kind)
	case <-time.After(time.Second):
		t.Fatal("queued request never got a drained reply")
	}
	close(block)
	<-resultCh
}
