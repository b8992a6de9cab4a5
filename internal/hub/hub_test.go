package hub

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/oldmex-backend/internal/engine"
	"github.com/DoyleJ11/oldmex-backend/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, room.Options{MinRollDelay: 10 * time.Millisecond, MaxRollDelay: 10 * time.Millisecond})
}

// waitGone polls until name is no longer in the directory.
func waitGone(t *testing.T, h *Hub, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		r, err := h.Lookup(context.Background(), name)
		return err == nil && r == nil
	}, time.Second, 5*time.Millisecond)
}

func TestHub_Resolve_Lookup_SamePointer(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	r1, err := h.Resolve(ctx, "kitchen")
	require.NoError(t, err)
	r2, err := h.Resolve(ctx, "kitchen")
	require.NoError(t, err)
	r3, err := h.Lookup(ctx, "kitchen")
	require.NoError(t, err)

	if r1 == nil || r1 != r2 || r2 != r3 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_Lookup_DoesNotCreate(t *testing.T) {
	h := newTestHub(t)

	r, err := h.Lookup(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, r)

	rooms, err := h.Rooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestHub_EmptyRoomIsRemovedAndNeverResurrected(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	first, err := h.Resolve(ctx, "kitchen")
	require.NoError(t, err)

	out := make(chan room.Snapshot, 8)
	require.NoError(t, first.Join(ctx, "a", "Alice", out))
	first.Leave(ctx, "a")

	waitGone(t, h, "kitchen")
	<-first.Done()

	second, err := h.Resolve(ctx, "kitchen")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	require.NoError(t, second.Join(ctx, "b", "Bob", make(chan room.Snapshot, 8)))
	view, err := second.View(ctx)
	require.NoError(t, err)
	require.Len(t, view.State.Players, 1)
	assert.Equal(t, "Bob", view.State.Players[0].Name)
}

func TestHub_RoomsAreIndependent(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	for _, name := range []string{"b-room", "a-room"} {
		r, err := h.Resolve(ctx, name)
		require.NoError(t, err)
		require.NoError(t, r.Join(ctx, "c-"+name, "Alice", make(chan room.Snapshot, 8)))
	}

	rooms, err := h.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "a-room", rooms[0].Name())
	assert.Equal(t, "b-room", rooms[1].Name())
}

func TestHub_Shutdown_ClosesRooms(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	r, err := h.Resolve(ctx, "kitchen")
	require.NoError(t, err)
	out := make(chan room.Snapshot, 8)
	require.NoError(t, r.Join(ctx, "a", "Alice", out))

	h.Shutdown()

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("room still running after hub shutdown")
	}

	_, err = h.Resolve(ctx, "kitchen")
	require.ErrorIs(t, err, ErrHubClosed)
}

type blockingRecorder struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingRecorder) RecordRound(ctx context.Context, res engine.RoundResult) error {
	close(b.started)
	<-b.release
	return nil
}

func TestHub_Shutdown_WaitsForRoundRecording(t *testing.T) {
	rec := blockingRecorder{started: make(chan struct{}), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(ctx, room.Options{MinRollDelay: 10 * time.Millisecond, MaxRollDelay: 10 * time.Millisecond, Recorder: rec})

	r, err := h.Resolve(ctx, "kitchen")
	require.NoError(t, err)
	out := make(chan room.Snapshot, 8)
	require.NoError(t, r.Join(ctx, "a", "Alice", out))
	require.NoError(t, r.Do(ctx, engine.CmdRoll, "a"))
	require.Eventually(t, func() bool {
		return r.Do(ctx, engine.CmdStay, "a") == nil
	}, time.Second, 5*time.Millisecond)
	<-rec.started

	stopped := make(chan struct{})
	go func() {
		h.Shutdown()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("hub shut down before the round was recorded")
	case <-time.After(50 * time.Millisecond):
	}

	close(rec.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("hub did not finish shutting down")
	}
}
