package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DoyleJ11/oldmex-backend/internal/hub"
	"github.com/DoyleJ11/oldmex-backend/internal/room"
	"github.com/DoyleJ11/oldmex-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	gotRoom  string
	gotLimit int
	rounds   []store.Round
	err      error
}

func (f *fakeHistory) RecentRounds(ctx context.Context, room string, limit int) ([]store.Round, error) {
	f.gotRoom, f.gotLimit = room, limit
	return f.rounds, f.err
}

func newTestRouter(t *testing.T, history HistoryStore) (*hub.Hub, http.Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub(ctx, room.Options{})
	return h, SetupRoutes(Deps{Hub: h, History: history})
}

func do(handler http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	_, router := newTestRouter(t, nil)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/healthz").Code)
}

func TestListRooms(t *testing.T) {
	h, router := newTestRouter(t, nil)
	ctx := context.Background()

	rm, err := h.Resolve(ctx, "kitchen")
	require.NoError(t, err)
	require.NoError(t, rm.Join(ctx, "a", "Alice", make(chan room.Snapshot, 4)))
	require.NoError(t, rm.Join(ctx, "b", "Bob", make(chan room.Snapshot, 4)))

	rec := do(router, http.MethodGet, "/rooms")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"kitchen","players":2,"phase":"round_active"}]`, rec.Body.String())
}

func TestSuggestRoom_ReturnsUnusedCode(t *testing.T) {
	h, router := newTestRouter(t, nil)

	rec := do(router, http.MethodPost, "/rooms")
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Code, 6)

	// suggesting a name never creates the room
	existing, err := h.Lookup(context.Background(), body.Code)
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestRoundHistory(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{rounds: []store.Round{
		{ID: 7, Room: "kitchen", Loser: "Alice", LowestRoll: 43, MaxRolls: 1, Players: "Alice,Bob", FinishedAt: at},
	}}
	_, router := newTestRouter(t, history)

	rec := do(router, http.MethodGet, "/rooms/kitchen/rounds?limit=500")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kitchen", history.gotRoom)
	assert.Equal(t, store.MaxHistoryLimit, history.gotLimit)
	assert.JSONEq(t, `[{"id":7,"room":"kitchen","loser":"Alice","lowestRoll":43,"maxRolls":1,
		"players":"Alice,Bob","finishedAt":"2024-05-01T12:00:00Z"}]`, rec.Body.String())
}

func TestRoundHistory_Errors(t *testing.T) {
	cases := []struct {
		name     string
		history  *fakeHistory
		path     string
		wantCode int
	}{
		{name: "bad limit", history: &fakeHistory{}, path: "/rooms/kitchen/rounds?limit=lots", wantCode: http.StatusBadRequest},
		{name: "store failure", history: &fakeHistory{err: errors.New("db down")}, path: "/rooms/kitchen/rounds", wantCode: http.StatusInternalServerError},
		{name: "empty history", history: &fakeHistory{}, path: "/rooms/kitchen/rounds", wantCode: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, router := newTestRouter(t, tc.history)
			rec := do(router, http.MethodGet, tc.path)
			assert.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCode == http.StatusOK {
				assert.JSONEq(t, `[]`, rec.Body.String())
			}
		})
	}
}

func TestRoundHistory_NotMountedWithoutStore(t *testing.T) {
	_, router := newTestRouter(t, nil)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/rooms/kitchen/rounds").Code)
}
