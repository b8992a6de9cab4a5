package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/DoyleJ11/oldmex-backend/internal/engine"
	"github.com/DoyleJ11/oldmex-backend/internal/hub"
	"github.com/DoyleJ11/oldmex-backend/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const queryTimeout = 2 * time.Second

// HistoryStore is the read side of the round store.
type HistoryStore interface {
	RecentRounds(ctx context.Context, room string, limit int) ([]store.Round, error)
}

type roomSummary struct {
	Name    string       `json:"name"`
	Players int          `json:"players"`
	Phase   engine.Phase `json:"phase"`
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// SuggestRoom hands out a room name nobody is using yet. The room itself
// is only created when the first player joins it.
func SuggestRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()

		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			existing, err := h.Lookup(ctx, c)
			if err != nil {
				http.Error(w, "directory unavailable", http.StatusServiceUnavailable)
				return
			}
			if existing == nil {
				code = c
				break
			}
			log.Debug("collision on code, regenerating", zap.String("code", c))
		}

		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
		defer cancel()

		rooms, err := h.Rooms(ctx)
		if err != nil {
			http.Error(w, "directory unavailable", http.StatusServiceUnavailable)
			return
		}

		out := make([]roomSummary, 0, len(rooms))
		for _, rm := range rooms {
			view, err := rm.View(ctx)
			if err != nil {
				// emptied while we were looking
				continue
			}
			out = append(out, roomSummary{Name: rm.Name(), Players: len(view.State.Players), Phase: view.Phase})
		}

		writeJSON(w, http.StatusOK, out)
	}
}

func RoundHistory(history HistoryStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		rounds, err := history.RecentRounds(r.Context(), name, store.ClampLimit(limit))
		if err != nil {
			log.Error("loading round history", zap.String("room", name), zap.Error(err))
			http.Error(w, "failed to load rounds", http.StatusInternalServerError)
			return
		}
		if rounds == nil {
			rounds = []store.Round{}
		}

		writeJSON(w, http.StatusOK, rounds)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
