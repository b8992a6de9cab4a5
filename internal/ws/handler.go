package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/oldmex-backend/internal/engine"
	"github.com/DoyleJ11/oldmex-backend/internal/hub"
	"github.com/DoyleJ11/oldmex-backend/internal/room"
	"github.com/DoyleJ11/oldmex-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrBadMessage = errors.New("Invalid message.")
var ErrUnknownType = errors.New("Unknown message type.")
var ErrMissingRoom = errors.New("Room is required.")
var ErrNameTooLong = errors.New("Name is too long.")
var ErrSlowDown = errors.New("Slow down!")

const (
	writeTimeout  = 5 * time.Second
	leaveTimeout  = 5 * time.Second
	maxRoomLength = 64
	// a room can die between Resolve and Join; retry against its replacement
	joinAttempts = 3
)

type Config struct {
	AllowedOrigins    []string
	PingInterval      time.Duration
	MaxNameLength     int
	MessagesPerSecond float64
	MessageBurst      int
	OutboxSize        int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.MaxNameLength <= 0 {
		c.MaxNameLength = 24
	}
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = 5
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = 10
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 16
	}
	return c
}

// session is one websocket connection. Only the reader goroutine touches room.
type session struct {
	id      string
	conn    *websocket.Conn
	hub     *hub.Hub
	room    *room.Room
	out     chan room.Snapshot
	limiter *rate.Limiter
	cfg     Config
	log     *zap.Logger
}

func Handler(h *hub.Hub, cfg Config, log *zap.Logger) http.HandlerFunc {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.AllowedOrigins,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		s := &session{
			id:      uuid.NewString(),
			conn:    conn,
			hub:     h,
			out:     make(chan room.Snapshot, cfg.OutboxSize),
			limiter: rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst),
			cfg:     cfg,
		}
		s.log = log.With(zap.String("conn", s.id))
		s.log.Debug("new connection")

		s.serve(r.Context())
	}
}

func (s *session) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	go s.writeLoop(ctx, cancel)

	defer func() {
		if s.room == nil {
			return
		}
		leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		s.room.Leave(leaveCtx, s.id)
	}()

	// Reader loop
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.log.Debug("connection closed")
			default:
				s.log.Debug("read failed", zap.Error(err))
			}
			return
		}

		if !s.limiter.Allow() {
			s.writeError(ctx, ErrSlowDown)
			continue
		}

		var msg types.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.writeError(ctx, ErrBadMessage)
			continue
		}

		if done := s.dispatch(ctx, msg); done {
			return
		}
	}
}

// dispatch routes one action. It returns true once the connection is finished.
func (s *session) dispatch(ctx context.Context, msg types.ClientMessage) bool {
	roomName := strings.TrimSpace(msg.Room)
	if roomName == "" || utf8.RuneCountInString(roomName) > maxRoomLength {
		s.writeError(ctx, ErrMissingRoom)
		return false
	}

	if msg.Type == types.TypeJoin {
		return s.join(ctx, roomName, msg.Name)
	}

	typ, ok := types.CommandType(msg.Type)
	if !ok {
		s.writeError(ctx, ErrUnknownType)
		return false
	}

	target, err := s.target(ctx, roomName)
	if err != nil {
		s.writeError(ctx, err)
		return false
	}

	if err := target.Do(ctx, typ, s.id); err != nil {
		if errors.Is(err, room.ErrClosed) {
			err = engine.ErrNotAPlayer
		}
		s.writeError(ctx, err)
	}
	return false
}

func (s *session) join(ctx context.Context, roomName, rawName string) bool {
	if s.room != nil {
		s.writeError(ctx, engine.ErrAlreadyJoined)
		return false
	}

	name := strings.TrimSpace(rawName)
	if name == "" {
		s.writeError(ctx, engine.ErrInvalidName)
		return false
	}
	if utf8.RuneCountInString(name) > s.cfg.MaxNameLength {
		s.writeError(ctx, ErrNameTooLong)
		return false
	}

	for attempt := 0; attempt < joinAttempts; attempt++ {
		rm, err := s.hub.Resolve(ctx, roomName)
		if err != nil {
			s.writeError(ctx, err)
			return false
		}

		err = rm.Join(ctx, s.id, name, s.out)
		switch {
		case err == nil:
			s.room = rm
			s.log.Info("player joined", zap.String("room", roomName), zap.String("player", name))
			return false

		case errors.Is(err, room.ErrClosed):
			continue

		case errors.Is(err, engine.ErrPlayerExists):
			s.log.Debug("duplicate player name", zap.String("room", roomName), zap.String("player", name))
			_ = s.conn.Close(websocket.StatusNormalClosure, engine.ErrPlayerExists.Error())
			return true

		default:
			s.writeError(ctx, err)
			return false
		}
	}

	s.writeError(ctx, room.ErrClosed)
	return false
}

// target is the room a non-join action is addressed to. Unknown rooms are
// never created here: nobody can be a player in them.
func (s *session) target(ctx context.Context, roomName string) (*room.Room, error) {
	if s.room != nil && s.room.Name() == roomName {
		return s.room, nil
	}

	rm, err := s.hub.Lookup(ctx, roomName)
	if err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, engine.ErrNotAPlayer
	}
	return rm, nil
}

// Writer goroutine: snapshots in room order, plus keep-alive pings.
func (s *session) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-s.out:
			if !ok {
				// The room dropped us (too slow) or shut down.
				_ = s.conn.Close(websocket.StatusGoingAway, "unsubscribed")
				return
			}

			payload, err := types.EncodeSnapshot(snap.State.PlayerName(s.id), snap)
			if err != nil {
				s.log.Error("encoding snapshot", zap.Error(err))
				continue
			}
			if err := s.write(ctx, payload); err != nil {
				s.log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *session) write(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

func (s *session) writeError(ctx context.Context, err error) {
	_ = s.write(ctx, types.EncodeError(err))
}
