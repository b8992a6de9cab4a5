package hub

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/DoyleJ11/oldmex-backend/internal/room"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the room for Name, creating it on first reference.
type EnsureRoom struct {
	Name  string
	Reply chan *room.Room
}

type GetRoom struct {
	Name  string
	Reply chan *room.Room // nil if no such room
}

// RemoveRoom drops Name only while it still maps to Room, so a late
// notice from a dead room never evicts its replacement.
type RemoveRoom struct {
	Name string
	Room *room.Room
}

type ListRooms struct {
	Reply chan []*room.Room
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	opts   room.Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	// live counts room goroutines, including rooms already removed from
	// the directory. Only the hub goroutine calls Add and Wait.
	live    sync.WaitGroup
	stopped chan struct{}
}

func NewHub(parent context.Context, opts room.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		opts:    opts,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.stopped)

	for {
		select {
		case <-h.ctx.Done():
			clear(h.rooms) // rooms share our context and stop on their own
			h.live.Wait()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if r := h.rooms[msg.Name]; r != nil && !isClosed(r) {
					msg.Reply <- r
					break
				}
				r := room.New(h.ctx, msg.Name, h.opts, h.notifyEmpty)
				h.rooms[msg.Name] = r
				h.live.Add(1)
				go func() {
					<-r.Stopped()
					h.live.Done()
				}()
				msg.Reply <- r

			case GetRoom:
				msg.Reply <- h.rooms[msg.Name] // May be nil

			case RemoveRoom:
				if h.rooms[msg.Name] == msg.Room {
					delete(h.rooms, msg.Name)
					h.log.Info("deleted room", zap.String("room", msg.Name))
				}

			case ListRooms:
				rooms := make([]*room.Room, 0, len(h.rooms))
				for _, r := range h.rooms {
					rooms = append(rooms, r)
				}
				sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name() < rooms[j].Name() })
				msg.Reply <- rooms

			case ShutdownHub:
				for _, r := range h.rooms {
					select {
					case r.Inbox() <- room.Shutdown{}:
					case <-r.Done():
					}
				}
				clear(h.rooms)
				h.cancel()
				h.live.Wait()
				return
			}
		}
	}
}

func isClosed(r *room.Room) bool {
	select {
	case <-r.Done():
		return true
	default:
		return false
	}
}

// notifyEmpty runs on the emptied room's goroutine.
func (h *Hub) notifyEmpty(r *room.Room) {
	select {
	case h.inbox <- RemoveRoom{Name: r.Name(), Room: r}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) ask(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, h *Hub, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Resolve returns the live room called name, creating it if needed.
func (h *Hub) Resolve(ctx context.Context, name string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.ask(ctx, EnsureRoom{Name: name, Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Lookup returns the room called name, or nil without creating one.
func (h *Hub) Lookup(ctx context.Context, name string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.ask(ctx, GetRoom{Name: name, Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Rooms lists the active rooms ordered by name.
func (h *Hub) Rooms(ctx context.Context) ([]*room.Room, error) {
	reply := make(chan []*room.Room, 1)
	if err := h.ask(ctx, ListRooms{Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Shutdown closes every room and stops the hub. It returns once every room
// goroutine has exited and pending round recordings have finished.
func (h *Hub) Shutdown() {
	_ = h.ask(context.Background(), ShutdownHub{})
	<-h.stopped
}

// Done is closed once the hub and all of its rooms have stopped.
func (h *Hub) Done() <-chan struct{} { return h.stopped }
