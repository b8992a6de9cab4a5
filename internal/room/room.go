package room

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/DoyleJ11/oldmex-backend/internal/engine"
	"go.uber.org/zap"
)

// ErrClosed is returned when a message is sent to a room that has been destroyed.
var ErrClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

type Join struct {
	ConnID string
	Name   string
	Outbox chan Snapshot // where this client wants to receive snapshots
	Reply  chan error
}

func (Join) isRoomMsg() {}

type Leave struct{ ConnID string }

func (Leave) isRoomMsg() {}

// FromClient carries roll, stay and reset. Reply gets nil or the rejection.
type FromClient struct {
	Cmd   engine.Command
	Reply chan error
}

func (FromClient) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

// rollLanded is posted by the roll delay timer. Seq guards against stale timers.
type rollLanded struct{ seq int }

func (rollLanded) isRoomMsg() {}

// checkEmpty wakes the loop once EmptyGrace has passed so a room nobody
// managed to join is torn down.
type checkEmpty struct{}

func (checkEmpty) isRoomMsg() {}

type Snapshot struct {
	Version int
	Room    string
	State   engine.State
}

type View struct {
	Version    int
	NumClients int
	Phase      engine.Phase
	State      engine.State
}

// Recorder receives every finished round.
type Recorder interface {
	RecordRound(ctx context.Context, res engine.RoundResult) error
}

type Options struct {
	MinRollDelay time.Duration
	MaxRollDelay time.Duration
	Roller       engine.Roller
	Recorder     Recorder
	Clock        func() time.Time
	Logger       *zap.Logger

	// EmptyGrace is how long a new room waits for its first player.
	EmptyGrace time.Duration
}

const (
	defaultEmptyGrace = 5 * time.Second
	recordTimeout     = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxRollDelay < o.MinRollDelay {
		o.MaxRollDelay = o.MinRollDelay
	}
	if o.Roller == nil {
		o.Roller = engine.RandomRoller
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.EmptyGrace <= 0 {
		o.EmptyGrace = defaultEmptyGrace
	}
	return o
}

type Room struct {
	name    string
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Snapshot
	opts    Options
	log     *zap.Logger

	rollSeq    int
	rollTimer  *time.Timer
	emptyTimer *time.Timer

	// recording counts RecordRound calls still in flight.
	recording sync.WaitGroup

	// onEmpty is called from the room goroutine once the last player leaves.
	onEmpty func(*Room)

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(parent context.Context, name string, opts Options, onEmpty func(*Room)) *Room {
	ctx, cancel := context.WithCancel(parent)
	opts = opts.withDefaults()

	r := &Room{
		name:    name,
		inbox:   make(chan Msg, 64),
		state:   engine.NewState(opts.Clock()),
		clients: make(map[string]chan Snapshot),
		opts:    opts,
		log:     opts.Logger.With(zap.String("room", name)),
		onEmpty: onEmpty,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	r.emptyTimer = time.AfterFunc(opts.EmptyGrace, func() {
		select {
		case r.inbox <- checkEmpty{}:
		case <-r.ctx.Done():
		}
	})

	r.log.Info("created room")
	go r.loop()
	return r
}

func (r *Room) Name() string { return r.name }

// Done is closed once the room has been destroyed.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Stopped is closed after the room goroutine has exited and every
// round it finished has been handed to the recorder.
func (r *Room) Stopped() <-chan struct{} { return r.stopped }

// Expose the inbox so tests or the WS layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	defer close(r.stopped)

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				r.handleLeave(msg)

			case FromClient:
				r.handleCommand(msg)

			case rollLanded:
				r.handleRollLanded(msg)

			case checkEmpty:
				// nothing to do; the emptiness check below decides

			case GetState:
				// reflect internal state without data races
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					Phase:      engine.DerivePhase(r.state),
					State:      r.state.Clone(),
				}

			case Shutdown:
				r.shutdown()
				return
			}

			if len(r.state.Players) == 0 {
				r.destroy()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	_, newState, err := r.apply(engine.Command{Type: engine.CmdJoin, ConnID: msg.ConnID, Name: msg.Name})
	if err != nil {
		r.log.Debug("join rejected", zap.String("player", msg.Name), zap.Error(err))
		msg.Reply <- err
		return
	}

	r.state = newState
	r.clients[msg.ConnID] = msg.Outbox
	msg.Reply <- nil

	r.log.Info("player joined room", zap.String("player", msg.Name))
	r.broadcast()
}

func (r *Room) handleLeave(msg Leave) {
	if ch, ok := r.clients[msg.ConnID]; ok {
		close(ch)
		delete(r.clients, msg.ConnID)
	}

	events, newState, err := r.apply(engine.Command{Type: engine.CmdLeave, ConnID: msg.ConnID})
	if err != nil {
		return
	}
	r.state = newState
	r.log.Info("player left room", zap.String("player", events[0].Player))
	r.afterEvents(events)

	if len(r.state.Players) > 0 {
		r.broadcast()
	}
}

func (r *Room) handleCommand(msg FromClient) {
	events, newState, err := r.apply(msg.Cmd)
	if err != nil {
		r.log.Debug("action rejected", zap.String("type", string(msg.Cmd.Type)), zap.Error(err))
		msg.Reply <- err
		return
	}

	r.state = newState
	msg.Reply <- nil
	r.afterEvents(events)
	r.broadcast()
}

func (r *Room) handleRollLanded(msg rollLanded) {
	if msg.seq != r.rollSeq || !r.state.Resolving {
		return
	}
	r.rollTimer = nil

	cmd := engine.Command{Type: engine.CmdResolveRoll, Dice: r.opts.Roller.Roll()}
	events, newState, err := r.apply(cmd)
	if err != nil {
		r.log.Error("resolving roll", zap.Error(err))
		return
	}

	r.state = newState
	r.afterEvents(events)
	r.broadcast()
}

func (r *Room) apply(cmd engine.Command) ([]engine.Event, engine.State, error) {
	if cmd.At.IsZero() {
		cmd.At = r.opts.Clock()
	}
	return engine.Apply(r.state, cmd)
}

// afterEvents runs the side effects the engine leaves to the room.
func (r *Room) afterEvents(events []engine.Event) {
	for _, evt := range events {
		switch evt.Type {
		case engine.EvtRollStarted:
			r.scheduleRoll()
		case engine.EvtRollDiscarded:
			r.log.Debug("discarded roll of departed player")
		case engine.EvtRoundOver:
			r.record(engine.Summarize(r.name, r.state, r.opts.Clock()))
		}
	}
}

func (r *Room) scheduleRoll() {
	r.rollSeq++
	seq := r.rollSeq

	r.rollTimer = time.AfterFunc(r.rollDelay(), func() {
		select {
		case r.inbox <- rollLanded{seq: seq}:
		case <-r.ctx.Done():
		}
	})
}

// rollDelay is uniform in [MinRollDelay, MaxRollDelay].
func (r *Room) rollDelay() time.Duration {
	spread := r.opts.MaxRollDelay - r.opts.MinRollDelay
	if spread <= 0 {
		return r.opts.MinRollDelay
	}
	return r.opts.MinRollDelay + rand.N(spread+1)
}

func (r *Room) record(res engine.RoundResult) {
	r.log.Info("round over",
		zap.String("loser", res.Loser),
		zap.Int("lowest_roll", res.LowestRoll),
		zap.Int("max_rolls", res.MaxRolls))

	if r.opts.Recorder == nil {
		return
	}

	// The store must never stall the room
	r.recording.Add(1)
	go func() {
		defer r.recording.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.opts.Recorder.RecordRound(ctx, res); err != nil {
			r.log.Error("recording round", zap.Error(err))
		}
	}()
}

// destroy tears the room down after the last player left.
func (r *Room) destroy() {
	r.log.Info("room is now empty, cleaning up")
	if r.onEmpty != nil {
		r.onEmpty(r)
	}
	r.shutdown()
}

func (r *Room) shutdown() {
	r.emptyTimer.Stop()
	if r.rollTimer != nil {
		r.rollTimer.Stop()
		r.rollTimer = nil
	}
	for id, ch := range r.clients {
		close(ch) // Tell client no more snapshots
		delete(r.clients, id)
	}
	r.cancel()
	r.recording.Wait()
}

func (r *Room) broadcast() {
	r.version++
	snap := Snapshot{Version: r.version, Room: r.name, State: r.state.Clone()}

	for id, ch := range r.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them. The WS layer closes the
			// connection, which comes back here as a Leave.
			r.log.Warn("dropping slow client", zap.String("conn", id))
			close(ch)
			delete(r.clients, id)
		}
	}
}
