package room

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/oldmex-backend/internal/engine"
)

const undoTimeout = 5 * time.Second

// send delivers m unless the room is gone or ctx ends first.
func (r *Room) send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) await(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-r.ctx.Done():
		// The room replies before it shuts down, so a reply may still be waiting.
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join adds a player and subscribes outbox to the room's snapshots.
// The first snapshot follows on outbox once the join is accepted.
//
// When ctx ends after the request reached the room, the join is undone
// with a Leave, so an error from Join always means connID is not a player.
func (r *Room) Join(ctx context.Context, connID, name string, outbox chan Snapshot) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, Join{ConnID: connID, Name: name, Outbox: outbox, Reply: reply}); err != nil {
		return err
	}

	err := r.await(ctx, reply)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		undoCtx, cancel := context.WithTimeout(context.Background(), undoTimeout)
		defer cancel()
		r.Leave(undoCtx, connID)
	}
	return err
}

// Do runs a roll, stay or reset for connID.
func (r *Room) Do(ctx context.Context, typ engine.CommandType, connID string) error {
	reply := make(chan error, 1)
	msg := FromClient{Cmd: engine.Command{Type: typ, ConnID: connID}, Reply: reply}
	if err := r.send(ctx, msg); err != nil {
		return err
	}
	return r.await(ctx, reply)
}

// Leave removes connID's player. Leaving a destroyed room is a no-op.
func (r *Room) Leave(ctx context.Context, connID string) {
	_ = r.send(ctx, Leave{ConnID: connID})
}

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		select {
		case v := <-reply:
			return v, nil
		default:
			return View{}, ErrClosed
		}
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
