package room

import (
	"context"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
)

// The helpers below wrap the inbox protocol for callers outside the actor.
// They never block past ctx or the room stopping.

func (r *Room) Join(ctx context.Context, connRef, playerID, name string, outbox chan Update) (JoinResult, error) {
	reply := make(chan JoinResult, 1)
	res, err := call(ctx, r, Join{ConnRef: connRef, PlayerID: playerID, Name: name, Outbox: outbox, Reply: reply}, reply)
	if err != nil {
		return JoinResult{}, err
	}
	return res, res.Err
}

// Subscribe attaches outbox to the seat already held by connRef.
func (r *Room) Subscribe(ctx context.Context, connRef string, outbox chan Update) (JoinResult, error) {
	reply := make(chan JoinResult, 1)
	res, err := call(ctx, r, Subscribe{ConnRef: connRef, Outbox: outbox, Reply: reply}, reply)
	if err != nil {
		return JoinResult{}, err
	}
	return res, res.Err
}

func (r *Room) Leave(ctx context.Context, connRef string) (LeaveResult, error) {
	reply := make(chan LeaveResult, 1)
	res, err := call(ctx, r, Leave{ConnRef: connRef, Reply: reply}, reply)
	if err != nil {
		return LeaveResult{}, err
	}
	return res, res.Err
}

// Apply runs cmd for the player bound to connRef. A nil error means the
// effect has already been broadcast.
func (r *Room) Apply(ctx context.Context, connRef string, cmd engine.Command) error {
	reply := make(chan error, 1)
	err, callErr := call(ctx, r, FromClient{ConnRef: connRef, Cmd: cmd, Reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	return call(ctx, r, GetState{Reply: reply}, reply)
}

// Stop asks the room to shut down and waits for it to finish.
func (r *Room) Stop(ctx context.Context) error {
	select {
	case r.inbox <- Shutdown{}:
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func call[T any](ctx context.Context, r *Room, m Msg, reply <-chan T) (T, error) {
	var zero T
	select {
	case r.inbox <- m:
	case <-r.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		// The reply may have been written just before the room stopped.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
