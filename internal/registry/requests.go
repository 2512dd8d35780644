package registry

import (
	"context"
	"errors"

	"github.com/DoyleJ11/tabletop-backend/internal/room"
)

func (r *Registry) CreateRoom(ctx context.Context, connRef, name string, outbox chan room.Update) (Result, error) {
	reply := make(chan Result, 1)
	res, err := call(ctx, r, CreateRoom{ConnRef: connRef, Name: name, Outbox: outbox, Reply: reply}, reply)
	if err != nil {
		return Result{}, err
	}
	return res, res.Err
}

func (r *Registry) JoinRoom(ctx context.Context, roomID, connRef, name string, outbox chan room.Update) (Result, error) {
	reply := make(chan Result, 1)
	res, err := call(ctx, r, JoinRoom{RoomID: roomID, ConnRef: connRef, Name: name, Outbox: outbox, Reply: reply}, reply)
	if err != nil {
		return Result{}, err
	}
	return res, res.Err
}

// LeaveRoom unseats connRef from its room. The room is retired when its
// roster becomes empty.
func (r *Registry) LeaveRoom(ctx context.Context, connRef string) (LeaveResult, error) {
	reply := make(chan LeaveResult, 1)
	res, err := call(ctx, r, LeaveRoom{ConnRef: connRef, Reply: reply}, reply)
	if err != nil {
		return LeaveResult{}, err
	}
	return res, res.Err
}

// FindRoomByConnection returns the room connRef is seated in, or nil.
func (r *Registry) FindRoomByConnection(ctx context.Context, connRef string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	return call(ctx, r, FindRoom{ConnRef: connRef, Reply: reply}, reply)
}

func (r *Registry) Room(ctx context.Context, roomID string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	return call(ctx, r, GetRoom{RoomID: roomID, Reply: reply}, reply)
}

func (r *Registry) List(ctx context.Context) ([]room.Summary, error) {
	reply := make(chan []room.Summary, 1)
	return call(ctx, r, ListRooms{Reply: reply}, reply)
}

// Shutdown stops every room and then the registry itself.
func (r *Registry) Shutdown(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	_, err := call(ctx, r, Shutdown{Reply: reply}, reply)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func call[T any](ctx context.Context, r *Registry, m Msg, reply <-chan T) (T, error) {
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
