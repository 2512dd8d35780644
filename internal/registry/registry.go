package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/room"
)

const maxIDAttempts = 16

// ErrClosed is returned once the registry has shut down.
var ErrClosed = errors.New("registry closed")

type Msg interface{ isRegistryMsg() }

type CreateRoom struct {
	ConnRef string
	Name    string
	Outbox  chan room.Update
	Reply   chan Result
}

type JoinRoom struct {
	RoomID  string
	ConnRef string
	Name    string
	Outbox  chan room.Update
	Reply   chan Result
}

type LeaveRoom struct {
	ConnRef string
	Reply   chan LeaveResult
}

type FindRoom struct {
	ConnRef string
	Reply   chan *room.Room
}

type GetRoom struct {
	RoomID string
	Reply  chan *room.Room
}

type ListRooms struct {
	Reply chan []room.Summary
}

type Shutdown struct {
	Reply chan struct{}
}

func (CreateRoom) isRegistryMsg() {}
func (JoinRoom) isRegistryMsg()   {}
func (LeaveRoom) isRegistryMsg()  {}
func (FindRoom) isRegistryMsg()   {}
func (GetRoom) isRegistryMsg()    {}
func (ListRooms) isRegistryMsg()  {}
func (Shutdown) isRegistryMsg()   {}

// Result answers a create or join. Room is nil when Err is set.
type Result struct {
	Room *room.Room
	room.JoinResult
}

type LeaveResult struct {
	RoomID  string
	Player  engine.Player
	Retired bool
	Err     error
}

type Option func(*Registry)

// WithIDGenerator replaces the random room id source.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(r *Registry) { r.newID = gen }
}

func WithGrid(g engine.Grid) Option {
	return func(r *Registry) { r.grid = g }
}

// Registry owns the set of live rooms and which room each connection is
// seated in. It waits on rooms for joins and leaves; rooms never call back
// into it.
type Registry struct {
	inbox  chan Msg
	rooms  map[string]*room.Room
	conns  map[string]string // connRef -> roomID
	grid   engine.Grid
	roller engine.Roller
	newID  func() (string, error)
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, roller engine.Roller, logger *zap.Logger, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:  make(chan Msg, 64),
		rooms:  make(map[string]*room.Room),
		conns:  make(map[string]string),
		grid:   engine.Grid{Width: engine.DefaultGridWidth, Height: engine.DefaultGridHeight},
		roller: roller,
		newID:  GenerateRoomID,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.loop()
	return r
}

func (r *Registry) Inbox() chan<- Msg { return r.inbox }

func (r *Registry) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- r.create(msg)

			case JoinRoom:
				msg.Reply <- r.join(msg)

			case LeaveRoom:
				msg.Reply <- r.leave(msg.ConnRef)

			case FindRoom:
				msg.Reply <- r.rooms[r.conns[msg.ConnRef]] // May be nil

			case GetRoom:
				msg.Reply <- r.rooms[strings.ToUpper(msg.RoomID)] // May be nil

			case ListRooms:
				out := make([]room.Summary, 0, len(r.rooms))
				for _, rm := range r.rooms {
					out = append(out, rm.Summary())
				}
				slices.SortFunc(out, func(a, b room.Summary) int { return b.CreatedAt.Compare(a.CreatedAt) })
				msg.Reply <- out

			case Shutdown:
				r.shutdown()
				msg.Reply <- struct{}{}
				return
			}
		}
	}
}

func (r *Registry) create(msg CreateRoom) Result {
	id, err := r.uniqueID()
	if err != nil {
		return Result{JoinResult: room.JoinResult{Err: err}}
	}

	st, err := engine.NewState(id, msg.Name, msg.ConnRef, uuid.NewString(), r.grid, time.Now())
	if err != nil {
		return Result{JoinResult: room.JoinResult{Err: err}}
	}

	rm := room.New(r.ctx, st, r.roller, r.logger)
	res, err := rm.Subscribe(r.ctx, msg.ConnRef, msg.Outbox)
	if err != nil {
		_ = rm.Stop(r.ctx)
		return Result{JoinResult: room.JoinResult{Err: err}}
	}
	r.rooms[id] = rm
	r.logger.Info("room created", zap.String("room_id", id), zap.String("owner", res.Player.DisplayName))

	r.rebind(msg.ConnRef, id)
	return Result{Room: rm, JoinResult: res}
}

func (r *Registry) join(msg JoinRoom) Result {
	id := strings.ToUpper(strings.TrimSpace(msg.RoomID))
	rm, ok := r.rooms[id]
	if !ok {
		return Result{JoinResult: room.JoinResult{Err: fmt.Errorf("%w: %s", engine.ErrNotFound, id)}}
	}

	res, err := rm.Join(r.ctx, msg.ConnRef, uuid.NewString(), msg.Name, msg.Outbox)
	if err != nil {
		return Result{JoinResult: room.JoinResult{Err: err}}
	}

	r.rebind(msg.ConnRef, id)
	return Result{Room: rm, JoinResult: res}
}

// rebind seats connRef in roomID, leaving whatever room it was in before.
func (r *Registry) rebind(connRef, roomID string) {
	if prev, ok := r.conns[connRef]; ok && prev != roomID {
		r.leave(connRef)
	}
	r.conns[connRef] = roomID
}

func (r *Registry) leave(connRef string) LeaveResult {
	id, ok := r.conns[connRef]
	if !ok {
		return LeaveResult{Err: engine.ErrNotInRoom}
	}
	delete(r.conns, connRef)

	rm := r.rooms[id]
	if rm == nil {
		return LeaveResult{RoomID: id, Err: engine.ErrNotInRoom}
	}
	res, err := rm.Leave(r.ctx, connRef)
	if errors.Is(err, engine.ErrInvariant) {
		// The room kept its previous state; only the binding is dropped.
		return LeaveResult{RoomID: id, Err: err}
	}
	if err != nil {
		r.retire(id, rm)
		return LeaveResult{RoomID: id, Retired: true, Err: err}
	}
	if !res.Removed {
		return LeaveResult{RoomID: id, Err: engine.ErrPlayerNotFound}
	}

	out := LeaveResult{RoomID: id, Player: res.Player}
	if res.Remaining == 0 {
		r.retire(id, rm)
		out.Retired = true
	}
	return out
}

func (r *Registry) retire(id string, rm *room.Room) {
	delete(r.rooms, id)
	if err := rm.Stop(r.ctx); err != nil {
		r.logger.Warn("room stop", zap.String("room_id", id), zap.Error(err))
	}
	r.logger.Info("room retired", zap.String("room_id", id))
}

func (r *Registry) uniqueID() (string, error) {
	for range maxIDAttempts {
		id, err := r.newID()
		if err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		if _, taken := r.rooms[id]; !taken {
			return id, nil
		}
		r.logger.Debug("collision on room id, regenerating", zap.String("room_id", id))
	}
	return "", fmt.Errorf("generate room id: %d collisions in a row", maxIDAttempts)
}

// shutdown stops every room (they run under the registry context) and waits
// until each has closed its subscriber outboxes.
func (r *Registry) shutdown() {
	r.cancel()
	for id, rm := range r.rooms {
		<-rm.Done()
		delete(r.rooms, id)
	}
	clear(r.conns)
}
