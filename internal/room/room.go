package room

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
)

// MaxLogNotices bounds the per-room notice history handed to late joiners.
const MaxLogNotices = 100

// ErrClosed is returned by the request helpers once the room has stopped.
var ErrClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

type Join struct {
	ConnRef  string
	PlayerID string // used only when the connection is not already seated
	Name     string
	Outbox   chan Update // where this connection wants to receive updates
	Reply    chan JoinResult
}

func (Join) isRoomMsg() {}

// Subscribe attaches an outbox to a connection that is already seated,
// such as the creator of a freshly built room. It changes no state.
type Subscribe struct {
	ConnRef string
	Outbox  chan Update
	Reply   chan JoinResult
}

func (Subscribe) isRoomMsg() {}

type Leave struct {
	ConnRef string
	Reply   chan LeaveResult
}

func (Leave) isRoomMsg() {}

type FromClient struct {
	ConnRef string
	Cmd     engine.Command
	Reply   chan error
}

func (FromClient) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// Update is one broadcast. Snapshot is nil when the roster, positions and
// turn pointer did not change.
type Update struct {
	Version  int
	Snapshot *engine.Snapshot
	Notices  []engine.Notice
}

type JoinResult struct {
	Player   engine.Player
	Rejoined bool
	Version  int
	Snapshot engine.Snapshot
	Log      []engine.Notice
	Err      error
}

type LeaveResult struct {
	Player    engine.Player
	Removed   bool
	Remaining int
	Err       error
}

type View struct {
	Version    int
	NumClients int
	Snapshot   engine.Snapshot
	Log        []engine.Notice
}

// Summary is the lock-free listing view of a room.
type Summary struct {
	ID            string
	Name          string
	PlayerCount   int
	CurrentPlayer string
	CreatedAt     time.Time
}

// Room serializes every mutation of one engine.State through its inbox and
// fans the results out to subscribers in the order they were applied.
type Room struct {
	id      string
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Update
	log     []engine.Notice
	roller  engine.Roller
	logger  *zap.Logger
	summary atomic.Pointer[Summary]
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(parent context.Context, initial engine.State, roller engine.Roller, logger *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:      initial.ID,
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan Update),
		roller:  roller,
		logger:  logger.With(zap.String("room_id", initial.ID)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.publishSummary()

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Inbox exposes the raw mailbox so tests or the transport can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) Summary() Summary { return *r.summary.Load() }

func (r *Room) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.join(msg)

			case Subscribe:
				msg.Reply <- r.subscribe(msg)

			case Leave:
				msg.Reply <- r.leave(msg.ConnRef)

			case FromClient:
				msg.Reply <- r.apply(msg.ConnRef, msg.Cmd)

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					Snapshot:   r.state.Snapshot(),
					Log:        slices.Clone(r.log),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) join(msg Join) JoinResult {
	next := r.state.Clone()
	p, rejoined, err := next.AddPlayer(msg.Name, msg.ConnRef, msg.PlayerID)
	if err == nil {
		err = next.CheckInvariants()
	}
	if err != nil {
		return JoinResult{Err: err}
	}
	r.state = next

	if !rejoined {
		r.logger.Info("player joined", zap.String("player_id", p.ID), zap.String("name", p.DisplayName))
		snap := r.state.Snapshot()
		r.commit(&snap, []engine.Notice{engine.SystemNotice(p.DisplayName+" joined the game", time.Now().UnixMilli())})
	}

	// Registered after the broadcast: the joiner learns this version from
	// the reply instead. A reconnect's new outbox replaces the old one.
	if msg.Outbox != nil {
		r.clients[msg.ConnRef] = msg.Outbox
	}

	return JoinResult{
		Player:   p,
		Rejoined: rejoined,
		Version:  r.version,
		Snapshot: r.state.Snapshot(),
		Log:      slices.Clone(r.log),
	}
}

func (r *Room) subscribe(msg Subscribe) JoinResult {
	idx, ok := r.state.PlayerIndexByConnection(msg.ConnRef)
	if !ok {
		return JoinResult{Err: engine.ErrPlayerNotFound}
	}
	if msg.Outbox != nil {
		r.clients[msg.ConnRef] = msg.Outbox
	}
	return JoinResult{
		Player:   r.state.Roster[idx],
		Rejoined: true,
		Version:  r.version,
		Snapshot: r.state.Snapshot(),
		Log:      slices.Clone(r.log),
	}
}

func (r *Room) leave(connRef string) LeaveResult {
	delete(r.clients, connRef)

	next := r.state.Clone()
	p, ok := next.RemovePlayer(connRef)
	if !ok {
		return LeaveResult{Remaining: len(r.state.Roster)}
	}
	if err := next.CheckInvariants(); err != nil {
		r.logger.Error("leave aborted", zap.String("player_id", p.ID), zap.Error(err))
		return LeaveResult{Remaining: len(r.state.Roster), Err: err}
	}
	r.state = next
	r.logger.Info("player left", zap.String("player_id", p.ID), zap.String("name", p.DisplayName))

	remaining := len(r.state.Roster)
	if remaining > 0 {
		snap := r.state.Snapshot()
		r.commit(&snap, []engine.Notice{engine.SystemNotice(p.DisplayName+" left the game", time.Now().UnixMilli())})
	} else {
		r.publishSummary()
	}
	return LeaveResult{Player: p, Removed: true, Remaining: remaining}
}

func (r *Room) apply(connRef string, cmd engine.Command) error {
	next := r.state.Clone()
	eff, err := engine.Apply(&next, connRef, cmd, r.roller, time.Now())
	if err != nil {
		r.logger.Debug("action rejected", zap.String("kind", string(cmd.Kind())), zap.Error(err))
		return err
	}
	if err := next.CheckInvariants(); err != nil {
		r.logger.Error("action aborted", zap.String("kind", string(cmd.Kind())), zap.Error(err))
		return err
	}
	r.state = next
	r.commit(eff.Snapshot, eff.Notices)
	return nil
}

// commit records one applied effect: bump the version, append notices to
// the bounded log and broadcast.
func (r *Room) commit(snap *engine.Snapshot, notices []engine.Notice) {
	r.version++
	r.log = append(r.log, notices...)
	if over := len(r.log) - MaxLogNotices; over > 0 {
		r.log = slices.Delete(r.log, 0, over)
	}
	r.publishSummary()
	r.broadcast(Update{Version: r.version, Snapshot: snap, Notices: notices})
}

func (r *Room) broadcast(u Update) {
	for id, ch := range r.clients {
		select {
		case ch <- u:
			// ok
		default:
			// Client is slow/full - drop them.
			r.logger.Warn("dropping slow subscriber", zap.String("conn", id))
			close(ch)
			delete(r.clients, id)
		}
	}
}

func (r *Room) publishSummary() {
	sum := Summary{
		ID:          r.state.ID,
		Name:        r.state.Name,
		PlayerCount: len(r.state.Roster),
		CreatedAt:   r.state.CreatedAt,
	}
	if cur, ok := r.state.CurrentPlayer(); ok {
		sum.CurrentPlayer = cur.DisplayName
	}
	r.summary.Store(&sum)
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch) // Tell client no more updates
		delete(r.clients, id)
	}
	r.cancel()
}
