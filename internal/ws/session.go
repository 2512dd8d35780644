package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/dispatch"
	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/registry"
	"github.com/DoyleJ11/tabletop-backend/internal/room"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

// session is one websocket connection. The read loop handles requests in
// arrival order; a single writer goroutine owns every write to the socket.
type session struct {
	connRef string
	conn    *websocket.Conn
	rooms   Rooms
	disp    Dispatcher
	logger  *zap.Logger
	tracer  trace.Tracer
	send    chan types.ServerMessage
	ctx     context.Context

	closeOnce sync.Once

	mu   sync.Mutex
	pump *pump // forwarding from the current room, if seated
}

type pump struct {
	outbox chan room.Update
	stop   chan struct{}
}

func (s *session) readLoop() {
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if s.ctx.Err() == nil {
					s.logger.Debug("read", zap.Error(err))
				}
			}
			return
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			s.logger.Warn("rate limit exceeded")
			s.close(websocket.StatusPolicyViolation, "rate limit exceeded")
			return
		}

		var msg types.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			decodeErrors++
			s.replyError("", dispatch.ErrInvalidPayload)
			if decodeErrors >= maxDecodeErrorsPerConn {
				s.close(websocket.StatusUnsupportedData, "too many invalid frames")
				return
			}
			continue
		}
		decodeErrors = 0

		s.handle(msg)
	}
}

func (s *session) handle(msg types.ClientMessage) {
	ctx, span := s.tracer.Start(s.ctx, "ws."+msg.Type, trace.WithAttributes(
		attribute.String("conn.ref", s.connRef),
		attribute.String("request.id", msg.RequestID),
	))
	defer span.End()

	var err error
	switch msg.Type {
	case types.CreateRoom:
		err = s.createRoom(ctx, msg)
	case types.JoinRoom:
		err = s.joinRoom(ctx, msg)
	case types.Action:
		err = s.action(ctx, msg)
	case types.Chat:
		err = s.chat(ctx, msg)
	default:
		err = fmt.Errorf("%w: unsupported frame type %q", dispatch.ErrInvalidPayload, msg.Type)
	}

	if err != nil {
		code := dispatch.Code(err)
		span.SetAttributes(attribute.String("error.code", code))
		if code == dispatch.CodeInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("request failed", zap.String("type", msg.Type), zap.Error(err))
		} else {
			s.logger.Debug("request rejected", zap.String("type", msg.Type), zap.String("code", code), zap.Error(err))
		}
		s.replyError(msg.RequestID, err)
	}
}

func (s *session) createRoom(ctx context.Context, msg types.ClientMessage) error {
	var p types.CreateRoomPayload
	if err := decodePayload(msg.Payload, &p); err != nil {
		return err
	}
	name, err := dispatch.ValidateName(p.PlayerName)
	if err != nil {
		return err
	}

	outbox := make(chan room.Update, outboxBuffer)
	res, err := s.rooms.CreateRoom(ctx, s.connRef, name, outbox)
	if err != nil {
		return err
	}
	s.seated(types.RoomCreated, msg.RequestID, res, outbox)
	return nil
}

func (s *session) joinRoom(ctx context.Context, msg types.ClientMessage) error {
	var p types.JoinRoomPayload
	if err := decodePayload(msg.Payload, &p); err != nil {
		return err
	}
	if p.RoomID == "" {
		return fmt.Errorf("%w: roomId is required", dispatch.ErrInvalidPayload)
	}
	name, err := dispatch.ValidateName(p.PlayerName)
	if err != nil {
		return err
	}

	outbox := make(chan room.Update, outboxBuffer)
	res, err := s.rooms.JoinRoom(ctx, p.RoomID, s.connRef, name, outbox)
	if err != nil {
		return err
	}
	s.seated(types.RoomJoined, msg.RequestID, res, outbox)
	return nil
}

func (s *session) action(ctx context.Context, msg types.ClientMessage) error {
	var p types.ActionPayload
	if err := decodePayload(msg.Payload, &p); err != nil {
		return err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("action.kind", p.Kind))
	return s.disp.DispatchAction(ctx, s.connRef, p.Kind, p.Data)
}

func (s *session) chat(ctx context.Context, msg types.ClientMessage) error {
	var p types.ChatPayload
	if err := decodePayload(msg.Payload, &p); err != nil {
		return err
	}
	cmd, err := dispatch.ParseChat(p.Message)
	if err != nil {
		return err
	}
	return s.disp.Dispatch(ctx, s.connRef, cmd)
}

// seated answers a successful create or join and then starts forwarding
// the room's updates. The reply is queued first so the client never sees a
// broadcast newer than the state it was handed.
func (s *session) seated(frameType, requestID string, res registry.Result, outbox chan room.Update) {
	history := res.Log
	if history == nil {
		history = []engine.Notice{}
	}
	s.enqueue(types.ServerMessage{
		Type:      frameType,
		RequestID: requestID,
		Version:   types.Versioned(res.Version),
		Payload: types.JoinedPayload{
			PlayerID: res.Player.ID,
			Room:     res.Snapshot,
			Log:      history,
		},
	})

	p := &pump{outbox: outbox, stop: make(chan struct{})}
	s.mu.Lock()
	if s.pump != nil {
		close(s.pump.stop)
	}
	s.pump = p
	s.mu.Unlock()

	go s.forward(p)
}

// forward relays room updates as frames until the room drops this
// subscriber or the session moves elsewhere.
func (s *session) forward(p *pump) {
	for {
		select {
		case <-p.stop:
			return
		case <-s.ctx.Done():
			return
		case u, ok := <-p.outbox:
			if !ok {
				select {
				case <-p.stop:
					// Replaced by a newer seat; the old room let go of us.
				default:
					// Dropped as a slow subscriber, or the room shut down.
					s.logger.Info("room closed subscription")
					s.close(websocket.StatusGoingAway, "room subscription ended")
				}
				return
			}
			for _, f := range updateFrames(u) {
				s.enqueue(f)
			}
		}
	}
}

func updateFrames(u room.Update) []types.ServerMessage {
	frames := make([]types.ServerMessage, 0, len(u.Notices)+1)
	if u.Snapshot != nil {
		frames = append(frames, types.ServerMessage{
			Type:    types.RoomState,
			Version: types.Versioned(u.Version),
			Payload: u.Snapshot,
		})
	}
	for _, n := range u.Notices {
		frames = append(frames, types.ServerMessage{
			Type:    types.Notice,
			Version: types.Versioned(u.Version),
			Payload: n,
		})
	}
	return frames
}

func (s *session) replyError(requestID string, err error) {
	s.enqueue(types.ServerMessage{
		Type:      types.Error,
		RequestID: requestID,
		Payload: types.ErrorPayload{
			Code:    dispatch.Code(err),
			Message: dispatch.Message(err),
		},
	})
}

// enqueue hands a frame to the writer. A client that cannot keep up with
// its own queue is disconnected.
func (s *session) enqueue(m types.ServerMessage) {
	select {
	case s.send <- m:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("send queue full")
		s.close(websocket.StatusPolicyViolation, "too slow")
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.send:
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := wsjson.Write(ctx, s.conn, m)
			cancel()
			if err != nil {
				if s.ctx.Err() == nil {
					s.logger.Debug("write", zap.Error(err))
				}
				s.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (s *session) keepAlive() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				s.close(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}

// close starts the close handshake. The blocked Read then returns and the
// handler unwinds.
func (s *session) close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		go func() { _ = s.conn.Close(code, reason) }()
	})
}

// disconnect unseats the connection. It runs on a fresh context because the
// request context is usually already done.
func (s *session) disconnect() {
	s.mu.Lock()
	if s.pump != nil {
		close(s.pump.stop)
		s.pump = nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	res, err := s.rooms.LeaveRoom(ctx, s.connRef)
	switch {
	case errors.Is(err, engine.ErrNotInRoom):
	case err != nil:
		s.logger.Warn("leave on disconnect", zap.Error(err))
	default:
		s.logger.Debug("left room on disconnect", zap.String("room_id", res.RoomID), zap.Bool("retired", res.Retired))
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", dispatch.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrInvalidPayload, err)
	}
	return nil
}
