package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/registry"
	"github.com/DoyleJ11/tabletop-backend/internal/room"
	"github.com/DoyleJ11/tabletop-backend/internal/types"
)

const (
	maxFrameBytes          = 16 << 10
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
	sendBuffer             = 128
	outboxBuffer           = 32
	writeTimeout           = 3 * time.Second
	pingInterval           = 30 * time.Second
	leaveTimeout           = 5 * time.Second
)

// Rooms is the slice of the room registry the gateway needs.
type Rooms interface {
	CreateRoom(ctx context.Context, connRef, name string, outbox chan room.Update) (registry.Result, error)
	JoinRoom(ctx context.Context, roomID, connRef, name string, outbox chan room.Update) (registry.Result, error)
	LeaveRoom(ctx context.Context, connRef string) (registry.LeaveResult, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, connRef string, cmd engine.Command) error
	DispatchAction(ctx context.Context, connRef, kind string, data json.RawMessage) error
}

type Options struct {
	Rooms      Rooms
	Dispatcher Dispatcher
	Logger     *zap.Logger
	// OriginPatterns lists extra hosts allowed to open a socket from a
	// browser, e.g. "localhost:5173".
	OriginPatterns []string
	Tracer         trace.Tracer
}

func Handler(opts Options) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/DoyleJ11/tabletop-backend/internal/ws")
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(maxFrameBytes)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s := &session{
			connRef: uuid.NewString(),
			conn:    conn,
			rooms:   opts.Rooms,
			disp:    opts.Dispatcher,
			tracer:  tracer,
			send:    make(chan types.ServerMessage, sendBuffer),
			ctx:     ctx,
		}
		s.logger = logger.With(zap.String("conn", s.connRef))
		s.logger.Debug("connection opened", zap.String("remote", r.RemoteAddr))

		go s.writeLoop()
		go s.keepAlive()
		defer s.disconnect()

		s.readLoop()
	}
}
