package types

import (
	"encoding/json"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
)

// Client frame types.
const (
	CreateRoom = "createRoom"
	JoinRoom   = "joinRoom"
	Action     = "action"
	Chat       = "chat"
)

// Server frame types.
const (
	RoomCreated = "roomCreated"
	RoomJoined  = "roomJoined"
	RoomState   = "roomState"
	Notice      = "notice"
	Error       = "error"
)

type ClientMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type CreateRoomPayload struct {
	PlayerName string `json:"playerName"`
}

type JoinRoomPayload struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
}

type ActionPayload struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ChatPayload struct {
	Message string `json:"message"`
}

type ServerMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Version   *int   `json:"version,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// JoinedPayload answers createRoom and joinRoom.
type JoinedPayload struct {
	PlayerID string          `json:"playerId"`
	Room     engine.Snapshot `json:"room"`
	Log      []engine.Notice `json:"log"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Versioned(v int) *int { return &v }
