// Package dispatch turns decoded client requests into engine commands and
// routes them to the room the sending connection is seated in.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/room"
)

const (
	MaxChatRunes = 500
	MaxNameRunes = 32
)

// ErrInvalidPayload marks a request whose shape is wrong before any room
// rule is consulted.
var ErrInvalidPayload = errors.New("invalid payload")

// RoomFinder resolves the room a connection is currently seated in. A nil
// room with a nil error means the connection is not seated anywhere.
type RoomFinder interface {
	FindRoomByConnection(ctx context.Context, connRef string) (*room.Room, error)
}

type Dispatcher struct {
	rooms RoomFinder
}

func New(rooms RoomFinder) *Dispatcher {
	return &Dispatcher{rooms: rooms}
}

// Dispatch applies cmd in the caller's room. The room serializes it with
// every other mutation; a nil error means the effect was already broadcast.
func (d *Dispatcher) Dispatch(ctx context.Context, connRef string, cmd engine.Command) error {
	rm, err := d.resolve(ctx, connRef)
	if err != nil {
		return err
	}
	return apply(ctx, rm, connRef, cmd)
}

// DispatchAction resolves the caller's room before parsing, so a connection
// outside any room gets ErrNotInRoom whatever kind it sends.
func (d *Dispatcher) DispatchAction(ctx context.Context, connRef, kind string, data json.RawMessage) error {
	rm, err := d.resolve(ctx, connRef)
	if err != nil {
		return err
	}
	cmd, err := ParseAction(kind, data)
	if err != nil {
		return err
	}
	return apply(ctx, rm, connRef, cmd)
}

func (d *Dispatcher) resolve(ctx context.Context, connRef string) (*room.Room, error) {
	rm, err := d.rooms.FindRoomByConnection(ctx, connRef)
	if err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, engine.ErrNotInRoom
	}
	return rm, nil
}

func apply(ctx context.Context, rm *room.Room, connRef string, cmd engine.Command) error {
	err := rm.Apply(ctx, connRef, cmd)
	if errors.Is(err, room.ErrClosed) {
		// Retired between lookup and apply.
		return engine.ErrNotInRoom
	}
	return err
}

type moveData struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// rollData keeps the raw values so a sides or count that is not an integer
// is reported as a bad die or count rather than a malformed payload.
type rollData struct {
	Sides json.RawMessage `json:"sides"`
	Count json.RawMessage `json:"count"`
}

func absent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// ParseAction maps a wire action kind and its data onto the closed command
// set.
func ParseAction(kind string, data json.RawMessage) (engine.Command, error) {
	switch engine.ActionKind(kind) {
	case engine.ActionMove:
		var m moveData
		if err := decode(data, &m); err != nil {
			return nil, err
		}
		if m.X == nil || m.Y == nil {
			return nil, fmt.Errorf("%w: move needs x and y", ErrInvalidPayload)
		}
		return engine.Move{X: *m.X, Y: *m.Y}, nil

	case engine.ActionRollDice:
		var r rollData
		if err := decode(data, &r); err != nil {
			return nil, err
		}
		if absent(r.Sides) {
			return nil, fmt.Errorf("%w: rollDice needs sides", ErrInvalidPayload)
		}
		var sides int
		if err := json.Unmarshal(r.Sides, &sides); err != nil {
			return nil, fmt.Errorf("%w: d%s", engine.ErrInvalidDieType, r.Sides)
		}
		count := 1
		if !absent(r.Count) {
			if err := json.Unmarshal(r.Count, &count); err != nil {
				return nil, engine.ErrInvalidCount
			}
		}
		return engine.RollDice{Sides: sides, Count: count}, nil

	case engine.ActionEndTurn:
		return engine.EndTurn{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownAction, kind)
	}
}

// ParseChat trims text and enforces the chat length bound.
func ParseChat(text string) (engine.Chat, error) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 || n > MaxChatRunes {
		return engine.Chat{}, fmt.Errorf("%w: chat must be 1 to %d characters", ErrInvalidPayload, MaxChatRunes)
	}
	return engine.Chat{Text: text}, nil
}

// ValidateName checks a display name after normalization.
func ValidateName(name string) (string, error) {
	name = engine.NormalizeName(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > MaxNameRunes {
		return "", fmt.Errorf("%w: player name must be 1 to %d characters", ErrInvalidPayload, MaxNameRunes)
	}
	return name, nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
