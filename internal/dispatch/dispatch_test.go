package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tabletop-backend/internal/dice"
	"github.com/DoyleJ11/tabletop-backend/internal/engine"
	"github.com/DoyleJ11/tabletop-backend/internal/room"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		name    string
		kind    string
		data    string
		want    engine.Command
		wantErr error
	}{
		{name: "move", kind: "move", data: `{"x":3,"y":4}`, want: engine.Move{X: 3, Y: 4}},
		{name: "move to origin", kind: "move", data: `{"x":0,"y":0}`, want: engine.Move{}},
		{name: "move missing y", kind: "move", data: `{"x":3}`, wantErr: ErrInvalidPayload},
		{name: "move bad json", kind: "move", data: `{"x":"a"}`, wantErr: ErrInvalidPayload},
		{name: "roll with count", kind: "rollDice", data: `{"sides":20,"count":3}`, want: engine.RollDice{Sides: 20, Count: 3}},
		{name: "roll count defaults to one", kind: "rollDice", data: `{"sides":6}`, want: engine.RollDice{Sides: 6, Count: 1}},
		{name: "roll explicit zero count kept", kind: "rollDice", data: `{"sides":6,"count":0}`, want: engine.RollDice{Sides: 6, Count: 0}},
		{name: "roll without sides", kind: "rollDice", data: `{}`, wantErr: ErrInvalidPayload},
		{name: "roll null sides", kind: "rollDice", data: `{"sides":null}`, wantErr: ErrInvalidPayload},
		{name: "roll sides as string", kind: "rollDice", data: `{"sides":"20"}`, wantErr: engine.ErrInvalidDieType},
		{name: "roll fractional sides", kind: "rollDice", data: `{"sides":20.5}`, wantErr: engine.ErrInvalidDieType},
		{name: "roll fractional count", kind: "rollDice", data: `{"sides":6,"count":1.5}`, wantErr: engine.ErrInvalidCount},
		{name: "roll not an object", kind: "rollDice", data: `[6]`, wantErr: ErrInvalidPayload},
		{name: "end turn without data", kind: "endTurn", want: engine.EndTurn{}},
		{name: "end turn ignores data", kind: "endTurn", data: `{"x":1}`, want: engine.EndTurn{}},
		{name: "unknown kind", kind: "teleport", data: `{}`, wantErr: engine.ErrUnknownAction},
		{name: "chat is not an action kind", kind: "chat", data: `{}`, wantErr: engine.ErrUnknownAction},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAction(tc.kind, json.RawMessage(tc.data))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseAction_UnknownKindIsQuoted(t *testing.T) {
	_, err := ParseAction("fly", nil)
	assert.EqualError(t, err, `unknown action: "fly"`)
}

func TestParseChat(t *testing.T) {
	c, err := ParseChat("  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Text)

	_, err = ParseChat("   ")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseChat(strings.Repeat("é", MaxChatRunes))
	assert.NoError(t, err, "bound counts runes, not bytes")

	_, err = ParseChat(strings.Repeat("a", MaxChatRunes+1))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestValidateName(t *testing.T) {
	name, err := ValidateName("  Aria ")
	require.NoError(t, err)
	assert.Equal(t, "Aria", name)

	_, err = ValidateName("")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = ValidateName(strings.Repeat("x", MaxNameRunes+1))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{engine.ErrNotFound, CodeNotFound},
		{fmt.Errorf("%w: ABCD-2345", engine.ErrNotFound), CodeNotFound},
		{engine.ErrNameTaken, CodeNameTaken},
		{engine.ErrNotInRoom, CodeNotInRoom},
		{engine.ErrPlayerNotFound, CodePlayerNotFound},
		{engine.ErrNotYourTurn, CodeNotYourTurn},
		{engine.ErrOutOfBounds, CodeOutOfBounds},
		{engine.ErrCellOccupied, CodeCellOccupied},
		{fmt.Errorf("%w: d7", engine.ErrInvalidDieType), CodeInvalidDieType},
		{engine.ErrInvalidCount, CodeInvalidCount},
		{fmt.Errorf("%w: %q", engine.ErrUnknownAction, "x"), CodeUnknownAction},
		{engine.ErrRoomFull, CodeRoomFull},
		{ErrInvalidPayload, CodeInvalidPayload},
		{fmt.Errorf("%w: no token", engine.ErrInvariant), CodeInternal},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Code(tc.err), "error %v", tc.err)
	}
	assert.Equal(t, "internal error", Message(engine.ErrInvariant))
	assert.Equal(t, "not your turn", Message(engine.ErrNotYourTurn))
}

type fakeFinder struct {
	rooms map[string]*room.Room
	err   error
}

func (f fakeFinder) FindRoomByConnection(_ context.Context, connRef string) (*room.Room, error) {
	return f.rooms[connRef], f.err
}

func TestDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := engine.NewState("ABCD-2345", "Aria", "c1", "p-aria", engine.Grid{}, time.Now())
	require.NoError(t, err)
	rm := room.New(ctx, st, dice.NewSeeded(5), zap.NewNop())
	out := make(chan room.Update, 4)
	_, err = rm.Subscribe(ctx, "c1", out)
	require.NoError(t, err)

	d := New(fakeFinder{rooms: map[string]*room.Room{"c1": rm}})

	require.NoError(t, d.Dispatch(ctx, "c1", engine.Move{X: 1, Y: 1}))
	select {
	case u := <-out:
		assert.Equal(t, 1, u.Version)
	case <-time.After(time.Second):
		t.Fatal("no broadcast after dispatch")
	}

	err = d.Dispatch(ctx, "c1", engine.Move{X: 99, Y: 1})
	assert.ErrorIs(t, err, engine.ErrOutOfBounds)

	err = d.Dispatch(ctx, "stranger", engine.EndTurn{})
	assert.ErrorIs(t, err, engine.ErrNotInRoom)

	require.NoError(t, rm.Stop(ctx))
	err = d.Dispatch(ctx, "c1", engine.EndTurn{})
	assert.ErrorIs(t, err, engine.ErrNotInRoom, "a retired room reads as not seated")
}

func TestDispatchAction_ResolvesRoomFirst(t *testing.T) {
	d := New(fakeFinder{})
	err := d.DispatchAction(context.Background(), "stranger", "teleport", nil)
	assert.ErrorIs(t, err, engine.ErrNotInRoom)

	err = d.DispatchAction(context.Background(), "stranger", "rollDice", json.RawMessage(`{"sides":"x"}`))
	assert.ErrorIs(t, err, engine.ErrNotInRoom)
}

func TestDispatchAction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := engine.NewState("ABCD-2345", "Aria", "c1", "p-aria", engine.Grid{Width: 20, Height: 20}, time.Now())
	require.NoError(t, err)
	rm := room.New(ctx, st, dice.NewSeeded(5), zap.NewNop())
	d := New(fakeFinder{rooms: map[string]*room.Room{"c1": rm}})

	require.NoError(t, d.DispatchAction(ctx, "c1", "move", json.RawMessage(`{"x":2,"y":3}`)))
	v, err := rm.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.Position{X: 2, Y: 3}, v.Snapshot.Tokens["p-aria"].Position())

	err = d.DispatchAction(ctx, "c1", "teleport", nil)
	assert.ErrorIs(t, err, engine.ErrUnknownAction)
}

func TestDispatch_FinderError(t *testing.T) {
	boom := errors.New("registry down")
	d := New(fakeFinder{err: boom})
	err := d.Dispatch(context.Background(), "c1", engine.EndTurn{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, CodeInternal, Code(err))
}
