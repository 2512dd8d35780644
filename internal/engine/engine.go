package engine

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/tabletop-backend/internal/dice"
)

var ErrNotFound = errors.New("room not found")
var ErrNameTaken = errors.New("player name already taken")
var ErrNotInRoom = errors.New("player not in any room")
var ErrPlayerNotFound = errors.New("player not found")
var ErrNotYourTurn = errors.New("not your turn")
var ErrOutOfBounds = errors.New("coordinates out of bounds")
var ErrCellOccupied = errors.New("position already occupied")
var ErrInvalidDieType = errors.New("invalid dice type")
var ErrInvalidCount = errors.New("dice count must be between 1 and 10")
var ErrUnknownAction = errors.New("unknown action")
var ErrRoomFull = errors.New("room is full")

// ErrInvariant marks a programming error detected before a mutation was
// written. The room state is left as it was.
var ErrInvariant = errors.New("room invariant violated")

// AllowedDieSides lists the die types a player may roll.
var AllowedDieSides = []int{4, 6, 8, 10, 12, 20}

const MaxDiceCount = 10

type ActionKind string

const (
	ActionMove     ActionKind = "move"
	ActionRollDice ActionKind = "rollDice"
	ActionEndTurn  ActionKind = "endTurn"
	ActionChat     ActionKind = "chat"
)

// Command is the closed set of actions a player can apply to a room.
type Command interface {
	Kind() ActionKind
	isCommand()
}

type Move struct {
	X int
	Y int
}

type RollDice struct {
	Sides int
	Count int
}

type EndTurn struct{}

// Chat is a pass-through message. Its text is validated at the transport
// boundary.
type Chat struct {
	Text string
}

func (Move) Kind() ActionKind     { return ActionMove }
func (RollDice) Kind() ActionKind { return ActionRollDice }
func (EndTurn) Kind() ActionKind  { return ActionEndTurn }
func (Chat) Kind() ActionKind     { return ActionChat }

func (Move) isCommand()     {}
func (RollDice) isCommand() {}
func (EndTurn) isCommand()  {}
func (Chat) isCommand()     {}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Grid struct {
	Width  int `json:"mapWidth"`
	Height int `json:"mapHeight"`
}

func (g Grid) Contains(p Position) bool {
	return p.X >= 0 && p.X < g.Width && p.Y >= 0 && p.Y < g.Height
}

type Player struct {
	ID            string
	ConnectionRef string
	DisplayName   string
	IsOwner       bool
	TurnOrder     int
}

type Token struct {
	PlayerID string `json:"playerId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Name     string `json:"name"`
}

func (t Token) Position() Position { return Position{X: t.X, Y: t.Y} }

// State is the authoritative model of one room. Roster order is join order
// and turn order.
type State struct {
	ID        string
	Name      string
	Roster    []Player
	TurnIndex int
	Grid      Grid
	Tokens    map[string]Token
	CreatedAt time.Time
}

type NoticeKind string

const (
	NoticeSystem   NoticeKind = "system"
	NoticeChat     NoticeKind = "chat"
	NoticeDiceRoll NoticeKind = "diceRoll"
)

// DiceRoll is the broadcast record of one roll. It is never stored beyond
// the room's bounded notice log.
type DiceRoll struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	DieLabel   string `json:"dieLabel"`
	Count      int    `json:"count"`
	Rolls      []int  `json:"rolls"`
	Total      int    `json:"total"`
}

type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Text      string     `json:"text,omitempty"`
	Sender    string     `json:"sender,omitempty"`
	*DiceRoll
	Timestamp int64 `json:"timestamp"`
}

// Effect is what a successful action produces for broadcast. Snapshot is nil
// when the action did not change roster, positions or the turn pointer.
type Effect struct {
	Snapshot *Snapshot
	Notices  []Notice
}

// Roller is the server-side source of dice outcomes.
type Roller interface {
	Roll(sides, count int) (dice.Result, error)
}

// Apply validates cmd on behalf of the player bound to connRef and, on
// success, mutates s. Every check runs before the first write so a failed
// action leaves s untouched.
func Apply(s *State, connRef string, cmd Command, roller Roller, now time.Time) (Effect, error) {
	idx, ok := s.PlayerIndexByConnection(connRef)
	if !ok {
		return Effect{}, ErrPlayerNotFound
	}
	player := s.Roster[idx]
	ts := now.UnixMilli()

	switch c := cmd.(type) {
	case Move:
		if !s.IsTurnOf(idx) {
			return Effect{}, ErrNotYourTurn
		}
		target := Position{X: c.X, Y: c.Y}
		if !s.Grid.Contains(target) {
			return Effect{}, ErrOutOfBounds
		}
		if occupant, taken := s.OccupantAt(target); taken && occupant != player.ID {
			return Effect{}, ErrCellOccupied
		}
		token, ok := s.Tokens[player.ID]
		if !ok {
			return Effect{}, fmt.Errorf("%w: player %s has no token", ErrInvariant, player.ID)
		}

		token.X, token.Y = c.X, c.Y
		s.Tokens[player.ID] = token

		snap := s.Snapshot()
		return Effect{
			Snapshot: &snap,
			Notices: []Notice{
				SystemNotice(fmt.Sprintf("%s moved to (%d, %d)", player.DisplayName, c.X, c.Y), ts),
			},
		}, nil

	case RollDice:
		// Rolls are narrative, any participant may roll at any time.
		if !slices.Contains(AllowedDieSides, c.Sides) {
			return Effect{}, fmt.Errorf("%w: d%d", ErrInvalidDieType, c.Sides)
		}
		if c.Count < 1 || c.Count > MaxDiceCount {
			return Effect{}, ErrInvalidCount
		}
		result, err := roller.Roll(c.Sides, c.Count)
		if err != nil {
			return Effect{}, fmt.Errorf("%w: roll d%d: %v", ErrInvariant, c.Sides, err)
		}

		roll := &DiceRoll{
			PlayerID:   player.ID,
			PlayerName: player.DisplayName,
			DieLabel:   DieLabel(c.Sides),
			Count:      c.Count,
			Rolls:      result.Rolls,
			Total:      result.Total,
		}
		return Effect{
			Notices: []Notice{
				{Kind: NoticeDiceRoll, DiceRoll: roll, Timestamp: ts},
				SystemNotice(fmt.Sprintf("%s rolled %d%s: [%s] = %d",
					player.DisplayName, c.Count, roll.DieLabel, joinInts(result.Rolls), result.Total), ts),
			},
		}, nil

	case EndTurn:
		if err := s.EndTurn(idx); err != nil {
			return Effect{}, err
		}
		next, _ := s.CurrentPlayer()
		snap := s.Snapshot()
		return Effect{
			Snapshot: &snap,
			Notices:  []Notice{SystemNotice(next.DisplayName+"'s turn", ts)},
		}, nil

	case Chat:
		return Effect{
			Notices: []Notice{{Kind: NoticeChat, Sender: player.DisplayName, Text: c.Text, Timestamp: ts}},
		}, nil

	default:
		return Effect{}, fmt.Errorf("%w: %T", ErrUnknownAction, cmd)
	}
}

func SystemNotice(text string, ts int64) Notice {
	return Notice{Kind: NoticeSystem, Text: text, Timestamp: ts}
}

func DieLabel(sides int) string {
	return "d" + strconv.Itoa(sides)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
