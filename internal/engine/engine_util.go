package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	DefaultGridWidth  = 20
	DefaultGridHeight = 20
)

// spawnCells are tried in order for each new token; occupied or
// out-of-grid candidates are skipped.
var spawnCells = []Position{
	{X: 5, Y: 5},
	{X: 10, Y: 10},
	{X: 15, Y: 15},
	{X: 5, Y: 15},
	{X: 15, Y: 5},
}

// NewState builds a room whose sole roster entry is its owner.
func NewState(id, creatorName, connRef, playerID string, grid Grid, now time.Time) (State, error) {
	if grid.Width <= 0 || grid.Height <= 0 {
		grid = Grid{Width: DefaultGridWidth, Height: DefaultGridHeight}
	}
	name := NormalizeName(creatorName)
	s := State{
		ID:        id,
		Name:      name + "'s Game",
		Grid:      grid,
		Tokens:    map[string]Token{},
		CreatedAt: now,
	}
	spawn, ok := s.nextSpawn()
	if !ok {
		return State{}, ErrRoomFull
	}
	s.Roster = []Player{{
		ID:            playerID,
		ConnectionRef: connRef,
		DisplayName:   name,
		IsOwner:       true,
		TurnOrder:     0,
	}}
	s.Tokens[playerID] = Token{PlayerID: playerID, X: spawn.X, Y: spawn.Y, Name: name}
	return s, nil
}

// Clone returns a copy of s that shares no roster or token memory with it.
func (s *State) Clone() State {
	c := *s
	c.Roster = slices.Clone(s.Roster)
	c.Tokens = maps.Clone(s.Tokens)
	return c
}

// NormalizeName trims and NFC-normalizes a display name so visually equal
// names collide.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// AddPlayer joins a player to the room. A name already in the roster is
// always ErrNameTaken, even for the connection that holds it. Otherwise a
// connection already bound to a roster entry is a reconnect: the entry is
// kept and rejoined is true.
func (s *State) AddPlayer(name, connRef, playerID string) (p Player, rejoined bool, err error) {
	name = NormalizeName(name)
	for _, existing := range s.Roster {
		if existing.DisplayName == name {
			return Player{}, false, ErrNameTaken
		}
	}

	if idx, ok := s.PlayerIndexByConnection(connRef); ok {
		s.Roster[idx].ConnectionRef = connRef
		return s.Roster[idx], true, nil
	}

	spawn, ok := s.nextSpawn()
	if !ok {
		return Player{}, false, ErrRoomFull
	}

	p = Player{
		ID:            playerID,
		ConnectionRef: connRef,
		DisplayName:   name,
		TurnOrder:     len(s.Roster),
	}
	s.Roster = append(s.Roster, p)
	s.Tokens[p.ID] = Token{PlayerID: p.ID, X: spawn.X, Y: spawn.Y, Name: name}
	return p, false, nil
}

// RemovePlayer drops the player bound to connRef along with their token.
func (s *State) RemovePlayer(connRef string) (Player, bool) {
	idx, ok := s.PlayerIndexByConnection(connRef)
	if !ok {
		return Player{}, false
	}
	p := s.Roster[idx]
	s.Roster = append(s.Roster[:idx:idx], s.Roster[idx+1:]...)
	delete(s.Tokens, p.ID)
	s.fixTurnAfterRemoval(idx)
	return p, true
}

func (s *State) PlayerIndexByConnection(connRef string) (int, bool) {
	for i, p := range s.Roster {
		if p.ConnectionRef == connRef {
			return i, true
		}
	}
	return -1, false
}

// OccupantAt reports which player's token sits on pos.
func (s *State) OccupantAt(pos Position) (string, bool) {
	for id, t := range s.Tokens {
		if t.Position() == pos {
			return id, true
		}
	}
	return "", false
}

// CheckInvariants reports the first broken room invariant, if any.
func (s *State) CheckInvariants() error {
	if len(s.Roster) > 0 && (s.TurnIndex < 0 || s.TurnIndex >= len(s.Roster)) {
		return fmt.Errorf("%w: turn index %d with %d players", ErrInvariant, s.TurnIndex, len(s.Roster))
	}
	owners := 0
	seen := make(map[Position]string, len(s.Tokens))
	for _, p := range s.Roster {
		if p.IsOwner {
			owners++
		}
		t, ok := s.Tokens[p.ID]
		if !ok {
			return fmt.Errorf("%w: player %s has no token", ErrInvariant, p.ID)
		}
		if !s.Grid.Contains(t.Position()) {
			return fmt.Errorf("%w: token %s outside grid", ErrInvariant, p.ID)
		}
		if other, dup := seen[t.Position()]; dup {
			return fmt.Errorf("%w: tokens %s and %s share a cell", ErrInvariant, other, p.ID)
		}
		seen[t.Position()] = p.ID
	}
	if owners > 1 {
		return fmt.Errorf("%w: %d owners", ErrInvariant, owners)
	}
	return nil
}

func (s *State) nextSpawn() (Position, bool) {
	for _, c := range spawnCells {
		if !s.Grid.Contains(c) {
			continue
		}
		if _, taken := s.OccupantAt(c); !taken {
			return c, true
		}
	}
	for y := 0; y < s.Grid.Height; y++ {
		for x := 0; x < s.Grid.Width; x++ {
			c := Position{X: x, Y: y}
			if _, taken := s.OccupantAt(c); !taken {
				return c, true
			}
		}
	}
	return Position{}, false
}
