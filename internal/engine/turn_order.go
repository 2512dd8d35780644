package engine

import "fmt"

// The turn pointer cycles through the roster for as long as the room lives.
// There is no terminal state and no timeout-based advance.

func (s *State) IsTurnOf(idx int) bool {
	return len(s.Roster) > 0 && idx == s.TurnIndex
}

func (s *State) CurrentPlayer() (Player, bool) {
	if s.TurnIndex < 0 || s.TurnIndex >= len(s.Roster) {
		return Player{}, false
	}
	return s.Roster[s.TurnIndex], true
}

// EndTurn advances the pointer when called by the roster entry that holds
// the turn.
func (s *State) EndTurn(idx int) error {
	if len(s.Roster) == 0 {
		return fmt.Errorf("%w: end turn on empty roster", ErrInvariant)
	}
	if !s.IsTurnOf(idx) {
		return ErrNotYourTurn
	}
	s.TurnIndex = (s.TurnIndex + 1) % len(s.Roster)
	return nil
}

// fixTurnAfterRemoval wraps the pointer after the roster entry at removed
// was deleted.
func (s *State) fixTurnAfterRemoval(removed int) {
	if len(s.Roster) == 0 {
		s.TurnIndex = 0
		return
	}
	if removed <= s.TurnIndex && s.TurnIndex >= len(s.Roster) {
		s.TurnIndex = 0
	}
}
