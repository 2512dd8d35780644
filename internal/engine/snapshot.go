package engine

import "maps"

type PlayerView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	IsOwner   bool     `json:"isOwner"`
	Position  Position `json:"position"`
	TurnOrder int      `json:"turnOrder"`
}

type PlayerSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is the full broadcast view of a room. It shares no memory with
// the State it was taken from.
type Snapshot struct {
	RoomID           string           `json:"roomId"`
	RoomName         string           `json:"roomName"`
	Players          []PlayerView     `json:"players"`
	CurrentTurnIndex int              `json:"currentTurnIndex"`
	CurrentPlayer    *PlayerSummary   `json:"currentPlayer"`
	Grid             Grid             `json:"grid"`
	Tokens           map[string]Token `json:"tokens"`
}

func (s *State) Snapshot() Snapshot {
	players := make([]PlayerView, 0, len(s.Roster))
	for _, p := range s.Roster {
		players = append(players, PlayerView{
			ID:        p.ID,
			Name:      p.DisplayName,
			IsOwner:   p.IsOwner,
			Position:  s.Tokens[p.ID].Position(),
			TurnOrder: p.TurnOrder,
		})
	}

	snap := Snapshot{
		RoomID:           s.ID,
		RoomName:         s.Name,
		Players:          players,
		CurrentTurnIndex: s.TurnIndex,
		Grid:             s.Grid,
		Tokens:           maps.Clone(s.Tokens),
	}
	if cur, ok := s.CurrentPlayer(); ok {
		snap.CurrentPlayer = &PlayerSummary{ID: cur.ID, Name: cur.DisplayName}
	}
	return snap
}
