package engine

import (
	"slices"
	"time"
)

type Phase string

const (
	PhaseAwaitingPlayers Phase = "awaiting_players"
	PhaseRoundActive     Phase = "round_active"
	PhaseRoundOver       Phase = "round_over"
)

// RoundResult summarizes a finished round.
type RoundResult struct {
	Room       string
	Loser      string // empty if the losing player already left
	LowestRoll int
	MaxRolls   int
	Players    []string
	FinishedAt time.Time
}

func NewState(now time.Time) State {
	return State{
		Players:       []Player{},
		MaxRolls:      DefaultMaxRolls,
		CurrentRollAt: now,
	}
}

// Clone copies the player list so the result can be mutated or handed to another goroutine.
// Dice pointers are shared; they are never written through.
func (s State) Clone() State {
	c := s
	c.Players = slices.Clone(s.Players)
	if c.Players == nil {
		c.Players = []Player{}
	}
	return c
}

// PlayerName returns the name joined on connID, or "".
func (s State) PlayerName(connID string) string {
	if i := s.indexByConn(connID); i >= 0 {
		return s.Players[i].Name
	}
	return ""
}

func DerivePhase(s State) Phase {
	switch {
	case len(s.Players) == 0:
		return PhaseAwaitingPlayers
	case s.RoundOver:
		return PhaseRoundOver
	default:
		return PhaseRoundActive
	}
}

func Summarize(room string, s State, at time.Time) RoundResult {
	res := RoundResult{
		Room:       room,
		LowestRoll: s.LowestRoll,
		MaxRolls:   s.MaxRolls,
		Players:    make([]string, 0, len(s.Players)),
		FinishedAt: at,
	}
	for _, p := range s.Players {
		res.Players = append(res.Players, p.Name)
		if res.Loser == "" && p.Finished() && p.RollValue() == s.LowestRoll {
			res.Loser = p.Name
		}
	}
	return res
}
