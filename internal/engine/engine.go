package engine

import (
	"errors"
	"slices"
	"strings"
	"time"
)

var ErrPlayerExists = errors.New("Player already exists")
var ErrAlreadyJoined = errors.New("You already joined this game!")
var ErrInvalidName = errors.New("Name is required.")
var ErrNotAPlayer = errors.New("You aren't a player in this game!")
var ErrNotYourTurn = errors.New("Not your turn!")
var ErrNoCurrentRoll = errors.New("No current roll.")
var ErrRollInProgress = errors.New("A roll is already in progress.")
var ErrRoundInProgress = errors.New("The round isn't over yet.")
var ErrNoRollPending = errors.New("no roll pending")
var ErrUnsupportedCommand = errors.New("unsupported command")

// DefaultMaxRolls is the attempt cap every round starts with.
const DefaultMaxRolls = 3

type Player struct {
	Name   string
	ConnID string
	// Roll is the finished roll for this round, nil until the player's turn ends.
	Roll      *Dice
	RollCount int
	Rolling   bool
}

func (p Player) Finished() bool { return p.Roll != nil }

// RollValue is the two-digit score of the finished roll, 0 if there is none.
func (p Player) RollValue() int {
	if p.Roll == nil {
		return 0
	}
	return p.Roll.Value()
}

type State struct {
	Players    []Player
	MaxRolls   int
	LowestRoll int // 0 until someone finishes
	RoundOver  bool

	// Resolving is true while a roll is in flight. PendingConnID is the roller.
	Resolving     bool
	PendingConnID string

	CurrentRoll   *Dice
	CurrentRollAt time.Time
}

type CommandType string

const (
	CmdJoin        CommandType = "Join"
	CmdLeave       CommandType = "Leave"
	CmdRoll        CommandType = "Roll"
	CmdResolveRoll CommandType = "ResolveRoll"
	CmdStay        CommandType = "Stay"
	CmdReset       CommandType = "Reset"
)

/*
	CmdJoin        -> EvtPlayerJoined -> (EvtTurnAdvanced | EvtRoundOver)
	CmdLeave       -> EvtPlayerLeft -> (EvtTurnAdvanced | EvtRoundOver)
	CmdRoll        -> EvtRollStarted, the caller schedules CmdResolveRoll after the delay
	CmdResolveRoll -> EvtRolled -> (EvtTurnFinished -> EvtTurnAdvanced | EvtRoundOver)
	                  or EvtRollDiscarded when the roller is gone
	CmdStay        -> EvtTurnFinished -> EvtTurnAdvanced | EvtRoundOver
	CmdReset       -> EvtRoundReset
*/

type Command struct {
	Type   CommandType
	ConnID string
	Name   string    // CmdJoin only
	Dice   Dice      // CmdResolveRoll only
	At     time.Time // stamps CurrentRollAt
}

type EventType string

const (
	EvtPlayerJoined  EventType = "PlayerJoined"
	EvtPlayerLeft    EventType = "PlayerLeft"
	EvtRollStarted   EventType = "RollStarted"
	EvtRolled        EventType = "Rolled"
	EvtRollDiscarded EventType = "RollDiscarded"
	EvtTurnFinished  EventType = "TurnFinished"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtRoundOver     EventType = "RoundOver"
	EvtRoundReset    EventType = "RoundReset"
)

type Event struct {
	Type   EventType
	Player string
	Dice   Dice
}

// Apply runs cmd against s. On error the returned state is s, untouched.
func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s.Clone()

	var events []Event
	var err error

	switch cmd.Type {
	case CmdJoin:
		events, err = newState.join(cmd)
	case CmdLeave:
		events, err = newState.leave(cmd)
	case CmdRoll:
		events, err = newState.beginRoll(cmd)
	case CmdResolveRoll:
		events, err = newState.resolveRoll(cmd)
	case CmdStay:
		events, err = newState.stay(cmd)
	case CmdReset:
		events, err = newState.reset(cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}

	if err != nil {
		return nil, s, err
	}
	return events, newState, nil
}

func (s *State) join(cmd Command) ([]Event, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, ErrInvalidName
	}
	if s.indexByName(cmd.Name) >= 0 {
		return nil, ErrPlayerExists
	}
	if s.indexByConn(cmd.ConnID) >= 0 {
		return nil, ErrAlreadyJoined
	}

	s.Players = append(s.Players, Player{
		Name:    cmd.Name,
		ConnID:  cmd.ConnID,
		Rolling: len(s.Players) == 0,
	})

	events := []Event{{Type: EvtPlayerJoined, Player: cmd.Name}}
	return append(events, s.deriveTurn()...), nil
}

func (s *State) leave(cmd Command) ([]Event, error) {
	idx := s.indexByConn(cmd.ConnID)
	if idx < 0 {
		return nil, ErrNotAPlayer
	}

	name := s.Players[idx].Name
	s.Players = slices.Delete(s.Players, idx, idx+1)

	events := []Event{{Type: EvtPlayerLeft, Player: name}}
	return append(events, s.deriveTurn()...), nil
}

func (s *State) beginRoll(cmd Command) ([]Event, error) {
	if s.Resolving {
		return nil, ErrRollInProgress
	}

	idx, err := s.activePlayer(cmd.ConnID)
	if err != nil {
		return nil, err
	}

	s.Resolving = true
	s.PendingConnID = cmd.ConnID
	s.setCurrentRoll(nil, cmd.At)

	return []Event{{Type: EvtRollStarted, Player: s.Players[idx].Name}}, nil
}

func (s *State) resolveRoll(cmd Command) ([]Event, error) {
	if !s.Resolving {
		return nil, ErrNoRollPending
	}

	connID := s.PendingConnID
	s.Resolving = false
	s.PendingConnID = ""

	// The roller left while the dice were in the air; drop the result.
	idx := s.indexByConn(connID)
	if idx < 0 || !s.Players[idx].Rolling {
		return []Event{{Type: EvtRollDiscarded}}, nil
	}

	dice := cmd.Dice
	s.setCurrentRoll(&dice, cmd.At)
	s.Players[idx].RollCount++

	events := []Event{{Type: EvtRolled, Player: s.Players[idx].Name, Dice: dice}}
	if s.Players[idx].RollCount >= s.MaxRolls {
		events = append(events, s.finishTurn(idx)...)
	}
	return events, nil
}

func (s *State) stay(cmd Command) ([]Event, error) {
	idx, err := s.activePlayer(cmd.ConnID)
	if err != nil {
		return nil, err
	}

	if s.CurrentRoll == nil || s.Players[idx].RollCount == 0 {
		return nil, ErrNoCurrentRoll
	}

	return s.finishTurn(idx), nil
}

func (s *State) reset(cmd Command) ([]Event, error) {
	if s.indexByConn(cmd.ConnID) < 0 {
		return nil, ErrNotAPlayer
	}
	if s.Resolving {
		return nil, ErrRollInProgress
	}
	if !s.RoundOver {
		return nil, ErrRoundInProgress
	}

	starter := max(WorstIndex(s.Players), 0)
	for i := range s.Players {
		s.Players[i].Roll = nil
		s.Players[i].RollCount = 0
		s.Players[i].Rolling = i == starter
	}

	s.LowestRoll = 0
	s.setCurrentRoll(nil, cmd.At)
	s.MaxRolls = DefaultMaxRolls
	s.RoundOver = false

	return []Event{{Type: EvtRoundReset, Player: s.Players[starter].Name}}, nil
}

// activePlayer resolves connID to the player whose turn it is.
func (s *State) activePlayer(connID string) (int, error) {
	idx := s.indexByConn(connID)
	if idx < 0 {
		return -1, ErrNotAPlayer
	}
	if !s.Players[idx].Rolling {
		return -1, ErrNotYourTurn
	}
	return idx, nil
}

func (s *State) setCurrentRoll(d *Dice, at time.Time) {
	s.CurrentRoll = d
	s.CurrentRollAt = at
}

func (s *State) indexByConn(connID string) int {
	return slices.IndexFunc(s.Players, func(p Player) bool { return p.ConnID == connID })
}

func (s *State) indexByName(name string) int {
	return slices.IndexFunc(s.Players, func(p Player) bool { return p.Name == name })
}
