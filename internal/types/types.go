package types

import (
	"encoding/json"
	"time"

	"github.com/DoyleJ11/oldmex-backend/internal/engine"
	"github.com/DoyleJ11/oldmex-backend/internal/room"
)

const (
	TypeJoin  = "join"
	TypeRoll  = "roll"
	TypeStay  = "stay"
	TypeReset = "reset"
)

// ClientMessage is one inbound action.
type ClientMessage struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Name string `json:"name,omitempty"` // join only
}

type PlayerMessage struct {
	Name      string  `json:"name"`
	Roll      *[2]int `json:"roll,omitempty"`
	RollValue int     `json:"rollValue,omitempty"`
	RollCount int     `json:"rollCount"`
	Rolling   bool    `json:"rolling"`
}

// SnapshotMessage is the room state as seen by one client.
type SnapshotMessage struct {
	You                  string          `json:"you"`
	Name                 string          `json:"name"`
	RoundOver            bool            `json:"roundOver"`
	Rolling              bool            `json:"rolling"`
	CurrentRoll          *[2]int         `json:"currentRoll"`
	CurrentRollTimestamp time.Time       `json:"currentRollTimestamp"`
	LowestRoll           int             `json:"lowestRoll"`
	MaxRolls             int             `json:"maxRolls"`
	Players              []PlayerMessage `json:"players"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}

// CommandType maps a non-join action to its engine command.
func CommandType(msgType string) (engine.CommandType, bool) {
	switch msgType {
	case TypeRoll:
		return engine.CmdRoll, true
	case TypeStay:
		return engine.CmdStay, true
	case TypeReset:
		return engine.CmdReset, true
	default:
		return "", false
	}
}

func NewSnapshotMessage(you string, snap room.Snapshot) SnapshotMessage {
	s := snap.State
	msg := SnapshotMessage{
		You:                  you,
		Name:                 snap.Room,
		RoundOver:            s.RoundOver,
		Rolling:              s.Resolving,
		CurrentRoll:          diceArray(s.CurrentRoll),
		CurrentRollTimestamp: s.CurrentRollAt.UTC(),
		LowestRoll:           s.LowestRoll,
		MaxRolls:             s.MaxRolls,
		Players:              make([]PlayerMessage, 0, len(s.Players)),
	}

	for _, p := range s.Players {
		msg.Players = append(msg.Players, PlayerMessage{
			Name:      p.Name,
			Roll:      diceArray(p.Roll),
			RollValue: p.RollValue(),
			RollCount: p.RollCount,
			Rolling:   p.Rolling,
		})
	}
	return msg
}

func diceArray(d *engine.Dice) *[2]int {
	if d == nil {
		return nil
	}
	a := [2]int(*d)
	return &a
}

func EncodeSnapshot(you string, snap room.Snapshot) ([]byte, error) {
	return json.Marshal(NewSnapshotMessage(you, snap))
}

func EncodeError(err error) []byte {
	payload, _ := json.Marshal(ErrorMessage{Error: err.Error()})
	return payload
}
