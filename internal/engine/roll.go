package engine

import "math/rand/v2"

// Dice is one roll of two six-sided dice. The first die is always >= the second.
type Dice [2]int

// Value concatenates the two dice into a two-digit score, e.g. (4,2) -> 42.
func (d Dice) Value() int {
	return d[0]*10 + d[1]
}

// NewDice orders two die values so the higher one comes first.
func NewDice(a, b int) Dice {
	if a < b {
		a, b = b, a
	}
	return Dice{a, b}
}

// Roller produces a roll for each attempt. Rooms take one so tests can script the dice.
type Roller interface {
	Roll() Dice
}

// RollerFunc adapts a plain function to Roller.
type RollerFunc func() Dice

func (f RollerFunc) Roll() Dice { return f() }

// RandomRoller rolls two independent uniform dice.
var RandomRoller Roller = RollerFunc(GenerateRoll)

// GenerateRoll rolls two dice. The first die will always be equal to or greater than the second.
func GenerateRoll() Dice {
	return NewDice(rand.IntN(6)+1, rand.IntN(6)+1)
}
