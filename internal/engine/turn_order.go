package engine

// NextActive returns the index after current in join order, wrapping around.
func NextActive(players []Player, current int) int {
	if len(players) == 0 {
		return -1
	}
	return (current + 1) % len(players)
}

// ActiveIndex returns the index of the player whose turn it is, or -1.
func ActiveIndex(players []Player) int {
	for i, p := range players {
		if p.Rolling {
			return i
		}
	}
	return -1
}

// WorstIndex returns the player holding the worst finished roll, earliest index on ties.
// Players without a finished roll are skipped; -1 if nobody has one.
func WorstIndex(players []Player) int {
	worst := -1
	for i, p := range players {
		if !p.Finished() {
			continue
		}
		if worst < 0 || IsWorse(p.RollValue(), players[worst].RollValue()) {
			worst = i
		}
	}
	return worst
}

// finishTurn ends the turn of the player at idx using the current roll.
func (s *State) finishTurn(idx int) []Event {
	p := &s.Players[idx]
	roll := *s.CurrentRoll

	// First finisher of the round sets the attempt cap for everyone else
	if s.finishedCount() == 0 {
		s.MaxRolls = p.RollCount
	}

	p.Rolling = false
	p.Roll = &roll

	events := []Event{{Type: EvtTurnFinished, Player: p.Name, Dice: roll}}

	if s.LowestRoll == 0 || IsWorse(roll.Value(), s.LowestRoll) {
		s.LowestRoll = roll.Value()
	}

	next := NextActive(s.Players, idx)
	if s.Players[next].Finished() {
		s.RoundOver = true
		return append(events, Event{Type: EvtRoundOver})
	}

	s.Players[next].Rolling = true
	return append(events, Event{Type: EvtTurnAdvanced, Player: s.Players[next].Name})
}

// deriveTurn makes sure someone is rolling after the player list changed.
func (s *State) deriveTurn() []Event {
	if len(s.Players) == 0 || s.RoundOver || ActiveIndex(s.Players) >= 0 {
		return nil
	}

	for i := range s.Players {
		if !s.Players[i].Finished() {
			s.Players[i].Rolling = true
			return []Event{{Type: EvtTurnAdvanced, Player: s.Players[i].Name}}
		}
	}

	s.RoundOver = true
	return []Event{{Type: EvtRoundOver}}
}

func (s *State) finishedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Finished() {
			n++
		}
	}
	return n
}
