package engine

// OldMex is the best possible score. It outranks every double and every plain score.
const OldMex = 21

// IsDouble reports whether both digits of a two-digit score are equal.
func IsDouble(score int) bool {
	return score/10 == score%10
}

// IsWorse reports whether scoreA ranks below scoreB.
//
// Ranking, highest first: 21, then doubles by value (66 > 55 > ... > 11),
// then every other score by value.
func IsWorse(scoreA, scoreB int) bool {
	switch {
	case scoreA == scoreB:
		return false
	case scoreA == OldMex:
		return false
	case scoreB == OldMex:
		// Every other score loses to 21; answering false here would break transitivity.
		return true
	}

	doubleA, doubleB := IsDouble(scoreA), IsDouble(scoreB)
	if doubleA != doubleB {
		// A plain score is always worse than a double
		return doubleB
	}

	return scoreA < scoreB
}
