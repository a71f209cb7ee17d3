package rules

import "github.com/meldtable/meldtable/internal/game/domain/event"

// RoundOutcome is the result of the authoritative scoring function.
type RoundOutcome struct {
	Result   event.RoundResult
	WinnerID string
	Points   int
}

// ScoreRound is the single authoritative scoring function. It is called
// exactly once per round, at lay-off resolution, before the round.ended
// event is appended; every other component reads the recorded outcome.
//
//   - gin: gin bonus plus the defender's remaining deadwood, to the knocker
//   - knock below the defender: the difference, to the knocker
//   - defender at or below the knocker: undercut bonus plus the difference,
//     to the defender
func ScoreRound(knockerID, defenderID string, knockerDeadwood, defenderDeadwood int, gin bool) RoundOutcome {
	if gin {
		return RoundOutcome{
			Result:   event.RoundResultGin,
			WinnerID: knockerID,
			Points:   GinBonus + defenderDeadwood,
		}
	}
	if knockerDeadwood < defenderDeadwood {
		return RoundOutcome{
			Result:   event.RoundResultKnock,
			WinnerID: knockerID,
			Points:   defenderDeadwood - knockerDeadwood,
		}
	}
	return RoundOutcome{
		Result:   event.RoundResultUndercut,
		WinnerID: defenderID,
		Points:   UndercutBonus + (knockerDeadwood - defenderDeadwood),
	}
}
