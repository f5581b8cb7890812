package achievementservice

import (
	achievementdb "github.com/frontline-stats/sitrep/app/modules/achievement/infrastructure/repositories"
)

// Achievement codes. Round-scoped codes can be earned once per round;
// one-time codes are earned once per player, ever.
const (
	CodeFirstBlood  = "first_blood"
	CodeRampage     = "rampage"
	CodeUntouchable = "untouchable"
	CodeMarathon    = "marathon"
	CodeVeteran100  = "veteran_100"
	CodeVeteran500  = "veteran_500"
)

const (
	rampageKills        = 30
	untouchableKills    = 10
	untouchableRatio    = 5.0
	marathonPlayMinutes = 120.0
	veteran100Rounds    = 100
	veteran500Rounds    = 500
)

// evaluateRules returns the achievement rows a participant earned in one
// round. One-time rules fire on every qualifying round and rely on the
// sentinel row to stay single: a threshold reached while the processor was
// down is still awarded on the next scanned round.
func evaluateRules(round achievementdb.CompletedRound, p achievementdb.RoundParticipantStats) []*achievementdb.PlayerAchievement {
	var earned []*achievementdb.PlayerAchievement

	roundScoped := func(code string, value int) {
		earned = append(earned, &achievementdb.PlayerAchievement{
			PlayerName: p.PlayerName,
			Code:       code,
			RoundID:    round.RoundID,
			Value:      value,
			EarnedAt:   round.EndTime,
		})
	}
	oneTime := func(code string, value int) {
		earned = append(earned, &achievementdb.PlayerAchievement{
			PlayerName: p.PlayerName,
			Code:       code,
			Value:      value,
			EarnedAt:   round.EndTime,
		})
	}

	if p.Kills >= rampageKills {
		roundScoped(CodeRampage, p.Kills)
	}
	if p.Kills >= untouchableKills && (p.Deaths == 0 || float64(p.Kills)/float64(p.Deaths) >= untouchableRatio) {
		roundScoped(CodeUntouchable, p.Kills)
	}
	if p.PlayMinutes >= marathonPlayMinutes {
		roundScoped(CodeMarathon, int(p.PlayMinutes))
	}

	if p.RoundsThrough >= 1 {
		oneTime(CodeFirstBlood, 1)
	}
	if p.RoundsThrough >= veteran100Rounds {
		oneTime(CodeVeteran100, p.RoundsThrough)
	}
	if p.RoundsThrough >= veteran500Rounds {
		oneTime(CodeVeteran500, p.RoundsThrough)
	}

	return earned
}
