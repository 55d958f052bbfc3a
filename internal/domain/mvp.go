package domain

import "math"

// AwardKind tells which MVP branch produced an award.
type AwardKind string

const (
	AwardBonus       AwardKind = "bonus"       // winning-group MVP, amplified by avatar bonus
	AwardRefund      AwardKind = "refund"      // losing-group MVP, capped refund of the debit
	AwardConsolation AwardKind = "consolation" // tie, flat amount
)

// MvpAward is one MVP selection. Unique per (BattleID, ParticipantID).
type MvpAward struct {
	BattleID      string
	ParticipantID string
	Group         string
	Kind          AwardKind
	Base          int // win amount, refunded debit or consolation constant
	Bonus         int // avatar amplification on top of Base (bonus kind only)
	BonusPct      int
	Points        int // Base + Bonus
}

// MVPInput feeds EvaluateMVP.
type MVPInput struct {
	BattleID      string
	Mode          Mode
	Tallies       Tallies
	Outcome       Outcome
	Apportionment Apportionment
	BonusPct      map[string]int // avatar bonus in [0,100]
	Rules         Rules
}

// EvaluateMVP selects MVP participants and prices their awards.
//
// Only grouped modes have an MVP flow; duels never award MVPs. Inside each
// group the eligible members are those with a success rate of at least
// Rules.MVPMinSuccessRate and at least one success; every eligible member tied
// at the group's best success count is an MVP.
func EvaluateMVP(in MVPInput) []MvpAward {
	if !in.Mode.Grouped() {
		return nil
	}

	var awards []MvpAward
	for _, g := range in.Tallies.Groups {
		for _, id := range groupMVPs(g, in.Tallies, in.Rules.MVPMinSuccessRate) {
			award := MvpAward{BattleID: in.BattleID, ParticipantID: id, Group: g.Name}
			switch {
			case in.Outcome.IsTie:
				award.Kind = AwardConsolation
				award.Base = max(0, in.Rules.ConsolationPoints)
			case g.Name == in.Outcome.WinningGroup:
				pct := ClampBonusPct(in.BonusPct[id])
				award.Kind = AwardBonus
				award.BonusPct = pct
				award.Base = in.Apportionment.Credits[id]
				award.Bonus = AmplifiedAward(award.Base, pct) - award.Base
			default:
				award.Kind = AwardRefund
				award.Base = min(in.Apportionment.Debits[id], max(0, in.Rules.RefundCap))
			}
			award.Points = award.Base + award.Bonus
			awards = append(awards, award)
		}
	}
	return awards
}

// groupMVPs returns the eligible members of g tied at the best success count,
// in group order.
func groupMVPs(g GroupTally, t Tallies, minRate float64) []string {
	best := 0
	var eligible []string
	for _, id := range g.Members {
		tally := t.Of(id)
		if tally.Successes <= 0 || tally.SuccessRate() < minRate {
			continue
		}
		eligible = append(eligible, id)
		best = max(best, tally.Successes)
	}

	var mvps []string
	for _, id := range eligible {
		if t.Of(id).Successes == best {
			mvps = append(mvps, id)
		}
	}
	return mvps
}

// AmplifiedAward returns round(base × (1 + pct/100)).
func AmplifiedAward(base, pct int) int {
	return int(math.Round(float64(base) * (1 + float64(pct)/100)))
}

// ClampBonusPct keeps an avatar bonus inside [0,100].
func ClampBonusPct(pct int) int {
	return min(100, max(0, pct))
}
