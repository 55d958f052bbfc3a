package domain

import (
	"slices"
)

// Outcome is the resolved result of a battle before any points move.
type Outcome struct {
	Winners      []string // empty = tie / no winner
	Losers       []string // participants - winners, participant order
	Lead         int
	IsTie        bool
	WinningGroup string // grouped modes only
	TopScore     int
	RunnerUp     int
}

// HasWinner reports whether the battle produced a winner set.
func (o Outcome) HasWinner() bool {
	return len(o.Winners) > 0
}

// IsWinner reports whether id belongs to the winner set.
func (o Outcome) IsWinner(id string) bool {
	return slices.Contains(o.Winners, id)
}

// Resolve determines the winner set and the lead.
//
//   - duel: ranked by successes; a single participant at the top score wins.
//   - teams/lanes: ranked by group sums; a single group at the top score wins
//     and all of its members are winners.
//
// Any tie at the top yields an empty winner set.
func Resolve(mode Mode, t Tallies) Outcome {
	if mode.Grouped() {
		return resolveGroups(t)
	}
	return resolveDuel(t)
}

func resolveDuel(t Tallies) Outcome {
	scores := make([]int, 0, len(t.Participants))
	for _, id := range t.Participants {
		scores = append(scores, t.ByParticipant[id].Successes)
	}
	top, second, atTop := topTwo(scores)

	out := Outcome{TopScore: top, RunnerUp: second, Lead: max(0, top-second)}
	if atTop == 1 {
		for _, id := range t.Participants {
			if t.ByParticipant[id].Successes == top {
				out.Winners = []string{id}
				break
			}
		}
	}
	return finish(out, t.Participants)
}

func resolveGroups(t Tallies) Outcome {
	scores := make([]int, 0, len(t.Groups))
	for _, g := range t.Groups {
		scores = append(scores, g.Successes)
	}
	top, second, atTop := topTwo(scores)

	out := Outcome{TopScore: top, RunnerUp: second}
	if len(t.Groups) >= 2 {
		out.Lead = max(0, top-second)
	}
	if atTop == 1 && len(t.Groups) >= 2 {
		for _, g := range t.Groups {
			if g.Successes == top {
				out.WinningGroup = g.Name
				out.Winners = append([]string(nil), g.Members...)
				break
			}
		}
	}
	return finish(out, t.Participants)
}

// topTwo returns the best and second-best scores (0 when absent) and how many
// entries share the best score.
func topTwo(scores []int) (top, second, atTop int) {
	if len(scores) == 0 {
		return 0, 0, 0
	}
	sorted := slices.Clone(scores)
	slices.SortFunc(sorted, func(a, b int) int { return b - a })
	top = sorted[0]
	if len(sorted) > 1 {
		second = sorted[1]
	}
	for _, s := range sorted {
		if s == top {
			atTop++
		}
	}
	return top, second, atTop
}

func finish(out Outcome, participants []string) Outcome {
	out.IsTie = len(out.Winners) == 0
	for _, id := range participants {
		if !slices.Contains(out.Winners, id) {
			out.Losers = append(out.Losers, id)
		}
	}
	return out
}

// PoolSize returns the number of points at stake.
//
//	rate mode:  lead × max(points_per_rep, minPPR) × |losers|
//	wager mode: wager_amount × |participants|
//
// A tie always sizes the pool at zero.
func PoolSize(b Battle, o Outcome, minPPR int) int {
	if o.IsTie || !o.HasWinner() {
		return 0
	}
	if b.RateMode() {
		return o.Lead * b.EffectivePointsPerRep(minPPR) * len(o.Losers)
	}
	return b.WagerAmount * len(b.ParticipantIDs)
}
