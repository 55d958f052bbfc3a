package domain

import (
	"cmp"
	"slices"
)

// ApportionInput is everything the apportioner needs. Balances are the
// participants' current points; missing entries count as 0.
type ApportionInput struct {
	Pool      int
	WagerMode bool
	Wager     int
	Winners   []string
	Losers    []string
	Balances  map[string]int
}

// Apportionment is the signed transfer produced for one battle.
type Apportionment struct {
	Deltas    map[string]int // every winner and loser, zero included
	Debits    map[string]int // positive amounts taken from each loser
	Credits   map[string]int // positive amounts given to each winner
	Collected int
}

// Total returns the sum of all deltas. Always 0.
func (a Apportionment) Total() int {
	total := 0
	for _, d := range a.Deltas {
		total += d
	}
	return total
}

// Apportion moves points from losers to winners.
//
// Debit phase: in rate mode each loser owes floor(pool/|losers|) and the
// remainder goes to the loser with the largest balance; in wager mode each
// loser owes the flat wager (winners get their own stake back, so it never
// leaves them). A debit never exceeds the loser's balance, so the collected
// total may fall short of the pool.
//
// Credit phase: the collected total is split among winners with the same
// floor + remainder-to-largest-balance policy.
//
// With no winners, no losers or a non-positive pool every delta is zero.
func Apportion(in ApportionInput) Apportionment {
	out := Apportionment{
		Deltas:  make(map[string]int, len(in.Winners)+len(in.Losers)),
		Debits:  make(map[string]int, len(in.Losers)),
		Credits: make(map[string]int, len(in.Winners)),
	}
	for _, id := range in.Winners {
		out.Deltas[id] = 0
	}
	for _, id := range in.Losers {
		out.Deltas[id] = 0
	}
	if len(in.Winners) == 0 || len(in.Losers) == 0 || in.Pool <= 0 {
		return out
	}

	var owed map[string]int
	if in.WagerMode {
		owed = make(map[string]int, len(in.Losers))
		for _, id := range in.Losers {
			owed[id] = max(0, in.Wager)
		}
	} else {
		owed = SplitLargestRemainder(in.Pool, in.Losers, in.Balances)
	}

	for _, id := range in.Losers {
		debit := min(owed[id], max(0, in.Balances[id]))
		out.Debits[id] = debit
		out.Deltas[id] = -debit
		out.Collected += debit
	}

	if out.Collected == 0 {
		return out
	}
	for id, credit := range SplitLargestRemainder(out.Collected, in.Winners, in.Balances) {
		out.Credits[id] = credit
		out.Deltas[id] += credit
	}
	return out
}

// SplitLargestRemainder divides total among ids: floor(total/len(ids)) each,
// the leftover units to the id with the largest balance (smallest id on ties).
func SplitLargestRemainder(total int, ids []string, balances map[string]int) map[string]int {
	out := make(map[string]int, len(ids))
	if len(ids) == 0 || total <= 0 {
		return out
	}
	share := total / len(ids)
	rem := total % len(ids)
	for _, id := range ids {
		out[id] = share
	}
	if rem > 0 {
		out[richest(ids, balances)] += rem
	}
	return out
}

// richest picks the id with the largest balance; ties go to the smallest id.
func richest(ids []string, balances map[string]int) string {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b string) int {
		if c := cmp.Compare(balances[b], balances[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return sorted[0]
}
