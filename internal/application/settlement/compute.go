package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/alejandrodnm/battlewager/internal/ports"
	"github.com/google/uuid"
)

// Computation is the full result of running the pure stages over one battle.
// Preview and Settle both build it through computeFrom.
type Computation struct {
	Battle        domain.Battle
	Tallies       domain.Tallies
	Outcome       domain.Outcome
	Pool          int
	Apportionment domain.Apportionment
	Awards        []domain.MvpAward
	Deltas        map[string]int // transfer + MVP points per participant
	Balances      map[string]int // balances the debits were capped against
	Complete      bool

	// Set only when the anti-abuse check fired: Deltas and Awards are then
	// zeroed and these keep what would have moved.
	WouldMove  map[string]int
	WouldAward []domain.MvpAward
}

// suppress zeroes the effects of a rate-limited computation so it reports
// exactly what Settle applies.
func (c *Computation) suppress() {
	c.WouldMove, c.WouldAward = c.Deltas, c.Awards
	c.Deltas = make(map[string]int, len(c.Battle.ParticipantIDs))
	for _, id := range c.Battle.ParticipantIDs {
		c.Deltas[id] = 0
	}
	c.Awards = nil
}

// inputs is the snapshot of storage state a computation depends on.
type inputs struct {
	attempts []domain.AttemptEvent
	balances map[string]int
	bonusPct map[string]int
}

// loadInputs reads attempts, balances and avatar bonuses through r.
func loadInputs(ctx context.Context, r ports.SettlementReader, b domain.Battle) (inputs, error) {
	attempts, err := r.GetAttempts(ctx, b.ID)
	if err != nil {
		return inputs{}, fmt.Errorf("load attempts: %w", err)
	}
	balances, err := r.GetParticipantBalances(ctx, b.ParticipantIDs)
	if err != nil {
		return inputs{}, fmt.Errorf("load balances: %w", err)
	}
	bonus, err := r.GetAvatarBonusPct(ctx, b.ParticipantIDs)
	if err != nil {
		return inputs{}, fmt.Errorf("load avatar bonus: %w", err)
	}
	return inputs{attempts: attempts, balances: balances, bonusPct: bonus}, nil
}

// computeFrom loads the inputs of b through r and runs compute.
func computeFrom(ctx context.Context, r ports.SettlementReader, b domain.Battle, rules domain.Rules) (*Computation, error) {
	in, err := loadInputs(ctx, r, b)
	if err != nil {
		return nil, err
	}
	return compute(b, in, rules), nil
}

// compute runs Aggregator → Resolver → Apportioner → Evaluator. No I/O.
func compute(b domain.Battle, in inputs, rules domain.Rules) *Computation {
	tallies := domain.AggregateBattle(b, in.attempts)
	outcome := domain.Resolve(b.Mode, tallies)
	pool := domain.PoolSize(b, outcome, rules.MinPointsPerRep)

	balances := make(map[string]int, len(b.ParticipantIDs))
	for _, id := range b.ParticipantIDs {
		balances[id] = in.balances[id]
	}

	app := domain.Apportion(domain.ApportionInput{
		Pool:      pool,
		WagerMode: !b.RateMode(),
		Wager:     b.WagerAmount,
		Winners:   outcome.Winners,
		Losers:    outcome.Losers,
		Balances:  balances,
	})

	awards := domain.EvaluateMVP(domain.MVPInput{
		BattleID:      b.ID,
		Mode:          b.Mode,
		Tallies:       tallies,
		Outcome:       outcome,
		Apportionment: app,
		BonusPct:      in.bonusPct,
		Rules:         rules,
	})

	return &Computation{
		Battle:        b,
		Tallies:       tallies,
		Outcome:       outcome,
		Pool:          pool,
		Apportionment: app,
		Awards:        awards,
		Deltas:        domain.NetDeltas(b.ParticipantIDs, app, awards),
		Balances:      balances,
		Complete:      tallies.Complete(b.RepetitionTarget),
	}
}

// ledgerEntries turns a computation into the rows a settlement appends: one
// transfer row per non-zero delta and one row per MVP award with points.
func ledgerEntries(c *Computation, now time.Time) []domain.LedgerEntry {
	b := c.Battle
	category := domain.CategoryBattleRate
	if !b.RateMode() {
		category = domain.CategoryBattleWager
	}

	var entries []domain.LedgerEntry
	for _, id := range b.ParticipantIDs {
		delta := c.Apportionment.Deltas[id]
		if delta == 0 {
			continue
		}
		entries = append(entries, domain.LedgerEntry{
			ID:            uuid.New().String(),
			ParticipantID: id,
			Points:        delta,
			Note:          domain.TransferNote(b.ID, delta, !b.RateMode()),
			Category:      category,
			BattleID:      b.ID,
			CreatedAt:     now,
		})
	}
	for _, a := range c.Awards {
		if a.Points <= 0 {
			continue
		}
		entries = append(entries, domain.LedgerEntry{
			ID:            uuid.New().String(),
			ParticipantID: a.ParticipantID,
			Points:        a.Points,
			Note:          domain.AwardNote(a),
			Category:      domain.CategoryBattleMVP,
			BattleID:      b.ID,
			CreatedAt:     now,
		})
	}
	return entries
}

// snapshot derives before/after pairs: after is read post-recompute and
// before = after - delta.
func snapshot(ids []string, after map[string]int, deltas map[string]int) []domain.SnapshotEntry {
	out := make([]domain.SnapshotEntry, 0, len(ids))
	for _, id := range ids {
		d := deltas[id]
		out = append(out, domain.SnapshotEntry{
			ParticipantID: id,
			PointsBefore:  after[id] - d,
			PointsAfter:   after[id],
			Delta:         d,
		})
	}
	return out
}
