package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/alejandrodnm/battlewager/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/alejandrodnm/battlewager/internal/application/settlement")

const (
	defaultAbuseThreshold = 20
	defaultAbuseWindow    = 24 * time.Hour
)

// Config holds the settlement engine settings.
type Config struct {
	// AbuseThreshold is the number of reps one operator may log for a single
	// participant inside AbuseWindow before monetary effects are suppressed.
	// <= 0 disables the check.
	AbuseThreshold int
	AbuseWindow    time.Duration
	Rules          domain.Rules
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		AbuseThreshold: defaultAbuseThreshold,
		AbuseWindow:    defaultAbuseWindow,
		Rules:          domain.DefaultRules(),
	}
}

// SettleResult reports what a Settle call did.
type SettleResult struct {
	BattleID       string
	Settled        bool
	AlreadySettled bool
	RateLimited    bool // settled, but no ledger or MVP rows were written
	Computation    *Computation
	Entries        []domain.LedgerEntry
	Snapshot       []domain.SnapshotEntry
}

// PreviewResult is what Settle would do if it ran now.
type PreviewResult struct {
	*Computation
	Settled     bool
	RateLimited bool
}

// Engine settles battles and projects previews over the same computation.
type Engine struct {
	store ports.SettlementStore
	cfg   Config
	now   func() time.Time
}

// New creates a settlement engine.
func New(store ports.SettlementStore, cfg Config) *Engine {
	if cfg.AbuseWindow <= 0 {
		cfg.AbuseWindow = defaultAbuseWindow
	}
	if cfg.Rules.MinPointsPerRep <= 0 {
		cfg.Rules.MinPointsPerRep = domain.MinPointsPerRep
	}
	return &Engine{store: store, cfg: cfg, now: time.Now}
}

// Settle commits the battle's settlement exactly once. A battle that is
// already settled returns AlreadySettled without touching anything; a battle
// with a participant below the repetition target fails with domain.ErrIncomplete.
// Every write happens inside a single storage transaction.
func (e *Engine) Settle(ctx context.Context, battleID, operatorID string) (res *SettleResult, err error) {
	ctx, span := tracer.Start(ctx, "settlement.Settle", trace.WithAttributes(
		attribute.String("battle.id", battleID),
		attribute.String("operator.id", operatorID),
	))
	defer func() { endSpan(span, res, err) }()

	if battleID == "" {
		return nil, fmt.Errorf("settlement.Settle: %w: empty battle id", domain.ErrInvalidBattle)
	}

	res = &SettleResult{BattleID: battleID}
	err = e.store.WithinTx(ctx, func(tx ports.SettlementTx) error {
		battle, err := tx.GetBattle(ctx, battleID)
		if err != nil {
			return err
		}
		if battle.IsSettled() {
			res.AlreadySettled = true
			return nil
		}
		if err := battle.Validate(); err != nil {
			return err
		}

		comp, err := computeFrom(ctx, tx, battle, e.cfg.Rules)
		if err != nil {
			return err
		}
		if !comp.Complete {
			return fmt.Errorf("%w: %v below %d attempts",
				domain.ErrIncomplete, comp.Tallies.Missing(battle.RepetitionTarget), battle.RepetitionTarget)
		}
		res.Computation = comp

		limited, err := e.rateLimited(ctx, tx, operatorID, battle.ParticipantIDs)
		if err != nil {
			return err
		}
		res.RateLimited = limited

		now := e.now().UTC()
		if limited {
			comp.suppress()
		} else {
			res.Entries = ledgerEntries(comp, now)
			if err := e.apply(ctx, tx, battle, res.Entries, comp.Awards); err != nil {
				return err
			}
		}

		after, err := tx.GetParticipantBalances(ctx, battle.ParticipantIDs)
		if err != nil {
			return fmt.Errorf("read balances after recompute: %w", err)
		}
		res.Snapshot = snapshot(battle.ParticipantIDs, after, comp.Deltas)

		record := domain.SettlementRecord{
			BattleID:    battle.ID,
			SettledAt:   now,
			Winners:     comp.Outcome.Winners,
			Lead:        comp.Outcome.Lead,
			Pool:        comp.Pool,
			RateLimited: limited,
			Snapshot:    res.Snapshot,
		}
		if battle.Mode == domain.ModeDuel && len(comp.Outcome.Winners) == 1 {
			record.WinnerID = comp.Outcome.Winners[0]
		}
		if err := tx.MarkSettled(ctx, record); err != nil {
			return err
		}
		res.Settled = true
		return nil
	})

	if errors.Is(err, domain.ErrAlreadySettled) {
		slog.Info("settlement: lost settle race, already settled", "battle", battleID)
		return &SettleResult{BattleID: battleID, AlreadySettled: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settlement.Settle %s: %w", battleID, err)
	}

	switch {
	case res.AlreadySettled:
		slog.Info("settlement: already settled, nothing applied", "battle", battleID)
	case res.RateLimited:
		slog.Warn("settlement: monetary effects suppressed by anti-abuse check",
			"battle", battleID, "operator", operatorID, "threshold", e.cfg.AbuseThreshold)
	default:
		slog.Info("settlement: settled",
			"battle", battleID,
			"operator", operatorID,
			"winners", res.Computation.Outcome.Winners,
			"pool", res.Computation.Pool,
			"collected", res.Computation.Apportionment.Collected,
			"mvps", len(res.Computation.Awards),
			"ledger_rows", len(res.Entries),
		)
	}
	return res, nil
}

// endSpan records the outcome of a Settle call on its span.
func endSpan(span trace.Span, res *SettleResult, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if res != nil {
		span.SetAttributes(
			attribute.Bool("settlement.settled", res.Settled),
			attribute.Bool("settlement.already_settled", res.AlreadySettled),
			attribute.Bool("settlement.rate_limited", res.RateLimited),
			attribute.Int("settlement.ledger_rows", len(res.Entries)),
		)
	}
	span.End()
}

// apply writes the ledger batch, recomputes every participant's balance and
// records the MVP set.
func (e *Engine) apply(ctx context.Context, tx ports.SettlementTx, b domain.Battle, entries []domain.LedgerEntry, awards []domain.MvpAward) error {
	if len(entries) > 0 {
		if err := tx.AppendLedgerEntries(ctx, entries); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
	}
	for _, id := range b.ParticipantIDs {
		if err := tx.RecomputeBalance(ctx, id); err != nil {
			return fmt.Errorf("recompute balance %s: %w", id, err)
		}
	}
	if len(awards) > 0 {
		if err := tx.UpsertMvpAwards(ctx, awards); err != nil {
			return fmt.Errorf("upsert mvp awards: %w", err)
		}
	}
	return nil
}

// Preview runs the settlement computation against live data without writing.
// It does not require the battle to be complete nor unsettled. It reports
// whether Settle by operatorID would be rate limited and, if so, zero deltas
// with the suppressed transfer in WouldMove.
func (e *Engine) Preview(ctx context.Context, battleID, operatorID string) (*PreviewResult, error) {
	ctx, span := tracer.Start(ctx, "settlement.Preview", trace.WithAttributes(attribute.String("battle.id", battleID)))
	defer span.End()

	battle, err := e.store.GetBattle(ctx, battleID)
	if err != nil {
		return nil, fmt.Errorf("settlement.Preview %s: %w", battleID, err)
	}
	if err := battle.Validate(); err != nil {
		return nil, fmt.Errorf("settlement.Preview %s: %w", battleID, err)
	}

	comp, err := computeFrom(ctx, e.store, battle, e.cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("settlement.Preview %s: %w", battleID, err)
	}
	limited, err := e.rateLimited(ctx, e.store, operatorID, battle.ParticipantIDs)
	if err != nil {
		return nil, fmt.Errorf("settlement.Preview %s: %w", battleID, err)
	}
	if limited {
		comp.suppress()
	}

	return &PreviewResult{Computation: comp, Settled: battle.IsSettled(), RateLimited: limited}, nil
}

// rateLimited applies the anti-abuse check for operatorID. An empty operator
// is counted as its own identity.
func (e *Engine) rateLimited(ctx context.Context, rc ports.RepCounter, operatorID string, participants []string) (bool, error) {
	if e.cfg.AbuseThreshold <= 0 {
		return false, nil
	}
	since := e.now().Add(-e.cfg.AbuseWindow)
	count, err := rc.GetRecentRepCount(ctx, operatorID, participants, since)
	if err != nil {
		return false, fmt.Errorf("recent rep count: %w", err)
	}
	return count > e.cfg.AbuseThreshold, nil
}

// SettleReady settles every unsettled battle whose participants have all
// reached the repetition target. The operator who logged a battle's latest
// attempt is the acting operator for the anti-abuse check. Failures of single
// battles do not stop the sweep; they are joined into the returned error.
func (e *Engine) SettleReady(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "settlement.SettleReady")
	defer span.End()

	battles, err := e.store.ListUnsettledBattles(ctx)
	if err != nil {
		return 0, fmt.Errorf("settlement.SettleReady: list: %w", err)
	}

	settled := 0
	var errs []error
	for _, b := range battles {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if b.Validate() != nil {
			continue
		}
		attempts, err := e.store.GetAttempts(ctx, b.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("attempts %s: %w", b.ID, err))
			continue
		}
		if !domain.AggregateBattle(b, attempts).Complete(b.RepetitionTarget) {
			continue
		}

		res, err := e.Settle(ctx, b.ID, lastOperator(attempts))
		if err != nil {
			slog.Warn("settlement: sweep failed", "battle", b.ID, "err", err)
			errs = append(errs, err)
			continue
		}
		if res.Settled {
			settled++
		}
	}
	return settled, errors.Join(errs...)
}

// lastOperator returns who logged the most recent attempt.
func lastOperator(attempts []domain.AttemptEvent) string {
	var last domain.AttemptEvent
	for _, a := range attempts {
		if !a.OccurredAt.Before(last.OccurredAt) {
			last = a
		}
	}
	return last.LoggedBy
}
