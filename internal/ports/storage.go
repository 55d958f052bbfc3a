package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/battlewager/internal/domain"
)

// BattleReader loads battles and their attempt logs.
type BattleReader interface {
	// GetBattle returns domain.ErrNotFound when the battle does not exist.
	GetBattle(ctx context.Context, battleID string) (domain.Battle, error)

	// GetAttempts returns the battle's attempt log ordered by occurred_at.
	GetAttempts(ctx context.Context, battleID string) ([]domain.AttemptEvent, error)
}

// BalanceReader reads materialized point balances. Unknown ids map to 0.
type BalanceReader interface {
	GetParticipantBalances(ctx context.Context, ids []string) (map[string]int, error)
}

// AvatarBonusProvider resolves the avatar bonus percentage of each participant.
// Participants without an avatar bonus are absent or 0.
type AvatarBonusProvider interface {
	GetAvatarBonusPct(ctx context.Context, ids []string) (map[string]int, error)
}

// RepCounter backs the anti-abuse check.
type RepCounter interface {
	// GetRecentRepCount returns the highest number of attempts operatorID logged
	// for any single participant in participantIDs since the given instant,
	// across every battle including the one being settled. An empty
	// operatorID matches attempts logged without an operator.
	GetRecentRepCount(ctx context.Context, operatorID string, participantIDs []string, since time.Time) (int, error)
}

// LedgerWriter appends points movements. Entries are never updated or deleted.
type LedgerWriter interface {
	// AppendLedgerEntries writes all rows or none.
	AppendLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error

	// RecomputeBalance re-materializes a participant's balance from the ledger.
	RecomputeBalance(ctx context.Context, participantID string) error
}

// MvpWriter records MVP selections. Idempotent per (battle_id, participant_id).
type MvpWriter interface {
	UpsertMvpAwards(ctx context.Context, awards []domain.MvpAward) error
}

// SettlementReader is everything Preview needs.
type SettlementReader interface {
	BattleReader
	BalanceReader
	AvatarBonusProvider
	RepCounter
}

// SettlementTx is a unit of work over a single settlement. Every read inside it
// sees the writes made before it in the same transaction.
type SettlementTx interface {
	SettlementReader
	LedgerWriter
	MvpWriter

	// MarkSettled sets settled_at, winner and snapshot with a conditional update.
	// It returns domain.ErrAlreadySettled if the battle was settled concurrently.
	MarkSettled(ctx context.Context, record domain.SettlementRecord) error
}

// SettlementStore is the storage the settlement engine runs against.
type SettlementStore interface {
	SettlementReader

	// WithinTx runs fn in one transaction: committed when fn returns nil,
	// rolled back otherwise.
	WithinTx(ctx context.Context, fn func(tx SettlementTx) error) error

	// ListUnsettledBattles returns every battle whose settled_at is still null.
	ListUnsettledBattles(ctx context.Context) ([]domain.Battle, error)
}

// TrackerStore backs battle creation and attempt logging.
type TrackerStore interface {
	BattleReader

	CreateBattle(ctx context.Context, b domain.Battle) error

	// AppendAttempt stores ev and returns its id. It returns
	// domain.ErrBattleClosed when the battle settled in the meantime.
	AppendAttempt(ctx context.Context, ev domain.AttemptEvent) (int64, error)
}
