package domain

import (
	"fmt"
	"time"
)

// LedgerCategory classifies ledger rows written by a settlement.
type LedgerCategory string

const (
	CategoryBattleWager LedgerCategory = "battle_wager"
	CategoryBattleRate  LedgerCategory = "battle_rate"
	CategoryBattleMVP   LedgerCategory = "battle_mvp"
	CategoryGrant       LedgerCategory = "grant"
)

// LedgerEntry is an append-only points movement. A participant's balance is
// always the sum of their entries.
type LedgerEntry struct {
	ID            string
	ParticipantID string
	Points        int
	Note          string
	Category      LedgerCategory
	BattleID      string
	CreatedAt     time.Time
}

// SnapshotEntry captures one participant's balance around a settlement.
type SnapshotEntry struct {
	ParticipantID string `json:"participant_id"`
	PointsBefore  int    `json:"points_before"`
	PointsAfter   int    `json:"points_after"`
	Delta         int    `json:"delta"`
}

// SettlementRecord is what gets stored on the battle when it settles.
type SettlementRecord struct {
	BattleID    string          `json:"battle_id"`
	SettledAt   time.Time       `json:"settled_at"`
	WinnerID    string          `json:"winner_id,omitempty"`
	Winners     []string        `json:"winners"`
	Lead        int             `json:"lead"`
	Pool        int             `json:"pool"`
	RateLimited bool            `json:"rate_limited"`
	Snapshot    []SnapshotEntry `json:"snapshot"`
}

// NetDeltas sums transfer deltas and MVP points per participant, keeping every
// participant in the map.
func NetDeltas(participants []string, a Apportionment, awards []MvpAward) map[string]int {
	out := make(map[string]int, len(participants))
	for _, id := range participants {
		out[id] = a.Deltas[id]
	}
	for _, aw := range awards {
		out[aw.ParticipantID] += aw.Points
	}
	return out
}

// TransferNote describes a transfer delta for the ledger.
func TransferNote(battleID string, delta int, wager bool) string {
	kind := "rate"
	if wager {
		kind = "wager"
	}
	if delta >= 0 {
		return fmt.Sprintf("Battle %s: won %d pts (%s)", battleID, delta, kind)
	}
	return fmt.Sprintf("Battle %s: lost %d pts (%s)", battleID, -delta, kind)
}

// AwardNote keeps base and bonus components apart so the ledger row can be
// reconciled with the avatar bonus that produced it.
func AwardNote(a MvpAward) string {
	switch a.Kind {
	case AwardBonus:
		return fmt.Sprintf("Battle %s MVP bonus: base %d + avatar %d%% bonus %d", a.BattleID, a.Base, a.BonusPct, a.Bonus)
	case AwardRefund:
		return fmt.Sprintf("Battle %s MVP refund: %d pts", a.BattleID, a.Points)
	default:
		return fmt.Sprintf("Battle %s MVP consolation: %d pts", a.BattleID, a.Points)
	}
}
