package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/battlewager/internal/domain"
)

// AppendLedgerEntries inserta las filas con un statement preparado.
// Dentro de una tx de settlement, todas o ninguna.
func (q queries) AppendLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := q.db.PrepareContext(ctx, `
		INSERT INTO ledger_entries (id, participant_id, points, note, category, battle_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storageErr("AppendLedgerEntries: prepare", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.ParticipantID, e.Points, e.Note, string(e.Category), e.BattleID, formatTime(e.CreatedAt),
		); err != nil {
			return storageErr(fmt.Sprintf("AppendLedgerEntries %s", e.ID), err)
		}
	}
	return nil
}

// RecomputeBalance rewrites the materialized balance as SUM(points).
func (q queries) RecomputeBalance(ctx context.Context, participantID string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO balances (participant_id, points, updated_at)
		SELECT ?, COALESCE(SUM(points), 0), ?
		FROM ledger_entries WHERE participant_id = ?
		ON CONFLICT(participant_id) DO UPDATE SET
			points     = excluded.points,
			updated_at = excluded.updated_at`,
		participantID, formatTime(time.Now()), participantID,
	)
	if err != nil {
		return storageErr("RecomputeBalance", err)
	}
	return nil
}

// GetParticipantBalances returns a value for every id; missing balances are 0.
func (q queries) GetParticipantBalances(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = 0
	}
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT participant_id, points FROM balances WHERE participant_id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, storageErr("GetParticipantBalances", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var points int
		if err := rows.Scan(&id, &points); err != nil {
			return nil, storageErr("GetParticipantBalances: scan", err)
		}
		out[id] = points
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetParticipantBalances", err)
	}
	return out, nil
}

// GetAvatarBonusPct devuelve solo los participantes con bonus registrado.
func (q queries) GetAvatarBonusPct(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT participant_id, bonus_pct FROM avatar_bonuses WHERE participant_id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, storageErr("GetAvatarBonusPct", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var pct int
		if err := rows.Scan(&id, &pct); err != nil {
			return nil, storageErr("GetAvatarBonusPct: scan", err)
		}
		out[id] = pct
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetAvatarBonusPct", err)
	}
	return out, nil
}

// GetRecentRepCount counts per participant and keeps the maximum. Reps
// logged without an operator (logged_by = '') are counted together.
// Reps of the battle being settled are included.
func (q queries) GetRecentRepCount(ctx context.Context, operatorID string, participantIDs []string, since time.Time) (int, error) {
	if len(participantIDs) == 0 {
		return 0, nil
	}
	args := append([]any{operatorID, formatTime(since)}, stringArgs(participantIDs)...)

	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(n), 0) FROM (
			SELECT COUNT(*) AS n
			FROM attempt_events
			WHERE logged_by = ? AND occurred_at >= ?
			  AND participant_id IN (`+placeholders(len(participantIDs))+`)
			GROUP BY participant_id
		)`, args...).Scan(&n)
	if err != nil {
		return 0, storageErr("GetRecentRepCount", err)
	}
	return n, nil
}

// UpsertMvpAwards es idempotente por (battle_id, participant_id).
func (q queries) UpsertMvpAwards(ctx context.Context, awards []domain.MvpAward) error {
	if len(awards) == 0 {
		return nil
	}
	stmt, err := q.db.PrepareContext(ctx, `
		INSERT INTO mvp_awards (battle_id, participant_id, grp, kind, base, bonus, bonus_pct, points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(battle_id, participant_id) DO UPDATE SET
			grp       = excluded.grp,
			kind      = excluded.kind,
			base      = excluded.base,
			bonus     = excluded.bonus,
			bonus_pct = excluded.bonus_pct,
			points    = excluded.points`)
	if err != nil {
		return storageErr("UpsertMvpAwards: prepare", err)
	}
	defer stmt.Close()

	for _, a := range awards {
		if _, err := stmt.ExecContext(ctx,
			a.BattleID, a.ParticipantID, a.Group, string(a.Kind), a.Base, a.Bonus, a.BonusPct, a.Points,
		); err != nil {
			return storageErr(fmt.Sprintf("UpsertMvpAwards %s/%s", a.BattleID, a.ParticipantID), err)
		}
	}
	return nil
}

// GetMvpAwards lists the MVP rows of a battle ordered by participant.
func (q queries) GetMvpAwards(ctx context.Context, battleID string) ([]domain.MvpAward, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT battle_id, participant_id, grp, kind, base, bonus, bonus_pct, points
		FROM mvp_awards WHERE battle_id = ? ORDER BY participant_id`, battleID)
	if err != nil {
		return nil, storageErr("GetMvpAwards", err)
	}
	defer rows.Close()

	var out []domain.MvpAward
	for rows.Next() {
		var a domain.MvpAward
		var kind string
		if err := rows.Scan(&a.BattleID, &a.ParticipantID, &a.Group, &kind, &a.Base, &a.Bonus, &a.BonusPct, &a.Points); err != nil {
			return nil, storageErr("GetMvpAwards: scan", err)
		}
		a.Kind = domain.AwardKind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetMvpAwards", err)
	}
	return out, nil
}

// GetLedger returns a participant's ledger, oldest first.
func (q queries) GetLedger(ctx context.Context, participantID string) ([]domain.LedgerEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, participant_id, points, note, category, battle_id, created_at
		FROM ledger_entries WHERE participant_id = ?
		ORDER BY created_at, rowid`, participantID)
	if err != nil {
		return nil, storageErr("GetLedger", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var category, created string
		if err := rows.Scan(&e.ID, &e.ParticipantID, &e.Points, &e.Note, &category, &e.BattleID, &created); err != nil {
			return nil, storageErr("GetLedger: scan", err)
		}
		e.Category = domain.LedgerCategory(category)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetLedger", err)
	}
	return out, nil
}
