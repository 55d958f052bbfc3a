package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/battlewager/internal/domain"
)

const battleColumns = `id, title, slug, mode, participants, groups_json, repetition_target,
	wager_amount, points_per_rep, created_by, created_at, settled_at, winner_id, settlement`

// CreateBattle inserts a new, unsettled battle.
func (q queries) CreateBattle(ctx context.Context, b domain.Battle) error {
	participants, err := json.Marshal(b.ParticipantIDs)
	if err != nil {
		return fmt.Errorf("storage.CreateBattle: encode participants: %w", err)
	}
	groups := b.Groups
	if groups == nil {
		groups = []domain.Group{}
	}
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("storage.CreateBattle: encode groups: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO battles (id, title, slug, mode, participants, groups_json, repetition_target,
		                     wager_amount, points_per_rep, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Title, b.Slug, string(b.Mode), string(participants), string(groupsJSON),
		b.RepetitionTarget, b.WagerAmount, b.PointsPerRep, b.CreatedBy, formatTime(b.CreatedAt),
	)
	if err != nil {
		return storageErr("CreateBattle", err)
	}
	return nil
}

// GetBattle returns domain.ErrNotFound for unknown ids.
func (q queries) GetBattle(ctx context.Context, battleID string) (domain.Battle, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = ?`, battleID)
	b, err := scanBattle(row)
	if isNoRows(err) {
		return domain.Battle{}, fmt.Errorf("storage.GetBattle %s: %w", battleID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Battle{}, storageErr("GetBattle", err)
	}
	return b, nil
}

// ListUnsettledBattles devuelve las batallas activas, las más antiguas primero.
func (q queries) ListUnsettledBattles(ctx context.Context) ([]domain.Battle, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE settled_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, storageErr("ListUnsettledBattles", err)
	}
	defer rows.Close()

	var out []domain.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, storageErr("ListUnsettledBattles: scan", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ListUnsettledBattles", err)
	}
	return out, nil
}

// MarkSettled is the write-once check-and-set on settled_at.
func (q queries) MarkSettled(ctx context.Context, rec domain.SettlementRecord) error {
	settlement, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage.MarkSettled: encode settlement: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE battles SET settled_at = ?, winner_id = ?, settlement = ?
		WHERE id = ? AND settled_at IS NULL`,
		formatTime(rec.SettledAt), rec.WinnerID, string(settlement), rec.BattleID,
	)
	if err != nil {
		return storageErr("MarkSettled", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("MarkSettled: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.MarkSettled %s: %w", rec.BattleID, domain.ErrAlreadySettled)
	}
	return nil
}

// AppendAttempt inserts ev only while the battle is still open.
func (q queries) AppendAttempt(ctx context.Context, ev domain.AttemptEvent) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO attempt_events (battle_id, participant_id, success, occurred_at, logged_by)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM battles WHERE id = ? AND settled_at IS NULL)`,
		ev.BattleID, ev.ParticipantID, boolInt(ev.Success), formatTime(ev.OccurredAt), ev.LoggedBy, ev.BattleID,
	)
	if err != nil {
		return 0, storageErr("AppendAttempt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("AppendAttempt: rows affected", err)
	}
	if n == 0 {
		if _, err := q.GetBattle(ctx, ev.BattleID); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("storage.AppendAttempt %s: %w", ev.BattleID, domain.ErrBattleClosed)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("AppendAttempt: last id", err)
	}
	return id, nil
}

// GetAttempts returns the battle's attempt log in time order.
func (q queries) GetAttempts(ctx context.Context, battleID string) ([]domain.AttemptEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, battle_id, participant_id, success, occurred_at, logged_by
		FROM attempt_events
		WHERE battle_id = ?
		ORDER BY occurred_at, id`, battleID)
	if err != nil {
		return nil, storageErr("GetAttempts", err)
	}
	defer rows.Close()

	var out []domain.AttemptEvent
	for rows.Next() {
		var ev domain.AttemptEvent
		var success int
		var occurred string
		if err := rows.Scan(&ev.ID, &ev.BattleID, &ev.ParticipantID, &success, &occurred, &ev.LoggedBy); err != nil {
			return nil, storageErr("GetAttempts: scan", err)
		}
		ev.Success = success == 1
		ev.OccurredAt = parseTime(occurred)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetAttempts", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBattle(r rowScanner) (domain.Battle, error) {
	var (
		b                    domain.Battle
		mode, participants   string
		groups, createdAt    string
		settledAt, settlement sql.NullString
	)
	err := r.Scan(&b.ID, &b.Title, &b.Slug, &mode, &participants, &groups, &b.RepetitionTarget,
		&b.WagerAmount, &b.PointsPerRep, &b.CreatedBy, &createdAt, &settledAt, &b.WinnerID, &settlement)
	if err != nil {
		return domain.Battle{}, err
	}

	b.Mode = domain.Mode(mode)
	b.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(participants), &b.ParticipantIDs); err != nil {
		return domain.Battle{}, fmt.Errorf("decode participants: %w", err)
	}
	if err := json.Unmarshal([]byte(groups), &b.Groups); err != nil {
		return domain.Battle{}, fmt.Errorf("decode groups: %w", err)
	}
	if len(b.Groups) == 0 {
		b.Groups = nil
	}
	if settledAt.Valid {
		t := parseTime(settledAt.String)
		b.SettledAt = &t
	}
	if settlement.Valid && settlement.String != "" {
		var rec domain.SettlementRecord
		if err := json.Unmarshal([]byte(settlement.String), &rec); err != nil {
			return domain.Battle{}, fmt.Errorf("decode settlement: %w", err)
		}
		b.Settlement = &rec
	}
	return b, nil
}
