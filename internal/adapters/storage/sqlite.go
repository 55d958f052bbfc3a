package storage

// sqlite.go: ledger de puntos y batallas sobre SQLite.
//
// Estrategia:
//   - `ledger_entries` es append-only; `balances` es solo una materialización
//     (SUM del ledger) que RecomputeBalance reescribe.
//   - `battles.settled_at` es write-once: MarkSettled usa un UPDATE condicional
//     (`WHERE settled_at IS NULL`) como check-and-set atómico.
//   - Una sola conexión: SQLite es single-writer, así que las transacciones de
//     settlement quedan serializadas y las lecturas de balance dentro de la tx
//     ven siempre el último estado commiteado.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/battlewager/internal/domain"
	"github.com/alejandrodnm/battlewager/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS battles (
    id                TEXT PRIMARY KEY,
    title             TEXT    NOT NULL DEFAULT '',
    slug              TEXT    NOT NULL DEFAULT '',
    mode              TEXT    NOT NULL,
    participants      TEXT    NOT NULL,
    groups_json       TEXT    NOT NULL DEFAULT '[]',
    repetition_target INTEGER NOT NULL,
    wager_amount      INTEGER NOT NULL DEFAULT 0,
    points_per_rep    INTEGER NOT NULL DEFAULT 0,
    created_by        TEXT    NOT NULL DEFAULT '',
    created_at        TEXT    NOT NULL,
    settled_at        TEXT,
    winner_id         TEXT    NOT NULL DEFAULT '',
    settlement        TEXT
);

CREATE TABLE IF NOT EXISTS attempt_events (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    battle_id      TEXT    NOT NULL REFERENCES battles(id),
    participant_id TEXT    NOT NULL,
    success        INTEGER NOT NULL,
    occurred_at    TEXT    NOT NULL,
    logged_by      TEXT    NOT NULL DEFAULT ''
);

-- Append-only: nunca UPDATE ni DELETE
CREATE TABLE IF NOT EXISTS ledger_entries (
    id             TEXT PRIMARY KEY,
    participant_id TEXT    NOT NULL,
    points         INTEGER NOT NULL,
    note           TEXT    NOT NULL DEFAULT '',
    category       TEXT    NOT NULL,
    battle_id      TEXT    NOT NULL DEFAULT '',
    created_at     TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS balances (
    participant_id TEXT PRIMARY KEY,
    points         INTEGER NOT NULL DEFAULT 0,
    updated_at     TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS mvp_awards (
    battle_id      TEXT    NOT NULL,
    participant_id TEXT    NOT NULL,
    grp            TEXT    NOT NULL DEFAULT '',
    kind           TEXT    NOT NULL,
    base           INTEGER NOT NULL DEFAULT 0,
    bonus          INTEGER NOT NULL DEFAULT 0,
    bonus_pct      INTEGER NOT NULL DEFAULT 0,
    points         INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (battle_id, participant_id)
);

CREATE TABLE IF NOT EXISTS avatar_bonuses (
    participant_id TEXT PRIMARY KEY,
    bonus_pct      INTEGER NOT NULL CHECK (bonus_pct BETWEEN 0 AND 100)
);

CREATE INDEX IF NOT EXISTS idx_attempts_battle   ON attempt_events(battle_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_attempts_operator ON attempt_events(logged_by, occurred_at);
CREATE INDEX IF NOT EXISTS idx_ledger_partic     ON ledger_entries(participant_id);
CREATE INDEX IF NOT EXISTS idx_ledger_battle     ON ledger_entries(battle_id);
CREATE INDEX IF NOT EXISTS idx_battles_open      ON battles(settled_at);
`

// timeLayout is fixed-width so that TEXT comparisons order like instants.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// dbtx is what *sql.DB and *sql.Tx have in common.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// queries implementa las lecturas y escrituras sobre una conexión o una tx.
type queries struct {
	db dbtx
}

// SQLiteStorage implementa ports.SettlementStore y ports.TrackerStore usando
// SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	queries
	conn *sql.DB
}

// sqliteTx implementa ports.SettlementTx.
type sqliteTx struct {
	queries
}

var (
	_ ports.SettlementStore = (*SQLiteStorage)(nil)
	_ ports.TrackerStore    = (*SQLiteStorage)(nil)
	_ ports.SettlementTx    = (*sqliteTx)(nil)
)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{queries: queries{db: db}, conn: db}, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.conn.Close()
}

// WithinTx runs fn inside a transaction. fn must only use the tx it receives:
// with a single connection any other query would wait for the tx to end.
func (s *SQLiteStorage) WithinTx(ctx context.Context, fn func(tx ports.SettlementTx) error) error {
	return s.inTx(ctx, func(q queries) error {
		return fn(&sqliteTx{queries: q})
	})
}

func (s *SQLiteStorage) inTx(ctx context.Context, fn func(q queries) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// AppendLedgerEntries outside a settlement still writes all rows or none.
func (s *SQLiteStorage) AppendLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	return s.inTx(ctx, func(q queries) error {
		return q.AppendLedgerEntries(ctx, entries)
	})
}

// UpsertMvpAwards outside a settlement runs in its own transaction.
func (s *SQLiteStorage) UpsertMvpAwards(ctx context.Context, awards []domain.MvpAward) error {
	return s.inTx(ctx, func(q queries) error {
		return q.UpsertMvpAwards(ctx, awards)
	})
}

// GrantPoints credits (or debits) points outside a battle and refreshes the
// balance, e.g. class attendance granted by a coach.
func (s *SQLiteStorage) GrantPoints(ctx context.Context, entry domain.LedgerEntry) error {
	if entry.Category == "" {
		entry.Category = domain.CategoryGrant
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.inTx(ctx, func(q queries) error {
		if err := q.AppendLedgerEntries(ctx, []domain.LedgerEntry{entry}); err != nil {
			return err
		}
		return q.RecomputeBalance(ctx, entry.ParticipantID)
	})
}

// SetAvatarBonus stores the avatar bonus of a participant, clamped to [0,100].
func (s *SQLiteStorage) SetAvatarBonus(ctx context.Context, participantID string, pct int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO avatar_bonuses (participant_id, bonus_pct) VALUES (?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET bonus_pct = excluded.bonus_pct`,
		participantID, domain.ClampBonusPct(pct))
	if err != nil {
		return storageErr("SetAvatarBonus", err)
	}
	return nil
}

// --- helpers internos ---

// storageErr tags err as domain.ErrStorage keeping the driver error in the chain.
func storageErr(op string, err error) error {
	return fmt.Errorf("storage.%s: %w: %w", op, domain.ErrStorage, err)
}

// placeholders devuelve "?, ?, ?" para n argumentos.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
