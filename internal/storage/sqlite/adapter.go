package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nvctranslator/nvcbot/internal/domain"
	"github.com/nvctranslator/nvcbot/internal/storage"
)

// watermarkKey is the single row key of the watermark table. The bot runs
// as a single identity, so one row is all there is.
const watermarkKey = "mentions"

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS watermarks (
		key TEXT PRIMARY KEY,
		value TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		mention_id TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_cycle ON outcomes(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);
	CREATE INDEX IF NOT EXISTS idx_outcomes_created_at ON outcomes(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// GetWatermark returns the stored watermark, or ok=false when absent
func (s *sqliteStorage) GetWatermark(ctx context.Context) (time.Time, bool, error) {
	var value time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM watermarks WHERE key = ?`, watermarkKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return value.UTC(), true, nil
}

// SetWatermark persists the watermark unconditionally
func (s *sqliteStorage) SetWatermark(ctx context.Context, value time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, watermarkKey, value.UTC())
	return err
}

// SaveOutcomes persists item outcomes in a single transaction
func (s *sqliteStorage) SaveOutcomes(ctx context.Context, outcomes []*domain.ItemOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (id, cycle_id, mention_id, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx,
			o.ID, o.CycleID, o.MentionID, string(o.Status), o.Detail, o.CreatedAt.UTC()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetOutcomes returns the most recent outcomes, newest first
func (s *sqliteStorage) GetOutcomes(ctx context.Context, limit int) ([]*domain.ItemOutcome, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cycle_id, mention_id, status, detail, created_at
		FROM outcomes
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*domain.ItemOutcome
	for rows.Next() {
		var o domain.ItemOutcome
		var status string
		if err := rows.Scan(&o.ID, &o.CycleID, &o.MentionID, &status, &o.Detail, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Status = domain.OutcomeStatus(status)
		outcomes = append(outcomes, &o)
	}
	return outcomes, rows.Err()
}

// GetOutcomeStats returns per-status counts over the full outcome history
func (s *sqliteStorage) GetOutcomeStats(ctx context.Context) (*domain.OutcomeStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM outcomes GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.OutcomeStats{
		ByStatus: make(map[domain.OutcomeStatus]int64),
	}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[domain.OutcomeStatus(status)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
