package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RajaChaiban/InstaAgent/internal/domain"
)

// Repository implements domain.CommentLedger on SQLite. The uniqueness of
// (platform, account, unit_id) is enforced by the schema, so two writers
// racing on the same tuple can never both insert.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (and creates, if needed) the database at path,
// verifies the connection, and ensures the schema exists. The caller should
// call Close when the repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer at a time; a second connection would only
	// produce spurious SQLITE_BUSY errors from concurrent inserts.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &Repository{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS comment_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			platform TEXT NOT NULL,
			account TEXT NOT NULL,
			unit_id TEXT NOT NULL,
			url TEXT NOT NULL,
			caption_length INTEGER NOT NULL DEFAULT 0,
			caption TEXT NOT NULL DEFAULT '',
			comment_text TEXT NOT NULL DEFAULT '',
			succeeded INTEGER NOT NULL DEFAULT 0,
			recorded_at TIMESTAMP NOT NULL,
			metadata TEXT,
			UNIQUE (platform, account, unit_id)
		);

		CREATE INDEX IF NOT EXISTS idx_comment_records_recorded_at
			ON comment_records (recorded_at);
		CREATE INDEX IF NOT EXISTS idx_comment_records_account
			ON comment_records (account);
	`)
	return err
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// HasRecorded reports whether a record exists for the tuple.
func (r *Repository) HasRecorded(ctx context.Context, platform, account, unitID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM comment_records
		WHERE platform = ? AND account = ? AND unit_id = ?`,
		platform, account, unitID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query record: %w", err)
	}
	return true, nil
}

// Insert appends a record. It returns false with a nil error when the tuple
// already exists; the conflict is detected from the affected row count of an
// ON CONFLICT DO NOTHING insert, never from a prior read.
func (r *Repository) Insert(ctx context.Context, rec *domain.CommentRecord) (bool, error) {
	var metadata any
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return false, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(raw)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO comment_records
			(platform, account, unit_id, url, caption_length, caption, comment_text, succeeded, recorded_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, account, unit_id) DO NOTHING`,
		rec.Platform,
		rec.Account,
		rec.UnitID,
		rec.URL,
		rec.CaptionLength,
		rec.Caption,
		rec.CommentText,
		rec.Succeeded,
		rec.RecordedAt.UTC(),
		metadata,
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats aggregates records with recorded_at inside the trailing windowDays.
// An empty account aggregates across all accounts.
func (r *Repository) Stats(ctx context.Context, account string, windowDays int) (domain.LedgerStats, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN succeeded THEN 1 ELSE 0 END), 0)
		FROM comment_records
		WHERE recorded_at >= ?`
	args := []any{since}
	if account != "" {
		query += ` AND account = ?`
		args = append(args, account)
	}

	var stats domain.LedgerStats
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.Total, &stats.Succeeded); err != nil {
		return domain.LedgerStats{}, fmt.Errorf("query stats: %w", err)
	}

	stats.Failed = stats.Total - stats.Succeeded
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	return stats, nil
}

// RecentRecords returns the most recent records, newest first.
func (r *Repository) RecentRecords(ctx context.Context, limit int) ([]domain.CommentRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT platform, account, unit_id, url, caption_length, caption, comment_text, succeeded, recorded_at, metadata
		FROM comment_records
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []domain.CommentRecord
	for rows.Next() {
		var (
			rec      domain.CommentRecord
			metadata sql.NullString
		)
		err := rows.Scan(
			&rec.Platform,
			&rec.Account,
			&rec.UnitID,
			&rec.URL,
			&rec.CaptionLength,
			&rec.Caption,
			&rec.CommentText,
			&rec.Succeeded,
			&rec.RecordedAt,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
