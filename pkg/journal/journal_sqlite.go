package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteJournal struct {
	db *sql.DB
}

var _ Journal = &SQLiteJournal{}

func NewSQLiteJournal(dsn string) (*SQLiteJournal, error) {
	if dsn == "" {
		return nil, errors.New("sqlite journal: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// SQLiteDSNForFile builds a DSN with WAL and a busy timeout for path.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite journal: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (j *SQLiteJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *SQLiteJournal) migrate() error {
	if j == nil || j.db == nil {
		return errors.New("sqlite journal: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
		  cycle_id TEXT PRIMARY KEY,
		  started_at_ms INTEGER NOT NULL,
		  model TEXT NOT NULL DEFAULT '',
		  styles TEXT NOT NULL DEFAULT '[]',
		  outcome TEXT NOT NULL,
		  ttft_ms INTEGER,
		  total_ms INTEGER,
		  http_status INTEGER NOT NULL DEFAULT 0,
		  error_message TEXT NOT NULL DEFAULT '',
		  deltas INTEGER NOT NULL DEFAULT 0,
		  skipped_frames INTEGER NOT NULL DEFAULT 0,
		  input_tokens INTEGER NOT NULL DEFAULT 0,
		  output_tokens INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS cycles_by_started
		  ON cycles(started_at_ms DESC, cycle_id ASC);`,
	}
	for _, st := range stmts {
		if _, err := j.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite journal: migrate")
		}
	}
	return nil
}

func (j *SQLiteJournal) Record(ctx context.Context, rec CycleRecord) error {
	if j == nil || j.db == nil {
		return errors.New("sqlite journal: db is nil")
	}
	if strings.TrimSpace(rec.CycleID) == "" {
		return errors.New("sqlite journal: cycle id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	styles, err := encodeStyles(rec.Styles)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO cycles (
			cycle_id, started_at_ms, model, styles, outcome, ttft_ms, total_ms,
			http_status, error_message, deltas, skipped_frames, input_tokens, output_tokens
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id) DO UPDATE SET
			outcome = excluded.outcome,
			ttft_ms = COALESCE(excluded.ttft_ms, cycles.ttft_ms),
			total_ms = COALESCE(excluded.total_ms, cycles.total_ms),
			http_status = excluded.http_status,
			error_message = excluded.error_message,
			deltas = excluded.deltas,
			skipped_frames = excluded.skipped_frames,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens
	`, rec.CycleID, rec.StartedAtMs, rec.Model, styles, rec.Outcome,
		nullInt64(rec.TimeToFirstTokenMs), nullInt64(rec.TotalTimeMs),
		rec.HTTPStatus, rec.ErrorMessage, rec.Deltas, rec.SkippedFrames, rec.InputTokens, rec.OutputTokens)
	if err != nil {
		return errors.Wrap(err, "sqlite journal: record cycle")
	}
	return nil
}

func (j *SQLiteJournal) List(ctx context.Context, limit int) ([]CycleRecord, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("sqlite journal: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT cycle_id, started_at_ms, model, styles, outcome, ttft_ms, total_ms,
		       http_status, error_message, deltas, skipped_frames, input_tokens, output_tokens
		FROM cycles
		ORDER BY started_at_ms DESC, cycle_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: list cycles")
	}
	defer func() { _ = rows.Close() }()

	records := make([]CycleRecord, 0, min(limit, 64))
	for rows.Next() {
		var (
			rec    CycleRecord
			styles string
			ttft   sql.NullInt64
			total  sql.NullInt64
		)
		if err := rows.Scan(
			&rec.CycleID,
			&rec.StartedAtMs,
			&rec.Model,
			&styles,
			&rec.Outcome,
			&ttft,
			&total,
			&rec.HTTPStatus,
			&rec.ErrorMessage,
			&rec.Deltas,
			&rec.SkippedFrames,
			&rec.InputTokens,
			&rec.OutputTokens,
		); err != nil {
			return nil, errors.Wrap(err, "sqlite journal: scan cycle")
		}
		if rec.Styles, err = decodeStyles(styles); err != nil {
			return nil, err
		}
		if ttft.Valid {
			v := ttft.Int64
			rec.TimeToFirstTokenMs = &v
		}
		if total.Valid {
			v := total.Int64
			rec.TotalTimeMs = &v
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite journal: iterate cycles")
	}
	return records, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
