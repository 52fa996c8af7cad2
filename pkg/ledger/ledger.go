package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tandemhq/aigate/pkg/models"
)

// Ledger is the append-only record of every attempted AI call. It is the sole
// source of truth for monthly spend and the input to every limiting decision.
type Ledger interface {
	// Append stores a usage record. Records are immutable once written.
	Append(ctx context.Context, rec models.UsageRecord) error
	// QueryRecent returns up to limit records, newest first.
	QueryRecent(ctx context.Context, limit int) ([]models.UsageRecord, error)
	// CountSince returns the number of records for a provider since a given time.
	CountSince(ctx context.Context, provider models.Provider, since time.Time) (int, error)
	// TokensSince returns total tokens recorded for a provider since a given time.
	TokensSince(ctx context.Context, provider models.Provider, since time.Time) (int64, error)
	// AggregateByMonth groups records by calendar month, newest first.
	// An empty provider aggregates across all providers.
	AggregateByMonth(ctx context.Context, provider models.Provider) ([]models.MonthlyStats, error)
	// CurrentMonthCost returns the summed cost of successful records for a
	// provider in the current calendar month.
	CurrentMonthCost(ctx context.Context, provider models.Provider) (float64, error)
	// Trim keeps at most maxRecords of the newest records, never discarding
	// records from the still-open current month. Returns rows deleted.
	Trim(ctx context.Context, maxRecords int) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteLedger implements Ledger with a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	feature TEXT NOT NULL DEFAULT '',
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	success INTEGER NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_provider_time ON usage_records(provider, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_time ON usage_records(created_at);
`

// New creates a SQLiteLedger and runs auto-migration.
func New(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// Append stores a usage record, assigning an ID and timestamp if unset.
func (l *SQLiteLedger) Append(ctx context.Context, rec models.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage_records
		 (id, provider, model, feature, input_tokens, output_tokens, total_tokens, cost_usd, success, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Provider), rec.Model, rec.Feature,
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens,
		rec.Cost, rec.Success, rec.ErrorMessage, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

// QueryRecent returns up to limit records, newest first.
func (l *SQLiteLedger) QueryRecent(ctx context.Context, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, provider, model, feature, input_tokens, output_tokens, total_tokens, cost_usd, success, error_message, created_at
		 FROM usage_records ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountSince returns the number of records for a provider since a given time.
// Failed attempts count: a failed call is still a real call for rate limiting.
func (l *SQLiteLedger) CountSince(ctx context.Context, provider models.Provider, since time.Time) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_records WHERE provider = ? AND created_at >= ?`,
		string(provider), since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count since: %w", err)
	}
	return count, nil
}

// TokensSince returns total tokens for a provider since a given time.
func (l *SQLiteLedger) TokensSince(ctx context.Context, provider models.Provider, since time.Time) (int64, error) {
	var total int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_records WHERE provider = ? AND created_at >= ?`,
		string(provider), since.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("tokens since: %w", err)
	}
	return total, nil
}

// AggregateByMonth groups records by provider and calendar month, newest first.
func (l *SQLiteLedger) AggregateByMonth(ctx context.Context, provider models.Provider) ([]models.MonthlyStats, error) {
	query := `SELECT strftime('%Y-%m', created_at) AS month, provider,
		COUNT(*),
		SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		COALESCE(SUM(total_tokens), 0),
		COALESCE(SUM(CASE WHEN success = 1 THEN cost_usd ELSE 0 END), 0),
		MAX(created_at)
		FROM usage_records`
	var args []any
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, string(provider))
	}
	query += ` GROUP BY month, provider ORDER BY month DESC, provider`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by month: %w", err)
	}
	defer rows.Close()

	var stats []models.MonthlyStats
	for rows.Next() {
		var s models.MonthlyStats
		var prov, lastAt string
		if err := rows.Scan(&s.Month, &prov, &s.TotalRequests, &s.FailedRequests,
			&s.TotalTokens, &s.TotalCost, &lastAt); err != nil {
			return nil, fmt.Errorf("scan monthly stats: %w", err)
		}
		s.Provider = models.Provider(prov)
		// MAX() strips the column's declared type, so the driver returns the
		// stored text rather than a time.Time.
		s.LastRequestAt = parseStoredTime(lastAt)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseStoredTime(s string) time.Time {
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// CurrentMonthCost returns the summed cost of successful records for a
// provider since the start of the current calendar month.
func (l *SQLiteLedger) CurrentMonthCost(ctx context.Context, provider models.Provider) (float64, error) {
	var total float64
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records
		 WHERE provider = ? AND success = 1 AND created_at >= ?`,
		string(provider), monthStart(time.Now().UTC()),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("current month cost: %w", err)
	}
	return total, nil
}

// Trim deletes the oldest records beyond maxRecords. Records from the current
// calendar month are always kept, regardless of the cap.
func (l *SQLiteLedger) Trim(ctx context.Context, maxRecords int) (int64, error) {
	if maxRecords <= 0 {
		return 0, nil
	}
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM usage_records
		 WHERE created_at < ?
		   AND id NOT IN (SELECT id FROM usage_records ORDER BY created_at DESC LIMIT ?)`,
		monthStart(time.Now().UTC()), maxRecords,
	)
	if err != nil {
		return 0, fmt.Errorf("trim ledger: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func scanRecords(rows *sql.Rows) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var prov string
		if err := rows.Scan(&r.ID, &prov, &r.Model, &r.Feature,
			&r.InputTokens, &r.OutputTokens, &r.TotalTokens,
			&r.Cost, &r.Success, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		r.Provider = models.Provider(prov)
		records = append(records, r)
	}
	return records, rows.Err()
}
