package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/dhcgn/mailscan-to-drive/model"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS processed_mails (
		mail_id        TEXT PRIMARY KEY,
		recipient_name TEXT,
		processed_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

// SQLLedger stores processed records in a relational table. The same
// statements serve SQLite and Postgres; placeholders are rebound per driver.
type SQLLedger struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time

	// hasRecipient is false for tables created before recipient names were kept.
	hasRecipient bool
}

// OpenSQLite opens (or creates) the SQLite database at path and ensures the table.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLLedger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	return newSQLLedger(ctx, db, logger)
}

// OpenPostgres connects to a Postgres database and ensures the table.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*SQLLedger, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return newSQLLedger(ctx, db, logger)
}

func newSQLLedger(ctx context.Context, db *sqlx.DB, logger *slog.Logger) (*SQLLedger, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &SQLLedger{db: db, logger: logger, now: time.Now}
	if err := l.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLLedger) initialize(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("creating %s table: %w", TableName, err)
	}

	rows, err := l.db.QueryxContext(ctx, "SELECT * FROM processed_mails LIMIT 0")
	if err != nil {
		return fmt.Errorf("inspecting %s table: %w", TableName, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading %s columns: %w", TableName, err)
	}
	for _, col := range columns {
		if strings.EqualFold(col, "recipient_name") {
			l.hasRecipient = true
		}
	}
	if !l.hasRecipient {
		l.logger.Debug("ledger table has no recipient_name column; recipient names are not stored")
	}
	return rows.Err()
}

func (l *SQLLedger) ProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := l.db.SelectContext(ctx, &ids, "SELECT mail_id FROM processed_mails"); err != nil {
		return nil, fmt.Errorf("querying processed mail ids: %w", err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (l *SQLLedger) Contains(ctx context.Context, mailID string) (bool, error) {
	var count int
	query := l.db.Rebind("SELECT COUNT(*) FROM processed_mails WHERE mail_id = ?")
	if err := l.db.GetContext(ctx, &count, query, mailID); err != nil {
		return false, fmt.Errorf("looking up mail id %s: %w", mailID, err)
	}
	return count > 0, nil
}

func (l *SQLLedger) Record(ctx context.Context, mailID, recipientName string) error {
	if err := validateMailID(mailID); err != nil {
		return err
	}

	query := "INSERT INTO processed_mails (mail_id, processed_at) VALUES (?, ?) ON CONFLICT (mail_id) DO NOTHING"
	args := []any{mailID, l.now().UTC()}
	if l.hasRecipient {
		query = "INSERT INTO processed_mails (mail_id, recipient_name, processed_at) VALUES (?, ?, ?) ON CONFLICT (mail_id) DO NOTHING"
		args = []any{mailID, recipientName, l.now().UTC()}
	}

	res, err := l.db.ExecContext(ctx, l.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("inserting processed mail id %s: %w", mailID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting processed mail id %s: %w", mailID, err)
	}
	if affected == 0 {
		l.logger.Warn("mail id already recorded", "mailID", mailID)
		return nil
	}

	l.logger.Debug("mail id recorded", "mailID", mailID)
	return nil
}

func (l *SQLLedger) Records(ctx context.Context) ([]model.ProcessedRecord, error) {
	query := "SELECT mail_id, '' AS recipient_name, processed_at FROM processed_mails"
	if l.hasRecipient {
		query = "SELECT mail_id, COALESCE(recipient_name, '') AS recipient_name, processed_at FROM processed_mails"
	}

	var records []model.ProcessedRecord
	if err := l.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("querying processed records: %w", err)
	}

	sortNewestFirst(records)
	return records, nil
}

// Close closes the underlying database connection.
func (l *SQLLedger) Close() error {
	return l.db.Close()
}
