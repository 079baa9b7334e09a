// Package ledger records which mail items have already been delivered so that
// repeated runs never upload the same item twice.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dhcgn/mailscan-to-drive/model"
)

// TableName is the table, hash or file stem that holds processed records.
const TableName = "processed_mails"

var ErrUnknownBackend = errors.New("unknown ledger backend")

// Ledger is an append-only set of processed mail ids.
//
// Record of an id that is already present logs a warning and returns nil.
// Every other failure is returned to the caller.
type Ledger interface {
	ProcessedIDs(ctx context.Context) (map[string]struct{}, error)
	Contains(ctx context.Context, mailID string) (bool, error)
	Record(ctx context.Context, mailID, recipientName string) error
	Records(ctx context.Context) ([]model.ProcessedRecord, error)
	Close() error
}

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Backends lists every supported backend name.
func Backends() []Backend {
	return []Backend{BackendSQLite, BackendPostgres, BackendFile, BackendRedis, BackendMemory}
}

// Options selects and configures a ledger backend.
type Options struct {
	Backend Backend
	// DSN is a SQLite file path, a Postgres connection string or a Redis URL.
	DSN string
	// StateDir holds the JSONL file of the file backend.
	StateDir string
}

// Open creates the configured backend. Creating the underlying table or file
// is idempotent and happens on every open.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Ledger, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch Backend(strings.ToLower(string(opts.Backend))) {
	case BackendMemory:
		return NewMemoryLedger(logger), nil
	case BackendFile:
		return NewFileLedger(opts.StateDir, logger)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.DSN, logger)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.DSN, logger)
	case BackendRedis:
		return OpenRedis(ctx, opts.DSN, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func validateMailID(mailID string) error {
	if strings.TrimSpace(mailID) == "" {
		return errors.New("mail id is empty")
	}
	return nil
}
