package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhcgn/mailscan-to-drive/model"
)

// FileLedger persists processed records as JSON lines so future runs can skip them.
type FileLedger struct {
	*MemoryLedger
	path    string
	file    *os.File
	writer  *bufio.Writer
	writeMu sync.Mutex
}

func NewFileLedger(stateDir string, logger *slog.Logger) (*FileLedger, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	l := &FileLedger{
		MemoryLedger: NewMemoryLedger(logger),
		path:         filepath.Join(stateDir, TableName+".jsonl"),
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open ledger file for append: %w", err)
	}
	l.file = file
	l.writer = bufio.NewWriter(file)

	return l, nil
}

// Path returns the JSONL file backing the ledger.
func (l *FileLedger) Path() string {
	return l.path
}

func (l *FileLedger) load() error {
	file, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record model.ProcessedRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse ledger line %d: %w", line, err)
		}
		if record.MailID == "" {
			continue
		}
		l.insert(record)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read ledger file: %w", err)
	}

	return nil
}

// Record appends the record and syncs it to disk before returning.
func (l *FileLedger) Record(ctx context.Context, mailID, recipientName string) error {
	if err := validateMailID(mailID); err != nil {
		return err
	}

	record, inserted := l.insert(model.ProcessedRecord{
		MailID:        mailID,
		RecipientName: recipientName,
		ProcessedAt:   l.now().UTC(),
	})
	if !inserted {
		l.logger.Warn("mail id already recorded", "mailID", mailID)
		return nil
	}

	if err := l.append(record); err != nil {
		l.remove(mailID)
		return err
	}
	return nil
}

func (l *FileLedger) append(record model.ProcessedRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.writer == nil {
		return fmt.Errorf("ledger file is closed")
	}
	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("write ledger record: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flush ledger file: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger file: %w", err)
	}
	return nil
}

// Close flushes and closes the ledger file.
func (l *FileLedger) Close() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.file == nil {
		return nil
	}

	var firstErr error
	if err := l.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush ledger file: %w", err)
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close ledger file: %w", err)
	}
	l.file = nil
	l.writer = nil

	return firstErr
}
