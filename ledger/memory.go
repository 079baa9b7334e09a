package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dhcgn/mailscan-to-drive/model"
)

type MemoryLedger struct {
	mu        sync.RWMutex
	processed map[string]model.ProcessedRecord
	logger    *slog.Logger
	now       func() time.Time
}

func NewMemoryLedger(logger *slog.Logger) *MemoryLedger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MemoryLedger{
		processed: make(map[string]model.ProcessedRecord),
		logger:    logger,
		now:       time.Now,
	}
}

func (m *MemoryLedger) ProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make(map[string]struct{}, len(m.processed))
	for id := range m.processed {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (m *MemoryLedger) Contains(ctx context.Context, mailID string) (bool, error) {
	m.mu.RLock()
	_, ok := m.processed[mailID]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryLedger) Record(ctx context.Context, mailID, recipientName string) error {
	if err := validateMailID(mailID); err != nil {
		return err
	}
	if _, inserted := m.insert(model.ProcessedRecord{
		MailID:        mailID,
		RecipientName: recipientName,
		ProcessedAt:   m.now().UTC(),
	}); !inserted {
		m.logger.Warn("mail id already recorded", "mailID", mailID)
	}
	return nil
}

// insert adds rec unless its id is present and reports whether it did.
func (m *MemoryLedger) insert(rec model.ProcessedRecord) (model.ProcessedRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, exists := m.processed[rec.MailID]; exists {
		return existing, false
	}
	m.processed[rec.MailID] = rec
	return rec, true
}

func (m *MemoryLedger) remove(mailID string) {
	m.mu.Lock()
	delete(m.processed, mailID)
	m.mu.Unlock()
}

func (m *MemoryLedger) Records(ctx context.Context) ([]model.ProcessedRecord, error) {
	m.mu.RLock()
	records := make([]model.ProcessedRecord, 0, len(m.processed))
	for _, rec := range m.processed {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	sortNewestFirst(records)
	return records, nil
}

func (m *MemoryLedger) Close() error {
	return nil
}

func sortNewestFirst(records []model.ProcessedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ProcessedAt.Equal(records[j].ProcessedAt) {
			return records[i].MailID < records[j].MailID
		}
		return records[i].ProcessedAt.After(records[j].ProcessedAt)
	})
}
