package ledger

import (
	"context"
	"log/slog"

	"github.com/dhcgn/mailscan-to-drive/model"
)

type dryRun struct {
	inner   Ledger
	overlay *MemoryLedger
}

// DryRun reads through to inner but keeps new records in memory, so a dry
// run sees what is already processed without persisting anything.
func DryRun(inner Ledger, logger *slog.Logger) Ledger {
	return &dryRun{inner: inner, overlay: NewMemoryLedger(logger)}
}

func (d *dryRun) ProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	ids, err := d.inner.ProcessedIDs(ctx)
	if err != nil {
		return nil, err
	}
	extra, _ := d.overlay.ProcessedIDs(ctx)
	for id := range extra {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (d *dryRun) Contains(ctx context.Context, mailID string) (bool, error) {
	if ok, _ := d.overlay.Contains(ctx, mailID); ok {
		return true, nil
	}
	return d.inner.Contains(ctx, mailID)
}

func (d *dryRun) Record(ctx context.Context, mailID, recipientName string) error {
	return d.overlay.Record(ctx, mailID, recipientName)
}

func (d *dryRun) Records(ctx context.Context) ([]model.ProcessedRecord, error) {
	records, err := d.inner.Records(ctx)
	if err != nil {
		return nil, err
	}
	extra, _ := d.overlay.Records(ctx)
	records = append(records, extra...)
	sortNewestFirst(records)
	return records, nil
}

func (d *dryRun) Close() error {
	return d.inner.Close()
}
