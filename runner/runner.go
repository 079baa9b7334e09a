package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dhcgn/mailscan-to-drive/model"
	"github.com/dhcgn/mailscan-to-drive/mover"
	"github.com/dhcgn/mailscan-to-drive/stats"
)

var ErrMailIDMissing = errors.New("mail item missing id")

type Feed interface {
	FetchItems(ctx context.Context, status string) ([]model.MailItem, error)
}

type Ledger interface {
	ProcessedIDs(ctx context.Context) (map[string]struct{}, error)
	Record(ctx context.Context, mailID, recipientName string) error
}

type Resolver interface {
	Resolve(ctx context.Context, recipientName string) (model.Resolution, error)
}

type Mover interface {
	Move(ctx context.Context, req mover.Request) (string, error)
}

// Filter gates items by recipient before any destination work happens.
type Filter interface {
	Allows(recipient string) bool
}

// Observer is notified when a run starts and ends, in addition to its events.
type Observer interface {
	Begin(total, alreadyDone int)
	End(summary stats.Summary)
}

type Options struct {
	Status string
	DryRun bool
	Filter Filter
}

// Runner executes one pass over the feed: skip what the ledger already holds,
// resolve a folder, move the document, then record the id. Items are handled
// strictly one after another.
type Runner struct {
	feed     Feed
	ledger   Ledger
	resolver Resolver
	mover    Mover
	opts     Options
	logger   *slog.Logger

	sinks     []stats.Sink
	observers []Observer
	now       func() time.Time
}

func New(feed Feed, ledger Ledger, resolver Resolver, mv Mover, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Status == "" {
		opts.Status = "completed"
	}
	return &Runner{
		feed:     feed,
		ledger:   ledger,
		resolver: resolver,
		mover:    mv,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// AddSink registers a receiver for run events. Sinks that also implement
// Observer get Begin and End calls.
func (r *Runner) AddSink(s stats.Sink) {
	r.sinks = append(r.sinks, s)
	if obs, ok := s.(Observer); ok {
		r.observers = append(r.observers, obs)
	}
}

// Run performs one pass. Per-item failures are logged and counted; the
// returned error is set only when the feed or the ledger listing cannot be
// used at all, or when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (stats.Summary, error) {
	started := r.now()
	logger := r.logger.With("run", uuid.NewString())
	collector := stats.NewCollector()
	emit := func(evt stats.Event) {
		collector.Handle(evt)
		for _, s := range r.sinks {
			s.Handle(evt)
		}
	}

	logger.Info("run started", "status", r.opts.Status, "dryRun", r.opts.DryRun)

	items, err := r.feed.FetchItems(ctx, r.opts.Status)
	if err != nil {
		logger.Error("fetch mail items failed", "err", err)
		return collector.Snapshot(), fmt.Errorf("fetch mail items: %w", err)
	}

	processed, err := r.ledger.ProcessedIDs(ctx)
	if err != nil {
		logger.Error("load processed mail ids failed", "err", err)
		return collector.Snapshot(), fmt.Errorf("load processed mail ids: %w", err)
	}

	alreadyDone := 0
	for _, item := range items {
		if _, ok := processed[item.ID]; ok {
			alreadyDone++
		}
	}
	logger.Info("mail items fetched", "total", len(items), "alreadyProcessed", alreadyDone)
	for _, obs := range r.observers {
		obs.Begin(len(items), alreadyDone)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		r.process(ctx, logger, item, processed, emit)
	}

	summary := collector.Snapshot()
	summary.Duration = r.now().Sub(started)
	for _, obs := range r.observers {
		obs.End(summary)
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("run interrupted", append(summary.LogAttrs(), "err", err)...)
		return summary, err
	}
	logger.Info("run completed", summary.LogAttrs()...)
	return summary, nil
}

func (r *Runner) process(ctx context.Context, logger *slog.Logger, item model.MailItem, processed map[string]struct{}, emit func(stats.Event)) {
	recipient := item.RecipientName
	if recipient == "" {
		recipient = model.UnknownRecipient
	}
	logger = logger.With("mailID", item.ID)
	emit(stats.Event{Stage: stats.StageFeed, Type: stats.EventTypeScanned, MailID: item.ID, Recipient: recipient})

	if item.ID == "" {
		logger.Error("mail item has no id, skipping")
		emit(stats.Event{Stage: stats.StageFeed, Type: stats.EventTypeError, Recipient: recipient, Err: ErrMailIDMissing})
		return
	}

	if _, done := processed[item.ID]; done {
		logger.Info("mail item already processed, skipping")
		emit(stats.Event{Stage: stats.StageLedger, Type: stats.EventTypeDuplicate, MailID: item.ID, Recipient: recipient})
		return
	}

	if r.opts.Filter != nil && !r.opts.Filter.Allows(recipient) {
		logger.Info("mail item filtered out", "recipient", recipient)
		emit(stats.Event{Stage: stats.StageFeed, Type: stats.EventTypeFiltered, MailID: item.ID, Recipient: recipient})
		return
	}

	logger.Info("processing mail item", "recipient", recipient)

	if item.DocumentURL == "" {
		logger.Error("mail item has no document url, skipping", "recipient", recipient)
		emit(stats.Event{Stage: stats.StageFeed, Type: stats.EventTypeMissingURL, MailID: item.ID, Recipient: recipient})
		return
	}

	res, err := r.resolver.Resolve(ctx, recipient)
	if err != nil {
		logger.Error("resolve destination folder failed", "recipient", recipient, "err", err)
		emit(stats.Event{Stage: stats.StageResolve, Type: stats.EventTypeError, MailID: item.ID, Recipient: recipient, Err: err})
		return
	}

	resolved := stats.Event{Stage: stats.StageResolve, MailID: item.ID, Recipient: recipient, FolderID: res.FolderID, Score: res.Score}
	if res.Created {
		resolved.Type = stats.EventTypeCreated
		emit(resolved)
	}
	if res.Matched {
		resolved.Type = stats.EventTypeMatched
	} else {
		resolved.Type = stats.EventTypeUnmatched
		logger.Warn("no confident folder match, saving to default folder",
			"recipient", recipient,
			"folder", res.FolderName,
		)
	}
	emit(resolved)

	fileName := FileName(item.ID, recipient, res.Matched)
	objectID, err := r.mover.Move(ctx, mover.Request{
		ItemID:    item.ID,
		SourceURL: item.DocumentURL,
		FileName:  fileName,
		FolderID:  res.FolderID,
	})
	if err != nil {
		var dlErr *mover.DownloadError
		if errors.As(err, &dlErr) {
			logger.Error("document download failed", "status", dlErr.StatusCode, "err", err)
		} else {
			logger.Error("document move failed", "folderID", res.FolderID, "err", err)
		}
		emit(stats.Event{Stage: stats.StageMove, Type: stats.EventTypeError, MailID: item.ID, Recipient: recipient, FolderID: res.FolderID, Err: err})
		return
	}

	uploaded := stats.EventTypeUploaded
	if r.opts.DryRun {
		uploaded = stats.EventTypeDryRunUpload
	}
	emit(stats.Event{Stage: stats.StageMove, Type: uploaded, MailID: item.ID, Recipient: recipient, FolderID: res.FolderID, Detail: objectID})
	logger.Info("document uploaded", "file", fileName, "folderID", res.FolderID, "objectID", objectID)

	// The upload happened; never repeat it in this run even if recording fails.
	processed[item.ID] = struct{}{}

	if err := r.ledger.Record(ctx, item.ID, recipient); err != nil {
		logger.Error("record processed mail failed", "err", err)
		emit(stats.Event{Stage: stats.StageLedger, Type: stats.EventTypeError, MailID: item.ID, Recipient: recipient, Err: err})
	}
}

// FileName names the stored document. Files in the default folder carry the
// recipient so they can be sorted by hand.
func FileName(mailID, recipient string, matched bool) string {
	if matched {
		return sanitize(mailID) + ".pdf"
	}
	return sanitize(recipient+"_"+mailID) + ".pdf"
}

func sanitize(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	return strings.TrimSpace(name)
}
