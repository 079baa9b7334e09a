package progress

import (
	"sync"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mailscan-to-drive/stats"
)

// Bar shows a terminal progress bar over the items of one run.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	handled int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar that is only drawn when logLevel is "info".
func New(logLevel string) *Bar {
	return &Bar{enabled: logLevel == "info"}
}

// Begin starts the bar once the feed size is known.
func (b *Bar) Begin(total, alreadyDone int) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.total = total
	pb, err := pterm.DefaultProgressbar.
		WithTotal(max(total, 1)).
		WithTitle("Processing mail items").
		Start()
	if err != nil {
		b.enabled = false
		return
	}
	b.pb = pb

	pterm.Info.Printf("Mail items in feed: %d\n", total)
	pterm.Info.Printf("Already in ledger: %d\n", alreadyDone)
	pterm.Println()
}

// Handle advances the bar once per scanned item.
func (b *Bar) Handle(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		return
	}

	switch evt.Type {
	case stats.EventTypeScanned:
		b.handled++
		b.pb.Increment()

		if evt.Recipient != "" {
			title := evt.Recipient
			if len(title) > 40 {
				title = title[:37] + "..."
			}
			b.pb.UpdateTitle("Processing: " + title)
		}
	case stats.EventTypeError:
		// shown above the bar
		if evt.Err != nil {
			pterm.Error.Printf("%s %s: %v\n", evt.Stage, evt.MailID, evt.Err)
		}
	}
}

// End stops the bar and prints the run summary.
func (b *Bar) End(summary stats.Summary) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		return
	}
	if b.pb.Current < b.pb.Total {
		b.pb.Current = b.pb.Total
	}
	b.pb.Stop()
	b.pb = nil

	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Duration: %v\n", summary.Duration)
	pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
	pterm.Info.Printf("Already processed: %d\n", summary.Duplicates)
	pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
	pterm.Info.Printf("Matched: %d, unmatched: %d, folders created: %d\n", summary.Matched, summary.Unmatched, summary.FoldersCreated)
	pterm.Info.Printf("Uploaded: %d\n", summary.Uploaded)
	pterm.Info.Printf("Dry-run uploaded: %d\n", summary.DryRunUploaded)
	pterm.Info.Printf("Missing URL: %d\n", summary.MissingURL)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
	pterm.Success.Println("Run complete!")
}

// Handled returns how many scanned events the bar has counted.
func (b *Bar) Handled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handled
}
