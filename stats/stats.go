package stats

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageFeed    Stage = "feed"
	StageResolve Stage = "resolve"
	StageMove    Stage = "move"
	StageLedger  Stage = "ledger"
)

type EventType string

const (
	EventTypeScanned      EventType = "scanned"
	EventTypeDuplicate    EventType = "duplicate"
	EventTypeFiltered     EventType = "filtered"
	EventTypeMissingURL   EventType = "missing_url"
	EventTypeMatched      EventType = "matched"
	EventTypeUnmatched    EventType = "unmatched"
	EventTypeCreated      EventType = "folder_created"
	EventTypeUploaded     EventType = "uploaded"
	EventTypeDryRunUpload EventType = "dry_run_uploaded"
	EventTypeError        EventType = "error"
)

// EventTypes lists every event type, in pipeline order.
func EventTypes() []EventType {
	return []EventType{
		EventTypeScanned,
		EventTypeDuplicate,
		EventTypeFiltered,
		EventTypeMissingURL,
		EventTypeMatched,
		EventTypeUnmatched,
		EventTypeCreated,
		EventTypeUploaded,
		EventTypeDryRunUpload,
		EventTypeError,
	}
}

type Event struct {
	Stage     Stage
	Type      EventType
	MailID    string
	Recipient string
	FolderID  string
	Score     int
	Err       error
	Detail    string
}

// Sink receives run events synchronously, in emission order.
type Sink interface {
	Handle(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Handle(evt Event) { f(evt) }

type Summary struct {
	Scanned        int
	Duplicates     int
	Filtered       int
	MissingURL     int
	Matched        int
	Unmatched      int
	FoldersCreated int
	Uploaded       int
	DryRunUploaded int
	Errors         int
	LastError      error
	Duration       time.Duration
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"duplicates", s.Duplicates,
		"filtered", s.Filtered,
		"missingURL", s.MissingURL,
		"matched", s.Matched,
		"unmatched", s.Unmatched,
		"foldersCreated", s.FoldersCreated,
		"uploaded", s.Uploaded,
		"dryRunUploaded", s.DryRunUploaded,
		"errors", s.Errors,
	}
	if s.Duration > 0 {
		attrs = append(attrs, "duration", s.Duration)
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Handle(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeMissingURL:
		c.summary.MissingURL++
	case EventTypeMatched:
		c.summary.Matched++
	case EventTypeUnmatched:
		c.summary.Unmatched++
	case EventTypeCreated:
		c.summary.FoldersCreated++
	case EventTypeUploaded:
		c.summary.Uploaded++
	case EventTypeDryRunUpload:
		c.summary.DryRunUploaded++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// PrintTop writes the limit most frequent keys of m to w, ties broken by key.
func PrintTop(w io.Writer, m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
