package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dhcgn/mailscan-to-drive/model"
)

// RedisLedger keeps processed records in a single hash keyed by mail id.
type RedisLedger struct {
	rdb    *goredis.Client
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// OpenRedis connects using a redis:// or rediss:// URL.
func OpenRedis(ctx context.Context, url string, logger *slog.Logger) (*RedisLedger, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisLedger{rdb: rdb, key: TableName, logger: logger, now: time.Now}, nil
}

func (l *RedisLedger) ProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	ids, err := l.rdb.HKeys(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("listing processed mail ids: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (l *RedisLedger) Contains(ctx context.Context, mailID string) (bool, error) {
	ok, err := l.rdb.HExists(ctx, l.key, mailID).Result()
	if err != nil {
		return false, fmt.Errorf("looking up mail id %s: %w", mailID, err)
	}
	return ok, nil
}

func (l *RedisLedger) Record(ctx context.Context, mailID, recipientName string) error {
	if err := validateMailID(mailID); err != nil {
		return err
	}

	data, err := json.Marshal(model.ProcessedRecord{
		MailID:        mailID,
		RecipientName: recipientName,
		ProcessedAt:   l.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}

	inserted, err := l.rdb.HSetNX(ctx, l.key, mailID, data).Result()
	if err != nil {
		return fmt.Errorf("inserting processed mail id %s: %w", mailID, err)
	}
	if !inserted {
		l.logger.Warn("mail id already recorded", "mailID", mailID)
	}
	return nil
}

func (l *RedisLedger) Records(ctx context.Context) ([]model.ProcessedRecord, error) {
	entries, err := l.rdb.HGetAll(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("listing processed records: %w", err)
	}

	records := make([]model.ProcessedRecord, 0, len(entries))
	for id, raw := range entries {
		var rec model.ProcessedRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			l.logger.Warn("unreadable ledger entry", "mailID", id, "err", err)
			rec = model.ProcessedRecord{}
		}
		rec.MailID = id
		records = append(records, rec)
	}

	sortNewestFirst(records)
	return records, nil
}

func (l *RedisLedger) Close() error {
	return l.rdb.Close()
}
