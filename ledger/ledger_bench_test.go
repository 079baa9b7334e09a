package ledger

import (
	"context"
	"fmt"
	"testing"
)

// BenchmarkFileLedger_Record measures append throughput for the JSONL ledger.
func BenchmarkFileLedger_Record(b *testing.B) {
	l, err := NewFileLedger(b.TempDir(), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer l.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := l.Record(ctx, fmt.Sprintf("mail-%d", i), "John Smith"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFileLedger_Load measures reopening a ledger with 10000 records.
func BenchmarkFileLedger_Load(b *testing.B) {
	dir := b.TempDir()
	l, err := NewFileLedger(dir, nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		if err := l.Record(ctx, fmt.Sprintf("mail-%d", i), "John Smith"); err != nil {
			b.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l, err := NewFileLedger(dir, nil)
		if err != nil {
			b.Fatal(err)
		}
		l.Close()
	}
}

func BenchmarkMemoryLedger_ProcessedIDs(b *testing.B) {
	l := NewMemoryLedger(nil)
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		if err := l.Record(ctx, fmt.Sprintf("mail-%d", i), "Jane Doe"); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := l.ProcessedIDs(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
