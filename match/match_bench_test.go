package match

import (
	"fmt"
	"testing"
)

func BenchmarkWRatio(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = WRatio("John Smith", "Smith Household")
	}
}

// BenchmarkRank scores one recipient against a Drive root of 500 folders.
func BenchmarkRank(b *testing.B) {
	choices := make([]string, 500)
	for i := range choices {
		choices[i] = fmt.Sprintf("Client %d Holdings", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Rank("Acme Corp", choices)
	}
}
