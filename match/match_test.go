package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  O'Brien-Smith,  Mary ": "o brien smith mary",
		"José Núñez":              "jose nunez",
		"JOHN SMITH!":             "john smith",
		"":                        "",
		"---":                     "",
		"Unit 4B":                 "unit 4b",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100, Ratio("", ""))
	assert.Equal(t, 0, Ratio("", "abc"))
	assert.Equal(t, 75, Ratio("abcd", "abce"))
	assert.Equal(t, 97, Ratio("this is a test", "this is a test!"))
}

func TestPartialRatio(t *testing.T) {
	assert.Equal(t, 100, PartialRatio("smith", "john smith"))
	assert.Equal(t, 100, PartialRatio("john smith", "smith"))
	assert.Equal(t, 0, PartialRatio("", "smith"))
}

func TestTokenSetRatio_IgnoresExtraTokens(t *testing.T) {
	assert.Equal(t, 100, TokenSetRatio("John Smith", "John A. Smith"))
}

func TestTokenSortRatio_IgnoresOrder(t *testing.T) {
	assert.Equal(t, 100, TokenSortRatio("Smith, John", "john smith"))
}

func TestWRatio(t *testing.T) {
	assert.Equal(t, 100, WRatio("JOHN SMITH!", "john smith"))
	assert.Equal(t, 100, WRatio("José Núñez", "Jose Nunez"))
	assert.Equal(t, 95, WRatio("John Smith", "Smith, John"))
	assert.Equal(t, 0, WRatio("", "John Smith"))
	assert.Equal(t, 0, WRatio("John Smith", "!!!"))
}

func TestWRatio_Bounded(t *testing.T) {
	pairs := [][2]string{
		{"John Smith", "Smith Household"},
		{"Acme Holdings LLC", "Acme"},
		{"a", "a very long folder name that has nothing in common"},
		{"Δημήτρης", "Dimitris"},
	}
	for _, p := range pairs {
		score := WRatio(p[0], p[1])
		assert.GreaterOrEqual(t, score, 0, "%q vs %q", p[0], p[1])
		assert.LessOrEqual(t, score, 100, "%q vs %q", p[0], p[1])
	}
}

func TestRank(t *testing.T) {
	ranked := Rank("John Smith", []string{"Smith Household", "John Smith"})
	require.Len(t, ranked, 2)
	assert.Equal(t, "John Smith", ranked[0].Choice)
	assert.Equal(t, 1, ranked[0].Index)
	assert.Equal(t, 100, ranked[0].Score)
	assert.Equal(t, "Smith Household", ranked[1].Choice)
	assert.Less(t, ranked[1].Score, 90)
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	ranked := Rank("acme", []string{"ACME", "acme"})
	require.Len(t, ranked, 2)
	assert.Equal(t, 0, ranked[0].Index)
	assert.Equal(t, 1, ranked[1].Index)
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank("John Smith", nil))
}
