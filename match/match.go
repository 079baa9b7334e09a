// Package match scores how similar a free-text name is to candidate folder names.
//
// Scores are integers from 0 to 100. WRatio is the scorer used for destination
// resolution: it is insensitive to token order, letter case, punctuation and
// diacritics, and tolerant of one name being a fragment of the other.
package match

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	unbaseScale        = 0.95
	partialScale       = 0.90
	farPartialScale    = 0.6
	partialLengthRatio = 1.5
	farLengthRatio     = 8
)

// Scored is one choice with its score against a query.
type Scored struct {
	Choice string
	Index  int
	Score  int
}

// Normalize folds diacritics, lower-cases, turns everything that is not a
// letter or digit into a space and collapses runs of whitespace.
func Normalize(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteByte(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Ratio is the plain sequence similarity of a and b, without any preprocessing.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	return percent(difflib.NewMatcher(chars(a), chars(b)).Ratio())
}

// PartialRatio scores the best alignment of the shorter string inside the longer one.
func PartialRatio(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	shorter, longer := chars(a), chars(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	best := 0.0
	blocks := difflib.NewMatcher(shorter, longer).GetMatchingBlocks()
	for _, block := range blocks {
		start := block.B - block.A
		if start < 0 {
			start = 0
		}
		end := start + len(shorter)
		if end > len(longer) {
			end = len(longer)
		}

		r := difflib.NewMatcher(shorter, longer[start:end]).Ratio()
		if r > 0.995 {
			return 100
		}
		if r > best {
			best = r
		}
	}
	return percent(best)
}

// TokenSortRatio compares both strings after normalizing and sorting their tokens.
func TokenSortRatio(a, b string) int {
	return Ratio(sortedTokens(Normalize(a)), sortedTokens(Normalize(b)))
}

// PartialTokenSortRatio is TokenSortRatio with partial alignment.
func PartialTokenSortRatio(a, b string) int {
	return PartialRatio(sortedTokens(Normalize(a)), sortedTokens(Normalize(b)))
}

// TokenSetRatio compares the shared tokens of both strings against each side's remainder.
func TokenSetRatio(a, b string) int {
	return tokenSet(Normalize(a), Normalize(b), Ratio)
}

// PartialTokenSetRatio is TokenSetRatio with partial alignment.
func PartialTokenSetRatio(a, b string) int {
	return tokenSet(Normalize(a), Normalize(b), PartialRatio)
}

// WRatio combines the scorers above, weighting the partial ones down, and
// returns the best result.
func WRatio(a, b string) int {
	p1, p2 := Normalize(a), Normalize(b)
	if p1 == "" || p2 == "" {
		return 0
	}

	base := float64(Ratio(p1, p2))

	l1, l2 := utf8.RuneCountInString(p1), utf8.RuneCountInString(p2)
	lengthRatio := float64(max(l1, l2)) / float64(min(l1, l2))

	if lengthRatio < partialLengthRatio {
		tsor := float64(TokenSortRatio(p1, p2)) * unbaseScale
		tser := float64(TokenSetRatio(p1, p2)) * unbaseScale
		return round(max(base, tsor, tser))
	}

	scale := partialScale
	if lengthRatio > farLengthRatio {
		scale = farPartialScale
	}

	partial := float64(PartialRatio(p1, p2)) * scale
	ptsor := float64(PartialTokenSortRatio(p1, p2)) * unbaseScale * scale
	ptser := float64(PartialTokenSetRatio(p1, p2)) * unbaseScale * scale
	return round(max(base, partial, ptsor, ptser))
}

// Rank scores every choice against query with WRatio and returns them ordered
// by descending score. Equal scores keep their input order.
func Rank(query string, choices []string) []Scored {
	scored := make([]Scored, 0, len(choices))
	for idx, choice := range choices {
		scored = append(scored, Scored{Choice: choice, Index: idx, Score: WRatio(query, choice)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

func tokenSet(p1, p2 string, scorer func(a, b string) int) int {
	if p1 == "" || p2 == "" {
		return 0
	}

	t1 := tokenSetOf(p1)
	t2 := tokenSetOf(p2)

	var sect, diff1, diff2 []string
	for tok := range t1 {
		if _, ok := t2[tok]; ok {
			sect = append(sect, tok)
		} else {
			diff1 = append(diff1, tok)
		}
	}
	for tok := range t2 {
		if _, ok := t1[tok]; !ok {
			diff2 = append(diff2, tok)
		}
	}
	sort.Strings(sect)
	sort.Strings(diff1)
	sort.Strings(diff2)

	sortedSect := strings.Join(sect, " ")
	combined1 := strings.TrimSpace(sortedSect + " " + strings.Join(diff1, " "))
	combined2 := strings.TrimSpace(sortedSect + " " + strings.Join(diff2, " "))

	return max(
		scorer(sortedSect, combined1),
		scorer(sortedSect, combined2),
		scorer(combined1, combined2),
	)
}

func tokenSetOf(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func sortedTokens(s string) string {
	fields := strings.Fields(s)
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func percent(r float64) int {
	return round(100 * r)
}

func round(f float64) int {
	return int(math.RoundToEven(f))
}
