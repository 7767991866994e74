package reciter

import (
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// Confidence says how a match was obtained.
type Confidence int

const (
	// Guessed matches come from substring or fuzzy search and may be wrong.
	Guessed Confidence = iota + 1

	// Normalized matches compare equal after folding case, diacritics
	// and punctuation.
	Normalized

	// Verified matches come from the explicit mapping table.
	Verified
)

func (c Confidence) String() string {
	switch c {
	case Verified:
		return "verified"
	case Normalized:
		return "normalized"
	case Guessed:
		return "guessed"
	default:
		return "none"
	}
}

// Match is the result of a lookup.
type Match struct {
	Reciter    Reciter
	Confidence Confidence
}

// IsGuess reports whether the match should be presented as a best effort.
func (m Match) IsGuess() bool {
	return m.Confidence == Guessed
}

// Lookup finds the reciter best described by query. Lookups go from the
// explicit table, to normalized equality, to substring containment and
// finally to fuzzy search.
func (c *Catalog) Lookup(query string) (Match, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Match{}, ayah.NewError(ayah.CodeInvalidInput, "empty reciter query", nil)
	}

	if id, ok := c.explicit[strings.ToLower(q)]; ok {
		return Match{Reciter: c.byID[id], Confidence: Verified}, nil
	}

	nq := Normalize(q)
	if nq == "" {
		return Match{}, ayah.NewError(ayah.CodeNotFound, "no reciter matches", nil).WithContext("query", query)
	}

	for _, r := range c.reciters {
		if lo.Contains(r.normalizedNames(), nq) {
			return Match{Reciter: r, Confidence: Normalized}, nil
		}
	}

	// Prefer the shortest name containing the query so "sudais" does not
	// land on a longer name that happens to contain it.
	contains := lo.Filter(c.reciters, func(r Reciter, _ int) bool {
		return lo.SomeBy(r.normalizedNames(), func(n string) bool {
			return strings.Contains(n, nq) || (len(nq) >= 5 && strings.Contains(nq, n) && len(n) >= 5)
		})
	})
	if len(contains) > 0 {
		best := lo.MinBy(contains, func(a, b Reciter) bool { return len(a.Name) < len(b.Name) })
		return Match{Reciter: best, Confidence: Guessed}, nil
	}

	names := lo.Map(c.reciters, func(r Reciter, _ int) string { return Normalize(r.Name) })
	if matches := fuzzy.Find(nq, names); len(matches) > 0 {
		return Match{Reciter: c.reciters[matches[0].Index], Confidence: Guessed}, nil
	}

	return Match{}, ayah.NewError(ayah.CodeNotFound, "no reciter matches", nil).WithContext("query", query)
}

func (r Reciter) normalizedNames() []string {
	names := make([]string, 0, 2+len(r.Aliases))
	names = append(names, Normalize(r.ID), Normalize(r.Name))
	if r.IslamicCode != "" {
		names = append(names, Normalize(r.IslamicCode))
	}
	for _, a := range r.Aliases {
		names = append(names, Normalize(a))
	}
	return names
}

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds s for comparison: diacritics removed, lower case, only
// letters and digits kept, and the Arabic article "al" dropped.
func Normalize(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		folded = s
	}

	fields := strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var b strings.Builder
	for _, f := range fields {
		if f == "al" || f == "el" || f == "ar" {
			continue
		}
		b.WriteString(f)
	}
	return b.String()
}
