package reciter

import (
	"github.com/sahilm/fuzzy"
	"github.com/samber/lo"
)

// Edition is an audio edition as listed by the content provider.
type Edition struct {
	Identifier  string `json:"identifier"`
	Language    string `json:"language"`
	Name        string `json:"name"`
	EnglishName string `json:"englishName"`
	Format      string `json:"format"`
	Type        string `json:"type"`
}

// EditionMatch pairs a catalog reciter with a remote edition.
type EditionMatch struct {
	Reciter    Reciter
	Edition    Edition
	Confidence Confidence
}

// MatchEditions pairs each reciter with the remote edition that serves it.
// Reciters with an IslamicCode are matched by identifier; the rest fall
// back to name comparison and are reported as guesses when fuzzy.
// Reciters without any candidate are left out.
func (c *Catalog) MatchEditions(editions []Edition) []EditionMatch {
	byIdentifier := lo.KeyBy(editions, func(e Edition) string { return e.Identifier })
	names := lo.Map(editions, func(e Edition, _ int) string { return Normalize(e.EnglishName) })

	var out []EditionMatch
	for _, r := range c.reciters {
		if r.IslamicCode != "" {
			if ed, ok := byIdentifier[r.IslamicCode]; ok {
				out = append(out, EditionMatch{Reciter: r, Edition: ed, Confidence: Verified})
				continue
			}
		}

		own := r.normalizedNames()
		if idx := lo.IndexOf(lo.Map(names, func(n string, _ int) bool { return lo.Contains(own, n) }), true); idx >= 0 {
			out = append(out, EditionMatch{Reciter: r, Edition: editions[idx], Confidence: Normalized})
			continue
		}

		if matches := fuzzy.Find(Normalize(r.Name), names); len(matches) > 0 {
			out = append(out, EditionMatch{Reciter: r, Edition: editions[matches[0].Index], Confidence: Guessed})
		}
	}
	return out
}
