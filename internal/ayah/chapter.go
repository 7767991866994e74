package ayah

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Chapter is the ordered verse list of one chapter as returned by the
// content provider.
type Chapter struct {
	Number int
	Name   string
	Verses []Verse
}

// NewChapter builds a chapter, ordering the verses by their in-chapter
// number and dropping duplicates.
func NewChapter(number int, name string, verses []Verse) (*Chapter, error) {
	if number <= 0 {
		return nil, NewError(CodeInvalidInput, fmt.Sprintf("invalid chapter number %d", number), nil)
	}
	for _, v := range verses {
		if v.Chapter != number {
			return nil, NewError(CodeInvalidInput, "verse belongs to another chapter", nil).
				WithContext("chapter", number).
				WithContext("verse", v.String())
		}
		if v.InChapter <= 0 {
			return nil, NewError(CodeInvalidInput, "verse number must be positive", nil).
				WithContext("verse", v.String())
		}
	}

	ordered := lo.UniqBy(verses, func(v Verse) int { return v.InChapter })
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].InChapter < ordered[j].InChapter })

	return &Chapter{Number: number, Name: name, Verses: ordered}, nil
}

// Len returns the number of verses.
func (c *Chapter) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Verses)
}

// First returns the first verse of the chapter.
func (c *Chapter) First() (Verse, bool) {
	if c.Len() == 0 {
		return Verse{}, false
	}
	return c.Verses[0], true
}

// Last returns the last verse of the chapter.
func (c *Chapter) Last() (Verse, bool) {
	if c.Len() == 0 {
		return Verse{}, false
	}
	return c.Verses[len(c.Verses)-1], true
}

// IndexOf returns the position of v in the ordered list, or -1.
func (c *Chapter) IndexOf(v Verse) int {
	if c.Len() == 0 || v.Chapter != c.Number {
		return -1
	}
	_, idx, ok := lo.FindIndexOf(c.Verses, func(item Verse) bool {
		return item.InChapter == v.InChapter
	})
	if !ok {
		return -1
	}
	return idx
}

// Verse looks up a verse by its in-chapter number.
func (c *Chapter) Verse(inChapter int) (Verse, bool) {
	if c.Len() == 0 {
		return Verse{}, false
	}
	return lo.Find(c.Verses, func(item Verse) bool {
		return item.InChapter == inChapter
	})
}

// NextInChapter returns the verse following v. It reports false when v is
// the last verse or is not part of the chapter.
func (c *Chapter) NextInChapter(v Verse) (Verse, bool) {
	idx := c.IndexOf(v)
	if idx < 0 || idx+1 >= len(c.Verses) {
		return Verse{}, false
	}
	return c.Verses[idx+1], true
}

// PreviousInChapter returns the verse before v.
func (c *Chapter) PreviousInChapter(v Verse) (Verse, bool) {
	idx := c.IndexOf(v)
	if idx <= 0 {
		return Verse{}, false
	}
	return c.Verses[idx-1], true
}

// Span returns the verses with in-chapter numbers between from and to
// inclusive. Zero bounds mean the start or end of the chapter.
func (c *Chapter) Span(from, to int) []Verse {
	if c.Len() == 0 {
		return nil
	}
	return lo.Filter(c.Verses, func(v Verse, _ int) bool {
		if from > 0 && v.InChapter < from {
			return false
		}
		if to > 0 && v.InChapter > to {
			return false
		}
		return true
	})
}
