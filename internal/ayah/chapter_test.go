package ayah

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChapter(t *testing.T, number, count, firstGlobal int) *Chapter {
	t.Helper()
	verses := make([]Verse, 0, count)
	for i := 1; i <= count; i++ {
		verses = append(verses, Verse{Chapter: number, InChapter: i, Global: firstGlobal + i - 1})
	}
	ch, err := NewChapter(number, fmt.Sprintf("chapter %d", number), verses)
	require.NoError(t, err)
	return ch
}

func TestNextInChapter(t *testing.T) {
	ch := testChapter(t, 2, 10, 8)

	tests := []struct {
		name   string
		verse  Verse
		want   int
		wantOK bool
	}{
		{"first", Verse{Chapter: 2, InChapter: 1}, 2, true},
		{"middle", Verse{Chapter: 2, InChapter: 5}, 6, true},
		{"penultimate", Verse{Chapter: 2, InChapter: 9}, 10, true},
		{"last", Verse{Chapter: 2, InChapter: 10}, 0, false},
		{"not in chapter", Verse{Chapter: 2, InChapter: 42}, 0, false},
		{"other chapter", Verse{Chapter: 3, InChapter: 1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := ch.NextInChapter(tt.verse)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, next.InChapter)
				assert.Equal(t, 2, next.Chapter)
			}
		})
	}
}

func TestNextInChapterKeepsGlobalNumbering(t *testing.T) {
	ch := testChapter(t, 2, 3, 8)

	next, ok := ch.NextInChapter(Verse{Chapter: 2, InChapter: 1})
	require.True(t, ok)
	assert.Equal(t, 9, next.Global)
}

func TestNewChapterOrdersAndDedupes(t *testing.T) {
	ch, err := NewChapter(1, "", []Verse{
		{Chapter: 1, InChapter: 3, Global: 3},
		{Chapter: 1, InChapter: 1, Global: 1},
		{Chapter: 1, InChapter: 2, Global: 2},
		{Chapter: 1, InChapter: 1, Global: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 3, ch.Len())
	for i, v := range ch.Verses {
		assert.Equal(t, i+1, v.InChapter)
	}

	first, ok := ch.First()
	require.True(t, ok)
	assert.Equal(t, 1, first.InChapter)

	prev, ok := ch.PreviousInChapter(Verse{Chapter: 1, InChapter: 1})
	assert.False(t, ok)
	assert.True(t, prev.IsZero())
}

func TestNewChapterRejectsForeignVerses(t *testing.T) {
	_, err := NewChapter(1, "", []Verse{{Chapter: 2, InChapter: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestSpan(t *testing.T) {
	ch := testChapter(t, 1, 7, 1)

	assert.Len(t, ch.Span(0, 0), 7)
	assert.Len(t, ch.Span(3, 5), 3)
	assert.Len(t, ch.Span(6, 0), 2)
	assert.Empty(t, ch.Span(8, 9))
}
