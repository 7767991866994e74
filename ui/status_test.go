package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/playback"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-time.Second, "0:00"},
		{0, "0:00"},
		{9 * time.Second, "0:09"},
		{75 * time.Second, "1:15"},
		{10*time.Minute + 5*time.Second, "10:05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestCompactStatusIdle(t *testing.T) {
	s := NewStatusDisplay()
	assert.Empty(t, s.CompactStatus())

	s.SetError(errors.New("boom"))
	assert.Contains(t, s.CompactStatus(), "✗")
}

func TestCompactStatusPlaying(t *testing.T) {
	s := NewStatusDisplay()
	s.Update(playback.Status{
		State:    playback.StatePlaying,
		Verse:    ayah.Verse{Chapter: 2, InChapter: 255, Global: 262},
		Position: 3 * time.Second,
		Duration: 64 * time.Second,
	})

	out := s.CompactStatus()
	assert.Contains(t, out, "▶")
	assert.Contains(t, out, "2:255")
	assert.Contains(t, out, "0:03/1:04")
}

func TestResolvingShowsRequestedVerse(t *testing.T) {
	s := NewStatusDisplay()
	s.Update(playback.Status{
		State:     playback.StateResolving,
		Verse:     ayah.Verse{Chapter: 1, InChapter: 1, Global: 1},
		Requested: ayah.Verse{Chapter: 1, InChapter: 4, Global: 4},
	})
	assert.Contains(t, s.CompactStatus(), "1:4")
	assert.Contains(t, s.CompactStatus(), "⟳")
}

func TestUpdateFromEvent(t *testing.T) {
	s := NewStatusDisplay()
	v := ayah.Verse{Chapter: 1, InChapter: 2, Global: 2}

	s.UpdateFromEvent(playback.Failed{Verse: v, Err: errors.New("no audio")})
	assert.Contains(t, s.DetailedStatus(60), "no audio")

	s.UpdateFromEvent(playback.VerseChanged{Verse: v})
	s.UpdateFromEvent(playback.StateChanged{State: playback.StatePlaying})
	s.UpdateFromEvent(playback.TimeUpdate{Verse: v, Position: time.Second, Duration: 4 * time.Second})

	st := s.Status()
	assert.Equal(t, v, st.Verse)
	assert.Equal(t, playback.StatePlaying, st.State)
	assert.InDelta(t, 0.25, st.Progress(), 1e-9)
	assert.NotContains(t, s.DetailedStatus(60), "no audio", "a new verse clears the error")

	s.UpdateFromEvent(playback.OptionsChanged{Status: playback.Status{Speed: 1.5, Repeat: ayah.RepeatRange, Markers: ayah.Markers{A: 3}}})
	assert.Equal(t, "1.5x · repeat range · A3 B-", s.Options())
}

func TestDetailedStatusTruncatesErrors(t *testing.T) {
	s := NewStatusDisplay()
	s.Update(playback.Status{
		State:     playback.StatePaused,
		Verse:     ayah.Verse{Chapter: 1, InChapter: 1, Global: 1},
		Selection: ayah.Selection{ReciterID: "alafasy", Bitrate: ayah.BitrateLow},
		Speed:     1,
		Duration:  time.Second,
	})
	s.SetError(errors.New(strings.Repeat("x", 500)))

	out := s.DetailedStatus(40)
	assert.Contains(t, out, "Verse 1:1 (#1)")
	assert.Contains(t, out, "alafasy, 64 kbps")
	assert.Contains(t, out, ellipsis)
	assert.NotContains(t, out, strings.Repeat("x", 100))
}

func TestProgressBarTooNarrow(t *testing.T) {
	s := NewStatusDisplay()
	assert.Empty(t, s.ProgressBar(5))
	assert.NotEmpty(t, s.ProgressBar(20))
}
