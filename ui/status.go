package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/playback"
)

// StatusDisplay renders playback status for the status bar and the detail
// panel.
type StatusDisplay struct {
	status       playback.Status
	errorMessage string
	bar          progress.Model
}

// NewStatusDisplay creates a new status display.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{
		bar: progress.New(progress.WithSolidFill(string(green)), progress.WithoutPercentage()),
	}
}

// Update replaces the snapshot. The error message survives until a new
// verse starts playing.
func (s *StatusDisplay) Update(st playback.Status) {
	if st.Verse != s.status.Verse && st.State == playback.StatePlaying {
		s.errorMessage = ""
	}
	s.status = st
}

// UpdateFromEvent applies the parts of an event that are not part of the
// status snapshot.
func (s *StatusDisplay) UpdateFromEvent(e playback.Event) {
	switch e := e.(type) {
	case playback.VerseChanged:
		s.errorMessage = ""
		s.status.Verse = e.Verse
	case playback.StateChanged:
		s.status.State = e.State
	case playback.TimeUpdate:
		s.status.Position = e.Position
		s.status.Duration = e.Duration
	case playback.Failed:
		s.SetError(e.Err)
	case playback.OptionsChanged:
		s.status = e.Status
	}
}

// SetError shows err until the next verse starts.
func (s *StatusDisplay) SetError(err error) {
	if err == nil {
		s.errorMessage = ""
		return
	}
	s.errorMessage = err.Error()
}

// Status returns the last snapshot.
func (s *StatusDisplay) Status() playback.Status {
	return s.status
}

// CompactStatus returns a compact status string for the status bar.
func (s *StatusDisplay) CompactStatus() string {
	if s.status.State == playback.StateIdle && s.errorMessage == "" {
		return ""
	}

	statusStyle := lipgloss.NewStyle().Foreground(s.stateColor())
	status := statusStyle.Render(fmt.Sprintf("%s %s", s.stateIcon(), s.status.State))

	if v := s.shownVerse(); !v.IsZero() {
		counterStyle := lipgloss.NewStyle().Foreground(gray)
		status += counterStyle.Render(" " + v.String())
	}

	if s.status.Duration > 0 {
		status += subtleStyle.Render(fmt.Sprintf(" %s/%s",
			formatDuration(s.status.Position), formatDuration(s.status.Duration)))
	}
	return status
}

// Options returns the speed, repeat and continuity summary.
func (s *StatusDisplay) Options() string {
	parts := []string{
		strconv.FormatFloat(s.status.Speed, 'f', -1, 64) + "x",
		"repeat " + s.status.Repeat.String(),
	}
	if m := s.status.Markers; m.A > 0 || m.B > 0 {
		parts = append(parts, fmt.Sprintf("A%s B%s", markerText(m.A), markerText(m.B)))
	}
	if s.status.Continuity {
		parts = append(parts, "continuous")
	}
	return strings.Join(parts, " · ")
}

// DetailedStatus returns a detailed multi-line status for display panels.
func (s *StatusDisplay) DetailedStatus(width int) string {
	var lines []string

	stateStyle := lipgloss.NewStyle().Foreground(s.stateColor())
	lines = append(lines, stateStyle.Render(fmt.Sprintf("%s %s", s.stateIcon(), s.status.State)))

	if v := s.shownVerse(); !v.IsZero() {
		lines = append(lines, fmt.Sprintf("Verse %s (#%d)", v, v.Global))
	}
	if sel := s.status.Selection; sel.ReciterID != "" {
		lines = append(lines, fmt.Sprintf("Reciter %s, %s kbps", sel.ReciterID, sel.Bitrate))
	}
	lines = append(lines, s.Options())

	if s.status.Duration > 0 && width > 20 {
		lines = append(lines, s.ProgressBar(width-4))
	}

	if s.errorMessage != "" {
		errorLine := truncate.StringWithTail(s.errorMessage, uint(max(width-9, 10)), ellipsis) //nolint:gosec
		lines = append(lines, errorStyle.Render("Error: "+errorLine))
	}

	return strings.Join(lines, "\n")
}

// ProgressBar returns the position of the current verse as a bar.
func (s *StatusDisplay) ProgressBar(width int) string {
	if width < 10 {
		return ""
	}
	s.bar.Width = width
	return s.bar.ViewAs(s.status.Progress())
}

// shownVerse is the verse being resolved, or the one playing.
func (s *StatusDisplay) shownVerse() ayah.Verse {
	if s.status.State == playback.StateResolving && !s.status.Requested.IsZero() {
		return s.status.Requested
	}
	return s.status.Verse
}

// stateColor returns the appropriate color for the current state.
func (s *StatusDisplay) stateColor() lipgloss.Color {
	if s.errorMessage != "" {
		return red
	}
	switch s.status.State {
	case playback.StatePlaying:
		return green
	case playback.StatePaused:
		return yellow
	case playback.StateResolving:
		return blue
	default:
		return darkGray
	}
}

// stateIcon returns an icon for the current state.
func (s *StatusDisplay) stateIcon() string {
	if s.errorMessage != "" {
		return "✗"
	}
	switch s.status.State {
	case playback.StatePlaying:
		return "▶"
	case playback.StatePaused:
		return "⏸"
	case playback.StateResolving:
		return "⟳"
	default:
		return "■"
	}
}

func markerText(n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprint(n)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
