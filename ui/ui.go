// Package ui provides the terminal player for ayah.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/truncate"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/playback"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show messages like "repeat: range"
	seekStep             = 5 * time.Second
	infoHeight           = 7
)

// NewProgram returns a new Tea program playing cfg.Chapter with p.
func NewProgram(cfg Config, p Player) (*tea.Program, error) {
	if cfg.Chapter == nil || cfg.Chapter.Len() == 0 {
		return nil, playback.ErrNoChapter
	}
	if err := p.LoadChapter(cfg.Chapter); err != nil {
		return nil, err
	}
	log.Debug("Starting player", "chapter", cfg.Chapter.Number, "verses", cfg.Chapter.Len())

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, p), opts...), nil
}

type model struct {
	cfg     Config
	player  Player
	chapter *ayah.Chapter
	bridge  *eventBridge

	status  *StatusDisplay
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	cursor int // index into chapter.Verses
	offset int // first visible row
	width  int
	height int

	showInfo      bool
	statusMessage string
}

func newModel(cfg Config, p Player) model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(blue)

	m := model{
		cfg:     cfg,
		player:  p,
		chapter: cfg.Chapter,
		bridge:  newEventBridge(p),
		status:  NewStatusDisplay(),
		keys:    newKeyMap(),
		help:    help.New(),
		spinner: sp,
		width:   80,
		height:  24,
	}
	m.status.Update(p.Status())
	if cfg.StartVerse > 0 {
		if idx := m.indexOf(cfg.StartVerse); idx >= 0 {
			m.cursor = idx
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.bridge.ch)}
	if !m.cfg.NoSpinner {
		cmds = append(cmds, m.spinner.Tick)
	}
	if m.cfg.StartVerse > 0 {
		cmds = append(cmds, playAtCmd(m.player, m.cfg.StartVerse))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ensureVisible()
		return m, nil

	case eventMsg:
		m.status.UpdateFromEvent(msg.event)
		if e, ok := msg.event.(playback.VerseChanged); ok && e.AutoScroll {
			if idx := m.indexOf(e.Verse.InChapter); idx >= 0 {
				m.cursor = idx
				m.ensureVisible()
			}
		}
		if _, ok := msg.event.(playback.TimeUpdate); !ok {
			m.status.Update(m.player.Status())
		}
		return m, waitForEvent(m.bridge.ch)

	case eventsClosedMsg:
		return m, nil

	case opDoneMsg:
		if msg.err != nil && !quietError(msg.err) {
			log.Debug("player command failed", "op", msg.op, "err", msg.err)
			m.status.SetError(msg.err)
		}
		m.status.Update(m.player.Status())
		return m, nil

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.status.Status()

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.bridge.close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.ensureVisible()
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.chapter.Len()-1 {
			m.cursor++
			m.ensureVisible()
		}

	case key.Matches(msg, m.keys.Play):
		return m, playAtCmd(m.player, m.chapter.Verses[m.cursor].InChapter)

	case key.Matches(msg, m.keys.Toggle):
		if !st.IsActive() && st.State != playback.StateResolving {
			return m, playAtCmd(m.player, m.chapter.Verses[m.cursor].InChapter)
		}
		return m, toggleCmd(m.player)

	case key.Matches(msg, m.keys.Next):
		return m, nextCmd(m.player)

	case key.Matches(msg, m.keys.Prev):
		return m, prevCmd(m.player)

	case key.Matches(msg, m.keys.Stop):
		return m, stopCmd(m.player)

	case key.Matches(msg, m.keys.SeekBack):
		return m, m.seekBy(-seekStep)

	case key.Matches(msg, m.keys.SeekFwd):
		return m, m.seekBy(seekStep)

	case key.Matches(msg, m.keys.Faster):
		return m.flash("speed " + playback.SpeedLabel(m.player.IncreaseSpeed()))

	case key.Matches(msg, m.keys.Slower):
		return m.flash("speed " + playback.SpeedLabel(m.player.DecreaseSpeed()))

	case key.Matches(msg, m.keys.Repeat):
		return m.flash("repeat " + m.player.CycleRepeat().String())

	case key.Matches(msg, m.keys.Continuity):
		on := !st.Continuity
		if err := m.player.SetContinuity(on); err != nil {
			m.status.SetError(err)
			return m, nil
		}
		return m.flash(onOff("continuous play", on))

	case key.Matches(msg, m.keys.AutoScroll):
		on := !st.AutoScroll
		if err := m.player.SetAutoScroll(on); err != nil {
			m.status.SetError(err)
			return m, nil
		}
		return m.flash(onOff("follow verse", on))

	case key.Matches(msg, m.keys.MarkA):
		return m.mark("A", m.player.MarkA)

	case key.Matches(msg, m.keys.MarkB):
		return m.mark("B", m.player.MarkB)

	case key.Matches(msg, m.keys.ClearMarks):
		if err := m.player.ClearMarkers(); err != nil {
			m.status.SetError(err)
			return m, nil
		}
		return m.flash("markers cleared")

	case key.Matches(msg, m.keys.Info):
		m.showInfo = !m.showInfo
		m.ensureVisible()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.ensureVisible()
	}

	return m, nil
}

func (m model) seekBy(d time.Duration) tea.Cmd {
	st := m.status.Status()
	if !st.IsActive() || st.Duration <= 0 {
		return nil
	}
	pos := st.Position + d
	return seekCmd(m.player, float64(pos)/float64(st.Duration))
}

func (m model) mark(name string, set func() error) (tea.Model, tea.Cmd) {
	if err := set(); err != nil {
		if quietError(err) {
			return m.flash("nothing playing to mark")
		}
		m.status.SetError(err)
		return m, nil
	}
	st := m.player.Status()
	m.status.Update(st)
	return m.flash(fmt.Sprintf("marker %s at %s", name, st.Verse))
}

func (m model) flash(text string) (tea.Model, tea.Cmd) {
	m.statusMessage = text
	m.status.Update(m.player.Status())
	return m, tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{}
	})
}

func onOff(what string, on bool) string {
	if on {
		return what + " on"
	}
	return what + " off"
}

func (m model) indexOf(inChapter int) int {
	for i, v := range m.chapter.Verses {
		if v.InChapter == inChapter {
			return i
		}
	}
	return -1
}

// listHeight is the number of verse rows that fit between the header and
// the footer.
func (m model) listHeight() int {
	footer := 3
	if m.help.ShowAll {
		footer += 5
	}
	if m.showInfo {
		footer += infoHeight + 1
	}
	return max(m.height-2-footer, 1)
}

func (m *model) ensureVisible() {
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
	m.offset = max(min(m.offset, m.chapter.Len()-h), 0)
}

func (m model) View() string {
	var b strings.Builder

	title := m.cfg.Title
	if title == "" {
		title = m.chapter.Name
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d. %s", m.chapter.Number, title)))
	b.WriteString(subtleStyle.Render(fmt.Sprintf("  %d verses", m.chapter.Len())))
	b.WriteString("\n\n")

	st := m.status.Status()
	h := m.listHeight()
	end := min(m.offset+h, m.chapter.Len())
	for i := m.offset; i < end; i++ {
		b.WriteString(m.verseRow(i, st))
		b.WriteString("\n")
	}
	for i := end - m.offset; i < h; i++ {
		b.WriteString("\n")
	}

	if m.showInfo {
		b.WriteString(lipgloss.NewStyle().Height(infoHeight).Padding(0, 1).Render(m.status.DetailedStatus(m.width - 2)))
		b.WriteString("\n")
	}
	b.WriteString(m.statusBar(st))
	b.WriteString("\n")
	if bar := m.status.ProgressBar(max(m.width-2, 0)); bar != "" {
		b.WriteString(" " + bar)
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m model) verseRow(i int, st playback.Status) string {
	v := m.chapter.Verses[i]

	gutter := "  "
	if i == m.cursor {
		gutter = cursorStyle.Render("› ")
	}

	label := fmt.Sprintf("%3d", v.InChapter)
	switch {
	case st.IsActive() && v == st.Verse:
		label = playingStyle.Render(label + " ▶")
	case st.State == playback.StateResolving && v == st.Requested:
		label = label + " " + m.spinner.View()
	case i == m.cursor:
		label = cursorStyle.Render(label)
	}

	var marks []string
	if st.Markers.A == v.InChapter {
		marks = append(marks, "A")
	}
	if st.Markers.B == v.InChapter {
		marks = append(marks, "B")
	}
	row := gutter + label
	if len(marks) > 0 {
		row += " " + markerStyle.Render("["+strings.Join(marks, "")+"]")
	}
	return row
}

func (m model) statusBar(st playback.Status) string {
	left := m.status.CompactStatus()
	if left == "" {
		left = subtleStyle.Render("■ idle")
	}
	right := m.status.Options()
	if m.statusMessage != "" {
		right = m.statusMessage
	}
	if st.LastError != nil && st.State != playback.StatePlaying {
		right = errorStyle.Render(truncate.StringWithTail(st.LastError.Error(), uint(max(m.width/2, 10)), ellipsis)) //nolint:gosec
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return statusBarBase.Render(" " + left + strings.Repeat(" ", gap) + right + " ")
}
