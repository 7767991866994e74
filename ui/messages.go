package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/playback"
)

// eventMsg carries one orchestrator event into the update loop.
type eventMsg struct {
	event playback.Event
}

// eventsClosedMsg is sent once the event channel is closed.
type eventsClosedMsg struct{}

// opDoneMsg is sent when a player command completes.
type opDoneMsg struct {
	op  string
	err error
}

// statusMessageTimeoutMsg clears the flash message.
type statusMessageTimeoutMsg struct{}

// eventBridge forwards orchestrator events to a channel the update loop
// reads from. Events are dropped when the UI falls behind; the model
// re-reads Status on every event it does get.
type eventBridge struct {
	ch          chan playback.Event
	unsubscribe func()
}

func newEventBridge(p Player) *eventBridge {
	b := &eventBridge{ch: make(chan playback.Event, 64)}
	b.unsubscribe = p.Subscribe(func(e playback.Event) {
		select {
		case b.ch <- e:
		default:
		}
	})
	return b
}

func (b *eventBridge) close() {
	b.unsubscribe()
}

// waitForEvent waits for the next orchestrator event.
func waitForEvent(ch <-chan playback.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: e}
	}
}

// opCmd runs a player call off the update loop.
func opCmd(op string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn()}
	}
}

func playAtCmd(p Player, n int) tea.Cmd {
	return opCmd("play", func() error { return p.PlayAt(context.Background(), n) })
}

func nextCmd(p Player) tea.Cmd {
	return opCmd("next", func() error { return p.Next(context.Background()) })
}

func prevCmd(p Player) tea.Cmd {
	return opCmd("previous", func() error { return p.Previous(context.Background()) })
}

func toggleCmd(p Player) tea.Cmd {
	return opCmd("toggle", p.Toggle)
}

func stopCmd(p Player) tea.Cmd {
	return opCmd("stop", func() error {
		p.Stop()
		return nil
	})
}

func seekCmd(p Player, fraction float64) tea.Cmd {
	return opCmd("seek", func() error { return p.Seek(fraction) })
}

// quietError reports errors that need no message: a request replaced by a
// newer one, or a toggle with nothing loaded.
func quietError(err error) bool {
	return errors.Is(err, ayah.ErrSuperseded) || errors.Is(err, playback.ErrNotActive)
}
