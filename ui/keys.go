package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Play       key.Binding
	Toggle     key.Binding
	Next       key.Binding
	Prev       key.Binding
	Stop       key.Binding
	SeekBack   key.Binding
	SeekFwd    key.Binding
	Faster     key.Binding
	Slower     key.Binding
	Repeat     key.Binding
	Continuity key.Binding
	AutoScroll key.Binding
	MarkA      key.Binding
	MarkB      key.Binding
	ClearMarks key.Binding
	Info       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Play:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play verse")),
		Toggle:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		Next:       key.NewBinding(key.WithKeys("n", "right"), key.WithHelp("n/→", "next")),
		Prev:       key.NewBinding(key.WithKeys("p", "left"), key.WithHelp("p/←", "previous")),
		Stop:       key.NewBinding(key.WithKeys("s", "S"), key.WithHelp("s", "stop")),
		SeekBack:   key.NewBinding(key.WithKeys("<", ","), key.WithHelp("<", "rewind")),
		SeekFwd:    key.NewBinding(key.WithKeys(">", "."), key.WithHelp(">", "forward")),
		Faster:     key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
		Slower:     key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "slower")),
		Repeat:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat mode")),
		Continuity: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "continuous")),
		AutoScroll: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "follow")),
		MarkA:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "mark A")),
		MarkB:      key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "mark B")),
		ClearMarks: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear marks")),
		Info:       key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "details")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Next, k.Prev, k.Repeat, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Play, k.Toggle, k.Stop},
		{k.Next, k.Prev, k.SeekBack, k.SeekFwd},
		{k.Faster, k.Slower, k.Repeat, k.Continuity, k.AutoScroll},
		{k.MarkA, k.MarkB, k.ClearMarks, k.Info, k.Help, k.Quit},
	}
}
