package ui

import "github.com/ayahplayer/ayah/internal/ayah"

// Config contains TUI-specific configuration.
type Config struct {
	Chapter *ayah.Chapter

	// Title shown in the header, e.g. the chapter's English name.
	Title string

	// StartVerse is played right away when set.
	StartVerse int

	EnableMouse bool

	// For debugging the UI
	AltScreen bool `env:"AYAH_ALT_SCREEN"   envDefault:"true"`
	NoSpinner bool `env:"AYAH_NO_SPINNER"`
}
