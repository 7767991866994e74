package settings

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/reciter"
)

// Playback holds the user preferences that survive restarts.
type Playback struct {
	Reciter    string  `validate:"required,excludesall=: "`
	Bitrate    string  `validate:"oneof=64 128 low high"`
	Speed      float64 `validate:"gte=0.5,lte=2"`
	Repeat     string  `validate:"oneof=off single range whole"`
	Continuity bool
	AutoScroll bool
}

// DefaultPlayback returns the preferences used on first start.
func DefaultPlayback() Playback {
	return Playback{
		Reciter:    reciter.DefaultID,
		Bitrate:    string(ayah.BitrateHigh),
		Speed:      1.0,
		Repeat:     ayah.RepeatOff.String(),
		Continuity: true,
		AutoScroll: true,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its allowed values.
func (p Playback) Validate() error {
	if err := validate.Struct(p); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s=%v (%s)", strings.ToLower(fe.Field()), fe.Value(), fe.Tag()))
			}
		}
		return ayah.NewError(ayah.CodeInvalidInput, "invalid playback preferences", err).
			WithContext("fields", strings.Join(fields, ", "))
	}
	return nil
}

// Selection returns the reciter and bitrate.
func (p Playback) Selection() (ayah.Selection, error) {
	bitrate, err := ayah.ParseBitrate(p.Bitrate)
	if err != nil {
		return ayah.Selection{}, err
	}
	sel := ayah.Selection{ReciterID: p.Reciter, Bitrate: bitrate}
	if err := sel.Validate(); err != nil {
		return ayah.Selection{}, err
	}
	return sel, nil
}

// RepeatMode parses Repeat.
func (p Playback) RepeatMode() ayah.RepeatMode {
	mode, err := ayah.ParseRepeatMode(p.Repeat)
	if err != nil {
		return ayah.RepeatOff
	}
	return mode
}

// WithSelection returns p with the reciter and bitrate of sel.
func (p Playback) WithSelection(sel ayah.Selection) Playback {
	p.Reciter = sel.ReciterID
	p.Bitrate = string(sel.Bitrate)
	return p
}

// WithRepeat returns p with mode stored as its string form.
func (p Playback) WithRepeat(mode ayah.RepeatMode) Playback {
	p.Repeat = mode.String()
	return p
}

// Preferences is what the playback core needs from a settings store.
type Preferences interface {
	Playback() Playback
	SavePlayback(p Playback) error
}

// Memory is a Preferences implementation that keeps everything in memory.
type Memory struct {
	mu    sync.Mutex
	p     Playback
	saves int
}

// NewMemory returns in-memory preferences starting at p.
func NewMemory(p Playback) *Memory {
	return &Memory{p: p}
}

// Playback implements Preferences.
func (m *Memory) Playback() Playback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p
}

// SavePlayback implements Preferences.
func (m *Memory) SavePlayback(p Playback) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = p
	m.saves++
	return nil
}

// Saves returns how many times SavePlayback succeeded.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
