package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayahplayer/ayah/internal/ayah"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.ErrorLevel})
}

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	s, err := Open(path, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultPlayback(), s.Playback())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "opening must not create the file")
}

func TestSaveAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	s, err := Open(path, quietLogger())
	require.NoError(t, err)

	want := DefaultPlayback()
	want.Reciter = "husary"
	want.Bitrate = "64"
	want.Speed = 1.25
	want.Repeat = "range"
	want.Continuity = false
	want.AutoScroll = false
	require.NoError(t, s.SavePlayback(want))
	assert.Equal(t, want, s.Playback())

	reopened, err := Open(path, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, want, reopened.Playback())
}

func TestPartialSectionKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("playback:\n  speed: 1.5\n"), 0o600))

	s, err := Open(path, quietLogger())
	require.NoError(t, err)

	p := s.Playback()
	assert.Equal(t, 1.5, p.Speed)
	assert.True(t, p.Continuity)
	assert.True(t, p.AutoScroll)
	assert.Equal(t, DefaultPlayback().Reciter, p.Reciter)
}

func TestInvalidValuesFallBackIndividually(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `playback:
  reciter: sudais
  bitrate: "320"
  speed: 9
  repeat: bogus
  continuity: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Open(path, quietLogger())
	require.NoError(t, err)

	p := s.Playback()
	assert.Equal(t, "sudais", p.Reciter)
	assert.Equal(t, string(ayah.BitrateHigh), p.Bitrate)
	assert.Equal(t, 1.0, p.Speed)
	assert.Equal(t, "off", p.Repeat)
	assert.False(t, p.Continuity)
}

func TestSavePreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("debug: true\n"), 0o600))

	s, err := Open(path, quietLogger())
	require.NoError(t, err)

	p := s.Playback()
	p.Speed = 0.75
	require.NoError(t, s.SavePlayback(p))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug: true")
	assert.Contains(t, string(data), "speed: 0.75")
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	s, err := Open(path, quietLogger())
	require.NoError(t, err)

	tests := map[string]func(*Playback){
		"speed":   func(p *Playback) { p.Speed = 2.5 },
		"reciter": func(p *Playback) { p.Reciter = "" },
		"colon":   func(p *Playback) { p.Reciter = "a:b" },
		"bitrate": func(p *Playback) { p.Bitrate = "96" },
		"repeat":  func(p *Playback) { p.Repeat = "twice" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := DefaultPlayback()
			mutate(&p)
			err := s.SavePlayback(p)
			assert.ErrorIs(t, err, ayah.ErrInvalidInput)
		})
	}
	assert.Equal(t, DefaultPlayback(), s.Playback())
}

func TestWatchPicksUpExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	s, err := Open(path, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got atomic.Pointer[Playback]
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(p Playback) { got.Store(&p) })
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("playback:\n  repeat: whole\n"), 0o600)
		return got.Load() != nil
	}, 5*time.Second, 100*time.Millisecond)

	assert.Equal(t, "whole", got.Load().Repeat)
	assert.Equal(t, ayah.RepeatWhole, s.Playback().RepeatMode())

	cancel()
	assert.NoError(t, <-done)
}

func TestPlaybackHelpers(t *testing.T) {
	p := DefaultPlayback()

	sel, err := p.Selection()
	require.NoError(t, err)
	assert.Equal(t, ayah.Selection{ReciterID: "alafasy", Bitrate: ayah.BitrateHigh}, sel)

	p = p.WithSelection(ayah.Selection{ReciterID: "minshawi", Bitrate: ayah.BitrateLow}).WithRepeat(ayah.RepeatSingle)
	assert.Equal(t, "minshawi", p.Reciter)
	assert.Equal(t, "64", p.Bitrate)
	assert.Equal(t, ayah.RepeatSingle, p.RepeatMode())

	p.Bitrate = "low"
	sel, err = p.Selection()
	require.NoError(t, err)
	assert.Equal(t, ayah.BitrateLow, sel.Bitrate)
}

func TestMemoryPreferences(t *testing.T) {
	m := NewMemory(DefaultPlayback())

	p := m.Playback()
	p.Speed = 1.75
	require.NoError(t, m.SavePlayback(p))
	assert.Equal(t, 1.75, m.Playback().Speed)
	assert.Equal(t, 1, m.Saves())

	p.Speed = 5
	assert.Error(t, m.SavePlayback(p))
	assert.Equal(t, 1, m.Saves())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("AYAH_CACHE_DIR", "/tmp/clips")
	t.Setenv("AYAH_RESOLVER_RPS", "2.5")
	t.Setenv("AYAH_HTTP_TIMEOUT", "3s")
	t.Setenv("AYAH_DEBUG", "true")

	e, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/clips", e.CacheDir)
	assert.Equal(t, 2.5, e.ResolverRPS)
	assert.Equal(t, 3*time.Second, e.HTTPTimeout)
	assert.True(t, e.Debug)
	assert.Equal(t, "https://api.alquran.cloud/v1", e.ContentURL)
	assert.Equal(t, 3, e.CompressionLevel)

	dir, err := e.ClipDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/clips", dir)
}

func TestConfigHomeTakesPrecedence(t *testing.T) {
	home := t.TempDir()
	e := Env{ConfigHome: home}

	path, err := e.DefaultConfigFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ConfigFileName), path)
}
