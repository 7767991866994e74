package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const playbackKey = "playback"

// Store reads and writes the preferences file. It is safe for concurrent
// use.
type Store struct {
	mu     sync.Mutex
	v      *viper.Viper
	path   string
	cur    Playback
	logger *log.Logger
}

var _ Preferences = (*Store)(nil)

// Open reads the preferences at path. A missing file is not an error: the
// defaults are used and the file is created on the first save. Invalid
// values in the file are replaced by their defaults.
func Open(path string, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("settings path is empty")
	}
	if logger == nil {
		logger = log.Default()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	s := &Store{v: v, path: path, logger: logger}
	if err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultPlayback()
	v.SetDefault(playbackKey+".reciter", d.Reciter)
	v.SetDefault(playbackKey+".bitrate", d.Bitrate)
	v.SetDefault(playbackKey+".speed", d.Speed)
	v.SetDefault(playbackKey+".repeat", d.Repeat)
	v.SetDefault(playbackKey+".continuity", d.Continuity)
	v.SetDefault(playbackKey+".auto_scroll", d.AutoScroll)
}

// read loads the file into s.cur. Callers other than Open hold s.mu.
func (s *Store) read() error {
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("could not parse configuration file: %w", err)
		}
	}

	// Keys are read one by one so a partial section still picks up the
	// defaults of the missing keys.
	p := Playback{
		Reciter:    s.v.GetString(playbackKey + ".reciter"),
		Bitrate:    s.v.GetString(playbackKey + ".bitrate"),
		Speed:      s.v.GetFloat64(playbackKey + ".speed"),
		Repeat:     s.v.GetString(playbackKey + ".repeat"),
		Continuity: s.v.GetBool(playbackKey + ".continuity"),
		AutoScroll: s.v.GetBool(playbackKey + ".auto_scroll"),
	}
	s.cur = sanitize(p, s.logger)
	return nil
}

// sanitize replaces invalid fields with defaults one by one so a single bad
// value does not reset everything.
func sanitize(p Playback, logger *log.Logger) Playback {
	if p.Validate() == nil {
		return p
	}
	d := DefaultPlayback()
	check := func(name string, apply func(*Playback)) {
		probe := d
		apply(&probe)
		if probe.Validate() != nil {
			logger.Warn("Ignoring invalid preference", "key", playbackKey+"."+name)
			return
		}
		apply(&d)
	}
	check("reciter", func(x *Playback) { x.Reciter = p.Reciter })
	check("bitrate", func(x *Playback) { x.Bitrate = p.Bitrate })
	check("speed", func(x *Playback) { x.Speed = p.Speed })
	check("repeat", func(x *Playback) { x.Repeat = p.Repeat })
	d.Continuity = p.Continuity
	d.AutoScroll = p.AutoScroll
	return d
}

// Path returns the preferences file.
func (s *Store) Path() string {
	return s.path
}

// Playback implements Preferences.
func (s *Store) Playback() Playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// SavePlayback implements Preferences. Other keys of the file are kept.
func (s *Store) SavePlayback(p Playback) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p == s.cur {
		return nil
	}

	s.v.Set(playbackKey+".reciter", p.Reciter)
	s.v.Set(playbackKey+".bitrate", p.Bitrate)
	s.v.Set(playbackKey+".speed", p.Speed)
	s.v.Set(playbackKey+".repeat", p.Repeat)
	s.v.Set(playbackKey+".continuity", p.Continuity)
	s.v.Set(playbackKey+".auto_scroll", p.AutoScroll)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}

	s.cur = p
	s.logger.Debug("Saved preferences", "path", s.path)
	return nil
}

// Watch reloads the file whenever it changes on disk and calls fn with the
// new preferences if they differ from the current ones. Writes made through
// SavePlayback do not trigger fn. Watch blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(Playback)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to watch config file: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Editors replace files by renaming, so watch the directory.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}

	name := filepath.Clean(s.path)

	// Coalesce bursts of events from a single save.
	var (
		timer  *time.Timer
		reload = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(50*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if p, changed := s.reload(); changed {
				fn(p)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Config watcher error", "err", err)
		}
	}
}

func (s *Store) reload() (Playback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur
	if err := s.read(); err != nil {
		s.logger.Warn("Could not reload configuration file", "err", err)
		return prev, false
	}
	return s.cur, s.cur != prev
}
