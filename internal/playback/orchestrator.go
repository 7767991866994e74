package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ayahplayer/ayah/internal/audio"
	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/cache"
	"github.com/ayahplayer/ayah/internal/resolve"
	"github.com/ayahplayer/ayah/internal/settings"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator is closed")

	// ErrNoChapter is returned by operations that need a loaded chapter.
	ErrNoChapter = errors.New("no chapter loaded")

	// ErrNotActive is returned when an operation needs a playing or
	// paused verse.
	ErrNotActive = errors.New("nothing is playing")
)

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Engine   audio.Engine
	Resolver resolve.Resolver

	// Clips enables cache-first playback when set.
	Clips cache.Clips

	// Preferences are read once by New and written on every change. When
	// nil the defaults are used and nothing is persisted.
	Preferences settings.Preferences

	Logger *log.Logger
}

// Orchestrator sequences verse playback. All methods are safe for
// concurrent use.
type Orchestrator struct {
	engine    audio.Engine
	locator   *Locator
	preloader *Preloader
	prefs     settings.Preferences
	logger    *log.Logger
	events    listeners

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
	saveMu      sync.Mutex

	mu         sync.Mutex
	closed     bool
	state      State
	chapter    *ayah.Chapter
	current    ayah.Verse
	currentSel ayah.Selection
	url        string
	requested  ayah.Verse
	gen        uint64 // identity of the latest verse request
	inflight   context.CancelFunc
	lastErr    error

	sel        ayah.Selection
	speed      float64
	mode       ayah.RepeatMode
	markers    ayah.Markers
	continuity bool
	autoScroll bool
}

// New creates an idle orchestrator and subscribes it to the engine.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	prefs := cfg.Preferences
	if prefs == nil {
		prefs = settings.NewMemory(settings.DefaultPlayback())
	}

	p := prefs.Playback()
	sel, err := p.Selection()
	if err != nil {
		logger.Warn("Invalid reciter preference, using default", "err", err)
		sel, _ = settings.DefaultPlayback().Selection()
	}
	speed := clampSpeed(p.Speed)
	if err := cfg.Engine.SetSpeed(speed); err != nil {
		return nil, err
	}

	locator := NewLocator(cfg.Resolver, cfg.Clips, logger)
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		engine:     cfg.Engine,
		locator:    locator,
		preloader:  NewPreloader(locator, cfg.Engine, logger),
		prefs:      prefs,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateIdle,
		sel:        sel,
		speed:      speed,
		mode:       p.RepeatMode(),
		continuity: p.Continuity,
		autoScroll: p.AutoScroll,
	}
	o.unsubscribe = cfg.Engine.Subscribe(audio.ObserverFuncs{
		Ended:      o.onEnded,
		TimeUpdate: o.onTimeUpdate,
	})
	return o, nil
}

// Subscribe registers fn for every event and returns a function removing
// it. fn runs on orchestrator or engine goroutines and must not block.
func (o *Orchestrator) Subscribe(fn func(Event)) (unsubscribe func()) {
	return o.events.add(fn)
}

// LoadChapter makes ch the chapter verses are played from. Switching to
// another chapter clears the A/B markers and the preload; the verse
// currently playing is not interrupted.
func (o *Orchestrator) LoadChapter(ch *ayah.Chapter) error {
	if ch.Len() == 0 {
		return ayah.NewError(ayah.CodeInvalidInput, "chapter has no verses", nil)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	same := o.chapter != nil && o.chapter.Number == ch.Number
	o.chapter = ch
	if !same {
		o.markers = ayah.Markers{}
	}
	o.mu.Unlock()

	if !same {
		o.preloader.Invalidate()
	}
	o.logger.Debug("chapter loaded", "chapter", ch.Number, "verses", ch.Len())
	return nil
}

// Chapter returns the loaded chapter.
func (o *Orchestrator) Chapter() *ayah.Chapter {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.chapter
}

// PlayVerse starts v, superseding any verse request still in flight. A
// matching preload is swapped in directly; otherwise the verse is located
// and loaded. If a newer request arrives while this one is resolving, the
// result is discarded and an error with code SUPERSEDED is returned.
//
// A resolution failure is returned and reported as a Failed event.
// Playback stays stopped on the last verse that played. A rejected start
// is not an error: the verse becomes current in the paused state and a
// Failed event carries the rejection.
func (o *Orchestrator) PlayVerse(ctx context.Context, v ayah.Verse) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	target, err := o.lookupLocked(v)
	if err != nil {
		o.mu.Unlock()
		return err
	}

	o.gen++
	gen := o.gen
	if o.inflight != nil {
		o.inflight()
	}
	rctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(o.ctx, cancel)
	defer stop()
	defer cancel()
	o.inflight = cancel

	prev := o.state
	o.state = StateResolving
	o.requested = target
	sel := o.sel
	url := o.url
	replay := target == o.current && sel == o.currentSel && url != "" && o.engine.Source() == url
	o.mu.Unlock()

	o.events.emit(StateChanged{State: StateResolving, Prev: prev})

	var clip audio.Clip
	if !replay {
		if h, ok := o.preloader.ConsumeIfMatches(sel, target); ok {
			o.logger.Debug("using preloaded clip", "verse", target)
			clip, url = h.Clip, h.URL
		} else {
			o.preloader.Invalidate()

			url, err = o.locator.Locate(rctx, sel, target)
			if err != nil {
				return o.fail(gen, target, asResolution(err, target))
			}
			if url != o.engine.Source() {
				clip, err = o.engine.Prepare(rctx, url)
				if err != nil {
					return o.fail(gen, target, asResolution(err, target))
				}
			}
		}
	}

	o.mu.Lock()
	if gen != o.gen || o.closed {
		o.mu.Unlock()
		if clip != nil {
			_ = clip.Close()
		}
		return superseded(target)
	}

	if clip != nil {
		err = o.engine.Swap(clip)
		if err != nil {
			_ = clip.Close()
		}
	} else {
		err = o.engine.SeekTo(0)
	}
	if err != nil {
		return o.failLocked(target, asResolution(err, target))
	}

	playErr := o.engine.Play()

	o.inflight = nil
	o.requested = ayah.Verse{}
	o.current = target
	o.currentSel = sel
	o.url = url
	if playErr != nil {
		o.state = StatePaused
		o.lastErr = playErr
	} else {
		o.state = StatePlaying
		o.lastErr = nil
	}
	state := o.state
	autoScroll := o.autoScroll

	next, hasNext := o.chapter.NextInChapter(target)
	if pending, ok := o.preloader.Pending(); ok && pending == next {
		hasNext = false
	}
	if hasNext {
		o.wg.Add(1)
	}
	o.mu.Unlock()

	o.logger.Debug("verse started", "verse", target, "url", url, "state", state)

	events := []Event{
		VerseChanged{Verse: target, Selection: sel, AutoScroll: autoScroll},
		StateChanged{State: state, Prev: StateResolving},
	}
	if playErr != nil {
		o.logger.Warn("playback rejected", "verse", target, "err", playErr)
		events = append(events, Failed{Verse: target, Err: playErr})
	}
	o.events.emit(events...)

	if hasNext {
		go func() {
			defer o.wg.Done()
			o.preloader.Preload(o.ctx, sel, next)
		}()
	}
	return nil
}

// PlayAt plays the verse with in-chapter number n of the loaded chapter.
func (o *Orchestrator) PlayAt(ctx context.Context, n int) error {
	o.mu.Lock()
	ch := o.chapter
	o.mu.Unlock()
	if ch == nil {
		return ErrNoChapter
	}
	v, ok := ch.Verse(n)
	if !ok {
		return ayah.NewError(ayah.CodeNotFound, "verse not in chapter", nil).
			WithContext("chapter", ch.Number).
			WithContext("verse", n)
	}
	return o.PlayVerse(ctx, v)
}

// Next plays the verse after the current one, or the first verse when
// nothing was played yet.
func (o *Orchestrator) Next(ctx context.Context) error {
	return o.step(ctx, (*ayah.Chapter).NextInChapter)
}

// Previous plays the verse before the current one.
func (o *Orchestrator) Previous(ctx context.Context) error {
	return o.step(ctx, (*ayah.Chapter).PreviousInChapter)
}

func (o *Orchestrator) step(ctx context.Context, move func(*ayah.Chapter, ayah.Verse) (ayah.Verse, bool)) error {
	o.mu.Lock()
	ch := o.chapter
	from := o.requested
	if from.IsZero() {
		from = o.current
	}
	o.mu.Unlock()

	if ch == nil {
		return ErrNoChapter
	}
	if ch.IndexOf(from) < 0 {
		first, _ := ch.First()
		return o.PlayVerse(ctx, first)
	}
	to, ok := move(ch, from)
	if !ok {
		return ayah.NewError(ayah.CodeNotFound, "no verse in that direction", nil).
			WithContext("verse", from.String())
	}
	return o.PlayVerse(ctx, to)
}

// Toggle switches between playing and paused. It does nothing else.
func (o *Orchestrator) Toggle() error {
	o.mu.Lock()
	prev := o.state
	switch o.state {
	case StatePlaying:
		o.engine.Pause()
		o.state = StatePaused
	case StatePaused:
		if err := o.engine.Play(); err != nil {
			o.lastErr = err
			v := o.current
			o.mu.Unlock()
			o.events.emit(Failed{Verse: v, Err: err})
			return err
		}
		o.state = StatePlaying
	default:
		o.mu.Unlock()
		return ErrNotActive
	}
	state := o.state
	o.mu.Unlock()

	o.events.emit(StateChanged{State: state, Prev: prev})
	return nil
}

// Stop abandons any request in flight, pauses output and returns to idle.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.gen++
	if o.inflight != nil {
		o.inflight()
		o.inflight = nil
	}
	prev := o.state
	o.engine.Pause()
	if o.engine.Source() != "" {
		_ = o.engine.SeekTo(0)
	}
	o.state = StateIdle
	o.current = ayah.Verse{}
	o.requested = ayah.Verse{}
	o.url = ""
	o.mu.Unlock()

	o.preloader.Invalidate()
	if prev != StateIdle {
		o.events.emit(StateChanged{State: StateIdle, Prev: prev})
	}
}

// Seek moves to fraction of the current verse. It is only legal while
// playing or paused.
func (o *Orchestrator) Seek(fraction float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StatePlaying && o.state != StatePaused {
		return ErrNotActive
	}
	return audio.SeekFraction(o.engine, fraction)
}

// SetSpeed changes the playback rate immediately.
func (o *Orchestrator) SetSpeed(rate float64) error {
	if err := audio.ValidateSpeed(rate); err != nil {
		return ayah.NewError(ayah.CodeInvalidInput, err.Error(), err)
	}
	return o.update(func() error {
		if err := o.engine.SetSpeed(rate); err != nil {
			return err
		}
		o.speed = rate
		return nil
	})
}

// IncreaseSpeed moves to the next faster speed step and returns it.
func (o *Orchestrator) IncreaseSpeed() float64 {
	return o.stepSpeed(stepUp)
}

// DecreaseSpeed moves to the next slower speed step and returns it.
func (o *Orchestrator) DecreaseSpeed() float64 {
	return o.stepSpeed(stepDown)
}

func (o *Orchestrator) stepSpeed(step func(float64) float64) float64 {
	o.mu.Lock()
	rate := step(o.speed)
	o.mu.Unlock()

	if err := o.SetSpeed(rate); err != nil {
		o.logger.Warn("speed change failed", "speed", rate, "err", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.speed
}

// SetRepeat changes the repeat mode. It applies when the current verse
// ends.
func (o *Orchestrator) SetRepeat(mode ayah.RepeatMode) error {
	if mode < ayah.RepeatOff || mode > ayah.RepeatWhole {
		return ayah.NewError(ayah.CodeInvalidInput, "unknown repeat mode", nil)
	}
	return o.update(func() error {
		o.mode = mode
		return nil
	})
}

// CycleRepeat advances to the next repeat mode and returns it.
func (o *Orchestrator) CycleRepeat() ayah.RepeatMode {
	o.mu.Lock()
	mode := o.mode.Next()
	o.mu.Unlock()

	_ = o.SetRepeat(mode)
	return mode
}

// SetContinuity turns auto-advance on or off.
func (o *Orchestrator) SetContinuity(on bool) error {
	return o.update(func() error {
		o.continuity = on
		return nil
	})
}

// SetAutoScroll sets the flag carried by VerseChanged events.
func (o *Orchestrator) SetAutoScroll(on bool) error {
	return o.update(func() error {
		o.autoScroll = on
		return nil
	})
}

// SetMarkers sets both range markers by in-chapter number. Zero clears a
// marker.
func (o *Orchestrator) SetMarkers(m ayah.Markers) error {
	if m.A < 0 || m.B < 0 {
		return ayah.NewError(ayah.CodeInvalidInput, "markers must not be negative", nil)
	}
	return o.update(func() error {
		o.markers = m
		return nil
	})
}

// MarkA sets the A marker on the current verse.
func (o *Orchestrator) MarkA() error {
	return o.mark(func(m *ayah.Markers, n int) { m.A = n })
}

// MarkB sets the B marker on the current verse.
func (o *Orchestrator) MarkB() error {
	return o.mark(func(m *ayah.Markers, n int) { m.B = n })
}

// ClearMarkers unsets both markers.
func (o *Orchestrator) ClearMarkers() error {
	return o.SetMarkers(ayah.Markers{})
}

func (o *Orchestrator) mark(set func(*ayah.Markers, int)) error {
	return o.update(func() error {
		if o.current.IsZero() {
			return ErrNotActive
		}
		set(&o.markers, o.current.InChapter)
		return nil
	})
}

// SetSelection changes the reciter and bitrate for the next verse. The
// verse playing now is not interrupted; a preload made under the old
// selection is dropped.
func (o *Orchestrator) SetSelection(sel ayah.Selection) error {
	if err := sel.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	changed := sel != o.sel
	o.mu.Unlock()
	if !changed {
		return nil
	}

	o.preloader.Invalidate()
	return o.update(func() error {
		o.sel = sel
		return nil
	})
}

// ApplyPreferences adopts preferences changed outside the session, for
// example by editing the settings file. Nothing is written back.
func (o *Orchestrator) ApplyPreferences(p settings.Playback) {
	sel, err := p.Selection()

	o.mu.Lock()
	reselected := err == nil && sel != o.sel
	if reselected {
		o.sel = sel
	}
	if rate := clampSpeed(p.Speed); rate != o.speed {
		if err := o.engine.SetSpeed(rate); err == nil {
			o.speed = rate
		}
	}
	o.mode = p.RepeatMode()
	o.continuity = p.Continuity
	o.autoScroll = p.AutoScroll
	status := o.statusLocked()
	o.mu.Unlock()

	if reselected {
		o.preloader.Invalidate()
	}
	o.events.emit(OptionsChanged{Status: status})
}

// Status returns a snapshot of the session.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

func (o *Orchestrator) statusLocked() Status {
	s := Status{
		State:      o.state,
		Verse:      o.current,
		Requested:  o.requested,
		Selection:  o.sel,
		Speed:      o.speed,
		Repeat:     o.mode,
		Markers:    o.markers,
		Continuity: o.continuity,
		AutoScroll: o.autoScroll,
		LastError:  o.lastErr,
	}
	if o.chapter != nil {
		s.Chapter = o.chapter.Number
	}
	if o.state == StatePlaying || o.state == StatePaused {
		s.Position = o.engine.Position()
		s.Duration = o.engine.Duration()
	}
	return s
}

// Close stops background work and detaches from the engine. The engine
// itself is left open.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.gen++
	if o.inflight != nil {
		o.inflight()
		o.inflight = nil
	}
	o.mu.Unlock()

	o.cancel()
	o.unsubscribe()
	o.wg.Wait()
	o.preloader.Invalidate()
	return nil
}

// update applies fn under the lock, persists the preferences and emits
// OptionsChanged.
func (o *Orchestrator) update(fn func() error) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if err := fn(); err != nil {
		o.mu.Unlock()
		return err
	}
	status := o.statusLocked()
	o.mu.Unlock()

	o.persist()
	o.events.emit(OptionsChanged{Status: status})
	return nil
}

func (o *Orchestrator) persist() {
	o.saveMu.Lock()
	defer o.saveMu.Unlock()

	o.mu.Lock()
	p := o.prefs.Playback().WithSelection(o.sel).WithRepeat(o.mode)
	p.Speed = o.speed
	p.Continuity = o.continuity
	p.AutoScroll = o.autoScroll
	o.mu.Unlock()

	if err := o.prefs.SavePlayback(p); err != nil {
		o.logger.Warn("Could not save preferences", "err", err)
	}
}

// lookupLocked maps v onto the loaded chapter, filling in the global
// number when only the chapter position is known.
func (o *Orchestrator) lookupLocked(v ayah.Verse) (ayah.Verse, error) {
	if o.chapter == nil {
		return ayah.Verse{}, ErrNoChapter
	}
	if v.Chapter == 0 {
		v.Chapter = o.chapter.Number
	}
	if v.Chapter != o.chapter.Number {
		return ayah.Verse{}, ayah.NewError(ayah.CodeInvalidInput, "verse belongs to another chapter", nil).
			WithContext("chapter", o.chapter.Number).
			WithContext("verse", v.String())
	}
	found, ok := o.chapter.Verse(v.InChapter)
	if !ok {
		return ayah.Verse{}, ayah.NewError(ayah.CodeNotFound, "verse not in chapter", nil).
			WithContext("verse", v.String())
	}
	return found, nil
}

// onEnded runs the repeat policy. Playing the chosen verse happens on a
// separate goroutine since engine callbacks must not block.
func (o *Orchestrator) onEnded(url string) {
	o.mu.Lock()
	if o.closed || o.state != StatePlaying || url != o.url {
		o.mu.Unlock()
		return
	}

	d := Decide(PolicyInput{
		Chapter:    o.chapter,
		Current:    o.current,
		Mode:       o.mode,
		Continuity: o.continuity,
		Markers:    o.markers,
	})
	o.logger.Debug("verse ended", "verse", o.current, "action", d.Action, "next", d.Verse)

	if d.Action == ActionStop {
		o.state = StatePaused
		o.mu.Unlock()
		o.events.emit(StateChanged{State: StatePaused, Prev: StatePlaying})
		return
	}

	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		err := o.PlayVerse(o.ctx, d.Verse)
		if err != nil && !errors.Is(err, ayah.ErrSuperseded) && !errors.Is(err, ErrClosed) {
			o.logger.Warn("auto-advance failed", "verse", d.Verse, "err", err)
		}
	}()
}

func (o *Orchestrator) onTimeUpdate(pos, dur time.Duration) {
	o.mu.Lock()
	v := o.current
	active := o.state == StatePlaying
	o.mu.Unlock()

	if active {
		o.events.emit(TimeUpdate{Verse: v, Position: pos, Duration: dur})
	}
}

func (o *Orchestrator) fail(gen uint64, v ayah.Verse, err error) error {
	o.mu.Lock()
	if gen != o.gen || o.closed {
		o.mu.Unlock()
		return superseded(v)
	}
	return o.failLocked(v, err)
}

// failLocked leaves playback stopped on the last verse that played, or
// idle when there is none. It releases o.mu.
func (o *Orchestrator) failLocked(v ayah.Verse, err error) error {
	prev := o.state
	o.inflight = nil
	o.requested = ayah.Verse{}
	o.lastErr = err
	o.engine.Pause()
	if !o.current.IsZero() && o.url != "" && o.engine.Source() == o.url {
		o.state = StatePaused
	} else {
		o.state = StateIdle
	}
	state := o.state
	o.mu.Unlock()

	o.logger.Warn("verse failed", "verse", v, "err", err)
	o.events.emit(StateChanged{State: state, Prev: prev}, Failed{Verse: v, Err: err})
	return err
}

func asResolution(err error, v ayah.Verse) error {
	if ayah.CodeOf(err) != "" || errors.Is(err, context.Canceled) {
		return err
	}
	return ayah.NewError(ayah.CodeResolutionFailure, "clip could not be loaded", err).
		WithContext("verse", v.String())
}

func superseded(v ayah.Verse) error {
	return ayah.NewError(ayah.CodeSuperseded, "verse request superseded", nil).
		WithContext("verse", v.String())
}
