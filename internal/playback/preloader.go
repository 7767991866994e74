package playback

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ayahplayer/ayah/internal/audio"
	"github.com/ayahplayer/ayah/internal/ayah"
)

// Preloaded is a clip prepared ahead of time for one verse.
type Preloaded struct {
	Verse     ayah.Verse
	Selection ayah.Selection
	URL       string
	Clip      audio.Clip
}

// Preloader holds at most one prepared clip. Starting a new preload or
// invalidating discards whatever the slot holds, including a preload still
// in flight.
type Preloader struct {
	locator *Locator
	engine  audio.Engine
	logger  *log.Logger

	mu   sync.Mutex
	gen  uint64
	slot *Preloaded
}

// NewPreloader creates an empty preloader.
func NewPreloader(locator *Locator, engine audio.Engine, logger *log.Logger) *Preloader {
	if logger == nil {
		logger = log.Default()
	}
	return &Preloader{locator: locator, engine: engine, logger: logger}
}

// Preload resolves v and prepares its clip without playing it. Failures are
// logged and leave the slot empty; preloading only saves latency. It
// reports whether the slot now holds v.
func (p *Preloader) Preload(ctx context.Context, sel ayah.Selection, v ayah.Verse) bool {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.clearLocked()
	p.mu.Unlock()

	url, err := p.locator.Locate(ctx, sel, v)
	if err != nil {
		p.logger.Debug("preload skipped", "verse", v, "err", err)
		return false
	}

	clip, err := p.engine.Prepare(ctx, url)
	if err != nil {
		p.logger.Debug("preload failed", "verse", v, "url", url, "err", err)
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		_ = clip.Close()
		return false
	}
	p.slot = &Preloaded{Verse: v, Selection: sel, URL: url, Clip: clip}
	p.logger.Debug("preload ready", "verse", v, "url", url)
	return true
}

// ConsumeIfMatches hands over the slot when it holds v prepared under sel.
// On a mismatch the slot is left as it is.
func (p *Preloader) ConsumeIfMatches(sel ayah.Selection, v ayah.Verse) (*Preloaded, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slot == nil || p.slot.Verse != v || p.slot.Selection != sel {
		return nil, false
	}
	h := p.slot
	p.slot = nil
	return h, true
}

// Pending returns the verse currently held in the slot.
func (p *Preloader) Pending() (ayah.Verse, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slot == nil {
		return ayah.Verse{}, false
	}
	return p.slot.Verse, true
}

// Invalidate discards the slot and any preload in flight.
func (p *Preloader) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.clearLocked()
}

func (p *Preloader) clearLocked() {
	if p.slot == nil {
		return
	}
	_ = p.slot.Clip.Close()
	p.slot = nil
}
