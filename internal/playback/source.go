package playback

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/cache"
	"github.com/ayahplayer/ayah/internal/resolve"
)

// Locator finds the URL a verse plays from. Clips already in the store are
// played from there under their cache key; everything else goes through
// the resolver.
type Locator struct {
	resolver resolve.Resolver
	clips    cache.Clips
	logger   *log.Logger
}

// NewLocator creates a locator. clips may be nil.
func NewLocator(resolver resolve.Resolver, clips cache.Clips, logger *log.Logger) *Locator {
	if logger == nil {
		logger = log.Default()
	}
	return &Locator{resolver: resolver, clips: clips, logger: logger}
}

// Locate returns a playable URL for v under sel.
func (l *Locator) Locate(ctx context.Context, sel ayah.Selection, v ayah.Verse) (string, error) {
	if l.clips != nil {
		key := cache.Key(sel, v)
		ok, err := l.clips.Has(key)
		switch {
		case err != nil:
			// A broken store only costs the network round trip.
			l.logger.Warn("clip cache lookup failed", "key", key, "err", err)
		case ok:
			return key, nil
		}
	}

	if l.resolver == nil {
		return "", ayah.NewError(ayah.CodeResolutionFailure, "no resolver configured", nil).
			WithContext("verse", v.String())
	}
	url, err := l.resolver.Resolve(ctx, resolve.NewRequest(sel, v))
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", ayah.NewError(ayah.CodeResolutionFailure, "resolver returned an empty url", nil).
			WithContext("verse", v.String())
	}
	return url, nil
}
