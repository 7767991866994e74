// Package app wires the ayah services together with a samber/do container.
//
// Services are created lazily on first use: a command that only touches the
// clip store never opens the audio device. Shutdown closes everything that
// was created, in reverse dependency order.
package app

import (
	"github.com/charmbracelet/log"
	"github.com/samber/do/v2"

	"github.com/ayahplayer/ayah/internal/audio"
	"github.com/ayahplayer/ayah/internal/settings"
)

// Options are the inputs of the container.
type Options struct {
	Env settings.Env

	// ConfigFile is the preferences file. Defaults to the first config dir.
	ConfigFile string

	// Engine replaces the audio device player, e.g. with audio.NewMock().
	Engine audio.Engine

	// Refetch makes downloads replace clips that are already cached.
	Refetch bool

	Logger *log.Logger
}

// NewContainer creates and configures the container with all providers.
func NewContainer(opts Options) *do.RootScope {
	injector := do.New()

	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	do.ProvideValue(injector, opts)

	// Core
	do.Provide(injector, ProvideLogger)
	do.Provide(injector, ProvidePreferences)
	do.Provide(injector, ProvideCatalog)

	// Storage and network
	do.Provide(injector, ProvideClipStore)
	do.Provide(injector, ProvideResolver)
	do.Provide(injector, ProvideFetcher)
	do.Provide(injector, ProvideChapters)

	// Playback
	do.Provide(injector, ProvideEngine)
	do.Provide(injector, ProvideOrchestrator)

	// Downloads
	do.Provide(injector, ProvideDownloads)

	return injector
}

// Shutdown closes every service created by the container.
func Shutdown(injector *do.RootScope) {
	logger := do.MustInvoke[*log.Logger](injector)
	if err := injector.Shutdown(); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
}
