package app

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/samber/do/v2"

	"github.com/ayahplayer/ayah/internal/audio"
	"github.com/ayahplayer/ayah/internal/cache"
	"github.com/ayahplayer/ayah/internal/chapter"
	"github.com/ayahplayer/ayah/internal/download"
	"github.com/ayahplayer/ayah/internal/playback"
	"github.com/ayahplayer/ayah/internal/reciter"
	"github.com/ayahplayer/ayah/internal/resolve"
	"github.com/ayahplayer/ayah/internal/settings"
)

// ProvideLogger provides the application logger.
func ProvideLogger(i do.Injector) (*log.Logger, error) {
	return do.MustInvoke[Options](i).Logger, nil
}

// ProvidePreferences provides the preferences file store.
func ProvidePreferences(i do.Injector) (*settings.Store, error) {
	opts := do.MustInvoke[Options](i)
	logger := do.MustInvoke[*log.Logger](i)

	path := opts.ConfigFile
	if path == "" {
		var err error
		if path, err = opts.Env.DefaultConfigFile(); err != nil {
			return nil, err
		}
	}

	store, err := settings.Open(path, logger.WithPrefix("settings"))
	if err != nil {
		return nil, fmt.Errorf("preferences: %w", err)
	}
	logger.Debug("Preferences loaded", "path", path)
	return store, nil
}

// ProvideCatalog provides the built-in reciter catalog.
func ProvideCatalog(do.Injector) (*reciter.Catalog, error) {
	return reciter.Default(), nil
}

// ClipStoreHandle wraps the clip store with shutdown capability.
type ClipStoreHandle struct {
	*cache.Store
}

// Shutdown implements do.ShutdownerWithError.
func (h *ClipStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideClipStore opens the badger clip store.
func ProvideClipStore(i do.Injector) (*ClipStoreHandle, error) {
	opts := do.MustInvoke[Options](i)
	logger := do.MustInvoke[*log.Logger](i)

	dir, err := opts.Env.ClipDir()
	if err != nil {
		return nil, err
	}

	cfg := cache.DefaultConfig(dir)
	cfg.CompressionLevel = opts.Env.CompressionLevel
	cfg.MemoryCapacity = int64(opts.Env.MemoryCacheMB) * 1024 * 1024
	cfg.Logger = logger.WithPrefix("cache")

	store, err := cache.Open(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Clip store opened", "dir", dir)
	return &ClipStoreHandle{Store: store}, nil
}

// ProvideResolver provides the remote resolver client when a resolver URL
// is configured, the probing resolver otherwise.
func ProvideResolver(i do.Injector) (resolve.Resolver, error) {
	opts := do.MustInvoke[Options](i)
	logger := do.MustInvoke[*log.Logger](i).WithPrefix("resolve")

	if opts.Env.ResolverURL != "" {
		return resolve.NewClient(resolve.ClientConfig{
			BaseURL:           opts.Env.ResolverURL,
			Timeout:           opts.Env.HTTPTimeout,
			RequestsPerSecond: opts.Env.ResolverRPS,
			Logger:            logger,
		})
	}

	return resolve.NewDirect(resolve.DirectConfig{
		Catalog:    do.MustInvoke[*reciter.Catalog](i),
		Timeout:    opts.Env.HTTPTimeout,
		LastResort: true,
		Logger:     logger,
	}), nil
}

// ProvideFetcher provides the clip fetcher shared by the player and the
// downloader. Clip keys are served from the store.
func ProvideFetcher(i do.Injector) (*audio.HTTPFetcher, error) {
	opts := do.MustInvoke[Options](i)
	store := do.MustInvoke[*ClipStoreHandle](i)

	return audio.NewHTTPFetcher(&http.Client{Timeout: 2 * opts.Env.HTTPTimeout}, store.Store), nil
}

// ProvideChapters provides the chapter content client.
func ProvideChapters(i do.Injector) (*chapter.Client, error) {
	opts := do.MustInvoke[Options](i)
	logger := do.MustInvoke[*log.Logger](i)

	return chapter.NewClient(chapter.Config{
		BaseURL: opts.Env.ContentURL,
		Timeout: opts.Env.HTTPTimeout,
		Logger:  logger.WithPrefix("chapter"),
	})
}

// EngineHandle wraps the playback engine with shutdown capability.
type EngineHandle struct {
	audio.Engine
}

// Shutdown implements do.ShutdownerWithError.
func (h *EngineHandle) Shutdown() error {
	return h.Close()
}

// ProvideEngine opens the audio device, unless an engine was injected.
func ProvideEngine(i do.Injector) (*EngineHandle, error) {
	opts := do.MustInvoke[Options](i)
	if opts.Engine != nil {
		return &EngineHandle{Engine: opts.Engine}, nil
	}

	cfg := audio.DefaultPlayerConfig()
	cfg.Fetcher = do.MustInvoke[*audio.HTTPFetcher](i)
	cfg.Logger = do.MustInvoke[*log.Logger](i).WithPrefix("audio")

	player, err := audio.NewPlayer(cfg)
	if err != nil {
		return nil, err
	}
	return &EngineHandle{Engine: player}, nil
}

// OrchestratorHandle wraps the orchestrator with shutdown capability.
type OrchestratorHandle struct {
	*playback.Orchestrator
}

// Shutdown implements do.ShutdownerWithError.
func (h *OrchestratorHandle) Shutdown() error {
	return h.Close()
}

// ProvideOrchestrator provides the playback orchestrator.
func ProvideOrchestrator(i do.Injector) (*OrchestratorHandle, error) {
	o, err := playback.New(playback.Config{
		Engine:      do.MustInvoke[*EngineHandle](i).Engine,
		Resolver:    do.MustInvoke[resolve.Resolver](i),
		Clips:       do.MustInvoke[*ClipStoreHandle](i).Store,
		Preferences: do.MustInvoke[*settings.Store](i),
		Logger:      do.MustInvoke[*log.Logger](i).WithPrefix("playback"),
	})
	if err != nil {
		return nil, err
	}
	return &OrchestratorHandle{Orchestrator: o}, nil
}

// DownloadsHandle wraps the download manager with shutdown capability.
type DownloadsHandle struct {
	*download.Manager
}

// Shutdown implements do.ShutdownerWithError.
func (h *DownloadsHandle) Shutdown() error {
	return h.Close()
}

// ProvideDownloads provides the download manager.
func ProvideDownloads(i do.Injector) (*DownloadsHandle, error) {
	opts := do.MustInvoke[Options](i)

	m, err := download.NewManager(download.Config{
		Resolver:          do.MustInvoke[resolve.Resolver](i),
		Fetcher:           do.MustInvoke[*audio.HTTPFetcher](i),
		Store:             do.MustInvoke[*ClipStoreHandle](i).Store,
		RequestsPerSecond: opts.Env.ResolverRPS,
		Refetch:           opts.Refetch,
		Logger:            do.MustInvoke[*log.Logger](i).WithPrefix("download"),
	})
	if err != nil {
		return nil, err
	}
	return &DownloadsHandle{Manager: m}, nil
}
