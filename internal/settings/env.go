// Package settings owns the runtime environment and the persisted playback
// preferences.
//
// Environment variables are read once with caarlos0/env. Preferences live in
// a YAML file managed by viper: they are read when a Store is opened and
// written back on every change. Consumers receive the Store (or a value
// copied from it) explicitly; nothing in this package is global.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	gap "github.com/muesli/go-app-paths"
)

// AppName is used for the config and cache directories.
const AppName = "ayah"

// ConfigFileName is the preferences file looked up in the config dirs.
const ConfigFileName = "ayah.yml"

// Env contains the runtime configuration taken from the environment.
type Env struct {
	CacheDir   string `env:"AYAH_CACHE_DIR"`
	ConfigHome string `env:"AYAH_CONFIG_HOME"`

	// ResolverURL points at a remote resolver service. When empty the
	// audio hosts are probed directly.
	ResolverURL string `env:"AYAH_RESOLVER_URL"`
	ContentURL  string `env:"AYAH_CONTENT_URL" envDefault:"https://api.alquran.cloud/v1"`

	Debug            bool          `env:"AYAH_DEBUG"`
	HTTPTimeout      time.Duration `env:"AYAH_HTTP_TIMEOUT"       envDefault:"15s"`
	ResolverRPS      float64       `env:"AYAH_RESOLVER_RPS"       envDefault:"5"`
	MemoryCacheMB    int           `env:"AYAH_MEMORY_CACHE_MB"    envDefault:"32"`
	CompressionLevel int           `env:"AYAH_COMPRESSION_LEVEL"  envDefault:"3"`
}

// LoadEnv parses Env from the process environment.
func LoadEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("error parsing environment: %w", err)
	}
	if e.HTTPTimeout <= 0 {
		e.HTTPTimeout = 15 * time.Second
	}
	if e.ResolverRPS <= 0 {
		e.ResolverRPS = 5
	}
	if e.MemoryCacheMB < 0 {
		e.MemoryCacheMB = 0
	}
	return e, nil
}

// ConfigDirs returns the directories searched for ConfigFileName, most
// specific first.
func (e Env) ConfigDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if e.ConfigHome != "" {
		dirs = append([]string{e.ConfigHome}, dirs...)
	}
	return dirs, nil
}

// DefaultConfigFile returns the path a new preferences file is created at.
func (e Env) DefaultConfigFile() (string, error) {
	dirs, err := e.ConfigDirs()
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no configuration directory available")
	}
	return filepath.Join(dirs[0], ConfigFileName), nil
}

// ClipDir returns the directory of the clip store.
func (e Env) ClipDir() (string, error) {
	if e.CacheDir != "" {
		return e.CacheDir, nil
	}
	dir, err := gap.NewScope(gap.User, AppName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(dir, "clips"), nil
}

// LogFile returns the path of the debug log.
func LogFile() (string, error) {
	dir, err := gap.NewScope(gap.User, AppName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(dir, AppName+".log"), nil
}
