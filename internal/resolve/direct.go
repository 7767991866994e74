package resolve

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/reciter"
)

const (
	defaultIslamicBase   = "https://cdn.islamic.network/quran/audio"
	defaultEveryAyahBase = "https://everyayah.com/data"
)

// Direct resolves URLs without a resolver service by probing the public
// audio hosts. Candidates are tried in this order:
//
//  1. cdn.islamic.network by global verse number, when the reciter has a code
//  2. the reciter's everyayah.com folders
//  3. the shared fallback folders
//
// The first candidate that answers is returned. The source that worked is
// remembered per selection and tried first next time.
type Direct struct {
	catalog       *reciter.Catalog
	httpClient    *http.Client
	rateLimiter   *rate.Limiter
	islamicBase   string
	everyAyahBase string
	lastResort    bool
	logger        *log.Logger

	mu     sync.Mutex
	sticky map[ayah.Selection]string
}

// DirectConfig holds configuration for Direct.
type DirectConfig struct {
	Catalog *reciter.Catalog

	// Timeout for one probe (defaults to 8s)
	Timeout time.Duration

	// ProbesPerSecond caps outgoing probes (defaults to 10)
	ProbesPerSecond float64

	// LastResort returns the default reciter's islamic.network URL
	// unprobed when every candidate fails, instead of an error.
	LastResort bool

	// Hosts, overridable for tests
	IslamicBase   string
	EveryAyahBase string

	HTTPClient *http.Client
	Logger     *log.Logger
}

type candidate struct {
	source string
	url    string
}

// NewDirect creates a probing resolver.
func NewDirect(cfg DirectConfig) *Direct {
	if cfg.Catalog == nil {
		cfg.Catalog = reciter.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.ProbesPerSecond <= 0 {
		cfg.ProbesPerSecond = 10
	}
	if cfg.IslamicBase == "" {
		cfg.IslamicBase = defaultIslamicBase
	}
	if cfg.EveryAyahBase == "" {
		cfg.EveryAyahBase = defaultEveryAyahBase
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Direct{
		catalog:       cfg.Catalog,
		httpClient:    cfg.HTTPClient,
		rateLimiter:   rate.NewLimiter(rate.Limit(cfg.ProbesPerSecond), 2),
		islamicBase:   cfg.IslamicBase,
		everyAyahBase: cfg.EveryAyahBase,
		lastResort:    cfg.LastResort,
		logger:        cfg.Logger,
		sticky:        make(map[ayah.Selection]string),
	}
}

// Resolve implements Resolver.
func (d *Direct) Resolve(ctx context.Context, req Request) (string, error) {
	if req.Verse.Chapter <= 0 || req.Verse.InChapter <= 0 {
		return "", failure(req, "invalid verse", nil)
	}

	for _, c := range d.candidates(req) {
		ok, err := d.probe(ctx, c.url)
		if err != nil {
			return "", failure(req, "probe cancelled", err)
		}
		if ok {
			d.mu.Lock()
			d.sticky[req.Selection()] = c.source
			d.mu.Unlock()
			return c.url, nil
		}
		d.logger.Debug("candidate unavailable", "source", c.source, "url", c.url)
	}

	if d.lastResort && req.Verse.Global > 0 {
		url := d.islamicURL(req, "ar."+reciter.DefaultID)
		d.logger.Warn("no source answered, using default reciter", "reciter", req.ReciterID, "verse", req.Verse)
		return url, nil
	}
	return "", failure(req, "no audio source available", nil)
}

func (d *Direct) candidates(req Request) []candidate {
	r := d.catalog.MustGet(req.ReciterID)
	var out []candidate

	if r.IslamicCode != "" && req.Verse.Global > 0 {
		out = append(out, candidate{source: "islamic:" + r.IslamicCode, url: d.islamicURL(req, r.IslamicCode)})
	}
	for _, folder := range r.EveryAyahFolders {
		out = append(out, candidate{source: "everyayah:" + folder, url: d.everyAyahURL(req, folder)})
	}
	for _, folder := range reciter.FallbackFolders {
		out = append(out, candidate{source: "everyayah:" + folder, url: d.everyAyahURL(req, folder)})
	}

	d.mu.Lock()
	preferred, ok := d.sticky[req.Selection()]
	d.mu.Unlock()
	if ok {
		for i, c := range out {
			if c.source == preferred {
				// move to front, the rest keep their order
				copy(out[1:i+1], out[:i])
				out[0] = c
				break
			}
		}
	}
	return out
}

func (d *Direct) islamicURL(req Request, code string) string {
	bitrate := req.Bitrate
	if !bitrate.Valid() {
		bitrate = ayah.BitrateHigh
	}
	return fmt.Sprintf("%s/%s/%s/%d.mp3", d.islamicBase, bitrate, code, req.Verse.Global)
}

func (d *Direct) everyAyahURL(req Request, folder string) string {
	return fmt.Sprintf("%s/%s/%03d%03d.mp3", d.everyAyahBase, folder, req.Verse.Chapter, req.Verse.InChapter)
}

// probe reports whether url serves content. Some CDNs reject HEAD, so a
// two byte ranged GET is tried second. Only context errors are returned.
func (d *Direct) probe(ctx context.Context, url string) (bool, error) {
	if err := d.rateLimiter.Wait(ctx); err != nil {
		return false, err
	}

	if ok, err := d.do(ctx, http.MethodHead, url, nil); ok || err != nil {
		return ok, err
	}
	return d.do(ctx, http.MethodGet, url, map[string]string{"Range": "bytes=0-1"})
}

func (d *Direct) do(ctx context.Context, method, url string, headers map[string]string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false, nil
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	resp.Body.Close()

	if method == http.MethodHead {
		return resp.StatusCode == http.StatusOK, nil
	}
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent, nil
}
