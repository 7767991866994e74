package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ayahplayer/ayah/internal/cache"
)

// maxClipSize bounds a single download.
const maxClipSize = 32 << 20

// Fetcher returns the encoded bytes behind a clip URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch calls f(ctx, url).
func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// HTTPFetcher serves clip keys from the clip store and everything else
// over HTTP.
type HTTPFetcher struct {
	client *http.Client
	clips  cache.Clips
}

// NewHTTPFetcher creates a fetcher. clips may be nil when no local store is
// available.
func NewHTTPFetcher(client *http.Client, clips cache.Clips) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{client: client, clips: clips}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if cache.IsKey(url) {
		if f.clips == nil {
			return nil, fmt.Errorf("no clip store for %s", url)
		}
		return f.clips.Get(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(data) > maxClipSize {
		return nil, fmt.Errorf("clip %s exceeds %d bytes", url, maxClipSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("clip %s is empty", url)
	}
	return data, nil
}
