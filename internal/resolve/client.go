package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Client calls a remote resolver service:
//
//	POST {BaseURL}/audio/resolve
//	{"reciter_key": "...", "bitrate": "128", "surah": 2, "ayah_in_surah": 255, "global_ayah": 262}
//	-> {"url": "https://..."}
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *log.Logger
}

// ClientConfig holds configuration for the remote client.
type ClientConfig struct {
	// BaseURL of the API, e.g. https://example.com/api
	BaseURL string

	// Timeout for one request (defaults to 10s)
	Timeout time.Duration

	// RequestsPerSecond caps outgoing calls (defaults to 5)
	RequestsPerSecond float64

	// HTTPClient overrides the default client
	HTTPClient *http.Client

	Logger *log.Logger
}

type resolveRequest struct {
	ReciterKey  string `json:"reciter_key"`
	Bitrate     string `json:"bitrate"`
	Surah       int    `json:"surah"`
	AyahInSurah int    `json:"ayah_in_surah"`
	GlobalAyah  int    `json:"global_ayah"`
}

type resolveResponse struct {
	URL string `json:"url"`
}

// NewClient creates a remote resolver client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("resolver base url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  cfg.HTTPClient,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:      cfg.Logger,
	}, nil
}

// Resolve implements Resolver.
func (c *Client) Resolve(ctx context.Context, req Request) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", failure(req, "rate limit wait cancelled", err)
	}

	body, err := json.Marshal(resolveRequest{
		ReciterKey:  req.ReciterID,
		Bitrate:     string(req.Bitrate),
		Surah:       req.Verse.Chapter,
		AyahInSurah: req.Verse.InChapter,
		GlobalAyah:  req.Verse.Global,
	})
	if err != nil {
		return "", failure(req, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/resolve", bytes.NewReader(body))
	if err != nil {
		return "", failure(req, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", failure(req, "resolver unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", failure(req, fmt.Sprintf("resolver returned %d", resp.StatusCode), errors.New(strings.TrimSpace(string(snippet))))
	}

	var out resolveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", failure(req, "decode response", err)
	}
	if out.URL == "" {
		return "", failure(req, "resolver returned no url", nil)
	}

	c.logger.Debug("resolved", "verse", req.Verse, "reciter", req.ReciterID, "url", out.URL)
	return out.URL, nil
}
