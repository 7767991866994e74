// Package chapter fetches chapter metadata and verse lists from an
// alquran.cloud compatible content API.
package chapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/reciter"
)

// DefaultEdition is the text edition used to enumerate verses.
const DefaultEdition = "quran-simple"

// Count is the number of chapters.
const Count = 114

// ErrUpstream is returned when the API answers with a non-OK envelope.
var ErrUpstream = errors.New("content api error")

// Info describes one chapter in the chapter list.
type Info struct {
	Number          int    `json:"number"`
	Name            string `json:"name"`
	EnglishName     string `json:"englishName"`
	Translation     string `json:"englishNameTranslation"`
	Verses          int    `json:"numberOfAyahs"`
	RevelationPlace string `json:"revelationType"`
}

// Config holds configuration for a Client.
type Config struct {
	// BaseURL of the API (defaults to https://api.alquran.cloud/v1)
	BaseURL string

	// Edition used by Chapter (defaults to DefaultEdition)
	Edition string

	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client

	// CacheSize is the number of chapters kept in memory (defaults to 16)
	CacheSize int

	Logger *log.Logger
}

// Client is a content API client. It is safe for concurrent use.
type Client struct {
	baseURL     string
	edition     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	chapters    *lru.Cache[int, *ayah.Chapter]
	logger      *log.Logger
}

type envelope[T any] struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   T      `json:"data"`
}

type surahPayload struct {
	Number      int    `json:"number"`
	EnglishName string `json:"englishName"`
	Ayahs       []struct {
		Number        int `json:"number"`
		NumberInSurah int `json:"numberInSurah"`
	} `json:"ayahs"`
}

// NewClient creates a content client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.alquran.cloud/v1"
	}
	if cfg.Edition == "" {
		cfg.Edition = DefaultEdition
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	chapters, err := lru.New[int, *ayah.Chapter](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("unable to create chapter cache: %w", err)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		edition:     cfg.Edition,
		httpClient:  cfg.HTTPClient,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		chapters:    chapters,
		logger:      cfg.Logger,
	}, nil
}

// Chapter returns the ordered verse list of chapter n.
func (c *Client) Chapter(ctx context.Context, n int) (*ayah.Chapter, error) {
	if n < 1 || n > Count {
		return nil, ayah.NewError(ayah.CodeInvalidInput, fmt.Sprintf("chapter must be between 1 and %d", Count), nil).
			WithContext("chapter", n)
	}
	if ch, ok := c.chapters.Get(n); ok {
		return ch, nil
	}

	var payload surahPayload
	if err := c.get(ctx, fmt.Sprintf("/surah/%d/%s", n, c.edition), &payload); err != nil {
		return nil, fmt.Errorf("unable to fetch chapter %d: %w", n, err)
	}
	if len(payload.Ayahs) == 0 {
		return nil, ayah.NewError(ayah.CodeNotFound, "chapter has no verses", nil).WithContext("chapter", n)
	}

	verses := make([]ayah.Verse, 0, len(payload.Ayahs))
	for _, a := range payload.Ayahs {
		verses = append(verses, ayah.Verse{Chapter: n, InChapter: a.NumberInSurah, Global: a.Number})
	}
	ch, err := ayah.NewChapter(n, payload.EnglishName, verses)
	if err != nil {
		return nil, err
	}

	c.chapters.Add(n, ch)
	c.logger.Debug("chapter loaded", "chapter", n, "verses", ch.Len())
	return ch, nil
}

// Chapters lists every chapter.
func (c *Client) Chapters(ctx context.Context) ([]Info, error) {
	var out []Info
	if err := c.get(ctx, "/surah", &out); err != nil {
		return nil, fmt.Errorf("unable to list chapters: %w", err)
	}
	return out, nil
}

// AudioEditions lists the audio editions the API knows about.
func (c *Client) AudioEditions(ctx context.Context) ([]reciter.Edition, error) {
	var out []reciter.Edition
	if err := c.get(ctx, "/edition/format/audio", &out); err != nil {
		return nil, fmt.Errorf("unable to list audio editions: %w", err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, data any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ayah.NewError(ayah.CodeNotFound, "not found", nil).WithContext("path", path)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return fmt.Errorf("%w: %d %s", ErrUpstream, env.Code, env.Status)
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}
