package download

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/cache"
	"github.com/ayahplayer/ayah/internal/resolve"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("download manager is closed")

// Fetcher returns the bytes behind a clip URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config holds the collaborators of a Manager.
type Config struct {
	Resolver resolve.Resolver
	Fetcher  Fetcher
	Store    cache.Clips

	// RequestsPerSecond throttles fetches across all jobs. Zero means
	// unlimited.
	RequestsPerSecond float64

	// Refetch downloads items that are already cached instead of skipping
	// them.
	Refetch bool

	// OnProgress is called on the job goroutine after every item. It must
	// not block; it may call Pause or Cancel on the job.
	OnProgress func(j *Job, p Progress)

	Logger *log.Logger
}

// Manager starts and tracks download jobs.
type Manager struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool
}

// NewManager creates a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("resolver cannot be nil")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*Job),
	}, nil
}

// Start creates a running job over verses, in order, and returns its
// handle. Canceling ctx cancels the job.
func (m *Manager) Start(ctx context.Context, verses []ayah.Verse, sel ayah.Selection) (*Job, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if len(verses) == 0 {
		return nil, ayah.NewError(ayah.CodeInvalidInput, "nothing to download", nil)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("unable to create job id: %w", err)
	}
	j := newJob(id, sel, append([]ayah.Verse(nil), verses...))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.jobs[id] = j
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug("download started", "job", id, "selection", sel, "items", len(verses))
	go m.run(ctx, j)
	return j, nil
}

// Get returns the job with the given id.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// Jobs returns every job started by m, oldest first.
func (m *Manager) Jobs() []*Job {
	m.mu.Lock()
	jobs := lo.Values(m.jobs)
	m.mu.Unlock()

	sort.Slice(jobs, func(a, b int) bool { return jobs[a].started.Before(jobs[b].started) })
	return jobs
}

// Cached returns how many clips of chapter are stored under sel,
// regardless of which job stored them.
func (m *Manager) Cached(sel ayah.Selection, chapter int) (int, error) {
	return m.cfg.Store.Count(cache.ChapterPrefix(sel, chapter))
}

// Close cancels every job and waits for the loops to exit.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	jobs := lo.Values(m.jobs)
	m.mu.Unlock()

	for _, j := range jobs {
		j.Cancel()
	}
	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *Manager) run(ctx context.Context, j *Job) {
	defer m.wg.Done()

	stop := context.AfterFunc(ctx, func() { j.Cancel() })

	// Fetches run on the manager context so that canceling the job lets
	// the item in flight finish.
	for {
		v, ok := j.next()
		if !ok {
			break
		}

		p := j.record(v, m.fetchOne(j, v))
		if m.cfg.OnProgress != nil {
			m.cfg.OnProgress(j, p)
		}
	}
	stop()
	j.finish()

	s := j.Summary()
	m.logger.Info("download finished", "job", j.id, "state", s.State,
		"stored", s.Succeeded, "cached", s.Skipped, "failed", s.Failed, "total", s.Total)
}

func (m *Manager) fetchOne(j *Job, v ayah.Verse) outcome {
	key := cache.Key(j.sel, v)

	if !m.cfg.Refetch {
		has, err := m.cfg.Store.Has(key)
		if err == nil && has {
			return cached
		}
	}

	if err := m.limiter.Wait(m.ctx); err != nil {
		m.itemFailed(j, v, err)
		return failed
	}

	url, err := m.cfg.Resolver.Resolve(m.ctx, resolve.NewRequest(j.sel, v))
	if err != nil {
		m.itemFailed(j, v, err)
		return failed
	}

	data, err := m.cfg.Fetcher.Fetch(m.ctx, url)
	if err != nil {
		m.itemFailed(j, v, err)
		return failed
	}

	if err := m.cfg.Store.Put(key, data); err != nil {
		m.itemFailed(j, v, err)
		return failed
	}
	return stored
}

func (m *Manager) itemFailed(j *Job, v ayah.Verse, cause error) {
	err := ayah.NewError(ayah.CodeDownloadItem, "item skipped", cause).
		WithContext("job", j.id).
		WithContext("verse", v.String())
	m.logger.Debug("download item failed", "err", err)
}
