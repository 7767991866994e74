package download

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/cache"
	"github.com/ayahplayer/ayah/internal/resolve"
)

var testSel = ayah.Selection{ReciterID: "alafasy", Bitrate: ayah.BitrateLow}

func chapterVerses(chapter, n int) []ayah.Verse {
	out := make([]ayah.Verse, n)
	for i := range out {
		out[i] = ayah.Verse{Chapter: chapter, InChapter: i + 1, Global: 100*chapter + i + 1}
	}
	return out
}

func urlOf(req resolve.Request) string {
	return fmt.Sprintf("https://audio.test/%s/%d/%d.mp3", req.ReciterID, req.Verse.Chapter, req.Verse.InChapter)
}

// countingFetcher returns the url as payload and counts fetches per url.
type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{calls: make(map[string]int), fail: make(map[string]bool)}
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.fail[url] {
		return nil, fmt.Errorf("status 404")
	}
	return []byte("audio:" + url), nil
}

func (f *countingFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *countingFetcher) maxPerURL() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := 0
	for _, c := range f.calls {
		m = max(m, c)
	}
	return m
}

func openStore(t *testing.T) *cache.Store {
	t.Helper()
	cfg := cache.DefaultConfig("")
	cfg.InMemory = true
	cfg.GCInterval = 0
	cfg.Logger = log.NewWithOptions(os.Stderr, log.Options{Level: log.ErrorLevel})
	s, err := cache.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fixture struct {
	m       *Manager
	store   *cache.Store
	fetcher *countingFetcher
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{store: openStore(t), fetcher: newCountingFetcher()}
	cfg := Config{
		Resolver: resolve.Func(func(_ context.Context, req resolve.Request) (string, error) {
			return urlOf(req), nil
		}),
		Fetcher: f.fetcher,
		Store:   f.store,
		Logger:  log.NewWithOptions(os.Stderr, log.Options{Level: log.ErrorLevel}),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	f.m = m
	return f
}

func wait(t *testing.T, j *Job) Summary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := j.Wait(ctx)
	require.NoError(t, err)
	return s
}

func TestDownloadWholeChapter(t *testing.T) {
	f := newFixture(t)
	verses := chapterVerses(1, 7)

	j, err := f.m.Start(context.Background(), verses, testSel)
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID())

	s := wait(t, j)
	assert.True(t, s.Complete())
	assert.Equal(t, JobCompleted, s.State)
	assert.Equal(t, 7, s.Done)
	assert.Equal(t, 7, s.Total)
	assert.Equal(t, 7, s.Succeeded)
	assert.Equal(t, 1.0, s.Fraction())

	n, err := f.m.Cached(testSel, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	data, err := f.store.Get(cache.Key(testSel, verses[3]))
	require.NoError(t, err)
	assert.Equal(t, "audio:https://audio.test/alafasy/1/4.mp3", string(data))
}

func TestCancelAfterK(t *testing.T) {
	const k, n = 3, 10

	f := newFixture(t, func(c *Config) {
		c.OnProgress = func(j *Job, p Progress) {
			if p.Done == k {
				j.Cancel()
			}
		}
	})

	j, err := f.m.Start(context.Background(), chapterVerses(2, n), testSel)
	require.NoError(t, err)

	s := wait(t, j)
	assert.Equal(t, JobCanceled, s.State)
	assert.False(t, s.Complete())
	assert.Equal(t, k, s.Done)
	assert.Equal(t, k, s.Cursor, "cursor stops at the canceled item")
	assert.Equal(t, k, f.fetcher.total())

	cached, err := f.m.Cached(testSel, 2)
	require.NoError(t, err)
	assert.Equal(t, k, cached)

	// cancel is terminal
	assert.False(t, j.Resume())
	assert.False(t, j.Cancel())
	assert.Equal(t, JobCanceled, j.Progress().State)
}

func TestPauseResume(t *testing.T) {
	const n = 8
	paused := make(chan struct{})

	f := newFixture(t, func(c *Config) {
		c.OnProgress = func(j *Job, p Progress) {
			if p.Done == 3 && j.Pause() {
				close(paused)
			}
		}
	})

	j, err := f.m.Start(context.Background(), chapterVerses(3, n), testSel)
	require.NoError(t, err)

	<-paused
	time.Sleep(50 * time.Millisecond)
	p := j.Progress()
	assert.Equal(t, JobPaused, p.State)
	assert.Equal(t, 3, p.Done, "no progress while paused")
	assert.Equal(t, 3, f.fetcher.total())
	assert.False(t, j.Pause())

	require.True(t, j.Resume())
	s := wait(t, j)

	assert.True(t, s.Complete())
	assert.Equal(t, n, s.Done)
	assert.Equal(t, n, f.fetcher.total())
	assert.Equal(t, 1, f.fetcher.maxPerURL(), "no duplicate fetches")
}

func TestCancelWhilePaused(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.OnProgress = func(j *Job, p Progress) {
			if p.Done == 1 {
				j.Pause()
			}
		}
	})

	j, err := f.m.Start(context.Background(), chapterVerses(4, 5), testSel)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return j.Progress().State == JobPaused }, time.Second, 5*time.Millisecond)
	require.True(t, j.Cancel())

	s := wait(t, j)
	assert.Equal(t, JobCanceled, s.State)
	assert.Equal(t, 1, s.Done)
}

func TestFailedItemsCountAsDone(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.Resolver = resolve.Func(func(_ context.Context, req resolve.Request) (string, error) {
			if req.Verse.InChapter == 2 {
				return "", ayah.NewError(ayah.CodeResolutionFailure, "no audio", nil)
			}
			return urlOf(req), nil
		})
	})
	f.fetcher.fail["https://audio.test/alafasy/5/4.mp3"] = true

	j, err := f.m.Start(context.Background(), chapterVerses(5, 5), testSel)
	require.NoError(t, err)

	s := wait(t, j)
	assert.Equal(t, JobCompleted, s.State)
	assert.False(t, s.Complete())
	assert.Equal(t, 5, s.Done)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, []int{2, 4}, []int{s.Failures[0].InChapter, s.Failures[1].InChapter})

	cached, err := f.m.Cached(testSel, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, cached)
}

func TestCachedItemsAreSkipped(t *testing.T) {
	f := newFixture(t)
	verses := chapterVerses(6, 4)
	require.NoError(t, f.store.Put(cache.Key(testSel, verses[0]), []byte("old")))
	require.NoError(t, f.store.Put(cache.Key(testSel, verses[2]), []byte("old")))

	j, err := f.m.Start(context.Background(), verses, testSel)
	require.NoError(t, err)

	s := wait(t, j)
	assert.True(t, s.Complete())
	assert.Equal(t, 2, s.Skipped)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 2, f.fetcher.total())
}

func TestContextCancelsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, func(c *Config) {
		c.OnProgress = func(j *Job, p Progress) {
			if p.Done == 2 {
				cancel()
				require.Eventually(t, func() bool { return j.Progress().State == JobCanceled }, time.Second, time.Millisecond)
			}
		}
	})

	j, err := f.m.Start(ctx, chapterVerses(7, 6), testSel)
	require.NoError(t, err)

	s := wait(t, j)
	assert.Equal(t, JobCanceled, s.State)
	assert.Equal(t, 2, s.Done)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.m.Start(context.Background(), nil, testSel)
	assert.ErrorIs(t, err, ayah.ErrInvalidInput)

	_, err = f.m.Start(context.Background(), chapterVerses(1, 1), ayah.Selection{ReciterID: "x"})
	assert.ErrorIs(t, err, ayah.ErrInvalidInput)

	j, err := f.m.Start(context.Background(), chapterVerses(1, 1), testSel)
	require.NoError(t, err)
	got, ok := f.m.Get(j.ID())
	require.True(t, ok)
	assert.Same(t, j, got)
	assert.Len(t, f.m.Jobs(), 1)

	require.NoError(t, f.m.Close())
	_, err = f.m.Start(context.Background(), chapterVerses(1, 1), testSel)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentJobsShareStore(t *testing.T) {
	f := newFixture(t)
	other := ayah.Selection{ReciterID: "sudais", Bitrate: ayah.BitrateLow}

	a, err := f.m.Start(context.Background(), chapterVerses(8, 6), testSel)
	require.NoError(t, err)
	b, err := f.m.Start(context.Background(), chapterVerses(8, 4), other)
	require.NoError(t, err)

	assert.True(t, wait(t, a).Complete())
	assert.True(t, wait(t, b).Complete())

	na, err := f.m.Cached(testSel, 8)
	require.NoError(t, err)
	nb, err := f.m.Cached(other, 8)
	require.NoError(t, err)
	assert.Equal(t, 6, na)
	assert.Equal(t, 4, nb)
}

func TestFinishedJobIsLoggedWithFinalState(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(t, func(c *Config) {
		c.Logger = log.NewWithOptions(&buf, log.Options{Level: log.InfoLevel})
	})

	j, err := f.m.Start(context.Background(), chapterVerses(1, 3), testSel)
	require.NoError(t, err)
	wait(t, j)

	// Close waits for the job goroutine, including its last log line.
	require.NoError(t, f.m.Close())
	out := buf.String()
	assert.Contains(t, out, "download finished")
	assert.Contains(t, out, "state=completed")
	assert.NotContains(t, out, "state=running")
}
