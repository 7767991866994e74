package playback

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/ayahplayer/ayah/internal/audio"
	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/resolve"
	"github.com/ayahplayer/ayah/internal/settings"
)

var testSel = ayah.Selection{ReciterID: "alafasy", Bitrate: ayah.BitrateHigh}

func quietLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.ErrorLevel})
}

// testChapter returns chapter 2 with n verses; global numbers start at 8.
func testChapter(t *testing.T, n int) *ayah.Chapter {
	t.Helper()
	verses := make([]ayah.Verse, n)
	for i := range verses {
		verses[i] = ayah.Verse{Chapter: 2, InChapter: i + 1, Global: 8 + i}
	}
	ch, err := ayah.NewChapter(2, "Al-Baqarah", verses)
	require.NoError(t, err)
	return ch
}

func verse(n int) ayah.Verse {
	return ayah.Verse{Chapter: 2, InChapter: n, Global: 7 + n}
}

func urlFor(sel ayah.Selection, n int) string {
	return fmt.Sprintf("https://audio.test/%s/%s/002%03d.mp3", sel.ReciterID, sel.Bitrate, n)
}

// fakeResolver answers with urlFor. Verses in fail are rejected; verses in
// block wait until their channel is closed, ignoring ctx.
type fakeResolver struct {
	mu      sync.Mutex
	calls   map[int]int
	fail    map[int]bool
	block   map[int]chan struct{}
	entered chan int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		calls:   make(map[int]int),
		fail:    make(map[int]bool),
		block:   make(map[int]chan struct{}),
		entered: make(chan int, 16),
	}
}

func (r *fakeResolver) Resolve(_ context.Context, req resolve.Request) (string, error) {
	n := req.Verse.InChapter

	r.mu.Lock()
	r.calls[n]++
	fail := r.fail[n]
	wait := r.block[n]
	r.mu.Unlock()

	select {
	case r.entered <- n:
	default:
	}
	if wait != nil {
		<-wait
	}
	if fail {
		return "", ayah.NewError(ayah.CodeResolutionFailure, "no audio", nil)
	}
	return urlFor(req.Selection(), n), nil
}

func (r *fakeResolver) Calls(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[n]
}

func (r *fakeResolver) Fail(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[n] = true
}

func (r *fakeResolver) Block(n int) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{})
	r.block[n] = ch
	return ch
}

// recorder keeps every event it sees.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) failures() []Failed {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Failed
	for _, e := range r.events {
		if f, ok := e.(Failed); ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) verses() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, e := range r.events {
		if vc, ok := e.(VerseChanged); ok {
			out = append(out, vc.Verse.InChapter)
		}
	}
	return out
}

type harness struct {
	o        *Orchestrator
	engine   *audio.Mock
	resolver *fakeResolver
	prefs    *settings.Memory
	events   *recorder
}

func newHarness(t *testing.T, verses int, configure ...func(*settings.Playback)) *harness {
	t.Helper()

	p := settings.DefaultPlayback()
	for _, fn := range configure {
		fn(&p)
	}

	h := &harness{
		engine:   audio.NewMock(),
		resolver: newFakeResolver(),
		prefs:    settings.NewMemory(p),
		events:   &recorder{},
	}

	o, err := New(Config{
		Engine:      h.engine,
		Resolver:    h.resolver,
		Preferences: h.prefs,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, o.LoadChapter(testChapter(t, verses)))
	o.Subscribe(h.events.record)
	h.o = o

	t.Cleanup(func() { _ = o.Close() })
	return h
}

// waitFor blocks until the orchestrator shows verse n in state s.
func (h *harness) waitFor(t *testing.T, n int, s State) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := h.o.Status()
		return st.Verse.InChapter == n && st.State == s
	}, 2*time.Second, 5*time.Millisecond, "want verse %d %s, have %+v", n, s, h.o.Status())
}

// waitPreload blocks until the preloader holds verse n.
func (h *harness) waitPreload(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		v, ok := h.o.preloader.Pending()
		return ok && v.InChapter == n
	}, 2*time.Second, 5*time.Millisecond)
}
