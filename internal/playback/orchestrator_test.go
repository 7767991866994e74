package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayahplayer/ayah/internal/audio"
	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/cache"
	"github.com/ayahplayer/ayah/internal/settings"
)

func TestPlayVerse(t *testing.T) {
	h := newHarness(t, 7)
	ctx := context.Background()

	require.NoError(t, h.o.PlayVerse(ctx, verse(1)))

	st := h.o.Status()
	assert.Equal(t, StatePlaying, st.State)
	assert.Equal(t, verse(1), st.Verse)
	assert.Equal(t, 2, st.Chapter)
	assert.Equal(t, urlFor(testSel, 1), h.engine.Source())
	assert.True(t, h.engine.IsPlaying())
	assert.Equal(t, []int{1}, h.events.verses())

	// the next verse is preloaded speculatively
	h.waitPreload(t, 2)
}

func TestPlayVerseFillsGlobalNumber(t *testing.T) {
	h := newHarness(t, 7)

	require.NoError(t, h.o.PlayVerse(context.Background(), ayah.Verse{InChapter: 3}))
	assert.Equal(t, verse(3), h.o.Status().Verse)

	err := h.o.PlayVerse(context.Background(), ayah.Verse{Chapter: 2, InChapter: 99})
	assert.ErrorIs(t, err, ayah.ErrNotFound)

	err = h.o.PlayVerse(context.Background(), ayah.Verse{Chapter: 3, InChapter: 1})
	assert.ErrorIs(t, err, ayah.ErrInvalidInput)
}

func TestPlayVerseUsesMatchingPreload(t *testing.T) {
	h := newHarness(t, 7)
	ctx := context.Background()

	require.NoError(t, h.o.PlayVerse(ctx, verse(1)))
	h.waitPreload(t, 2)

	require.NoError(t, h.o.PlayVerse(ctx, verse(2)))
	assert.Equal(t, 1, h.resolver.Calls(2), "verse 2 was resolved only by the preload")
	assert.Equal(t, urlFor(testSel, 2), h.engine.Source())
	assert.Equal(t, []string{urlFor(testSel, 1), urlFor(testSel, 2)}, h.engine.Loaded())
}

func TestPreloadDiscardedByDirectRequest(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()

	require.True(t, h.o.preloader.Preload(ctx, testSel, verse(4)))
	h.o.preloader.mu.Lock()
	preloaded := h.o.preloader.slot.Clip
	h.o.preloader.mu.Unlock()

	require.NoError(t, h.o.PlayVerse(ctx, verse(9)))

	_, ok := h.o.preloader.ConsumeIfMatches(testSel, verse(4))
	assert.False(t, ok)
	assert.True(t, audio.Closed(preloaded), "discarded preload is released, never played")
	assert.NotContains(t, h.engine.Loaded(), urlFor(testSel, 4))
	assert.Equal(t, urlFor(testSel, 9), h.engine.Source())
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	h := newHarness(t, 7)
	ctx := context.Background()

	release := h.resolver.Block(3)
	errA := make(chan error, 1)
	go func() { errA <- h.o.PlayVerse(ctx, verse(3)) }()

	require.Equal(t, 3, <-h.resolver.entered)
	assert.Equal(t, StateResolving, h.o.Status().State)

	require.NoError(t, h.o.PlayVerse(ctx, verse(5)))
	close(release)

	err := <-errA
	assert.ErrorIs(t, err, ayah.ErrSuperseded)

	st := h.o.Status()
	assert.Equal(t, StatePlaying, st.State)
	assert.Equal(t, verse(5), st.Verse)
	assert.Equal(t, urlFor(testSel, 5), h.engine.Source())
	assert.NotContains(t, h.engine.Loaded(), urlFor(testSel, 3))
	assert.NotContains(t, h.events.verses(), 3)
	assert.Empty(t, h.events.failures())
}

func TestContinuityAdvances(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	require.NoError(t, h.o.PlayVerse(ctx, verse(1)))
	require.True(t, h.engine.Finish())
	h.waitFor(t, 2, StatePlaying)

	require.True(t, h.engine.Finish())
	h.waitFor(t, 3, StatePlaying)

	// end of chapter without whole repeat
	require.True(t, h.engine.Finish())
	h.waitFor(t, 3, StatePaused)
	assert.Equal(t, []int{1, 2, 3}, h.events.verses())
}

func TestContinuityOffStops(t *testing.T) {
	h := newHarness(t, 7, func(p *settings.Playback) { p.Continuity = false })
	ctx := context.Background()

	require.NoError(t, h.o.PlayVerse(ctx, verse(6)))
	loaded := len(h.engine.Loaded())

	require.True(t, h.engine.Finish())
	h.waitFor(t, 6, StatePaused)

	assert.Equal(t, loaded, len(h.engine.Loaded()), "no auto-advance")
	assert.Equal(t, []int{6}, h.events.verses())
}

func TestRangeLoop(t *testing.T) {
	h := newHarness(t, 10, func(p *settings.Playback) { p.Repeat = "range" })
	ctx := context.Background()
	require.NoError(t, h.o.SetMarkers(ayah.Markers{A: 3, B: 7}))

	require.NoError(t, h.o.PlayVerse(ctx, verse(7)))
	require.True(t, h.engine.Finish())
	h.waitFor(t, 3, StatePlaying)

	require.NoError(t, h.o.PlayVerse(ctx, verse(5)))
	require.True(t, h.engine.Finish())
	h.waitFor(t, 6, StatePlaying)
}

func TestWholeRestart(t *testing.T) {
	h := newHarness(t, 4, func(p *settings.Playback) {
		p.Repeat = "whole"
		p.Continuity = false
	})
	ctx := context.Background()

	require.NoError(t, h.o.PlayVerse(ctx, verse(4)))
	require.True(t, h.engine.Finish())
	h.waitFor(t, 1, StatePlaying)
	assert.Equal(t, urlFor(testSel, 1), h.engine.Source())
}

func TestSingleRepeatReplaysWithoutReload(t *testing.T) {
	h := newHarness(t, 5, func(p *settings.Playback) { p.Repeat = "single" })
	ctx := context.Background()

	require.NoError(t, h.o.PlayVerse(ctx, verse(2)))
	for i := 0; i < 3; i++ {
		require.True(t, h.engine.Finish())
		require.Eventually(t, h.engine.IsPlaying, time.Second, 5*time.Millisecond)
	}

	h.waitFor(t, 2, StatePlaying)
	_, _, swaps, plays, _ := h.engine.Counts()
	assert.Equal(t, int64(1), swaps)
	assert.Equal(t, int64(4), plays)
	assert.Equal(t, 1, h.resolver.Calls(2))
}

func TestEndedIgnoredUnlessPlaying(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	require.NoError(t, h.o.PlayVerse(ctx, verse(1)))
	h.o.Stop()
	assert.Equal(t, StateIdle, h.o.Status().State)
	assert.True(t, h.o.Status().Verse.IsZero())

	// a stale end notification for the stopped clip
	h.o.onEnded(urlFor(testSel, 1))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, h.o.Status().State)
	assert.Equal(t, []int{1}, h.events.verses())
}

func TestResolutionFailure(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()
	h.resolver.Fail(4)

	err := h.o.PlayVerse(ctx, verse(4))
	assert.ErrorIs(t, err, ayah.ErrResolutionFailure)
	assert.Equal(t, StateIdle, h.o.Status().State)
	require.Len(t, h.events.failures(), 1)
	assert.Equal(t, verse(4), h.events.failures()[0].Verse)

	// after a verse played, a failure leaves it stopped there
	require.NoError(t, h.o.PlayVerse(ctx, verse(3)))
	err = h.o.PlayVerse(ctx, verse(4))
	assert.ErrorIs(t, err, ayah.ErrResolutionFailure)

	st := h.o.Status()
	assert.Equal(t, StatePaused, st.State)
	assert.Equal(t, verse(3), st.Verse)
	assert.False(t, h.engine.IsPlaying())
	assert.ErrorIs(t, st.LastError, ayah.ErrResolutionFailure)
}

func TestAutoAdvanceFailureStops(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()
	h.resolver.Fail(3)

	require.NoError(t, h.o.PlayVerse(ctx, verse(2)))
	require.True(t, h.engine.Finish())

	h.waitFor(t, 2, StatePaused)
	require.Eventually(t, func() bool { return len(h.events.failures()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestPlaybackRejectedIsNotFatal(t *testing.T) {
	h := newHarness(t, 5)
	h.engine.RejectPlay.Store(true)

	require.NoError(t, h.o.PlayVerse(context.Background(), verse(1)))

	st := h.o.Status()
	assert.Equal(t, StatePaused, st.State)
	assert.Equal(t, verse(1), st.Verse)
	assert.ErrorIs(t, st.LastError, ayah.ErrPlaybackRejected)
	require.Len(t, h.events.failures(), 1)

	// the user taps play
	h.engine.RejectPlay.Store(false)
	require.NoError(t, h.o.Toggle())
	assert.Equal(t, StatePlaying, h.o.Status().State)
}

func TestToggle(t *testing.T) {
	h := newHarness(t, 5)

	assert.ErrorIs(t, h.o.Toggle(), ErrNotActive)

	require.NoError(t, h.o.PlayVerse(context.Background(), verse(1)))
	require.NoError(t, h.o.Toggle())
	assert.Equal(t, StatePaused, h.o.Status().State)
	assert.False(t, h.engine.IsPlaying())

	require.NoError(t, h.o.Toggle())
	assert.Equal(t, StatePlaying, h.o.Status().State)
	assert.Equal(t, verse(1), h.o.Status().Verse)
}

func TestSeek(t *testing.T) {
	h := newHarness(t, 5)
	assert.ErrorIs(t, h.o.Seek(0.5), ErrNotActive)

	require.NoError(t, h.o.PlayVerse(context.Background(), verse(1)))
	require.NoError(t, h.o.Seek(0.5))
	assert.Equal(t, 2500*time.Millisecond, h.engine.Position())
	assert.Equal(t, StatePlaying, h.o.Status().State)

	require.NoError(t, h.o.Seek(3))
	assert.Equal(t, 5*time.Second, h.engine.Position())
}

func TestNextPrevious(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	require.NoError(t, h.o.Next(ctx))
	assert.Equal(t, verse(1), h.o.Status().Verse)

	require.NoError(t, h.o.Next(ctx))
	require.NoError(t, h.o.Next(ctx))
	assert.Equal(t, verse(3), h.o.Status().Verse)
	assert.ErrorIs(t, h.o.Next(ctx), ayah.ErrNotFound)

	require.NoError(t, h.o.Previous(ctx))
	assert.Equal(t, verse(2), h.o.Status().Verse)

	require.NoError(t, h.o.PlayAt(ctx, 1))
	assert.ErrorIs(t, h.o.Previous(ctx), ayah.ErrNotFound)
	assert.ErrorIs(t, h.o.PlayAt(ctx, 9), ayah.ErrNotFound)
}

func TestSelectionChangeAppliesToNextVerse(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	require.NoError(t, h.o.PlayVerse(ctx, verse(1)))
	h.waitPreload(t, 2)

	other := ayah.Selection{ReciterID: "sudais", Bitrate: ayah.BitrateLow}
	require.NoError(t, h.o.SetSelection(other))

	_, ok := h.o.preloader.Pending()
	assert.False(t, ok, "stale preload dropped")
	assert.Equal(t, urlFor(testSel, 1), h.engine.Source(), "current verse keeps playing")
	assert.True(t, h.engine.IsPlaying())

	require.True(t, h.engine.Finish())
	h.waitFor(t, 2, StatePlaying)
	assert.Equal(t, urlFor(other, 2), h.engine.Source())

	p := h.prefs.Playback()
	assert.Equal(t, "sudais", p.Reciter)
	assert.Equal(t, "64", p.Bitrate)

	assert.Error(t, h.o.SetSelection(ayah.Selection{ReciterID: "", Bitrate: ayah.BitrateLow}))
}

func TestRepeatChangeDoesNotInterrupt(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()

	require.NoError(t, h.o.PlayVerse(ctx, verse(2)))
	require.NoError(t, h.o.SetRepeat(ayah.RepeatSingle))
	assert.Equal(t, urlFor(testSel, 2), h.engine.Source())
	assert.True(t, h.engine.IsPlaying())
	assert.Equal(t, "single", h.prefs.Playback().Repeat)

	require.True(t, h.engine.Finish())
	h.waitFor(t, 2, StatePlaying)

	assert.Equal(t, ayah.RepeatRange, h.o.CycleRepeat())
	assert.Equal(t, ayah.RepeatRange, h.o.Status().Repeat)
}

func TestSpeed(t *testing.T) {
	h := newHarness(t, 5)

	assert.Equal(t, 1.25, h.o.IncreaseSpeed())
	assert.Equal(t, 1.25, h.engine.Speed())
	assert.Equal(t, 1.25, h.prefs.Playback().Speed)

	assert.Equal(t, 1.0, h.o.DecreaseSpeed())
	assert.ErrorIs(t, h.o.SetSpeed(2.5), ayah.ErrInvalidInput)

	require.NoError(t, h.o.SetSpeed(2))
	assert.Equal(t, 2.0, h.o.IncreaseSpeed())
}

func TestSpeedPreferenceAppliedAtStart(t *testing.T) {
	h := newHarness(t, 5, func(p *settings.Playback) { p.Speed = 0.75 })
	assert.Equal(t, 0.75, h.engine.Speed())
	assert.Equal(t, 0.75, h.o.Status().Speed)
}

func TestMarkers(t *testing.T) {
	h := newHarness(t, 9)
	ctx := context.Background()

	assert.ErrorIs(t, h.o.MarkA(), ErrNotActive)

	require.NoError(t, h.o.PlayVerse(ctx, verse(3)))
	require.NoError(t, h.o.MarkA())
	require.NoError(t, h.o.PlayVerse(ctx, verse(7)))
	require.NoError(t, h.o.MarkB())
	assert.Equal(t, ayah.Markers{A: 3, B: 7}, h.o.Status().Markers)

	require.NoError(t, h.o.ClearMarkers())
	assert.Equal(t, ayah.Markers{}, h.o.Status().Markers)
	assert.Error(t, h.o.SetMarkers(ayah.Markers{A: -1}))

	// another chapter clears them
	require.NoError(t, h.o.SetMarkers(ayah.Markers{A: 1, B: 2}))
	other, err := ayah.NewChapter(3, "Al-Imran", []ayah.Verse{{Chapter: 3, InChapter: 1, Global: 294}})
	require.NoError(t, err)
	require.NoError(t, h.o.LoadChapter(other))
	assert.Equal(t, ayah.Markers{}, h.o.Status().Markers)
}

func TestCacheFirstPlayback(t *testing.T) {
	cfg := cache.DefaultConfig("")
	cfg.InMemory = true
	cfg.GCInterval = 0
	store, err := cache.Open(cfg)
	require.NoError(t, err)
	defer store.Close()

	key := cache.Key(testSel, verse(2))
	require.NoError(t, store.Put(key, []byte("clip")))

	engine := audio.NewMock()
	resolver := newFakeResolver()
	o, err := New(Config{Engine: engine, Resolver: resolver, Clips: store, Logger: quietLogger()})
	require.NoError(t, err)
	defer o.Close()
	require.NoError(t, o.LoadChapter(testChapter(t, 5)))

	require.NoError(t, o.PlayVerse(context.Background(), verse(2)))
	assert.Equal(t, key, engine.Source())
	assert.Zero(t, resolver.Calls(2))

	require.NoError(t, o.PlayVerse(context.Background(), verse(1)))
	assert.Equal(t, urlFor(testSel, 1), engine.Source())
}

func TestTimeUpdatesAreForwarded(t *testing.T) {
	h := newHarness(t, 5)

	var got []TimeUpdate
	done := make(chan struct{}, 1)
	h.o.Subscribe(func(e Event) {
		if tu, ok := e.(TimeUpdate); ok {
			got = append(got, tu)
			done <- struct{}{}
		}
	})

	require.NoError(t, h.o.PlayVerse(context.Background(), verse(1)))
	h.engine.Tick(time.Second)
	<-done

	require.Len(t, got, 1)
	assert.Equal(t, verse(1), got[0].Verse)
	assert.Equal(t, time.Second, got[0].Position)
	assert.Equal(t, 5*time.Second, got[0].Duration)
}

func TestApplyPreferences(t *testing.T) {
	h := newHarness(t, 5)

	p := settings.DefaultPlayback()
	p.Speed = 1.5
	p.Repeat = "whole"
	p.Continuity = false
	p.Reciter = "husary"
	h.o.ApplyPreferences(p)

	st := h.o.Status()
	assert.Equal(t, 1.5, st.Speed)
	assert.Equal(t, 1.5, h.engine.Speed())
	assert.Equal(t, ayah.RepeatWhole, st.Repeat)
	assert.False(t, st.Continuity)
	assert.Equal(t, "husary", st.Selection.ReciterID)
	assert.Zero(t, h.prefs.Saves(), "external changes are not written back")
}

func TestClose(t *testing.T) {
	h := newHarness(t, 5)
	require.NoError(t, h.o.PlayVerse(context.Background(), verse(1)))

	require.NoError(t, h.o.Close())
	require.NoError(t, h.o.Close())

	err := h.o.PlayVerse(context.Background(), verse(2))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.ErrorIs(t, h.o.SetContinuity(false), ErrClosed)

	// the orchestrator no longer follows the engine
	require.True(t, h.engine.Finish())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []int{1}, h.events.verses())
}
