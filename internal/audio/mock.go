package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// Mock implements Engine for testing purposes. It never produces sound;
// tests drive the end of a clip with Finish.
type Mock struct {
	mu       sync.Mutex
	source   string
	state    PlayerState
	position time.Duration
	duration time.Duration
	speed    float64
	ended    bool

	obs observers

	// Test configuration
	RejectPlay   atomic.Bool
	PrepareDelay time.Duration
	PrepareErr   func(url string) error
	ClipDuration time.Duration

	// Metrics for testing
	loadCount    atomic.Int64
	prepareCount atomic.Int64
	swapCount    atomic.Int64
	playCount    atomic.Int64
	pauseCount   atomic.Int64

	loaded []string
}

var _ Engine = (*Mock)(nil)

// NewMock creates a mock engine with 5 second clips.
func NewMock() *Mock {
	return &Mock{
		state:        StateStopped,
		speed:        1.0,
		ClipDuration: 5 * time.Second,
	}
}

type mockClip struct {
	url      string
	duration time.Duration
	closed   atomic.Bool
}

func (c *mockClip) URL() string             { return c.url }
func (c *mockClip) Duration() time.Duration { return c.duration }
func (c *mockClip) Close() error            { c.closed.Store(true); return nil }

// Closed reports whether a clip returned by Prepare was closed.
func Closed(c Clip) bool {
	mc, ok := c.(*mockClip)
	return ok && mc.closed.Load()
}

// Load implements Engine.
func (m *Mock) Load(ctx context.Context, url string) error {
	m.mu.Lock()
	same := m.source == url && m.state != StateStopped
	m.mu.Unlock()
	if same {
		return nil
	}

	clip, err := m.Prepare(ctx, url)
	if err != nil {
		return err
	}
	m.loadCount.Add(1)
	return m.Swap(clip)
}

// Prepare implements Engine.
func (m *Mock) Prepare(ctx context.Context, url string) (Clip, error) {
	m.prepareCount.Add(1)
	if m.PrepareDelay > 0 {
		select {
		case <-time.After(m.PrepareDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.PrepareErr != nil {
		if err := m.PrepareErr(url); err != nil {
			return nil, err
		}
	}
	return &mockClip{url: url, duration: m.ClipDuration}, nil
}

// Swap implements Engine.
func (m *Mock) Swap(c Clip) error {
	if c == nil {
		return errors.New("nil clip")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return ErrClosed
	}
	if m.source == c.URL() && m.state != StateStopped {
		return nil
	}
	m.swapCount.Add(1)
	m.source = c.URL()
	m.duration = c.Duration()
	m.position = 0
	m.ended = false
	m.state = StatePaused
	m.loaded = append(m.loaded, c.URL())
	return nil
}

// Play implements Engine.
func (m *Mock) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateClosed:
		return ErrClosed
	case StateStopped:
		return ErrNoSource
	}
	if m.RejectPlay.Load() {
		m.state = StatePaused
		return ayah.NewError(ayah.CodePlaybackRejected, "simulated rejection", nil)
	}
	if m.ended {
		m.position = 0
		m.ended = false
	}
	m.playCount.Add(1)
	m.state = StatePlaying
	return nil
}

// Pause implements Engine.
func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatePlaying {
		m.pauseCount.Add(1)
		m.state = StatePaused
	}
}

// SetSpeed implements Engine.
func (m *Mock) SetSpeed(rate float64) error {
	if err := ValidateSpeed(rate); err != nil {
		return err
	}
	m.mu.Lock()
	m.speed = rate
	m.mu.Unlock()
	return nil
}

// Speed implements Engine.
func (m *Mock) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// SeekTo implements Engine.
func (m *Mock) SeekTo(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateStopped {
		return ErrNoSource
	}
	m.position = clampPosition(pos, m.duration)
	m.ended = false
	return nil
}

// Position implements Engine.
func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Duration implements Engine.
func (m *Mock) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// IsPlaying implements Engine.
func (m *Mock) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StatePlaying && !m.ended
}

// Source implements Engine.
func (m *Mock) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// Subscribe implements Engine.
func (m *Mock) Subscribe(o Observer) func() {
	return m.obs.add(o)
}

// Close implements Engine.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateClosed
	return nil
}

// Tick advances a playing clip by d and emits a time update.
func (m *Mock) Tick(d time.Duration) {
	m.mu.Lock()
	if m.state != StatePlaying || m.ended {
		m.mu.Unlock()
		return
	}
	m.position = clampPosition(m.position+d, m.duration)
	pos, dur := m.position, m.duration
	m.mu.Unlock()

	m.obs.timeUpdate(pos, dur)
}

// Finish simulates the current clip playing to its end. It reports false
// and notifies nobody when nothing is playing or the end was already
// reported.
func (m *Mock) Finish() bool {
	m.mu.Lock()
	if m.state != StatePlaying || m.ended {
		m.mu.Unlock()
		return false
	}
	m.ended = true
	m.position = m.duration
	m.state = StatePaused
	url := m.source
	m.mu.Unlock()

	m.obs.ended(url)
	return true
}

// Loaded returns every url swapped in, in order.
func (m *Mock) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loaded...)
}

// Counts returns load, prepare, swap, play and pause counters.
func (m *Mock) Counts() (loads, prepares, swaps, plays, pauses int64) {
	return m.loadCount.Load(), m.prepareCount.Load(), m.swapCount.Load(), m.playCount.Load(), m.pauseCount.Load()
}
