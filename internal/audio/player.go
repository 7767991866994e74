package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// PlayerState represents the current state of the player.
type PlayerState int32

const (
	StateStopped PlayerState = iota // no clip loaded
	StatePlaying
	StatePaused
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Player implements Engine on top of an oto context.
type Player struct {
	// OTO context - initialized once and reused
	otoCtx *oto.Context

	fetcher Fetcher
	logger  *log.Logger

	// State management
	state  atomic.Int32  // PlayerState
	speed  atomic.Uint64 // float64 bits
	volume atomic.Uint64 // float64 bits

	// Current clip, guarded by mu
	mu     sync.Mutex
	clip   *decodedClip
	stream *pcmStream
	out    *oto.Player
	ended  bool
	starts uint64 // bumped by every Play

	obs observers

	// Configuration
	sampleRate int
	channels   int
	bufferTime time.Duration

	// Lifecycle management
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Engine = (*Player)(nil)

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
	BufferSize int // Buffer size in bytes

	Fetcher Fetcher
	Logger  *log.Logger
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
		BufferSize: 16384, // ~90ms of stereo audio
	}
}

// NewPlayer opens the audio device and returns an idle player.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	bufferTime := time.Duration(config.BufferSize) * time.Second /
		time.Duration(config.SampleRate*config.Channels*bytesPerSample)

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferTime,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, ayah.NewError(ayah.CodePlaybackRejected, "failed to open audio device", err)
	}

	// Wait for context to be ready
	<-readyChan

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		otoCtx:     otoCtx,
		fetcher:    config.Fetcher,
		logger:     config.Logger,
		sampleRate: config.SampleRate,
		channels:   config.Channels,
		bufferTime: bufferTime,
		cancel:     cancel,
	}
	p.state.Store(int32(StateStopped))
	p.speed.Store(math.Float64bits(1.0))
	p.volume.Store(math.Float64bits(1.0))

	p.wg.Add(1)
	go p.timeUpdateLoop(ctx)

	return p, nil
}

// validateConfig validates the player configuration.
func validateConfig(config PlayerConfig) error {
	// OTO only supports specific sample rates reliably
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}

	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}

	if config.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}

	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}

	return nil
}

// Load implements Engine.
func (p *Player) Load(ctx context.Context, url string) error {
	if p.GetState() == StateClosed {
		return ErrClosed
	}
	if p.Source() == url {
		return nil
	}

	clip, err := p.Prepare(ctx, url)
	if err != nil {
		return err
	}
	return p.Swap(clip)
}

// Prepare implements Engine.
func (p *Player) Prepare(ctx context.Context, url string) (Clip, error) {
	data, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return decodeClip(url, data)
}

// Swap implements Engine.
func (p *Player) Swap(c Clip) error {
	dc, ok := c.(*decodedClip)
	if !ok {
		return ErrForeignClip
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.GetState() == StateClosed {
		return ErrClosed
	}
	if p.clip != nil && p.clip.url == dc.url {
		_ = dc.Close()
		return nil
	}
	if !dc.take() {
		return fmt.Errorf("clip %s is no longer usable", dc.url)
	}

	p.dropLocked()

	var stream *pcmStream
	stream = newPCMStream(dc.streamer, dc.format.SampleRate, beep.SampleRate(p.sampleRate),
		p.channels, p.Speed(), func(epoch uint64) {
			// called from the oto read loop, must not block
			go p.handleEnd(stream, epoch)
		})

	p.clip = dc
	p.stream = stream
	p.ended = false
	p.out = p.newOutputLocked()
	p.state.Store(int32(StatePaused))

	p.logger.Debug("clip loaded", "url", dc.url, "duration", stream.duration(), "rate", dc.format.SampleRate)
	return nil
}

func (p *Player) newOutputLocked() *oto.Player {
	out := p.otoCtx.NewPlayer(p.stream)
	out.SetVolume(p.GetVolume())
	return out
}

// dropLocked stops output and releases the current clip.
func (p *Player) dropLocked() {
	if p.out != nil {
		p.out.Pause()
		if err := p.out.Close(); err != nil {
			p.logger.Debug("closing output", "err", err)
		}
		p.out = nil
	}
	if p.clip != nil {
		p.clip.release()
		p.clip = nil
	}
	p.stream = nil
	p.ended = false
}

// Play implements Engine.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.GetState() {
	case StateClosed:
		return ErrClosed
	case StateStopped:
		return ErrNoSource
	}

	// A finished clip starts over.
	if p.ended {
		if err := p.seekLocked(0, false); err != nil {
			return err
		}
	}

	if err := p.otoCtx.Err(); err != nil {
		p.state.Store(int32(StatePaused))
		return ayah.NewError(ayah.CodePlaybackRejected, "audio device unavailable", err)
	}

	p.out.Play()
	if err := p.out.Err(); err != nil {
		p.out.Pause()
		p.state.Store(int32(StatePaused))
		return ayah.NewError(ayah.CodePlaybackRejected, "output refused to start", err)
	}

	p.starts++
	p.state.Store(int32(StatePlaying))

	// The decoder ran out while paused: the end is still owed once the
	// rest of the buffer has played.
	if stream := p.stream; stream.finished() && !p.ended {
		go p.handleEnd(stream, stream.currentEpoch())
	}
	return nil
}

// Pause implements Engine.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.GetState() != StatePlaying {
		return
	}
	p.out.Pause()
	p.state.Store(int32(StatePaused))
}

// SetSpeed implements Engine.
func (p *Player) SetSpeed(rate float64) error {
	if err := ValidateSpeed(rate); err != nil {
		return err
	}
	p.speed.Store(math.Float64bits(rate))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		p.stream.setSpeed(rate)
	}
	return nil
}

// Speed implements Engine.
func (p *Player) Speed() float64 {
	return math.Float64frombits(p.speed.Load())
}

// SeekTo implements Engine.
func (p *Player) SeekTo(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return ErrNoSource
	}
	return p.seekLocked(pos, p.GetState() == StatePlaying)
}

// seekLocked replaces the output player so that audio already buffered
// for the old position is dropped.
func (p *Player) seekLocked(pos time.Duration, resume bool) error {
	pos = clampPosition(pos, p.stream.duration())

	if p.out != nil {
		p.out.Pause()
		_ = p.out.Close()
		p.out = nil
	}
	if err := p.stream.seek(pos); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	p.ended = false
	p.out = p.newOutputLocked()
	if resume {
		p.out.Play()
	}
	return nil
}

// Position implements Engine.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return 0
	}
	if p.ended {
		return p.stream.duration()
	}
	return p.stream.position()
}

// Duration implements Engine.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return 0
	}
	return p.stream.duration()
}

// IsPlaying implements Engine.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.GetState() == StatePlaying && !p.ended
}

// Source implements Engine.
func (p *Player) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clip == nil {
		return ""
	}
	return p.clip.url
}

// Subscribe implements Engine.
func (p *Player) Subscribe(o Observer) func() {
	return p.obs.add(o)
}

// handleEnd runs when the decoder is exhausted. It waits for the device to
// drain what is buffered, then reports the end once. A pause during the
// drain leaves the end pending; Play starts a new wait.
func (p *Player) handleEnd(stream *pcmStream, epoch uint64) {
	p.mu.Lock()
	if p.stream != stream || p.out == nil {
		p.mu.Unlock()
		return
	}
	out := p.out
	starts := p.starts
	p.mu.Unlock()

	deadline := time.Now().Add(2*p.bufferTime + 100*time.Millisecond)
	for out.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	if !p.endDueLocked(stream, epoch, starts) {
		p.mu.Unlock()
		return
	}
	p.ended = true
	p.state.Store(int32(StatePaused))
	url := p.clip.url
	p.mu.Unlock()

	p.logger.Debug("clip ended", "url", url)
	p.obs.ended(url)
}

// endDueLocked reports whether the drain that began after the starts-th
// Play may be reported as the end of stream. It is not when the clip was
// replaced, seeked, paused or restarted in the meantime.
func (p *Player) endDueLocked(stream *pcmStream, epoch, starts uint64) bool {
	return p.stream == stream &&
		stream.currentEpoch() == epoch &&
		!p.ended &&
		p.starts == starts &&
		p.GetState() == StatePlaying
}

func (p *Player) timeUpdateLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(TimeUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.IsPlaying() {
				p.obs.timeUpdate(p.Position(), p.Duration())
			}
		}
	}
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(math.Float64bits(volume))

	p.mu.Lock()
	if p.out != nil {
		p.out.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

// GetVolume returns the current volume.
func (p *Player) GetVolume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// GetState returns the current player state.
func (p *Player) GetState() PlayerState {
	return PlayerState(p.state.Load())
}

// Close releases audio device and resources.
func (p *Player) Close() error {
	if PlayerState(p.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	p.dropLocked()
	p.mu.Unlock()

	// oto.Context has no Close in v3; suspending stops the device thread
	// from pulling more audio.
	return p.otoCtx.Suspend()
}
