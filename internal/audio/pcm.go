package audio

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

const (
	// bytes per output frame: signed 16-bit little endian
	bytesPerSample = 2

	resampleQuality = 4
)

// pcmStream adapts a decoded beep stream to the io.Reader oto pulls from.
// It resamples to the output rate, applies the speed ratio and converts
// float samples to signed 16-bit little endian.
type pcmStream struct {
	mu sync.Mutex

	src       beep.StreamSeeker
	srcRate   beep.SampleRate
	outRate   beep.SampleRate
	channels  int
	speed     float64
	resampler *beep.Resampler
	pipeline  beep.Streamer
	onEnd     func(epoch uint64)

	// epoch changes whenever the pipeline is rebuilt so that an end
	// callback from before a seek can be told apart
	epoch uint64

	buf  [][2]float64
	done bool
}

func newPCMStream(src beep.StreamSeeker, srcRate, outRate beep.SampleRate, channels int, speed float64, onEnd func(epoch uint64)) *pcmStream {
	s := &pcmStream{
		src:      src,
		srcRate:  srcRate,
		outRate:  outRate,
		channels: channels,
		speed:    speed,
		onEnd:    onEnd,
	}
	s.rebuildLocked()
	return s
}

func (s *pcmStream) ratio() float64 {
	return float64(s.srcRate) / float64(s.outRate) * s.speed
}

// rebuildLocked recreates the resampler and the end callback. Seq does not
// rewind, so a stream that reached its end needs a fresh pipeline.
func (s *pcmStream) rebuildLocked() {
	s.epoch++
	epoch := s.epoch
	s.resampler = beep.ResampleRatio(resampleQuality, s.ratio(), s.src)
	s.pipeline = beep.Seq(s.resampler, beep.Callback(func() {
		if s.onEnd != nil {
			s.onEnd(epoch)
		}
	}))
	s.done = false
}

func (s *pcmStream) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Read implements io.Reader.
func (s *pcmStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return 0, io.EOF
	}

	frameSize := bytesPerSample * s.channels
	frames := len(p) / frameSize
	if frames == 0 {
		return 0, nil
	}
	if cap(s.buf) < frames {
		s.buf = make([][2]float64, frames)
	}
	samples := s.buf[:frames]

	n, ok := s.pipeline.Stream(samples)
	encodeFrames(p, samples[:n], s.channels)

	if !ok || n == 0 {
		s.done = true
		if n == 0 {
			return 0, io.EOF
		}
	}
	return n * frameSize, nil
}

func encodeFrames(p []byte, samples [][2]float64, channels int) {
	i := 0
	for _, frame := range samples {
		if channels == 1 {
			putSample(p[i:], (frame[0]+frame[1])/2)
			i += bytesPerSample
			continue
		}
		putSample(p[i:], frame[0])
		putSample(p[i+bytesPerSample:], frame[1])
		i += 2 * bytesPerSample
	}
}

func putSample(p []byte, v float64) {
	v = math.Max(-1, math.Min(1, v))
	s := int16(v * math.MaxInt16)
	p[0] = byte(s)
	p[1] = byte(s >> 8)
}

func (s *pcmStream) setSpeed(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = rate
	s.resampler.SetRatio(s.ratio())
}

func (s *pcmStream) seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.srcRate.N(pos)
	if length := s.src.Len(); n > length {
		n = length
	}
	if err := s.src.Seek(n); err != nil {
		return err
	}
	s.rebuildLocked()
	return nil
}

func (s *pcmStream) position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srcRate.D(s.src.Position())
}

func (s *pcmStream) duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srcRate.D(s.src.Len())
}

func (s *pcmStream) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
