package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// decodedClip keeps the encoded bytes alive for as long as the decoder
// reads from them.
type decodedClip struct {
	url      string
	data     []byte
	streamer beep.StreamSeekCloser
	format   beep.Format

	mu     sync.Mutex
	owned  bool // swapped into an engine
	closed bool
}

type nopCloser struct {
	io.ReadSeeker
}

func (nopCloser) Close() error { return nil }

// decodeClip decodes an in-memory MP3 or WAV clip.
func decodeClip(url string, data []byte) (*decodedClip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty clip %s", url)
	}

	reader := nopCloser{bytes.NewReader(data)}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	if bytes.HasPrefix(data, []byte("RIFF")) {
		streamer, format, err = wav.Decode(reader)
	} else {
		streamer, format, err = mp3.Decode(reader)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", url, err)
	}

	return &decodedClip{
		url:      url,
		data:     data,
		streamer: streamer,
		format:   format,
	}, nil
}

func (c *decodedClip) URL() string {
	return c.url
}

func (c *decodedClip) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.format.SampleRate.D(c.streamer.Len())
}

// Close implements Clip.
func (c *decodedClip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owned {
		return nil
	}
	return c.closeLocked()
}

// take marks the clip as owned by an engine. It fails if the clip was
// already closed or taken.
func (c *decodedClip) take() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.owned {
		return false
	}
	c.owned = true
	return true
}

// release is called by the engine when it drops the clip.
func (c *decodedClip) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.closeLocked()
}

func (c *decodedClip) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.streamer.Close()
	c.data = nil
	return err
}
