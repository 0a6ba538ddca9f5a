package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// FileSource replays a WAV file as a stream of frames, paced at real time.
// It stands in for system-audio capture on backends without loopback
// support, and gives tests a deterministic source.
type FileSource struct {
	samples    []float32
	sampleRate int
	frameSize  int
	realtime   bool

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	frames  chan []float32
}

// NewFileSource decodes the WAV file at path. Samples are normalized to
// [-1, 1]. When realtime is false frames are delivered as fast as the
// consumer drains them.
func NewFileSource(path string, realtime bool) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrUnavailable, path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768.0
	}

	rate := int(dec.SampleRate)
	if rate == 0 {
		return nil, fmt.Errorf("decoding %s: missing sample rate", path)
	}

	return &FileSource{
		samples:    samples,
		sampleRate: rate,
		frameSize:  rate / 50, // 20ms frames
		realtime:   realtime,
		done:       make(chan struct{}),
		frames:     make(chan []float32, 64),
	}, nil
}

// SampleRate returns the decoded file's sample rate.
func (s *FileSource) SampleRate() int {
	return s.sampleRate
}

// Start begins replay. Idempotent. The frame channel closes once the
// file is exhausted or Stop is called.
func (s *FileSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return nil
	}
	s.started = true
	go s.replay()
	return nil
}

// Frames returns the frame channel.
func (s *FileSource) Frames() <-chan []float32 {
	return s.frames
}

// Stop ends replay. Safe to call twice.
func (s *FileSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	if !s.started {
		// Replay goroutine never ran, so the channel is ours to close.
		close(s.frames)
	}
}

func (s *FileSource) replay() {
	defer close(s.frames)

	frameDur := time.Second / 50
	var tick *time.Ticker
	if s.realtime {
		tick = time.NewTicker(frameDur)
		defer tick.Stop()
	}

	for off := 0; off < len(s.samples); off += s.frameSize {
		end := off + s.frameSize
		if end > len(s.samples) {
			end = len(s.samples)
		}
		frame := make([]float32, end-off)
		copy(frame, s.samples[off:end])

		if tick != nil {
			select {
			case <-s.done:
				return
			case <-tick.C:
			}
		}

		select {
		case <-s.done:
			return
		case s.frames <- frame:
		}
	}
}
