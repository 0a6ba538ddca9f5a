package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV writes a mono 16-bit WAV with the given int16 samples and
// returns its path.
func writeTestWAV(t *testing.T, sampleRate int, samples []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing wav: %v", err)
	}
	return path
}

func TestFileSourceReplaysAllSamples(t *testing.T) {
	const rate = 16000
	samples := make([]int, rate/10) // 100ms
	for i := range samples {
		samples[i] = 16384 // 0.5 after normalization
	}
	path := writeTestWAV(t, rate, samples)

	src, err := NewFileSource(path, false)
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}
	if src.SampleRate() != rate {
		t.Errorf("SampleRate() = %d, want %d", src.SampleRate(), rate)
	}

	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var total int
	for frame := range src.Frames() {
		total += len(frame)
		for _, s := range frame {
			if s < 0.49 || s > 0.51 {
				t.Fatalf("sample = %v, want ~0.5", s)
			}
		}
	}
	if total != len(samples) {
		t.Errorf("replayed %d samples, want %d", total, len(samples))
	}
}

func TestFileSourceFrameSize(t *testing.T) {
	const rate = 16000
	samples := make([]int, rate/10)
	path := writeTestWAV(t, rate, samples)

	src, err := NewFileSource(path, false)
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	frame, ok := <-src.Frames()
	if !ok {
		t.Fatal("frame channel closed before first frame")
	}
	if len(frame) != rate/50 {
		t.Errorf("frame length = %d, want %d (20ms)", len(frame), rate/50)
	}
	src.Stop()
	for range src.Frames() {
	}
}

func TestFileSourceStopClosesFrames(t *testing.T) {
	path := writeTestWAV(t, 16000, make([]int, 16000))

	src, err := NewFileSource(path, true)
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	src.Stop()
	src.Stop() // second call is a no-op

	for range src.Frames() {
	}
}

func TestFileSourceStopBeforeStart(t *testing.T) {
	path := writeTestWAV(t, 16000, make([]int, 1600))

	src, err := NewFileSource(path, false)
	if err != nil {
		t.Fatalf("NewFileSource() error = %v", err)
	}

	src.Stop()
	if _, ok := <-src.Frames(); ok {
		t.Error("frame channel should be closed after Stop before Start")
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource("/nonexistent/audio.wav", false)
	if err == nil {
		t.Fatal("NewFileSource() should fail for a missing file")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}
