package transcribe

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calebrw/murmur/internal/audio"
)

// voiceThreshold is the RMS level above which a frame counts as speech.
const voiceThreshold = 0.015

// recognizeTimeout bounds a single chunked recognition call.
const recognizeTimeout = 10 * time.Second

// Options tune a StreamTranscriber.
type Options struct {
	SampleRate int
	// PartialInterval is how often a partial is recognized from the
	// accumulating segment (chunked backends only).
	PartialInterval time.Duration
	// SilenceHold is how long speech must pause before the segment is
	// finalized.
	SilenceHold time.Duration
	// MaxRetries bounds recognition retries before an utterance is dropped.
	MaxRetries int
	Log        *logrus.Logger
}

func (o *Options) fill() {
	if o.SampleRate == 0 {
		o.SampleRate = 16000
	}
	if o.PartialInterval == 0 {
		o.PartialInterval = 1500 * time.Millisecond
	}
	if o.SilenceHold == 0 {
		o.SilenceHold = 900 * time.Millisecond
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.Log == nil {
		o.Log = logrus.New()
	}
}

// StreamTranscriber converts one audio source into a stream of utterance
// events. With a plain Recognizer it segments audio on silence and emits
// periodic partials; with a StreamingRecognizer it relays the backend's own
// partial/final events and reconnects across transient session drops.
type StreamTranscriber struct {
	tag    SourceTag
	source audio.Source
	rec    Recognizer
	opt    Options
	log    *logrus.Entry

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	out     chan Utterance
	wg      sync.WaitGroup
}

// NewStreamTranscriber wires a source to a recognition backend.
func NewStreamTranscriber(tag SourceTag, source audio.Source, rec Recognizer, opt Options) *StreamTranscriber {
	opt.fill()
	return &StreamTranscriber{
		tag:    tag,
		source: source,
		rec:    rec,
		opt:    opt,
		log:    opt.Log.WithField("source", tag.String()),
		done:   make(chan struct{}),
		out:    make(chan Utterance, 32),
	}
}

// Start opens the source and begins producing utterances. A second call is
// a no-op. The error wraps audio.ErrUnavailable when the source cannot open.
func (t *StreamTranscriber) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started || t.stopped {
		return nil
	}

	if err := t.source.Start(); err != nil {
		return fmt.Errorf("starting %s source: %w", t.tag, err)
	}

	t.started = true
	t.wg.Add(1)
	if sr, ok := t.rec.(StreamingRecognizer); ok {
		go t.runStreaming(sr)
	} else {
		go t.runChunked()
	}
	return nil
}

// Utterances returns the event channel. It closes after Stop, once any
// in-flight utterance has been flushed.
func (t *StreamTranscriber) Utterances() <-chan Utterance {
	return t.out
}

// Stop signals shutdown, flushes the in-flight utterance and waits for the
// event channel to close. Safe to call twice; never fails.
func (t *StreamTranscriber) Stop() {
	t.mu.Lock()
	if t.stopped {
		started := t.started
		t.mu.Unlock()
		if started {
			t.wg.Wait()
		}
		return
	}
	t.stopped = true
	started := t.started
	t.mu.Unlock()

	t.source.Stop()
	close(t.done)

	if started {
		t.wg.Wait()
	} else {
		close(t.out)
	}
}

// runChunked accumulates voiced frames and recognizes them: partials on a
// timer, a final once speech pauses for SilenceHold.
func (t *StreamTranscriber) runChunked() {
	defer t.wg.Done()
	defer close(t.out)

	frames := t.source.Frames()
	tick := time.NewTicker(t.opt.PartialInterval)
	defer tick.Stop()

	var (
		segment   []float32
		voiced    bool
		segStart  time.Time
		lastVoice time.Time
		seq       uint64
	)

	flush := func() {
		if voiced && len(segment) > 0 {
			if text := t.recognizeRetry(segment); text != "" {
				t.out <- Utterance{Tag: t.tag, Text: text, Start: segStart, Final: true, Seq: seq}
			}
			seq++
		}
		segment = nil
		voiced = false
	}

	for {
		select {
		case <-t.done:
			flush()
			return

		case frame, ok := <-frames:
			if !ok {
				flush()
				return
			}
			segment = append(segment, frame...)
			if rms(frame) >= voiceThreshold {
				if !voiced {
					voiced = true
					segStart = time.Now()
				}
				lastVoice = time.Now()
			}

		case <-tick.C:
			if !voiced {
				// Keep at most one second of leading silence.
				if len(segment) > t.opt.SampleRate {
					segment = segment[len(segment)-t.opt.SampleRate:]
				}
				continue
			}
			if time.Since(lastVoice) >= t.opt.SilenceHold {
				flush()
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), recognizeTimeout)
			text, err := t.rec.Recognize(ctx, segment, t.opt.SampleRate)
			cancel()
			if err != nil {
				// Partials are cosmetic; the final pass retries properly.
				t.log.WithError(err).Debug("partial recognition failed")
				continue
			}
			if text != "" {
				t.out <- Utterance{Tag: t.tag, Text: text, Start: segStart, Seq: seq}
			}
		}
	}
}

// recognizeRetry runs final recognition with bounded retries. Returns ""
// when every attempt fails; the utterance is dropped and the stream
// continues.
func (t *StreamTranscriber) recognizeRetry(segment []float32) string {
	for attempt := 0; attempt <= t.opt.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), recognizeTimeout)
		text, err := t.rec.Recognize(ctx, segment, t.opt.SampleRate)
		cancel()
		if err == nil {
			return text
		}
		t.log.WithError(err).WithField("attempt", attempt+1).Warn("recognition failed")
		select {
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		case <-t.done:
			return ""
		}
	}
	t.log.Warn("dropping utterance after retries")
	return ""
}

// runStreaming relays a native partial/final event stream, reconnecting the
// backend session across transient drops.
func (t *StreamTranscriber) runStreaming(sr StreamingRecognizer) {
	defer t.wg.Done()
	defer close(t.out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Forward frames through a channel this loop owns, so it can tell a
	// drained source apart from a dropped backend session.
	var framesDone atomic.Bool
	forward := make(chan []float32, 64)
	go func() {
		defer func() {
			framesDone.Store(true)
			close(forward)
		}()
		for frame := range t.source.Frames() {
			forward <- frame
		}
	}()

	var (
		seq      uint64
		segStart time.Time
		active   bool
		attempts int
	)

	for {
		results, err := sr.Stream(ctx, forward, t.opt.SampleRate)
		if err != nil {
			attempts++
			t.log.WithError(err).WithField("attempt", attempts).Warn("recognition session failed")
			if active {
				// The in-flight utterance is lost with the session.
				seq++
				active = false
			}
			if attempts > t.opt.MaxRetries {
				attempts = 0
				select {
				case <-time.After(2 * time.Second):
				case <-t.done:
					return
				}
			}
			select {
			case <-time.After(time.Duration(attempts+1) * 200 * time.Millisecond):
			case <-t.done:
				return
			}
			continue
		}

		for res := range results {
			attempts = 0
			if !active {
				segStart = time.Now()
				active = true
			}
			if res.Final {
				if res.Text != "" {
					t.out <- Utterance{Tag: t.tag, Text: res.Text, Start: segStart, Final: true, Seq: seq}
				}
				seq++
				active = false
			} else if res.Text != "" {
				t.out <- Utterance{Tag: t.tag, Text: res.Text, Start: segStart, Seq: seq}
			}
		}

		if framesDone.Load() {
			return
		}
		// Session dropped mid-stream; reconnect.
		if active {
			seq++
			active = false
		}
	}
}

// rms computes the root-mean-square level of a frame.
func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
