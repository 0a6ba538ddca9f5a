package transcribe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hooks carries merger side-events to the display layer. Either field may
// be nil.
type Hooks struct {
	// OnPartial receives in-progress utterances for live display.
	OnPartial func(u Utterance)
	// OnDegraded fires once if a source fails to start and the merger
	// continues single-source. lost is the failed source's tag.
	OnDegraded func(lost SourceTag)
}

// Merger interleaves two transcriber streams into one ordered transcript.
//
// Lines are emitted in arrival order: per-source order is preserved, and no
// cross-source timestamp sorting is attempted, since clock skew between the
// sources is not corrected.
type Merger struct {
	you   *StreamTranscriber
	other *StreamTranscriber
	hooks Hooks
	log   *logrus.Logger

	lines chan TranscriptLine
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	active  []*StreamTranscriber
}

// NewMerger combines the microphone (you) and system-audio (other)
// transcribers.
func NewMerger(you, other *StreamTranscriber, hooks Hooks, log *logrus.Logger) *Merger {
	if log == nil {
		log = logrus.New()
	}
	return &Merger{
		you:   you,
		other: other,
		hooks: hooks,
		log:   log,
		lines: make(chan TranscriptLine, 32),
	}
}

// Start starts both transcribers. If one fails to open its source the
// merger degrades to single-source mode and signals OnDegraded once; if
// both fail the error is returned and no lines are ever emitted.
func (m *Merger) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.stopped {
		return nil
	}

	errYou := m.you.Start()
	errOther := m.other.Start()

	if errYou != nil && errOther != nil {
		close(m.lines)
		m.stopped = true
		return fmt.Errorf("no usable audio source: %w", errors.Join(errYou, errOther))
	}

	if errYou != nil {
		m.log.WithError(errYou).Warn("microphone unavailable, continuing with system audio only")
		m.degrade(TagYou)
		m.active = []*StreamTranscriber{m.other}
	} else if errOther != nil {
		m.log.WithError(errOther).Warn("system audio unavailable, continuing with microphone only")
		m.degrade(TagOther)
		m.active = []*StreamTranscriber{m.you}
	} else {
		m.active = []*StreamTranscriber{m.you, m.other}
	}

	for _, t := range m.active {
		m.wg.Add(1)
		go m.consume(t)
	}

	go func() {
		m.wg.Wait()
		close(m.lines)
	}()

	m.started = true
	return nil
}

// Lines returns the merged transcript channel. It closes after Stop once
// both sources have flushed.
func (m *Merger) Lines() <-chan TranscriptLine {
	return m.lines
}

// Stop propagates to both transcribers and returns once both have
// completed their flush.
func (m *Merger) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	active := m.active
	if !m.started {
		close(m.lines)
	}
	m.mu.Unlock()

	for _, t := range active {
		t.Stop()
	}
	m.wg.Wait()
}

func (m *Merger) consume(t *StreamTranscriber) {
	defer m.wg.Done()
	for u := range t.Utterances() {
		if !u.Final {
			if m.hooks.OnPartial != nil {
				m.hooks.OnPartial(u)
			}
			continue
		}
		m.lines <- TranscriptLine{Tag: u.Tag, Text: u.Text, At: u.Start}
	}
}

func (m *Merger) degrade(lost SourceTag) {
	if m.hooks.OnDegraded != nil {
		m.hooks.OnDegraded(lost)
	}
}
