// Package session orchestrates transcription and extraction for one note.
package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/calebrw/murmur/internal/extract"
	"github.com/calebrw/murmur/internal/transcribe"
)

// EventSink receives session events for display. Implementations must not
// block: events are posted from background goroutines and the display layer
// hands them off to its own thread.
type EventSink interface {
	// Line is called for each merged transcript line.
	Line(line transcribe.TranscriptLine)
	// Items is called with each non-empty batch of extracted items.
	Items(items []extract.Item)
}

// Storage persists transcript lines and extracted items. The session never
// touches the filesystem itself.
type Storage interface {
	AppendLine(line transcribe.TranscriptLine) error
	AppendItems(items []extract.Item) error
}

// Merger is the transcript source the session consumes.
type Merger interface {
	Start() error
	Lines() <-chan transcribe.TranscriptLine
	Stop()
}

// Extractor dispatches transcript windows for action extraction.
type Extractor interface {
	Extract(ctx context.Context, window []transcribe.TranscriptLine) <-chan []extract.Item
}

// NoteSession owns the pipeline for one active note: it appends merged
// lines to the note buffer, persists them, and triggers extraction over a
// sliding window each time an utterance finalizes.
type NoteSession struct {
	merger    Merger
	extractor Extractor
	sink      EventSink
	storage   Storage
	windowCap int
	log       *logrus.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	lineWG   sync.WaitGroup
	resultWG sync.WaitGroup

	mu          sync.Mutex
	buffer      []transcribe.TranscriptLine
	lastTrigger int
	started     bool
}

// New creates a session. windowCap bounds the extraction window: each
// trigger covers the lines since the previous trigger, capped at the most
// recent windowCap lines.
func New(merger Merger, extractor Extractor, sink EventSink, storage Storage, windowCap int, log *logrus.Logger) *NoteSession {
	if windowCap <= 0 {
		windowCap = 12
	}
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NoteSession{
		merger:    merger,
		extractor: extractor,
		sink:      sink,
		storage:   storage,
		windowCap: windowCap,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins transcription. The error is the merger's start error, which
// surfaces only when no audio source is usable; the caller should inform
// the user and keep the rest of the application running.
func (s *NoteSession) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.merger.Start(); err != nil {
		return err
	}

	s.lineWG.Add(1)
	go s.consume()
	return nil
}

// Lines returns a copy of the note buffer so far.
func (s *NoteSession) Lines() []transcribe.TranscriptLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transcribe.TranscriptLine, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Stop ends transcription and waits for the line consumer to finish.
// Extraction requests already in flight are not waited on here; the
// application-level shutdown sequence drains those, and their results are
// still delivered to storage and the sink when they complete.
func (s *NoteSession) Stop() {
	s.merger.Stop()
	s.lineWG.Wait()
	go func() {
		s.resultWG.Wait()
		s.cancel()
	}()
}

func (s *NoteSession) consume() {
	defer s.lineWG.Done()

	for line := range s.merger.Lines() {
		if err := s.storage.AppendLine(line); err != nil {
			s.log.WithError(err).Error("failed to persist transcript line")
		}
		s.sink.Line(line)

		window := s.appendAndWindow(line)
		results := s.extractor.Extract(s.ctx, window)

		s.resultWG.Add(1)
		go func() {
			defer s.resultWG.Done()
			for items := range results {
				if len(items) == 0 {
					continue
				}
				if err := s.storage.AppendItems(items); err != nil {
					s.log.WithError(err).Error("failed to persist extracted items")
				}
				s.sink.Items(items)
			}
		}()
	}
}

// appendAndWindow records the line and returns the next extraction window:
// everything since the last trigger, capped at the windowCap most recent
// lines.
func (s *NoteSession) appendAndWindow(line transcribe.TranscriptLine) []transcribe.TranscriptLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, line)

	start := s.lastTrigger
	if len(s.buffer)-start > s.windowCap {
		start = len(s.buffer) - s.windowCap
	}
	window := make([]transcribe.TranscriptLine, len(s.buffer)-start)
	copy(window, s.buffer[start:])
	s.lastTrigger = len(s.buffer)
	return window
}
