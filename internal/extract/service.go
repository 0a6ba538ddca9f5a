package extract

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/calebrw/murmur/internal/transcribe"
)

// systemPrompt instructs the model to answer in the line format ParseItems
// understands.
const systemPrompt = `You review a live meeting transcript and extract follow-ups.
Reply with one item per line, nothing else, in this exact format:

Action: <task> (owner: <name>, due: <YYYY-MM-DD>)
Commitment: <promise someone made> (owner: <name>)
Expectation: <something a speaker expects of someone else>

The owner and due attributes are optional. If there is nothing to extract,
reply with the single word "none".`

// pendingPoll is how often a bounded wait re-checks the pending set.
const pendingPoll = 25 * time.Millisecond

// Configuration is the loaded LLM access configuration. Nil configuration
// means extraction is disabled and every Extract returns empty.
type Configuration struct {
	Endpoint string
	APIKey   string
	Model    string
}

// SettingsStore supplies configuration values by key.
type SettingsStore interface {
	Lookup(key string) (string, bool)
}

// Service dispatches transcript windows to the LLM and parses the replies.
// One instance is constructed by the application root and shared; in-flight
// requests are tracked so shutdown can wait for them.
type Service struct {
	log          *logrus.Logger
	requestSlots chan struct{}
	retryBackoff time.Duration
	newCompleter func(endpoint, apiKey string) Completer

	mu        sync.Mutex
	cfg       *Configuration
	completer Completer
	pending   map[uuid.UUID]struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithCompleter overrides the HTTP completer; used by tests.
func WithCompleter(c Completer) Option {
	return func(s *Service) {
		s.newCompleter = func(string, string) Completer { return c }
	}
}

// WithRetryBackoff overrides the delay before the single retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Service) { s.retryBackoff = d }
}

// NewService creates the extraction service. maxConcurrent bounds the
// number of LLM calls in flight at once.
func NewService(log *logrus.Logger, maxConcurrent int, opts ...Option) *Service {
	if log == nil {
		log = logrus.New()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	s := &Service{
		log:          log,
		requestSlots: make(chan struct{}, maxConcurrent),
		retryBackoff: 500 * time.Millisecond,
		newCompleter: func(endpoint, apiKey string) Completer {
			return NewChatClient(endpoint, apiKey)
		},
		pending: make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadConfiguration reads llm_endpoint, llm_api_key and llm_model from the
// store. If any key is absent the configuration stays nil: extraction is
// disabled, not broken, and the rest of the application runs without it.
// Calling it again is the explicit reload path.
func (s *Service) LoadConfiguration(store SettingsStore) {
	endpoint, ok1 := store.Lookup("llm_endpoint")
	apiKey, ok2 := store.Lookup("llm_api_key")
	model, ok3 := store.Lookup("llm_model")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok1 || !ok2 || !ok3 {
		s.cfg = nil
		s.completer = nil
		s.log.Info("LLM configuration incomplete, action extraction disabled")
		return
	}

	s.cfg = &Configuration{Endpoint: endpoint, APIKey: apiKey, Model: model}
	s.completer = s.newCompleter(endpoint, apiKey)
	s.log.WithField("model", model).Info("action extraction enabled")
}

// Configured reports whether extraction is enabled.
func (s *Service) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg != nil
}

// Extract submits a transcript window. The returned channel delivers the
// extracted items (possibly empty) exactly once and then closes; no failure
// of the call ever surfaces to the caller. With nil configuration the
// result is empty and no request is registered.
func (s *Service) Extract(ctx context.Context, window []transcribe.TranscriptLine) <-chan []Item {
	out := make(chan []Item, 1)

	s.mu.Lock()
	cfg := s.cfg
	completer := s.completer
	s.mu.Unlock()

	if cfg == nil || len(window) == 0 {
		out <- nil
		close(out)
		return out
	}

	id := uuid.New()
	s.addPending(id)

	go func() {
		defer close(out)
		items := s.run(ctx, cfg, completer, id, window)
		// Removal is part of the completion transition: the id must be
		// gone before the result is observable.
		s.removePending(id)
		out <- items
	}()

	return out
}

// HasPending reports whether any extraction request is in flight.
func (s *Service) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// PendingCount returns the number of in-flight requests.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// WaitForPending blocks until no requests are pending or the timeout
// elapses, whichever is first. Requests still pending at the deadline are
// abandoned, not cancelled: they may yet complete and deliver results, but
// the caller stops waiting. Reports whether the set drained in time.
func (s *Service) WaitForPending(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pendingPoll)
	defer tick.Stop()

	for {
		if !s.HasPending() {
			return true
		}
		select {
		case <-deadline.C:
			return !s.HasPending()
		case <-tick.C:
		}
	}
}

func (s *Service) addPending(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = struct{}{}
}

func (s *Service) removePending(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// run issues the LLM call with one retry, then parses. Every failure path
// returns empty items; faults are logged, never propagated.
func (s *Service) run(ctx context.Context, cfg *Configuration, completer Completer, id uuid.UUID, window []transcribe.TranscriptLine) []Item {
	select {
	case s.requestSlots <- struct{}{}:
		defer func() { <-s.requestSlots }()
	case <-ctx.Done():
		return nil
	}

	log := s.log.WithField("request", id.String())
	prompt := renderWindow(window)

	response, err := completer.Complete(ctx, cfg.Model, systemPrompt, prompt)
	if err != nil {
		log.WithError(err).Warn("extraction request failed, retrying")
		select {
		case <-time.After(s.retryBackoff):
		case <-ctx.Done():
			return nil
		}
		response, err = completer.Complete(ctx, cfg.Model, systemPrompt, prompt)
		if err != nil {
			log.WithError(err).Error("extraction request failed twice, dropping")
			return nil
		}
	}

	items, err := ParseItems(response)
	if err != nil {
		log.WithError(err).Error("unparseable extraction response, dropping")
		return nil
	}
	return items
}

// renderWindow formats the transcript window as the user message.
func renderWindow(window []transcribe.TranscriptLine) string {
	var sb strings.Builder
	sb.WriteString("Transcript:\n")
	for _, line := range window {
		sb.WriteString(line.Tag.String())
		sb.WriteString(": ")
		sb.WriteString(line.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}
