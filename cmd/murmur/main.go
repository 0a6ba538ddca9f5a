package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/calebrw/murmur/internal/audio"
	"github.com/calebrw/murmur/internal/config"
	"github.com/calebrw/murmur/internal/extract"
	"github.com/calebrw/murmur/internal/hotkey"
	"github.com/calebrw/murmur/internal/logging"
	"github.com/calebrw/murmur/internal/session"
	"github.com/calebrw/murmur/internal/storage"
	"github.com/calebrw/murmur/internal/transcribe"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/murmur/config.yaml)")
	title := flag.String("title", "Meeting notes", "title for new notes")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	printBanner(cfg)

	if err := os.MkdirAll(cfg.NotesDir, 0o755); err != nil {
		log.WithError(err).Fatal("creating notes directory")
	}

	index, err := storage.OpenIndex(filepath.Join(cfg.NotesDir, "murmur.sqlite"))
	if err != nil {
		log.WithError(err).Fatal("opening session index")
	}

	svc := extract.NewService(log, 4)
	svc.LoadConfiguration(cfg)

	toggle := hotkey.NewToggle(cfg.Hotkey.Keys)
	go toggle.Start()
	log.WithField("keys", strings.Join(cfg.Hotkey.Keys, "+")).Info("press the hotkey to start or stop a note session")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var active *activeSession

	for {
		select {
		case _, ok := <-toggle.Events():
			if !ok {
				log.Info("hotkey listener stopped")
				shutdown(log, cfg, svc, index, active)
				return
			}
			if active == nil {
				active = startSession(cfg, log, svc, index, *title)
			} else {
				active.stop(log, index)
				active = nil
			}

		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("shutting down")
			toggle.Stop()
			shutdown(log, cfg, svc, index, active)
			// Exit directly to avoid gohook's C cleanup crash; the OS
			// reclaims the event hook on process exit.
			os.Exit(0)
		}
	}
}

// shutdown runs the drain sequence: stop transcription, a short grace
// delay, then a bounded wait for in-flight extraction before terminating.
func shutdown(log *logrus.Logger, cfg *config.Config, svc *extract.Service, index *storage.Index, active *activeSession) {
	if active != nil {
		active.stop(log, index)
	}

	time.Sleep(cfg.Extraction.GraceDelay.Std())

	if svc.HasPending() {
		log.WithField("pending", svc.PendingCount()).Info("waiting for in-flight extraction")
		if !svc.WaitForPending(cfg.Extraction.DrainTimeout.Std()) {
			log.Warn("drain timeout exceeded, abandoning pending extraction")
		}
	}

	if err := index.Close(); err != nil {
		log.WithError(err).Warn("closing session index")
	}
	log.Info("goodbye")
}

// activeSession bundles a running note session with its cleanup.
type activeSession struct {
	id      string
	session *session.NoteSession
	closers []func()
}

func (a *activeSession) stop(log *logrus.Logger, index *storage.Index) {
	a.session.Stop()
	if err := index.EndSession(a.id, time.Now()); err != nil {
		log.WithError(err).Warn("recording session end")
	}
	for _, closer := range a.closers {
		closer()
	}
	log.Info("note session stopped")
}

// startSession builds the pipeline for one note and starts it. A nil
// return means no audio source was usable; the application stays up.
func startSession(cfg *config.Config, log *logrus.Logger, svc *extract.Service, index *storage.Index, title string) *activeSession {
	var closers []func()
	fail := func() *activeSession {
		for _, closer := range closers {
			closer()
		}
		return nil
	}

	mic, err := audio.NewMicrophone(cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		log.WithError(err).Error("cannot initialize audio")
		return fail()
	}
	closers = append(closers, func() { _ = mic.Close() })

	sys, sysClose, err := systemSource(cfg)
	if err != nil {
		log.WithError(err).Error("cannot initialize system-audio source")
		return fail()
	}
	closers = append(closers, sysClose)

	rec := newRecognizer(cfg)
	opts := transcribe.Options{
		SampleRate:      int(cfg.Audio.SampleRate),
		PartialInterval: cfg.Recognize.PartialInterval.Std(),
		SilenceHold:     cfg.Recognize.SilenceHold.Std(),
		Log:             log,
	}

	you := transcribe.NewStreamTranscriber(transcribe.TagYou, mic, rec, opts)
	other := transcribe.NewStreamTranscriber(transcribe.TagOther, sys, rec, opts)

	sink := &termSink{log: log, out: os.Stdout}
	merger := transcribe.NewMerger(you, other, transcribe.Hooks{
		OnPartial:  sink.Partial,
		OnDegraded: sink.Degraded,
	}, log)

	id := uuid.NewString()
	started := time.Now()

	store, err := storage.NewNoteStore(cfg.NotesDir, id, title, started)
	if err != nil {
		log.WithError(err).Error("cannot create note")
		return fail()
	}
	if err := index.CreateSession(id, title, store.NotePath(), started); err != nil {
		log.WithError(err).Warn("recording session start")
	}

	sess := session.New(merger, svc, sink, store, cfg.Extraction.WindowLines, log)
	if err := sess.Start(); err != nil {
		// Both sources failed; the app keeps running for a later retry.
		log.WithError(err).Error("cannot start transcription")
		return fail()
	}

	log.WithField("note", store.NotePath()).Info("note session started")
	return &activeSession{id: id, session: sess, closers: closers}
}

// systemSource opens the "other speaker" audio source per configuration.
func systemSource(cfg *config.Config) (audio.Source, func(), error) {
	if cfg.Audio.SystemSource == "loopback" {
		lb, err := audio.NewLoopback(cfg.Audio.SampleRate, cfg.Audio.Channels)
		if err != nil {
			return nil, nil, err
		}
		return lb, func() { _ = lb.Close() }, nil
	}
	fs, err := audio.NewFileSource(cfg.Audio.SystemSource, true)
	if err != nil {
		return nil, nil, err
	}
	return fs, fs.Stop, nil
}

// newRecognizer selects the recognition backend at construction time.
func newRecognizer(cfg *config.Config) transcribe.Recognizer {
	r := cfg.Recognize
	if r.Backend == "realtime" {
		return transcribe.NewRealtimeRecognizer(r.Endpoint, r.APIKey, r.Model)
	}
	return transcribe.NewHTTPRecognizer(r.Endpoint, r.APIKey, r.Model, r.Language)
}

// termSink prints transcript and extraction events to the terminal.
type termSink struct {
	log *logrus.Logger
	out *os.File
}

func (s *termSink) Line(line transcribe.TranscriptLine) {
	fmt.Fprintf(s.out, "[%s] %s: %s\n", line.At.Format("15:04:05"), line.Tag, line.Text)
}

func (s *termSink) Items(items []extract.Item) {
	for _, item := range items {
		suffix := ""
		if item.Owner != "" {
			suffix += " (" + item.Owner + ")"
		}
		if !item.Deadline.IsZero() {
			suffix += " due " + item.Deadline.Format("2006-01-02")
		}
		fmt.Fprintf(s.out, "  + %s: %s%s\n", item.Kind, item.Text, suffix)
	}
}

func (s *termSink) Partial(u transcribe.Utterance) {
	s.log.WithField("source", u.Tag.String()).Debug(u.Text)
}

func (s *termSink) Degraded(lost transcribe.SourceTag) {
	s.log.WithField("lost", lost.String()).Warn("transcription degraded to a single source")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	// No config file, use defaults plus environment.
	return config.FromEnv(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== murmur ===")
	fmt.Printf("  Notes:   %s\n", cfg.NotesDir)
	fmt.Printf("  Audio:   %dHz, %dch (system: %s)\n", cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.SystemSource)
	fmt.Printf("  STT:     %s (%s)\n", cfg.Recognize.Backend, cfg.Recognize.Endpoint)
	fmt.Printf("  Hotkey:  %s\n", strings.Join(cfg.Hotkey.Keys, "+"))
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("==============")
}
