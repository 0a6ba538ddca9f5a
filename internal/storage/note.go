// Package storage persists notes as markdown with YAML front matter, action
// items to a sidecar list, and session metadata to a sqlite index.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/calebrw/murmur/internal/extract"
	"github.com/calebrw/murmur/internal/transcribe"
)

// noteMeta is the YAML front matter of a note file.
type noteMeta struct {
	ID      string    `yaml:"id"`
	Title   string    `yaml:"title"`
	Started time.Time `yaml:"started"`
}

// NoteStore writes one note and its actions sidecar. It implements the
// session storage contract.
type NoteStore struct {
	mu          sync.Mutex
	notePath    string
	actionsPath string
}

// NewNoteStore creates the note file with front matter in dir. The note is
// named <stamp>_<slug>.md and its sidecar <stamp>_<slug>.actions.md.
func NewNoteStore(dir, id, title string, started time.Time) (*NoteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating notes dir: %w", err)
	}

	base := started.Format("2006-01-02_15-04-05")
	if slug := slugify(title); slug != "" {
		base += "_" + slug
	}

	s := &NoteStore{
		notePath:    filepath.Join(dir, base+".md"),
		actionsPath: filepath.Join(dir, base+".actions.md"),
	}

	meta, err := yaml.Marshal(noteMeta{ID: id, Title: title, Started: started})
	if err != nil {
		return nil, fmt.Errorf("marshaling front matter: %w", err)
	}

	header := fmt.Sprintf("---\n%s---\n\n# %s\n\n", meta, title)
	if err := os.WriteFile(s.notePath, []byte(header), 0o644); err != nil {
		return nil, fmt.Errorf("writing note: %w", err)
	}

	return s, nil
}

// NotePath returns the note file path.
func (s *NoteStore) NotePath() string {
	return s.notePath
}

// ActionsPath returns the sidecar file path.
func (s *NoteStore) ActionsPath() string {
	return s.actionsPath
}

// AppendLine appends one transcript line to the note body.
func (s *NoteStore) AppendLine(line transcribe.TranscriptLine) error {
	entry := fmt.Sprintf("**[%s] %s:** %s\n\n",
		line.At.Format("15:04:05"), line.Tag, line.Text)
	return s.appendTo(s.notePath, entry)
}

// AppendItems appends extracted items to the actions sidecar as a checkbox
// list. The sidecar is created on first use.
func (s *NoteStore) AppendItems(items []extract.Item) error {
	var sb strings.Builder
	for _, item := range items {
		box := " "
		if item.Completed {
			box = "x"
		}
		sb.WriteString(fmt.Sprintf("- [%s] **%s:** %s", box, item.Kind, item.Text))
		if item.Owner != "" {
			sb.WriteString(" — " + item.Owner)
		}
		if !item.Deadline.IsZero() {
			sb.WriteString(" (due " + item.Deadline.Format("2006-01-02") + ")")
		}
		sb.WriteByte('\n')
	}
	return s.appendTo(s.actionsPath, sb.String())
}

func (s *NoteStore) appendTo(path, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}

// slugify lowercases the title and keeps letters, digits and dashes.
func slugify(title string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteByte('-')
		}
	}
	return strings.Trim(sb.String(), "-")
}
