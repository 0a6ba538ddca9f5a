// Package extract turns finalized transcript windows into action items,
// commitments and expectations via an LLM chat-completion call.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind categorizes an extracted item.
type Kind int

const (
	// KindAction is a task someone should do.
	KindAction Kind = iota
	// KindCommitment is something a speaker promised to do.
	KindCommitment
	// KindExpectation is something a speaker expects from someone else.
	KindExpectation
)

func (k Kind) String() string {
	switch k {
	case KindAction:
		return "Action"
	case KindCommitment:
		return "Commitment"
	default:
		return "Expectation"
	}
}

// Item is one extracted action, commitment or expectation.
type Item struct {
	Kind      Kind
	Text      string
	Owner     string    // empty when unattributed
	Deadline  time.Time // zero when none
	Completed bool
}

// itemLine matches one model output line, e.g.
//
//	- [x] Action: Review proposal (owner: Sarah, due: 2025-12-30)
//
// The bullet, checkbox and parenthetical are all optional.
var itemLine = regexp.MustCompile(`^\s*(?:[-*]\s*)?(?:\[([ xX])\]\s*)?(Action|Commitment|Expectation)\s*:\s*(.+?)\s*$`)

// attrs matches a trailing "(owner: ..., due: ...)" parenthetical.
var attrs = regexp.MustCompile(`\s*\(([^()]*)\)\s*$`)

// ParseItems parses a model response into items. The expected format is one
// item per line; lines that match no category are ignored. A non-empty
// response with no recognizable item and no "none" marker is a parse error.
func ParseItems(response string) ([]Item, error) {
	var items []Item

	for _, raw := range strings.Split(response, "\n") {
		m := itemLine.FindStringSubmatch(raw)
		if m == nil {
			continue
		}

		item := Item{
			Completed: strings.EqualFold(m[1], "x"),
			Text:      m[3],
		}
		switch m[2] {
		case "Action":
			item.Kind = KindAction
		case "Commitment":
			item.Kind = KindCommitment
		case "Expectation":
			item.Kind = KindExpectation
		}

		if am := attrs.FindStringSubmatch(item.Text); am != nil {
			if owner, deadline, ok := parseAttrs(am[1]); ok {
				item.Text = strings.TrimSpace(item.Text[:len(item.Text)-len(am[0])])
				item.Owner = owner
				item.Deadline = deadline
			}
		}

		if item.Text != "" {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		trimmed := strings.TrimSpace(response)
		if trimmed != "" && !strings.Contains(strings.ToLower(trimmed), "none") {
			return nil, fmt.Errorf("no parseable items in response of %d bytes", len(response))
		}
	}

	return items, nil
}

// parseAttrs parses "owner: Sarah, due: 2025-12-30". It reports ok=false
// when no recognized attribute is present, so that an ordinary trailing
// parenthetical stays part of the item text.
func parseAttrs(s string) (owner string, deadline time.Time, ok bool) {
	for _, part := range strings.Split(s, ",") {
		key, value, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "owner":
			owner = value
			ok = true
		case "due", "deadline":
			if d, err := time.Parse("2006-01-02", value); err == nil {
				deadline = d
				ok = true
			}
		}
	}
	return owner, deadline, ok
}
