package extract

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParseItems(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []Item
	}{
		{
			name:     "full action line",
			response: "Action: Review proposal (owner: Sarah, due: 2025-12-30)",
			want: []Item{{
				Kind:     KindAction,
				Text:     "Review proposal",
				Owner:    "Sarah",
				Deadline: date("2025-12-30"),
			}},
		},
		{
			name:     "bulleted and checked",
			response: "- [x] Commitment: Send the slides (owner: Marco)",
			want: []Item{{
				Kind:      KindCommitment,
				Text:      "Send the slides",
				Owner:     "Marco",
				Completed: true,
			}},
		},
		{
			name:     "expectation without attributes",
			response: "Expectation: Legal signs off before Friday",
			want: []Item{{
				Kind: KindExpectation,
				Text: "Legal signs off before Friday",
			}},
		},
		{
			name: "multiple lines with chatter ignored",
			response: "Here is what I found:\n" +
				"Action: Book the room (due: 2026-09-01)\n" +
				"Commitment: Follow up with finance (owner: Priya)\n" +
				"Hope this helps!",
			want: []Item{
				{Kind: KindAction, Text: "Book the room", Deadline: date("2026-09-01")},
				{Kind: KindCommitment, Text: "Follow up with finance", Owner: "Priya"},
			},
		},
		{
			name:     "ordinary parenthetical stays in the text",
			response: "Action: Update the roadmap (the Q4 one)",
			want: []Item{{
				Kind: KindAction,
				Text: "Update the roadmap (the Q4 one)",
			}},
		},
		{
			name:     "deadline keyword accepted",
			response: "Action: Ship the fix (deadline: 2026-01-15)",
			want: []Item{{
				Kind:     KindAction,
				Text:     "Ship the fix",
				Deadline: date("2026-01-15"),
			}},
		},
		{
			name:     "none marker",
			response: "none",
			want:     nil,
		},
		{
			name:     "empty response",
			response: "",
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseItems(tt.response)
			if err != nil {
				t.Fatalf("ParseItems() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d items, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("item %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseItemsUnparseable(t *testing.T) {
	_, err := ParseItems("I could not find anything relevant in that transcript.")
	if err == nil {
		t.Error("a non-empty response with no items should be a parse error")
	}
}

func TestKindString(t *testing.T) {
	if KindAction.String() != "Action" {
		t.Errorf("KindAction = %q", KindAction.String())
	}
	if KindCommitment.String() != "Commitment" {
		t.Errorf("KindCommitment = %q", KindCommitment.String())
	}
	if KindExpectation.String() != "Expectation" {
		t.Errorf("KindExpectation = %q", KindExpectation.String())
	}
}
