// Package transcribe turns audio sources into a speaker-tagged transcript.
//
// A StreamTranscriber wraps one audio source with a recognition backend and
// produces utterance events. A Merger interleaves the microphone and
// system-audio transcribers into one ordered transcript.
package transcribe

import "time"

// SourceTag identifies which side of the conversation produced an utterance.
type SourceTag int

const (
	// TagYou marks speech captured from the microphone.
	TagYou SourceTag = iota
	// TagOther marks speech captured from system audio.
	TagOther
)

func (t SourceTag) String() string {
	if t == TagYou {
		return "You"
	}
	return "Other"
}

// Utterance is one recognition event. Partials repeat with the same Seq and
// growing text; exactly one final is emitted per (source, Seq), after which
// the utterance is immutable.
type Utterance struct {
	Tag   SourceTag
	Text  string
	Start time.Time
	Final bool
	Seq   uint64
}

// TranscriptLine is one finalized, speaker-tagged line of the merged
// transcript. Lines are append-only and ordered by arrival at the merger.
type TranscriptLine struct {
	Tag  SourceTag
	Text string
	At   time.Time
}
