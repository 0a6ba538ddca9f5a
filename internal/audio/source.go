// Package audio provides the audio sources feeding the transcription
// pipeline: live capture (microphone or system loopback) and WAV replay.
package audio

import "errors"

// ErrUnavailable is returned by Start when a source cannot be opened,
// for example when microphone permission is denied or the device is gone.
var ErrUnavailable = errors.New("audio: source unavailable")

// Source delivers mono float32 audio frames until stopped.
//
// Frames() yields frames in capture order. The channel is closed after
// Stop, or when a finite source (WAV replay) runs out of data.
type Source interface {
	// Start begins producing frames. It is a no-op if already started.
	Start() error
	// Frames returns the frame channel. Valid before Start.
	Frames() <-chan []float32
	// Stop ends capture and closes the frame channel. Safe to call twice.
	Stop()
}
