package transcribe

import "context"

// Recognizer converts a chunk of mono float32 audio into text.
// Implementations must be safe for use from a single transcriber goroutine.
type Recognizer interface {
	Recognize(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Result is one event from a streaming recognizer.
type Result struct {
	Text  string
	Final bool
}

// StreamingRecognizer consumes a live frame stream and produces partial and
// final results natively. Backends that implement it are preferred over
// chunked recognition by the StreamTranscriber.
type StreamingRecognizer interface {
	// Stream begins a recognition session over the frame channel. The
	// result channel closes when the frame channel closes or the backend
	// session ends (including on error).
	Stream(ctx context.Context, frames <-chan []float32, sampleRate int) (<-chan Result, error)
}
