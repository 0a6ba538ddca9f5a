package transcribe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// RealtimeRecognizer streams audio to a realtime STT websocket endpoint and
// receives partial and final transcript events as they are produced.
type RealtimeRecognizer struct {
	endpoint string
	apiKey   string
	model    string
	dialer   *websocket.Dialer
}

// NewRealtimeRecognizer creates a streaming recognizer for the given
// endpoint. http/https schemes are rewritten to ws/wss.
func NewRealtimeRecognizer(endpoint, apiKey, model string) *RealtimeRecognizer {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	return &RealtimeRecognizer{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		dialer:   &dialer,
	}
}

// clientEvent is a message sent to the realtime endpoint.
type clientEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
}

// serverEvent is a message received from the realtime endpoint.
type serverEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Stream implements StreamingRecognizer. One session lasts until the frame
// channel closes or the connection drops; the caller reconnects as needed.
func (r *RealtimeRecognizer) Stream(ctx context.Context, frames <-chan []float32, sampleRate int) (<-chan Result, error) {
	wsURL, err := r.buildURL(sampleRate)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if r.apiKey != "" {
		headers.Set("Authorization", "Bearer "+r.apiKey)
	}

	conn, resp, err := r.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	out := make(chan Result, 16)

	// Writer: forward frames as base64 int16 PCM append events.
	go func() {
		defer conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					_ = writeEvent(conn, clientEvent{Type: "input_audio.commit"})
					return
				}
				ev := clientEvent{
					Type:  "input_audio.append",
					Audio: base64.StdEncoding.EncodeToString(floatToPCM16(frame)),
				}
				if err := writeEvent(conn, ev); err != nil {
					return
				}
			}
		}
	}()

	// Reader: map transcript events to results.
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev serverEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			switch ev.Type {
			case "transcript.partial":
				if ev.Text != "" {
					out <- Result{Text: ev.Text}
				}
			case "transcript.final":
				out <- Result{Text: ev.Text, Final: true}
			case "session.closed":
				return
			}
		}
	}()

	return out, nil
}

// Recognize implements Recognizer with a one-shot session: the samples are
// sent as a single committed buffer and the final transcripts are joined.
func (r *RealtimeRecognizer) Recognize(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	frames := make(chan []float32, 1)
	frames <- samples
	close(frames)

	results, err := r.Stream(ctx, frames, sampleRate)
	if err != nil {
		return "", err
	}

	var text string
	for res := range results {
		if !res.Final || res.Text == "" {
			continue
		}
		if text != "" {
			text += " "
		}
		text += res.Text
	}
	return text, nil
}

func (r *RealtimeRecognizer) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/v1/realtime"
	q := u.Query()
	q.Set("model", r.model)
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func writeEvent(conn *websocket.Conn, ev clientEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// floatToPCM16 converts float32 samples to little-endian int16 bytes.
func floatToPCM16(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		data[i*2] = byte(uint16(v))
		data[i*2+1] = byte(uint16(v) >> 8)
	}
	return data
}
