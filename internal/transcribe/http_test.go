package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-audio/wav"
)

func TestHTTPRecognizerRecognize(t *testing.T) {
	var gotModel, gotLanguage, gotAuth string
	var gotWAV []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %q, want /v1/audio/transcriptions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			t.Errorf("parsing multipart: %v", err)
			return
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer file.Close()
		gotWAV, _ = io.ReadAll(file)
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer srv.Close()

	rec := NewHTTPRecognizer(srv.URL, "sk-test", "whisper-1", "en")
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.25
	}

	text, err := rec.Recognize(context.Background(), samples, 16000)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if text != "hello world" {
		t.Errorf("Recognize() = %q, want %q", text, "hello world")
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model field = %q, want %q", gotModel, "whisper-1")
	}
	if gotLanguage != "en" {
		t.Errorf("language field = %q, want %q", gotLanguage, "en")
	}

	// The uploaded chunk must be a decodable WAV with every sample intact.
	dec := wav.NewDecoder(bytes.NewReader(gotWAV))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("uploaded chunk is not valid WAV: %v", err)
	}
	if len(buf.Data) != len(samples) {
		t.Errorf("uploaded %d samples, want %d", len(buf.Data), len(samples))
	}
	if dec.SampleRate != 16000 {
		t.Errorf("uploaded sample rate = %d, want 16000", dec.SampleRate)
	}
}

func TestHTTPRecognizerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "over capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := NewHTTPRecognizer(srv.URL, "", "whisper-1", "")
	if _, err := rec.Recognize(context.Background(), make([]float32, 160), 16000); err == nil {
		t.Error("Recognize() should fail on a non-200 response")
	}
}
