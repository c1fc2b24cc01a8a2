package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer emits frames on an HTTP response, flushing after each one.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the event-stream headers and returns a Writer.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// Event writes one frame.
func (s *Writer) Event(kind Kind, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", kind, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()

	return nil
}

// Token writes a token frame.
func (s *Writer) Token(token string) error {
	return s.Event(KindToken, TokenEvent{Token: token})
}

// Thinking writes a thinking frame.
func (s *Writer) Thinking(text string) error {
	return s.Event(KindThinking, ThinkingEvent{Text: text})
}

// Done writes the terminating frame.
func (s *Writer) Done() error {
	return s.Event(KindDone, map[string]string{})
}
