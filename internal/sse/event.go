// Package sse encodes and decodes the agent's event stream: newline
// separated "event:" / "data:" frames carrying JSON payloads.
package sse

import (
	"encoding/json"
)

// Kind names a recognized frame label.
type Kind string

const (
	KindToken    Kind = "token"
	KindThinking Kind = "thinking"
	KindResult   Kind = "result"
	KindMeta     Kind = "meta"
	KindDone     Kind = "done"
)

// Event is one decoded frame. The concrete type is one of TokenEvent,
// ThinkingEvent, ResultEvent or MetaEvent.
type Event interface {
	Kind() Kind
}

// TokenEvent carries a piece of visible answer text.
type TokenEvent struct {
	Token string `json:"token"`
}

// ThinkingEvent carries one reasoning step.
type ThinkingEvent struct {
	Text string `json:"text"`
}

// ResultEvent carries a structured summary card payload.
type ResultEvent struct {
	Payload json.RawMessage
}

// MetaEvent carries auxiliary metadata such as a download link.
type MetaEvent struct {
	Payload json.RawMessage
}

func (TokenEvent) Kind() Kind    { return KindToken }
func (ThinkingEvent) Kind() Kind { return KindThinking }
func (ResultEvent) Kind() Kind   { return KindResult }
func (MetaEvent) Kind() Kind     { return KindMeta }
