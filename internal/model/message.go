package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType tags how an assistant message is presented.
type MessageType string

const (
	TypeText           MessageType = "text"
	TypeSummaryConfirm MessageType = "summary_confirm"
)

// WelcomeID is the id of the synthetic greeting shown in an empty session.
const WelcomeID = "welcome"

// Message represents one chat turn.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Metadata  *Metadata   `json:"metadata,omitempty"`
}

// IsSummaryCard reports whether the message is a summary confirmation card.
func (m Message) IsSummaryCard() bool {
	return m.Type == TypeSummaryConfirm && m.Metadata != nil
}

// WithMetadata returns a copy of m whose metadata has been modified by fn.
// The original message and its metadata are left untouched.
func (m Message) WithMetadata(fn func(md *Metadata)) Message {
	md := m.Metadata.Clone()
	if md == nil {
		md = &Metadata{}
	}
	fn(md)
	m.Metadata = md
	return m
}

// Metadata is the loosely structured bag attached to assistant messages.
type Metadata struct {
	// Summary card payload
	Type           string   `json:"type,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Risks          []string `json:"risks,omitempty"`
	IsSupplement   bool     `json:"isSupplement,omitempty"`
	SupplementDate string   `json:"supplementDate,omitempty"`
	Mode           string   `json:"mode,omitempty"`

	// Terminal card states; at most one is ever true
	Confirmed bool `json:"confirmed,omitempty"`
	Dismissed bool `json:"dismissed,omitempty"`
	Edited    bool `json:"edited,omitempty"`

	// Generated document
	DownloadURL   string `json:"downloadUrl,omitempty"`
	DownloadTitle string `json:"downloadTitle,omitempty"`

	// Thinking trace
	ThinkingSteps     []string `json:"thinkingSteps,omitempty"`
	ThinkingDone      bool     `json:"thinkingDone,omitempty"`
	ThinkingElapsed   int64    `json:"thinkingElapsed,omitempty"`
	ThinkingCollapsed bool     `json:"thinkingCollapsed,omitempty"`

	// Payload is the verbatim result/meta object the metadata was built from.
	Payload json.RawMessage `json:"-"`
}

// Clone returns a deep copy of md. Clone of nil is nil.
func (md *Metadata) Clone() *Metadata {
	if md == nil {
		return nil
	}
	c := *md
	if md.Risks != nil {
		c.Risks = append([]string(nil), md.Risks...)
	}
	if md.ThinkingSteps != nil {
		c.ThinkingSteps = append([]string(nil), md.ThinkingSteps...)
	}
	if md.Payload != nil {
		c.Payload = append(json.RawMessage(nil), md.Payload...)
	}
	return &c
}

// Terminal reports whether any of the terminal card flags is set.
func (md *Metadata) Terminal() bool {
	return md != nil && (md.Confirmed || md.Dismissed || md.Edited)
}

// MetadataFromPayload decodes an arbitrary result/meta object. The raw
// object is kept verbatim in Payload. Only input that is not a JSON object
// is an error; fields of an unexpected shape are ignored.
func MetadataFromPayload(raw json.RawMessage) (*Metadata, error) {
	md := &Metadata{}
	if err := md.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	if md.Payload == nil {
		return nil, errors.New("metadata payload is not an object")
	}
	return md, nil
}

// UnmarshalJSON decodes the known fields one by one so that a field of an
// unexpected type does not discard the rest of the object.
func (md *Metadata) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*md = Metadata{Payload: append(json.RawMessage(nil), data...)}

	md.Type = stringField(fields, "type")
	md.Summary = stringField(fields, "summary")
	md.Risks = stringsField(fields, "risks")
	md.IsSupplement = boolField(fields, "isSupplement")
	md.SupplementDate = stringField(fields, "supplementDate")
	md.Mode = stringField(fields, "mode")

	md.Confirmed = boolField(fields, "confirmed")
	md.Dismissed = boolField(fields, "dismissed")
	md.Edited = boolField(fields, "edited")

	md.DownloadURL = stringField(fields, "downloadUrl")
	md.DownloadTitle = stringField(fields, "downloadTitle")

	md.ThinkingSteps = stringsField(fields, "thinkingSteps")
	md.ThinkingDone = boolField(fields, "thinkingDone")
	md.ThinkingElapsed = int64(numberField(fields, "thinkingElapsed"))
	md.ThinkingCollapsed = boolField(fields, "thinkingCollapsed")
	return nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

func boolField(fields map[string]json.RawMessage, key string) bool {
	var b bool
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &b) == nil {
		return b
	}
	return false
}

func numberField(fields map[string]json.RawMessage, key string) float64 {
	var f float64
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &f) == nil {
		return f
	}
	return 0
}

// stringsField keeps the string elements of an array. A lone string is
// treated as a one-element list.
func stringsField(fields map[string]json.RawMessage, key string) []string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var one string
	if json.Unmarshal(raw, &one) == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// CloneMessages copies a message list so the copy can be replaced or
// modified without affecting readers of the original.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
