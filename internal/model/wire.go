package model

// HistoryItem is one context turn sent with a stream request.
type HistoryItem struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StreamRequest is the body of POST /api/chat/stream.
type StreamRequest struct {
	Text      string        `json:"text"`
	Mode      Mode          `json:"mode,omitempty"`
	Date      string        `json:"date,omitempty"`
	SessionID *int64        `json:"session_id,omitempty"`
	History   []HistoryItem `json:"history,omitempty"`
}

// ActionConfirm is the only action accepted by POST /api/chat.
const ActionConfirm = "confirm"

// ConfirmRequest is the body of POST /api/chat.
// Text is the user's confirmation as typed; the agent records it as the
// user turn.
type ConfirmRequest struct {
	Action    string `json:"action"`
	SessionID *int64 `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// ChatResponse is the non-streaming reply of POST /api/chat.
type ChatResponse struct {
	Content  string      `json:"content"`
	Type     MessageType `json:"type,omitempty"`
	Metadata *Metadata   `json:"metadata,omitempty"`
}

// User is the authenticated account.
type User struct {
	ID     int    `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Avatar string `json:"avatar" yaml:"avatar"`
	Role   string `json:"role" yaml:"role"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the reply of POST /api/login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ErrorResponse is the body of every non-2xx agent reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PreviewEntry is one parsed row of an import file.
type PreviewEntry struct {
	Date    string `json:"date"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// PreviewResult is the reply of POST /api/import/preview.
type PreviewResult struct {
	Token            string         `json:"token"`
	Entries          []PreviewEntry `json:"entries"`
	UnmatchedMembers []string       `json:"unmatched_members"`
}

// ImportConfirmRequest is the body of POST /api/import/confirm.
type ImportConfirmRequest struct {
	Token string `json:"token"`
}

// ConfirmResult is the reply of POST /api/import/confirm.
type ConfirmResult struct {
	Imported       int      `json:"imported"`
	Merged         int      `json:"merged"`
	Skipped        int      `json:"skipped"`
	SkippedMembers []string `json:"skipped_members"`
	Total          int      `json:"total"`
}
