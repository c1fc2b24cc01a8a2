// Package model defines data structures shared by the chat client and the
// reference agent.
package model

import (
	"strconv"
)

// SessionID identifies a persisted chat session. NoSession stands for the
// transient, not yet saved conversation.
type SessionID int64

// NoSession is the key of the transient session.
const NoSession SessionID = 0

// Valid reports whether id refers to a persisted session.
func (id SessionID) Valid() bool {
	return id > 0
}

// Ptr returns a pointer for optional JSON fields, nil for NoSession.
func (id SessionID) Ptr() *int64 {
	if !id.Valid() {
		return nil
	}
	v := int64(id)
	return &v
}

func (id SessionID) String() string {
	if !id.Valid() {
		return "transient"
	}
	return strconv.FormatInt(int64(id), 10)
}

// SessionFromPtr converts an optional wire id into a SessionID.
func SessionFromPtr(p *int64) SessionID {
	if p == nil {
		return NoSession
	}
	return SessionID(*p)
}

// SessionInfo is a session as listed by the agent.
type SessionInfo struct {
	ID        SessionID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// CreateSessionRequest is the request to create a new session.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// MessageRow is a raw persisted message as returned by
// GET /api/sessions/{id}/messages.
type MessageRow struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Response  string `json:"response,omitempty"`
	Config    string `json:"config,omitempty"`
	CreatedAt int64  `json:"created_at"`
}
