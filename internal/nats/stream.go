package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/smart-daily/dailychat/internal/store"
)

const (
	// StreamName is the name of the committed daily entries stream.
	StreamName = "DAILY"

	// SubjectPrefix is the prefix for all daily entry subjects.
	SubjectPrefix = "daily"
)

// EntryEvent is the payload published for a committed daily entry.
type EntryEvent struct {
	EntryID   int64     `json:"entry_id,omitempty"`
	MemberID  int       `json:"member_id"`
	Date      string    `json:"daily_date"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	Risk      string    `json:"risk,omitempty"`
	Source    string    `json:"source"`
	Committed time.Time `json:"committed_at"`
}

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the daily entries stream exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Committed daily report entries",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EntrySubject returns the subject for an entry of memberID from source.
func EntrySubject(source string, memberID int) string {
	return fmt.Sprintf("%s.%s.%d", SubjectPrefix, source, memberID)
}

// PublishEntry publishes a committed entry to JetStream.
func (m *StreamManager) PublishEntry(ctx context.Context, e store.Entry) error {
	data, err := json.Marshal(NewEntryEvent(e))
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, EntrySubject(e.Source, e.MemberID), data); err != nil {
		return fmt.Errorf("failed to publish entry: %w", err)
	}
	return nil
}

// NewEntryEvent builds the published form of e.
func NewEntryEvent(e store.Entry) EntryEvent {
	committed := e.CreatedAt
	if committed.IsZero() {
		committed = time.Now()
	}
	return EntryEvent{
		EntryID:   e.ID,
		MemberID:  e.MemberID,
		Date:      e.Date,
		Content:   e.Content,
		Summary:   e.Summary,
		Risk:      e.Risk,
		Source:    e.Source,
		Committed: committed.UTC(),
	}
}
