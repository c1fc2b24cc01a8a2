package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smart-daily/dailychat/internal/store"
)

func TestEntrySubject(t *testing.T) {
	assert.Equal(t, "daily.chat.7", EntrySubject(store.SourceChat, 7))
	assert.Equal(t, "daily.import.3", EntrySubject(store.SourceImport, 3))
}

func TestNewEntryEvent(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.FixedZone("CST", 8*3600))

	ev := NewEntryEvent(store.Entry{ID: 4, MemberID: 1, Date: "2026-10-15", Summary: "• 完成登录页", Source: store.SourceChat, CreatedAt: at})

	assert.Equal(t, int64(4), ev.EntryID)
	assert.Equal(t, "2026-10-15", ev.Date)
	assert.Equal(t, time.UTC, ev.Committed.Location())
	assert.True(t, ev.Committed.Equal(at))
}
