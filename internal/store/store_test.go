package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-daily/dailychat/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionsAreScopedToUser(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	a, err := s.CreateSession(ctx, 1, "10-15 09:30")
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, 2, "other")
	require.NoError(t, err)

	list, err := s.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	_, err = s.Messages(ctx, 2, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSession(ctx, 2, a.ID), ErrNotFound)
}

func TestMessagesRoundTripAndCascade(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, 1, "t")
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(ctx, sess.ID, "user", "完成登录页", `{"supplementDate":"2026-10-01"}`))
	require.NoError(t, s.AppendMessage(ctx, sess.ID, "assistant", "ok", `{"type":"summary_confirm"}`))

	rows, err := s.Messages(ctx, 1, sess.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "user", rows[0].Role)
	assert.Equal(t, `{"type":"summary_confirm"}`, rows[1].Config)
	assert.Equal(t, int64(sess.ID), rows[1].SessionID)

	require.NoError(t, s.DeleteSession(ctx, 1, sess.ID))
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n))
	assert.Zero(t, n)

	_, err = s.Messages(ctx, 1, model.SessionID(999))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceImportedCountsMerged(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	imported, merged, err := s.ReplaceImported(ctx, []Entry{
		{MemberID: 1, Date: "2026-10-01", Content: "a"},
		{MemberID: 2, Date: "2026-10-01", Content: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Zero(t, merged)

	imported, merged, err = s.ReplaceImported(ctx, []Entry{
		{MemberID: 1, Date: "2026-10-01", Content: "a2"},
		{MemberID: 1, Date: "2026-10-02", Content: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, merged)

	entries, err := s.MemberEntriesSince(ctx, 1, "2026-09-01")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a2", entries[0].Content)
	assert.Equal(t, "a2", entries[0].Summary)
	assert.Equal(t, SourceImport, entries[0].Source)
}

func TestSearchEntries(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	_, err := s.SaveEntry(ctx, Entry{MemberID: 1, Date: "2026-10-01", Content: "修复登录验证码", Summary: "• 修复登录验证码"})
	require.NoError(t, err)
	_, err = s.SaveEntry(ctx, Entry{MemberID: 2, Date: "2026-10-02", Content: "接口联调"})
	require.NoError(t, err)

	hits, err := s.SearchEntries(ctx, "登录", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, SourceChat, hits[0].Source)

	all, err := s.SearchEntries(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "2026-10-02", all[0].Date)
}
