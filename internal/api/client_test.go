package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-daily/dailychat/internal/auth"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/sse"
	"github.com/smart-daily/dailychat/internal/transport"
)

func newClient(t *testing.T, h http.Handler) (*Client, *auth.Session) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	session, err := auth.Init(&auth.MemoryStore{}, nil)
	require.NoError(t, err)
	return New(transport.New(srv.URL, session, 5*time.Second, nil), nil), session
}

func TestRowsToMessages(t *testing.T) {
	rows := []model.MessageRow{
		{ID: 1, Role: "user", Content: "完成了登录页面开发", Config: `{"supplementDate":"2026-10-14"}`, CreatedAt: 1700000000},
		{ID: 2, Role: "system:agent:nl2sql", Content: "SELECT 1"},
		{ID: 3, Role: "user", Content: "谁在做登录？（注：提问者是张三）"},
		{ID: 4, Role: "assistant", Content: "为您总结工作内容如下，请确认是否提交：", Config: `{"type":"summary_confirm","summary":"登录页","confirmed":true}`},
		{ID: 5, Role: "assistant", Response: "fallback", Config: "{broken"},
	}

	msgs := RowsToMessages(rows)

	require.Len(t, msgs, 3)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "2026-10-14", msgs[0].Metadata.SupplementDate)
	assert.Equal(t, time.Unix(1700000000, 0), msgs[0].Timestamp)

	assert.Equal(t, model.TypeSummaryConfirm, msgs[1].Type)
	assert.Equal(t, "登录页", msgs[1].Metadata.Summary)
	assert.True(t, msgs[1].Metadata.Confirmed)
	assert.True(t, msgs[1].Metadata.ThinkingDone)

	assert.Equal(t, "fallback", msgs[2].Content)
	assert.Equal(t, model.TypeText, msgs[2].Type)
	assert.True(t, msgs[2].Metadata.ThinkingDone)
	assert.Empty(t, msgs[2].Metadata.Summary)
}

func TestRowsToMessagesKeepsCardWithOddConfigFields(t *testing.T) {
	rows := []model.MessageRow{
		{ID: 7, Role: "assistant", Content: "为您总结工作内容如下，请确认是否提交：", Config: `{"type":"summary_confirm","summary":"联调","risks":[{"level":"high"}],"thinkingElapsed":3.5}`},
	}

	msgs := RowsToMessages(rows)

	require.Len(t, msgs, 1)
	assert.Equal(t, model.TypeSummaryConfirm, msgs[0].Type)
	assert.Equal(t, "联调", msgs[0].Metadata.Summary)
	assert.True(t, msgs[0].IsSummaryCard())
}

func TestLoginSignsIn(t *testing.T) {
	c, session := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "right" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(model.LoginResponse{Token: "jwt", User: model.User{ID: 2, Name: "王五"}})
	}))

	_, err := c.Login(context.Background(), "wang", "wrong")
	assert.ErrorIs(t, err, auth.ErrAuthFailed)
	assert.False(t, session.LoggedIn())

	user, err := c.Login(context.Background(), "wang", "right")
	require.NoError(t, err)
	assert.Equal(t, "王五", user.Name)
	assert.Equal(t, "jwt", session.Token())
}

func TestStreamSendsRequestAndDecodes(t *testing.T) {
	var got model.StreamRequest
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		sw, err := sse.NewWriter(w)
		require.NoError(t, err)
		sw.Token("你好")
		sw.Done()
	}))

	sub, err := c.Stream(context.Background(), model.StreamRequest{Text: "hi", Mode: model.ModeQuery, SessionID: model.SessionID(4).Ptr()})
	require.NoError(t, err)

	var events []sse.Event
	for ev := range sub.Events() {
		events = append(events, ev)
	}
	assert.Equal(t, []sse.Event{sse.TokenEvent{Token: "你好"}}, events)
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, model.ModeQuery, got.Mode)
	require.NotNil(t, got.SessionID)
	assert.Equal(t, int64(4), *got.SessionID)
}

func TestImportErrorsAreVerbatim(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/import/preview":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			f, _, err := r.FormFile("file")
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			assert.Equal(t, "2026-10-01,张三,写代码\n", string(data))
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"文档解析失败"}`))
		case "/api/import/confirm":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"预览已过期，请重新上传"}`))
		}
	}))

	_, err := c.PreviewImport(context.Background(), "a.csv", strings.NewReader("2026-10-01,张三,写代码\n"))
	require.Error(t, err)
	assert.Equal(t, "文档解析失败", UserMessage(err))
	assert.False(t, errors.Is(err, ErrConfirmationToken))

	_, err = c.ConfirmImport(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrConfirmationToken)
	assert.Equal(t, "预览已过期，请重新上传", UserMessage(err))
}

func TestConfirmDefaultsToText(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.ConfirmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.ActionConfirm, req.Action)
		assert.Nil(t, req.SessionID)
		assert.Equal(t, "确认提交", req.Text)
		w.Write([]byte(`{"content":"日报已提交成功！"}`))
	}))

	msg, err := c.Confirm(context.Background(), model.NoSession, "确认提交")

	require.NoError(t, err)
	assert.Equal(t, "日报已提交成功！", msg.Content)
	assert.Equal(t, model.TypeText, msg.Type)
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.NotEmpty(t, msg.ID)
}
