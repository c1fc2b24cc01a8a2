package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-daily/dailychat/internal/api"
	"github.com/smart-daily/dailychat/internal/auth"
	"github.com/smart-daily/dailychat/internal/chat"
	"github.com/smart-daily/dailychat/internal/config"
	"github.com/smart-daily/dailychat/internal/confirm"
	"github.com/smart-daily/dailychat/internal/importer"
	"github.com/smart-daily/dailychat/internal/middleware"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/service"
	"github.com/smart-daily/dailychat/internal/store"
	"github.com/smart-daily/dailychat/internal/transport"
)

type agent struct {
	server *httptest.Server
	store  *store.Store
}

func newAgent(t *testing.T) *agent {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	accounts := []config.Account{
		{ID: 1, Username: "zhangsan", Password: "pw1", Name: "张三", Role: "member"},
		{ID: 2, Username: "lisi", Password: "pw2", Name: "李四", Role: "lead"},
	}
	members := make([]service.Member, len(accounts))
	for i, a := range accounts {
		members[i] = service.Member{ID: a.ID, Name: a.Name}
	}

	router := NewRouter(Deps{
		Accounts:   accounts,
		Tokens:     middleware.NewTokens("test-secret", 7*24*time.Hour, 24*time.Hour),
		Store:      st,
		Reports:    service.NewReportService(st, nil, nil),
		Sessions:   service.NewSessionService(st, nil),
		Imports:    service.NewImportService(st, members, 10*time.Minute, nil, nil),
		Summarizer: service.RuleSummarizer{},
		ExportDir:  t.TempDir(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &agent{server: srv, store: st}
}

func (a *agent) client(t *testing.T) (*api.Client, *auth.Session) {
	t.Helper()
	sess, err := auth.Init(&auth.MemoryStore{}, nil)
	require.NoError(t, err)
	return api.New(transport.New(a.server.URL, sess, 5*time.Second, nil), nil), sess
}

func (a *agent) login(t *testing.T, username, password string) (*api.Client, *auth.Session) {
	t.Helper()
	c, sess := a.client(t)
	_, err := c.Login(context.Background(), username, password)
	require.NoError(t, err)
	return c, sess
}

func TestLogin(t *testing.T) {
	a := newAgent(t)
	c, sess := a.client(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "zhangsan", "wrong")
	assert.ErrorIs(t, err, auth.ErrAuthFailed)
	assert.False(t, sess.LoggedIn())

	user, err := c.Login(ctx, "zhangsan", "pw1")
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)
	assert.Equal(t, "张三", user.Name)
	assert.True(t, sess.LoggedIn())
}

func TestRejectedCredentialLogsOut(t *testing.T) {
	a := newAgent(t)
	c, sess := a.client(t)
	require.NoError(t, sess.SignIn("forged", model.User{ID: 1, Name: "张三"}))

	_, err := c.ListSessions(context.Background())

	assert.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.False(t, sess.LoggedIn())
}

func TestReportScenarioEndToEnd(t *testing.T) {
	a := newAgent(t)
	c, sess := a.login(t, "zhangsan", "pw1")
	ctx := context.Background()

	ctrl := chat.New(c, sess.User().Name, nil)
	ctrl.SetMode(model.ModeReport)

	require.NoError(t, ctrl.Send(ctx, "完成了登录页面开发"))

	sid := ctrl.ActiveSession()
	require.True(t, sid.Valid())
	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	card := msgs[1]
	assert.Equal(t, model.TypeSummaryConfirm, card.Type)
	assert.Equal(t, confirm.PromptText, card.Content)
	assert.Equal(t, "• 完成了登录页面开发", card.Metadata.Summary)
	assert.Equal(t, confirm.StateOpen, confirm.StateOf(card))

	require.NoError(t, ctrl.SubmitCard(ctx, card.ID))

	msgs = ctrl.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, confirm.StateConfirmed, confirm.StateOf(msgs[1]))
	assert.Equal(t, service.ReplySubmitted, msgs[3].Content)
	assert.Equal(t, model.ModeNone, ctrl.Mode())

	entries, err := a.store.MemberEntriesSince(ctx, 1, "2000-01-01")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "完成了登录页面开发", entries[0].Content)
	assert.Equal(t, store.SourceChat, entries[0].Source)

	persisted, err := c.LoadMessages(ctx, sid)
	require.NoError(t, err)
	require.Len(t, persisted, 4)
	assert.Equal(t, confirm.StateConfirmed, confirm.StateOf(persisted[1]))
	assert.Equal(t, confirm.ConfirmPhrase, persisted[2].Content)

	// A second confirmation has nothing left to commit.
	reply, err := c.Confirm(ctx, sid, "")
	require.NoError(t, err)
	assert.Equal(t, service.ReplyNoPending, reply.Content)
}

func TestConfirmRecordsTypedText(t *testing.T) {
	a := newAgent(t)
	c, sess := a.login(t, "zhangsan", "pw1")
	ctx := context.Background()

	ctrl := chat.New(c, sess.User().Name, nil)
	ctrl.SetMode(model.ModeReport)
	require.NoError(t, ctrl.Send(ctx, "完成了登录页面开发"))
	sid := ctrl.ActiveSession()

	require.NoError(t, ctrl.Send(ctx, "ok"))

	persisted, err := c.LoadMessages(ctx, sid)
	require.NoError(t, err)
	require.Len(t, persisted, 4)
	assert.Equal(t, "ok", persisted[2].Content)
	assert.Equal(t, service.ReplySubmitted, persisted[3].Content)
}

func TestSupplementReportCarriesDate(t *testing.T) {
	a := newAgent(t)
	c, sess := a.login(t, "zhangsan", "pw1")
	ctx := context.Background()

	ctrl := chat.New(c, sess.User().Name, nil)
	ctrl.SetMode(model.ModeSupplement)
	yesterday := time.Now().AddDate(0, 0, -1).Format(middleware.DateLayout)
	require.NoError(t, ctrl.SetDate(yesterday))

	require.NoError(t, ctrl.Send(ctx, "补写：修复了导出缺陷"))

	card, ok := ctrl.LatestOpenCard()
	require.True(t, ok)
	assert.True(t, card.Metadata.IsSupplement)
	assert.Equal(t, yesterday, card.Metadata.SupplementDate)

	require.NoError(t, ctrl.SubmitCard(ctx, card.ID))

	entries, err := a.store.MemberEntriesSince(ctx, 1, "2000-01-01")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, yesterday, entries[0].Date)

	persisted, err := c.LoadMessages(ctx, ctrl.ActiveSession())
	require.NoError(t, err)
	require.NotNil(t, persisted[0].Metadata)
	assert.Equal(t, yesterday, persisted[0].Metadata.SupplementDate)
}

func TestStreamRejectsTodayAsSupplementDate(t *testing.T) {
	a := newAgent(t)
	c, _ := a.login(t, "zhangsan", "pw1")

	_, err := c.Stream(context.Background(), model.StreamRequest{
		Text: "补写",
		Mode: model.ModeSupplement,
		Date: time.Now().Format(middleware.DateLayout),
	})

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "补写日期必须早于今天", apiErr.Message)
}

func TestQueryStreamsThinkingSteps(t *testing.T) {
	a := newAgent(t)
	ctx := context.Background()
	_, err := a.store.SaveEntry(ctx, store.Entry{MemberID: 2, Date: "2026-10-14", Content: "支付接口联调", Summary: "• 支付接口联调"})
	require.NoError(t, err)

	c, sess := a.login(t, "zhangsan", "pw1")
	ctrl := chat.New(c, sess.User().Name, nil)
	ctrl.SetMode(model.ModeQuery)

	require.NoError(t, ctrl.Send(ctx, "支付"))

	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	answer := msgs[1]
	assert.Contains(t, answer.Content, "支付接口联调")
	require.NotNil(t, answer.Metadata)
	assert.Len(t, answer.Metadata.ThinkingSteps, 2)
	assert.True(t, answer.Metadata.ThinkingDone)
}

func TestWeeklySummaryDownload(t *testing.T) {
	a := newAgent(t)
	c, sess := a.login(t, "zhangsan", "pw1")
	ctx := context.Background()

	ctrl := chat.New(c, sess.User().Name, nil)
	ctrl.SetMode(model.ModeSummary)
	require.NoError(t, ctrl.Send(ctx, ""))

	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.DefaultSummaryText, msgs[0].Content)
	md := msgs[1].Metadata
	require.NotNil(t, md)
	require.True(t, strings.HasPrefix(md.DownloadURL, "/api/files/周报_张三_"))
	assert.Contains(t, msgs[1].Content, "# 张三 的周报")

	req, err := http.NewRequest(http.MethodGet, a.server.URL+md.DownloadURL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+sess.Token())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, msgs[1].Content, string(body))
}

func TestGuidanceWithoutMode(t *testing.T) {
	a := newAgent(t)
	c, sess := a.login(t, "zhangsan", "pw1")

	ctrl := chat.New(c, sess.User().Name, nil)
	require.NoError(t, ctrl.Send(context.Background(), "你好"))

	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, GuidanceReply, msgs[1].Content)
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	a := newAgent(t)
	ctx := context.Background()
	alice, _ := a.login(t, "zhangsan", "pw1")
	bob, _ := a.login(t, "lisi", "pw2")

	info, err := alice.CreateSession(ctx, "10-15 09:30")
	require.NoError(t, err)

	list, err := bob.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = bob.LoadMessages(ctx, info.ID)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	require.NoError(t, alice.DeleteSession(ctx, info.ID))
	list, err = alice.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestImportTokenIsSingleUse(t *testing.T) {
	a := newAgent(t)
	c, _ := a.login(t, "lisi", "pw2")
	ctx := context.Background()

	wf := importer.New(c, nil)
	preview, err := wf.Preview(ctx, "team.csv", strings.NewReader(
		"日期,姓名,内容\n2026-10-13,张三,完成登录页\n2026-10-13,王五,无此人\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"王五"}, preview.UnmatchedMembers)

	result, err := wf.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, importer.StatusSuccess, wf.State().Status)

	_, err = c.ConfirmImport(ctx, preview.Token)
	assert.ErrorIs(t, err, api.ErrConfirmationToken)
	assert.Equal(t, "预览已过期，请重新上传", api.UserMessage(err))
}

func TestImportRejectsNonCSV(t *testing.T) {
	a := newAgent(t)
	c, _ := a.login(t, "lisi", "pw2")

	_, err := c.PreviewImport(context.Background(), "team.xlsx", strings.NewReader("x"))

	assert.Equal(t, "仅支持 CSV 文件", api.UserMessage(err))
}

func TestHealth(t *testing.T) {
	a := newAgent(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(a.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyReportsFailingDependency(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"database": failingPinger{}, "nats": nil})
	rec := httptest.NewRecorder()

	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"not ready","checks":{"database":"connection refused"}}`, rec.Body.String())
}

func TestWeeklyFilename(t *testing.T) {
	at := time.Date(2026, 10, 15, 0, 0, 0, 0, time.Local)

	assert.Equal(t, "周报_张三_20261015.md", WeeklyFilename("张三", at))
	assert.Equal(t, "周报_a_b_20261015.md", WeeklyFilename("a/b", at))
}
