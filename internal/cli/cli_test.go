package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-daily/dailychat/internal/config"
	"github.com/smart-daily/dailychat/internal/handler"
	"github.com/smart-daily/dailychat/internal/middleware"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/service"
	"github.com/smart-daily/dailychat/internal/store"
)

func newAgent(t *testing.T) string {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	accounts := []config.Account{
		{ID: 1, Username: "zhangsan", Password: "pw1", Name: "张三", Role: "member"},
	}
	members := []service.Member{{ID: 1, Name: "张三"}}

	srv := httptest.NewServer(handler.NewRouter(handler.Deps{
		Accounts:   accounts,
		Tokens:     middleware.NewTokens("test-secret", 7*24*time.Hour, 24*time.Hour),
		Store:      st,
		Reports:    service.NewReportService(st, nil, nil),
		Sessions:   service.NewSessionService(st, nil),
		Imports:    service.NewImportService(st, members, 10*time.Minute, nil, nil),
		Summarizer: service.RuleSummarizer{},
		ExportDir:  t.TempDir(),
	}))
	t.Cleanup(srv.Close)

	t.Setenv("DAILYCHAT_CREDENTIALS", filepath.Join(t.TempDir(), "credentials.yaml"))
	return srv.URL
}

// run executes one dailychat invocation against url with stdin as input.
func run(t *testing.T, url, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--url", url}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func login(t *testing.T, url string) {
	t.Helper()
	_, err := run(t, url, "", "login", "-u", "zhangsan", "-p", "pw1")
	require.NoError(t, err)
}

func TestLoginWhoamiLogout(t *testing.T) {
	url := newAgent(t)

	out, err := run(t, url, "pw1\n", "login", "-u", "zhangsan")
	require.NoError(t, err)
	assert.Contains(t, out, "已登录 张三")

	out, err = run(t, url, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "张三\n", out)

	_, err = run(t, url, "", "logout")
	require.NoError(t, err)

	_, err = run(t, url, "", "sessions")
	assert.ErrorContains(t, err, "未登录")
}

func TestLoginWithWrongPassword(t *testing.T) {
	url := newAgent(t)

	_, err := run(t, url, "", "login", "-u", "zhangsan", "-p", "nope")

	assert.ErrorContains(t, err, "登录失败")
}

func TestChatReportAndSubmit(t *testing.T) {
	url := newAgent(t)
	login(t, url)

	out, err := run(t, url, "今天完成了登录模块\n/submit\n/quit\n", "chat", "--mode", "report")
	require.NoError(t, err)

	assert.Contains(t, out, "已创建会话")
	assert.Contains(t, out, "日报摘要")
	assert.Contains(t, out, "• 今天完成了登录模块")
	assert.Contains(t, out, service.ReplySubmitted)

	out, err = run(t, url, "", "sessions")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"), out)
}

func TestChatEditResendsDraft(t *testing.T) {
	url := newAgent(t)
	login(t, url)

	out, err := run(t, url, "今天修复了登录bug\n/edit\n\n/quit\n", "chat", "-m", "report")
	require.NoError(t, err)

	assert.Contains(t, out, "草稿")
	assert.Equal(t, 2, strings.Count(out, "日报摘要"), out)
}

func TestChatSupplementNeedsDate(t *testing.T) {
	url := newAgent(t)
	login(t, url)

	out, err := run(t, url, "补一下前天的内容\n", "chat", "--mode", "supplement")
	require.NoError(t, err)
	assert.Contains(t, out, "补写模式请先用 /date 选择日期")

	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	out, err = run(t, url, "补一下昨天的内容\n", "chat", "--mode", "supplement", "--date", yesterday)
	require.NoError(t, err)
	assert.Contains(t, out, "补写日报 · "+yesterday)
}

func TestChatSwitchShowsTranscript(t *testing.T) {
	url := newAgent(t)
	login(t, url)

	_, err := run(t, url, "项目进展顺利\n", "chat", "--mode", "report")
	require.NoError(t, err)

	out, err := run(t, url, "/sessions\n/switch 1\n/rm 1\n/sessions\n", "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "你 › 项目进展顺利")
	assert.Contains(t, out, "已删除会话 1")
	assert.Contains(t, out, "暂无会话")
}

func TestChatUnknownCommand(t *testing.T) {
	url := newAgent(t)
	login(t, url)

	out, err := run(t, url, "/fly\n/mode weekly\n", "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "未知命令 /fly")
	assert.Contains(t, out, "未知模式")
}

func TestImportWithYes(t *testing.T) {
	url := newAgent(t)
	login(t, url)

	path := filepath.Join(t.TempDir(), "team.csv")
	require.NoError(t, os.WriteFile(path, []byte("日期,姓名,内容\n2024-05-01,张三,写代码\n2024-05-01,王五,出差\n"), 0o600))

	out, err := run(t, url, "", "import", path, "-y")
	require.NoError(t, err)

	assert.Contains(t, out, "共解析 2 条记录")
	assert.Contains(t, out, "王五")
	assert.Contains(t, out, "新增 1 条")
}

func TestImportDeclined(t *testing.T) {
	url := newAgent(t)
	login(t, url)

	path := filepath.Join(t.TempDir(), "team.csv")
	require.NoError(t, os.WriteFile(path, []byte("2024-05-01,张三,写代码\n"), 0o600))

	out, err := run(t, url, "n\n", "import", path)
	require.NoError(t, err)

	assert.Contains(t, out, "已取消导入")
	assert.NotContains(t, out, "导入完成")
}

func TestRenderCardStates(t *testing.T) {
	card := model.Message{
		Role: model.RoleAssistant,
		Type: model.TypeSummaryConfirm,
		Metadata: &model.Metadata{
			Type:    "summary_confirm",
			Summary: "• 完成接口联调",
			Risks:   []string{"可能延期"},
		},
	}

	open := renderCard(card)
	assert.Contains(t, open, "完成接口联调")
	assert.Contains(t, open, "风险：可能延期")
	assert.Contains(t, open, "/submit")

	card.Metadata.Confirmed = true
	closed := renderCard(card)
	assert.Contains(t, closed, "已提交")
	assert.NotContains(t, closed, "/submit")
}

func TestLastReply(t *testing.T) {
	msgs := []model.Message{
		{ID: "1", Role: model.RoleUser},
		{ID: "2", Role: model.RoleAssistant},
		{ID: "3", Role: model.RoleUser},
		{ID: "4", Role: model.RoleAssistant},
	}

	reply := lastReply(msgs)

	if assert.Len(t, reply, 1) {
		assert.Equal(t, "4", reply[0].ID)
	}
	assert.Empty(t, lastReply(msgs[:1]))
}

func TestParseSessionID(t *testing.T) {
	id, err := parseSessionID("42")
	require.NoError(t, err)
	assert.Equal(t, model.SessionID(42), id)

	for _, bad := range []string{"0", "-1", "abc"} {
		_, err := parseSessionID(bad)
		assert.Error(t, err, bad)
	}
}
