package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/api"
	"github.com/smart-daily/dailychat/internal/chat"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/sse"
	"github.com/smart-daily/dailychat/internal/transport"
)

const chatHelp = `命令：
  /mode <report|supplement|query|summary|none>  切换模式
  /date <YYYY-MM-DD>   选择补写日期
  /submit              提交最新的日报摘要
  /edit                编辑最新的日报摘要
  /cancel              取消最新的日报摘要
  /sessions            列出会话
  /switch <id>         切换会话
  /new                 新建会话
  /rm <id>             删除会话
  /help                显示帮助
  /quit                退出
空行发送编辑中的草稿；周报模式下空行生成最近一周的周报。`

// repl is one interactive chat.
type repl struct {
	app  *app
	ctrl *chat.Controller

	// streamed is set once tokens of the current reply were printed.
	streamed bool
}

func newChatCommand(a *app) *cobra.Command {
	var (
		mode      string
		date      string
		sessionID int64
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			r := &repl{app: a}
			r.ctrl = chat.New(a.client, a.session.User().Name, a.log,
				chat.WithEventObserver(r.onEvent),
				chat.OnSessionCreated(func(info model.SessionInfo) {
					fmt.Fprintln(a.out, dimStyle.Render(fmt.Sprintf("已创建会话 %d（%s）", info.ID, info.Title)))
				}),
			)

			if sessionID > 0 {
				r.switchTo(cmd.Context(), model.SessionID(sessionID))
			} else {
				fmt.Fprint(a.out, renderTranscript(r.ctrl.Messages()))
			}
			if mode != "" {
				if err := r.setMode(mode); err != nil {
					return err
				}
			}
			if date != "" {
				if err := r.ctrl.SetDate(date); err != nil {
					return err
				}
			}
			return r.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Initial mode: report, supplement, query, summary")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Supplement date (YYYY-MM-DD)")
	cmd.Flags().Int64VarP(&sessionID, "session", "s", 0, "Open an existing session")
	return cmd
}

func (r *repl) prompt() string {
	label := modeLabel(r.ctrl.Mode())
	if d := r.ctrl.Date(); d != "" {
		label += " " + d
	}
	return headerStyle.Render("["+label+"]") + " › "
}

func (r *repl) run(ctx context.Context) error {
	out := r.app.out
	for {
		line, err := r.app.readLine(r.prompt())
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				if errors.Is(err, transport.ErrUnauthorized) {
					return errors.New("登录已失效，请重新登录")
				}
				fmt.Fprintln(out, errorStyle.Render(api.UserMessage(err)))
			}
			if quit {
				return nil
			}
			continue
		}

		if line == "" {
			line = r.ctrl.Draft()
		}
		if err := r.send(ctx, line); err != nil {
			if errors.Is(err, transport.ErrUnauthorized) {
				return errors.New("登录已失效，请重新登录")
			}
			fmt.Fprintln(out, errorStyle.Render(describe(err)))
		}
	}
}

// send submits one input and prints the finished reply.
func (r *repl) send(ctx context.Context, text string) error {
	r.streamed = false

	err := r.ctrl.Send(ctx, text)
	if r.streamed {
		fmt.Fprintln(r.app.out)
	}
	if err != nil {
		return err
	}

	for _, m := range lastReply(r.ctrl.Messages()) {
		switch {
		case m.IsSummaryCard():
			fmt.Fprint(r.app.out, renderCard(m))
		case !r.streamed:
			fmt.Fprint(r.app.out, renderMessage(m))
		default:
			fmt.Fprint(r.app.out, renderDownload(m))
		}
	}
	return nil
}

// lastReply returns the assistant messages after the latest user message.
func lastReply(msgs []model.Message) []model.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return msgs[i+1:]
		}
	}
	return nil
}

// onEvent prints stream progress of the displayed session as it arrives.
func (r *repl) onEvent(_ model.SessionID, ev sse.Event) {
	switch e := ev.(type) {
	case sse.ThinkingEvent:
		fmt.Fprintln(r.app.out, dimStyle.Render("  · "+e.Text))
	case sse.TokenEvent:
		if !r.streamed {
			fmt.Fprint(r.app.out, assistantStyle.Render("助手 ›")+" ")
			r.streamed = true
		}
		fmt.Fprint(r.app.out, e.Token)
	}
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	out := r.app.out

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(out, chatHelp)

	case "/mode":
		if len(args) != 1 {
			return false, errors.New("用法：/mode <report|supplement|query|summary|none>")
		}
		return false, r.setMode(args[0])

	case "/date":
		if len(args) != 1 {
			return false, errors.New("用法：/date <YYYY-MM-DD>")
		}
		if err := r.ctrl.SetDate(args[0]); err != nil {
			return false, errors.New("日期无效，补写日期必须早于今天")
		}

	case "/submit":
		card, ok := r.ctrl.LatestOpenCard()
		if !ok {
			return false, errors.New("没有待确认的日报摘要")
		}
		if err := r.ctrl.SubmitCard(ctx, card.ID); err != nil {
			return false, err
		}
		fmt.Fprint(out, renderTranscript(lastReply(r.ctrl.Messages())))

	case "/edit":
		card, ok := r.ctrl.LatestOpenCard()
		if !ok {
			return false, errors.New("没有待确认的日报摘要")
		}
		if err := r.ctrl.EditCard(card.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(out, dimStyle.Render("草稿（直接回车发送，或输入新内容）："))
		fmt.Fprintln(out, r.ctrl.Draft())

	case "/cancel":
		card, ok := r.ctrl.LatestOpenCard()
		if !ok {
			return false, errors.New("没有待确认的日报摘要")
		}
		if err := r.ctrl.DismissCard(card.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(out, dimStyle.Render("已取消"))

	case "/sessions":
		sessions, err := r.ctrl.ListSessions(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprint(out, renderSessions(sessions, r.ctrl.ActiveSession()))

	case "/switch":
		if len(args) != 1 {
			return false, errors.New("用法：/switch <id>")
		}
		id, err := parseSessionID(args[0])
		if err != nil {
			return false, err
		}
		r.switchTo(ctx, id)

	case "/new":
		r.ctrl.NewSession()
		fmt.Fprint(out, renderTranscript(r.ctrl.Messages()))

	case "/rm":
		if len(args) != 1 {
			return false, errors.New("用法：/rm <id>")
		}
		id, err := parseSessionID(args[0])
		if err != nil {
			return false, err
		}
		if err := r.ctrl.DeleteSession(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "已删除会话 %d\n", id)

	default:
		return false, fmt.Errorf("未知命令 %s，输入 /help 查看帮助", name)
	}
	return false, nil
}

func (r *repl) setMode(s string) error {
	if s == "none" {
		r.ctrl.SetMode(model.ModeNone)
		return nil
	}
	m := model.ParseMode(s)
	if m == model.ModeNone {
		return fmt.Errorf("未知模式 %q", s)
	}
	r.ctrl.SetMode(m)
	return nil
}

// switchTo displays session id once its messages are loaded.
func (r *repl) switchTo(ctx context.Context, id model.SessionID) {
	r.ctrl.SelectSession(ctx, id)
	r.ctrl.Wait()
	msgs := r.ctrl.Messages()
	if len(msgs) == 0 {
		r.app.log.Debug("session has no messages", zap.Int64("session_id", int64(id)))
		fmt.Fprintln(r.app.out, dimStyle.Render(fmt.Sprintf("会话 %d 暂无消息", id)))
		return
	}
	fmt.Fprint(r.app.out, renderTranscript(msgs))
}

// describe turns controller errors into user facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return "请输入内容"
	case errors.Is(err, chat.ErrDateRequired):
		return "补写模式请先用 /date 选择日期"
	default:
		return api.UserMessage(err)
	}
}
