package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/smart-daily/dailychat/internal/confirm"
	"github.com/smart-daily/dailychat/internal/model"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	closedCardStyle = cardStyle.
			BorderForeground(lipgloss.Color("240"))
)

// renderCard draws a summary card with its state and the actions still
// available.
func renderCard(msg model.Message) string {
	md := msg.Metadata
	var b strings.Builder

	title := "日报摘要"
	if md.IsSupplement && md.SupplementDate != "" {
		title = fmt.Sprintf("补写日报 · %s", md.SupplementDate)
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(md.Summary)

	if len(md.Risks) > 0 {
		b.WriteString("\n\n")
		b.WriteString(warnStyle.Render("风险：" + strings.Join(md.Risks, "、")))
	}

	b.WriteString("\n\n")
	state := confirm.StateOf(msg)
	if state == confirm.StateOpen {
		b.WriteString(dimStyle.Render("/submit 提交  /edit 编辑  /cancel 取消"))
		return cardStyle.Render(b.String()) + "\n"
	}
	b.WriteString(dimStyle.Render(state.Label()))
	return closedCardStyle.Render(b.String()) + "\n"
}

// renderMessage draws one message of a transcript.
func renderMessage(msg model.Message) string {
	if msg.Role == model.RoleUser {
		prefix := userStyle.Render("你 ›")
		if msg.Metadata != nil && msg.Metadata.SupplementDate != "" {
			prefix += dimStyle.Render(" [" + msg.Metadata.SupplementDate + "]")
		}
		return prefix + " " + msg.Content + "\n"
	}

	var b strings.Builder
	if md := msg.Metadata; md != nil && len(md.ThinkingSteps) > 0 {
		for _, step := range md.ThinkingSteps {
			b.WriteString(dimStyle.Render("  · "+step) + "\n")
		}
	}
	if msg.IsSummaryCard() {
		b.WriteString(msg.Content + "\n")
		b.WriteString(renderCard(msg))
		return b.String()
	}
	b.WriteString(assistantStyle.Render("助手 ›") + " " + msg.Content + "\n")
	b.WriteString(renderDownload(msg))
	return b.String()
}

func renderDownload(msg model.Message) string {
	if msg.Metadata == nil || msg.Metadata.DownloadURL == "" {
		return ""
	}
	title := msg.Metadata.DownloadTitle
	if title == "" {
		title = "下载"
	}
	return dimStyle.Render(fmt.Sprintf("  ↓ %s: %s", title, msg.Metadata.DownloadURL)) + "\n"
}

// renderTranscript draws a full message list.
func renderTranscript(msgs []model.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(renderMessage(m))
	}
	return b.String()
}

// renderSessions draws the session list, marking the active one.
func renderSessions(sessions []model.SessionInfo, active model.SessionID) string {
	if len(sessions) == 0 {
		return dimStyle.Render("暂无会话") + "\n"
	}
	var b strings.Builder
	for _, s := range sessions {
		marker := "  "
		if s.ID == active {
			marker = okStyle.Render("▸ ")
		}
		updated := time.Unix(s.UpdatedAt, 0).Format("01-02 15:04")
		fmt.Fprintf(&b, "%s%-6d %s  %s\n", marker, s.ID, s.Title, dimStyle.Render(updated))
	}
	return b.String()
}

// renderPreview draws the parsed rows of an import file.
func renderPreview(p *model.PreviewResult) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("共解析 %d 条记录", len(p.Entries))))
	b.WriteString("\n")

	unmatched := make(map[string]bool, len(p.UnmatchedMembers))
	for _, name := range p.UnmatchedMembers {
		unmatched[name] = true
	}
	for _, e := range p.Entries {
		name := e.Name
		if unmatched[name] {
			name = errorStyle.Render(name + "?")
		}
		content := e.Content
		if content == "" {
			content = dimStyle.Render("（空）")
		}
		fmt.Fprintf(&b, "%s  %s  %s\n", dimStyle.Render(e.Date), name, content)
	}

	if len(p.UnmatchedMembers) > 0 {
		b.WriteString(warnStyle.Render("未匹配的成员将被跳过：" + strings.Join(p.UnmatchedMembers, "、")))
		b.WriteString("\n")
	}
	return b.String()
}

// renderImportResult summarizes a confirmed import.
func renderImportResult(r *model.ConfirmResult) string {
	line := fmt.Sprintf("导入完成：新增 %d 条，合并 %d 条，跳过 %d 条（共 %d 条）", r.Imported, r.Merged, r.Skipped, r.Total)
	out := okStyle.Render(line) + "\n"
	if len(r.SkippedMembers) > 0 {
		out += warnStyle.Render("跳过的成员："+strings.Join(r.SkippedMembers, "、")) + "\n"
	}
	return out
}

func modeLabel(m model.Mode) string {
	switch m {
	case model.ModeReport:
		return "写日报"
	case model.ModeSupplement:
		return "补写日报"
	case model.ModeQuery:
		return "查询进度"
	case model.ModeSummary:
		return "生成周报"
	default:
		return "自由对话"
	}
}
