// Package service provides the business logic of the reference agent.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/llm"
	"github.com/smart-daily/dailychat/internal/store"
	"github.com/smart-daily/dailychat/pkg/logger"
	"github.com/smart-daily/dailychat/pkg/metrics"
)

// FlushFunc receives generated text as it is produced.
type FlushFunc func(token string) error

// Summarizer produces the generated text of the agent's chat modes.
type Summarizer interface {
	// Summarize condenses a work description into bullet points.
	Summarize(ctx context.Context, text string, flush FlushFunc) (string, error)

	// WeeklySummary writes a markdown weekly report from a member's entries.
	WeeklySummary(ctx context.Context, name string, entries []store.Entry, flush FlushFunc) (string, error)

	// Answer answers a question about the team from stored entries.
	Answer(ctx context.Context, question string, entries []store.Entry, flush FlushFunc) (string, error)
}

const (
	summarizePrompt = "你是日报助手。把用户的工作描述整理成简洁的要点列表，每行以“• ”开头，不要添加额外说明。"
	weeklyPrompt    = "你是日报助手。根据成员一周的日报记录撰写 Markdown 周报，包含本周完成、风险与问题、下周计划三个小节。"
	answerPrompt    = "你是团队进度助手。只根据提供的日报记录回答问题，记录中没有的信息请直接说明。"
)

// LLMSummarizer generates text with a streaming LLM provider.
type LLMSummarizer struct {
	client llm.Client
	model  string
	logger *logger.Logger
}

// NewLLMSummarizer creates a summarizer backed by client. An empty model
// uses the provider default.
func NewLLMSummarizer(client llm.Client, model string, log *logger.Logger) *LLMSummarizer {
	return &LLMSummarizer{
		client: client,
		model:  model,
		logger: logger.OrNop(log).Named("summarizer"),
	}
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, text string, flush FlushFunc) (string, error) {
	return s.stream(ctx, summarizePrompt, text, flush)
}

// WeeklySummary implements Summarizer.
func (s *LLMSummarizer) WeeklySummary(ctx context.Context, name string, entries []store.Entry, flush FlushFunc) (string, error) {
	prompt := fmt.Sprintf("成员：%s\n\n日报记录：\n%s", name, formatEntries(entries))
	return s.stream(ctx, weeklyPrompt, prompt, flush)
}

// Answer implements Summarizer.
func (s *LLMSummarizer) Answer(ctx context.Context, question string, entries []store.Entry, flush FlushFunc) (string, error) {
	prompt := fmt.Sprintf("日报记录：\n%s\n\n问题：%s", formatEntries(entries), question)
	return s.stream(ctx, answerPrompt, prompt, flush)
}

func (s *LLMSummarizer) stream(ctx context.Context, system, prompt string, flush FlushFunc) (string, error) {
	start := time.Now()
	res, err := s.client.Stream(ctx, llm.Prompt(s.model, system, prompt), llm.TokenFunc(flush))
	if err != nil {
		metrics.RecordLLMStream(s.modelLabel(), "error", time.Since(start).Seconds(), 0, 0)
		s.logger.Error("LLM stream failed", zap.String("provider", s.client.Name()), zap.Error(err))
		return "", fmt.Errorf("LLM stream failed: %w", err)
	}

	metrics.RecordLLMStream(res.Model, "success", res.Latency.Seconds(), res.TokensIn, res.TokensOut)
	return res.Text, nil
}

func (s *LLMSummarizer) modelLabel() string {
	if s.model != "" {
		return s.model
	}
	return s.client.Name()
}

// RuleSummarizer generates text without a model. It is used when no LLM
// key is configured and in tests.
type RuleSummarizer struct {
	// ChunkRunes is the size of each flushed token. Zero means 4.
	ChunkRunes int
}

// Summarize implements Summarizer.
func (s RuleSummarizer) Summarize(_ context.Context, text string, flush FlushFunc) (string, error) {
	var b strings.Builder
	for _, item := range splitItems(text) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• ")
		b.WriteString(item)
	}
	return b.String(), s.emit(b.String(), flush)
}

// WeeklySummary implements Summarizer.
func (s RuleSummarizer) WeeklySummary(_ context.Context, name string, entries []store.Entry, flush FlushFunc) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s 的周报\n\n## 本周完成\n", name)
	if len(entries) == 0 {
		b.WriteString("\n本周暂无日报记录。\n")
	}

	var risks []string
	lastDate := ""
	for _, e := range entries {
		if e.Date != lastDate {
			fmt.Fprintf(&b, "\n### %s\n", e.Date)
			lastDate = e.Date
		}
		b.WriteString(entrySummary(e))
		b.WriteString("\n")
		if e.Risk != "" {
			risks = append(risks, e.Risk)
		}
	}

	b.WriteString("\n## 风险与问题\n\n")
	if len(risks) == 0 {
		b.WriteString("无\n")
	}
	for _, r := range risks {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return b.String(), s.emit(b.String(), flush)
}

// Answer implements Summarizer.
func (s RuleSummarizer) Answer(_ context.Context, _ string, entries []store.Entry, flush FlushFunc) (string, error) {
	if len(entries) == 0 {
		const none = "暂无相关的日报记录。"
		return none, s.emit(none, flush)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "找到 %d 条相关记录：\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s（成员 %d）\n%s\n", e.Date, e.MemberID, entrySummary(e))
	}
	return b.String(), s.emit(b.String(), flush)
}

func (s RuleSummarizer) emit(text string, flush FlushFunc) error {
	size := s.ChunkRunes
	if size <= 0 {
		size = 4
	}
	for len(text) > 0 {
		end, n := 0, 0
		for end < len(text) && n < size {
			_, w := utf8.DecodeRuneInString(text[end:])
			end += w
			n++
		}
		if err := flush(text[:end]); err != nil {
			return err
		}
		text = text[end:]
	}
	return nil
}

// splitItems breaks a work description into trimmed items on line breaks
// and sentence punctuation.
func splitItems(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '\n', '\r', '。', '；', ';':
			return true
		}
		return false
	})

	items := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(f), "-•*·"))
		if f != "" {
			items = append(items, f)
		}
	}
	return items
}

func entrySummary(e store.Entry) string {
	if e.Summary != "" {
		return e.Summary
	}
	return "• " + e.Content
}

func formatEntries(entries []store.Entry) string {
	if len(entries) == 0 {
		return "（无记录）"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] 成员 %d：%s\n", e.Date, e.MemberID, e.Content)
	}
	return b.String()
}
