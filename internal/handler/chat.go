package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/confirm"
	"github.com/smart-daily/dailychat/internal/middleware"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/service"
	"github.com/smart-daily/dailychat/internal/sse"
	"github.com/smart-daily/dailychat/pkg/logger"
	"github.com/smart-daily/dailychat/pkg/metrics"
)

// Fixed replies of the chat endpoints.
const (
	GuidanceReply = "我可以帮您记录日报、查询团队进度或生成总结。请选择下方的功能按钮。"
	FailureReply  = "抱歉，生成失败，请稍后重试。"
)

// ChatHandler handles the chat endpoints.
type ChatHandler struct {
	reports    *service.ReportService
	sessions   *service.SessionService
	summarizer service.Summarizer
	exportDir  string
	logger     *logger.Logger
	now        func() time.Time
}

// NewChatHandler creates a new chat handler. Weekly summaries are written
// to exportDir.
func NewChatHandler(
	reports *service.ReportService,
	sessions *service.SessionService,
	summarizer service.Summarizer,
	exportDir string,
	log *logger.Logger,
) *ChatHandler {
	return &ChatHandler{
		reports:    reports,
		sessions:   sessions,
		summarizer: summarizer,
		exportDir:  exportDir,
		logger:     logger.OrNop(log).Named("chat"),
		now:        time.Now,
	}
}

// Confirm handles POST /api/chat
// The only supported action commits the pending report.
func (h *ChatHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := middleware.GetUserID(ctx)

	var req model.ConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action != model.ActionConfirm {
		writeError(w, http.StatusBadRequest, "unsupported action")
		return
	}

	reply, err := h.reports.Confirm(ctx, uid)
	if err != nil {
		h.logger.Error("failed to commit report", zap.Int("user_id", uid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "提交失败")
		return
	}

	sid := model.SessionFromPtr(req.SessionID)
	if sid.Valid() && reply == service.ReplySubmitted {
		if err := h.sessions.MarkConfirmed(ctx, uid, sid); err != nil {
			h.logger.WithSession(int64(sid)).Warn("failed to mark card confirmed", zap.Error(err))
		}
	}
	said := strings.TrimSpace(req.Text)
	if said == "" {
		said = confirm.ConfirmPhrase
	}
	h.record(ctx, uid, sid, service.Turn{
		User:      said,
		Assistant: reply,
		Metadata:  &model.Metadata{Type: string(model.TypeText)},
	})

	writeJSON(w, http.StatusOK, model.ChatResponse{
		Content: reply,
		Type:    model.TypeText,
	})
}

// Stream handles POST /api/chat/stream
// Every accepted request is answered with an event stream ending in done.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := middleware.GetUserID(ctx)

	var req model.StreamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMode(req.Mode); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	switch req.Mode {
	case model.ModeReport, model.ModeQuery:
		if err := middleware.ValidateText(req.Text); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	case model.ModeSupplement:
		if err := middleware.ValidateText(req.Text); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := middleware.ValidateSupplementDate(req.Date, h.now()); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sid := model.SessionFromPtr(req.SessionID)
	if sid.Valid() {
		if err := h.sessions.Owns(ctx, uid, sid); err != nil {
			if errors.Is(err, service.ErrSessionNotFound) {
				writeError(w, http.StatusNotFound, "会话不存在")
				return
			}
			h.logger.Error("failed to check session", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "请求失败")
			return
		}
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), uid).
		WithSession(int64(sid)).
		With(zap.String("mode", string(req.Mode)))

	var (
		reply string
		md    *model.Metadata
	)
	switch req.Mode {
	case model.ModeReport, model.ModeSupplement:
		reply, md, err = h.report(ctx, stream, uid, req)
	case model.ModeQuery:
		reply, md, err = h.query(ctx, stream, req.Text)
	case model.ModeSummary:
		reply, md, err = h.weekly(ctx, stream, uid, middleware.GetUserName(ctx))
	default:
		reply = GuidanceReply
		err = stream.Token(reply)
	}

	if err != nil {
		if ctx.Err() != nil {
			log.Info("client disconnected during stream")
			return
		}
		log.Error("stream failed", zap.Error(err))
		stream.Token(FailureReply)
		stream.Done()
		return
	}

	// The turn is stored before done so a client reacting to done sees it.
	turn := service.Turn{User: req.Text, Assistant: reply, Metadata: md}
	if req.Mode == model.ModeSupplement {
		turn.UserDate = req.Date
	}
	h.record(ctx, uid, sid, turn)

	if err := stream.Done(); err != nil {
		log.Debug("failed to write done frame", zap.Error(err))
	}
}

// report summarizes a work description and leaves it pending confirmation.
func (h *ChatHandler) report(ctx context.Context, stream *sse.Writer, uid int, req model.StreamRequest) (string, *model.Metadata, error) {
	summary, err := h.summarizer.Summarize(ctx, req.Text, stream.Token)
	if err != nil {
		return "", nil, err
	}

	md := &model.Metadata{
		Type:    string(model.TypeSummaryConfirm),
		Summary: summary,
		Risks:   service.DetectRisks(req.Text),
		Mode:    string(req.Mode),
	}
	pending := service.Pending{Content: req.Text, Summary: summary, Risks: md.Risks}
	if req.Mode == model.ModeSupplement {
		md.IsSupplement = true
		md.SupplementDate = req.Date
		pending.Date = req.Date
	}
	h.reports.Remember(uid, pending)

	if err := stream.Event(sse.KindResult, md); err != nil {
		return "", nil, err
	}
	return confirm.PromptText, md, nil
}

// query answers a question from stored entries, reporting progress as
// thinking steps.
func (h *ChatHandler) query(ctx context.Context, stream *sse.Writer, question string) (string, *model.Metadata, error) {
	steps := []string{"正在检索团队日报记录"}
	if err := stream.Thinking(steps[0]); err != nil {
		return "", nil, err
	}

	entries, err := h.reports.Search(ctx, question)
	if err != nil {
		return "", nil, fmt.Errorf("failed to search entries: %w", err)
	}

	steps = append(steps, fmt.Sprintf("找到 %d 条相关记录，正在整理回答", len(entries)))
	if err := stream.Thinking(steps[1]); err != nil {
		return "", nil, err
	}

	answer, err := h.summarizer.Answer(ctx, question, entries, stream.Token)
	if err != nil {
		return "", nil, err
	}
	return answer, &model.Metadata{ThinkingSteps: steps, ThinkingDone: true}, nil
}

// weekly writes the last seven days of the user's entries as a markdown
// weekly report and offers it for download.
func (h *ChatHandler) weekly(ctx context.Context, stream *sse.Writer, uid int, name string) (string, *model.Metadata, error) {
	entries, err := h.reports.WeekEntries(ctx, uid)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load week entries: %w", err)
	}

	text, err := h.summarizer.WeeklySummary(ctx, name, entries, stream.Token)
	if err != nil {
		return "", nil, err
	}

	filename := WeeklyFilename(name, h.now())
	if err := os.MkdirAll(h.exportDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(h.exportDir, filename), []byte(text), 0o644); err != nil {
		return "", nil, fmt.Errorf("failed to write weekly report: %w", err)
	}

	md := &model.Metadata{
		DownloadURL:   "/api/files/" + filename,
		DownloadTitle: filename,
	}
	if err := stream.Event(sse.KindMeta, md); err != nil {
		return "", nil, err
	}
	return text, md, nil
}

// record appends a finished exchange to the session. Recording outlives
// a client disconnect.
func (h *ChatHandler) record(ctx context.Context, uid int, sid model.SessionID, t service.Turn) {
	if !sid.Valid() {
		return
	}
	if err := h.sessions.RecordTurn(context.WithoutCancel(ctx), uid, sid, t); err != nil {
		h.logger.WithSession(int64(sid)).Warn("failed to record turn", zap.Error(err))
	}
}

// WeeklyFilename names the exported weekly report of name generated at t.
func WeeklyFilename(name string, t time.Time) string {
	name = strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(name)
	if name == "" {
		name = "成员"
	}
	return fmt.Sprintf("周报_%s_%s.md", name, t.Format("20060102"))
}
