// Package chat orchestrates a conversation: it routes user input to the
// streaming or confirm path, folds stream events into the owning session
// and drives summary card actions.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/chatctx"
	"github.com/smart-daily/dailychat/internal/confirm"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/session"
	"github.com/smart-daily/dailychat/internal/sse"
	"github.com/smart-daily/dailychat/pkg/logger"
)

const (
	// DefaultSummaryText is sent when the input is empty in summary mode.
	DefaultSummaryText = "生成最近一周的周报"

	// SessionTitleLayout formats the title of a lazily created session.
	SessionTitleLayout = "01-02 15:04"

	dateLayout = "2006-01-02"
)

var (
	ErrEmptyInput   = errors.New("message is empty")
	ErrDateRequired = errors.New("supplement mode needs a date")
	ErrInvalidDate  = errors.New("date must be a past day formatted as YYYY-MM-DD")
	ErrCardNotFound = errors.New("summary card not found")
	ErrCardClosed   = errors.New("summary card is no longer open")
)

// Backend is the subset of the agent API the controller needs.
type Backend interface {
	session.Fetcher
	CreateSession(ctx context.Context, title string) (model.SessionInfo, error)
	ListSessions(ctx context.Context) ([]model.SessionInfo, error)
	DeleteSession(ctx context.Context, id model.SessionID) error
	Confirm(ctx context.Context, id model.SessionID, text string) (model.Message, error)
	Stream(ctx context.Context, req model.StreamRequest) (*sse.Subscription, error)
}

// EventFunc observes stream events of the session on display.
type EventFunc func(id model.SessionID, ev sse.Event)

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithEventObserver mirrors stream events of the displayed session to fn.
func WithEventObserver(fn EventFunc) Option {
	return func(c *Controller) { c.onEvent = fn }
}

// OnSessionCreated is called after a session is created lazily.
func OnSessionCreated(fn func(model.SessionInfo)) Option {
	return func(c *Controller) { c.onSessionCreated = fn }
}

// OnReportSubmitted is called after a report is confirmed.
func OnReportSubmitted(fn func()) Option {
	return func(c *Controller) { c.onReportSubmitted = fn }
}

// Controller is the conversation state of one signed-in user.
type Controller struct {
	backend Backend
	store   *session.Store
	log     *logger.Logger
	now     func() time.Time

	onEvent           EventFunc
	onSessionCreated  func(model.SessionInfo)
	onReportSubmitted func()

	mu      sync.Mutex
	mode    model.Mode
	date    string
	draft   string
	pending map[model.SessionID]int
}

// New creates a controller showing the welcome message for userName.
func New(backend Backend, userName string, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		log:     logger.OrNop(log).Named("chat"),
		now:     time.Now,
		pending: make(map[model.SessionID]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.store = session.NewStore(backend, func() model.Message {
		return WelcomeMessage(userName, c.now())
	}, c.log)
	return c
}

// WelcomeMessage is the greeting shown in a transient session.
func WelcomeMessage(userName string, at time.Time) model.Message {
	return model.Message{
		ID:        model.WelcomeID,
		Role:      model.RoleAssistant,
		Content:   fmt.Sprintf("你好，%s。我是你的 AI 日报助手。请选择下方的功能按钮。", userName),
		Type:      model.TypeText,
		Timestamp: at,
	}
}

// Store exposes the session store, mainly for display subscriptions.
func (c *Controller) Store() *session.Store {
	return c.store
}

// Messages returns the displayed message list.
func (c *Controller) Messages() []model.Message {
	return c.store.Messages()
}

// ActiveSession returns the session on display.
func (c *Controller) ActiveSession() model.SessionID {
	return c.store.Active()
}

// Mode returns the active mode.
func (c *Controller) Mode() model.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode changes the active mode. Leaving supplement mode clears the date.
func (c *Controller) SetMode(m model.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	if m != model.ModeSupplement {
		c.date = ""
	}
}

// ToggleMode activates m, or clears the mode when m is already active.
func (c *Controller) ToggleMode(m model.Mode) {
	if c.Mode() == m {
		m = model.ModeNone
	}
	c.SetMode(m)
}

// Date returns the selected supplement date.
func (c *Controller) Date() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date
}

// SetDate selects the day to supplement. It must lie before today. An empty
// date clears the selection.
func (c *Controller) SetDate(date string) error {
	if date != "" {
		d, err := time.ParseInLocation(dateLayout, date, time.Local)
		if err != nil {
			return ErrInvalidDate
		}
		y, m, day := c.now().Date()
		if !d.Before(time.Date(y, m, day, 0, 0, 0, 0, time.Local)) {
			return ErrInvalidDate
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.date = date
	return nil
}

// Draft returns the pending input text set by an edit action.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the pending input text.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// Busy reports whether a request for the displayed session is in flight.
func (c *Controller) Busy() bool {
	id := c.store.Active()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[id] > 0
}

// Send submits user input. Confirmation phrases go through the confirm
// path, everything else is streamed. It returns once the reply is complete.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	mode, date := c.mode, c.date
	c.mu.Unlock()

	if text == "" {
		if mode != model.ModeSummary {
			return ErrEmptyInput
		}
		text = DefaultSummaryText
	}

	isConfirm := confirm.IsConfirmation(text)
	if !isConfirm && mode == model.ModeSupplement && date == "" {
		return ErrDateRequired
	}
	sid := c.store.Active()

	if !isConfirm {
		c.store.Update(sid, func(msgs []model.Message) []model.Message {
			out, _ := confirm.AutoDismiss(msgs)
			return out
		})
	}

	sid = c.ensureSession(ctx, sid)
	log := c.log.WithSession(int64(sid))

	// Context is assembled from the list as it was before this turn.
	history := c.store.List(sid)

	userMsg := model.Message{
		ID:        uuid.NewString(),
		Role:      model.RoleUser,
		Content:   text,
		Type:      model.TypeText,
		Timestamp: c.now(),
	}
	if date != "" {
		userMsg.Metadata = &model.Metadata{SupplementDate: date}
	}
	c.store.Update(sid, func(msgs []model.Message) []model.Message {
		return append(withoutWelcome(msgs), userMsg)
	})
	c.SetDraft("")

	c.begin(sid)
	defer c.end(sid)

	if isConfirm {
		return c.sendConfirm(ctx, sid, text, log)
	}
	return c.stream(ctx, sid, text, history, chatctx.Options{Mode: mode, Date: date, SessionID: sid}, log)
}

// ensureSession creates a persisted session for a transient conversation.
// On failure the conversation continues unsaved.
func (c *Controller) ensureSession(ctx context.Context, sid model.SessionID) model.SessionID {
	if sid.Valid() {
		return sid
	}
	info, err := c.backend.CreateSession(ctx, c.now().Format(SessionTitleLayout))
	if err != nil {
		c.log.Warn("failed to create session, continuing unsaved", zap.Error(err))
		return sid
	}
	c.store.Adopt(info.ID)
	c.log.Info("created session", zap.Int64("session_id", int64(info.ID)), zap.String("title", info.Title))
	if c.onSessionCreated != nil {
		c.onSessionCreated(info)
	}
	return info.ID
}

func (c *Controller) sendConfirm(ctx context.Context, sid model.SessionID, text string, log *logger.Logger) error {
	reply, err := c.backend.Confirm(ctx, sid, text)
	if err != nil {
		log.Error("confirm failed", zap.Error(err))
		return err
	}
	reply.Timestamp = c.now()

	c.store.Update(sid, func(msgs []model.Message) []model.Message {
		return append(model.CloneMessages(msgs), reply)
	})
	c.store.Snapshot(sid)

	if c.store.IsActive(sid) {
		c.SetMode(model.ModeNone)
	}
	log.Info("report confirmed")
	if c.onReportSubmitted != nil {
		c.onReportSubmitted()
	}
	return nil
}

func (c *Controller) stream(ctx context.Context, sid model.SessionID, text string, history []model.Message, opts chatctx.Options, log *logger.Logger) error {
	streamID := uuid.NewString()
	c.store.Update(sid, func(msgs []model.Message) []model.Message {
		return append(model.CloneMessages(msgs), model.Message{
			ID:        streamID,
			Role:      model.RoleAssistant,
			Type:      model.TypeText,
			Timestamp: c.now(),
		})
	})

	req := chatctx.BuildStreamRequest(text, history, opts)
	start := c.now()

	sub, err := c.backend.Stream(ctx, req)
	if err != nil {
		log.Error("failed to open stream", zap.Error(err))
		c.store.Update(sid, func(msgs []model.Message) []model.Message {
			out, _ := removeEmpty(msgs, streamID)
			return out
		})
		c.store.Snapshot(sid)
		return err
	}
	defer sub.Close()

	var events int
	for ev := range sub.Events() {
		events++
		elapsed := c.now().Sub(start)
		visible := c.store.Update(sid, func(msgs []model.Message) []model.Message {
			out, _ := mapMessage(msgs, streamID, func(m model.Message) model.Message {
				return applyEvent(m, ev, elapsed)
			})
			return out
		})
		if visible && c.onEvent != nil {
			c.onEvent(sid, ev)
		}
	}

	c.store.Update(sid, func(msgs []model.Message) []model.Message {
		out, _ := mapMessage(msgs, streamID, finishThinking)
		return out
	})
	c.store.Snapshot(sid)

	if err := sub.Err(); err != nil {
		log.Error("stream interrupted", zap.Int("events", events), zap.Error(err))
		return err
	}
	log.Debug("stream complete",
		zap.Int("events", events),
		zap.Duration("elapsed", c.now().Sub(start)),
		zap.Bool("visible", c.store.IsActive(sid)),
	)
	return nil
}

func removeEmpty(msgs []model.Message, id string) ([]model.Message, bool) {
	for i, m := range msgs {
		if m.ID == id && m.Content == "" && m.Metadata == nil {
			out := make([]model.Message, 0, len(msgs)-1)
			out = append(out, msgs[:i]...)
			return append(out, msgs[i+1:]...), true
		}
	}
	return msgs, false
}

func (c *Controller) begin(sid model.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[sid]++
}

func (c *Controller) end(sid model.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[sid] <= 1 {
		delete(c.pending, sid)
		return
	}
	c.pending[sid]--
}

// SubmitCard confirms the open card msgID and sends the confirmation phrase.
func (c *Controller) SubmitCard(ctx context.Context, msgID string) error {
	if _, err := c.cardAction(msgID, confirm.Submit); err != nil {
		return err
	}
	return c.Send(ctx, confirm.ConfirmPhrase)
}

// DismissCard cancels the open card msgID. Nothing is sent.
func (c *Controller) DismissCard(msgID string) error {
	_, err := c.cardAction(msgID, confirm.Dismiss)
	return err
}

// EditCard closes the open card msgID, puts its summary into the draft and
// restores the mode it was produced in.
func (c *Controller) EditCard(msgID string) error {
	card, err := c.cardAction(msgID, confirm.Edit)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = card.Metadata.Summary
	if card.Metadata.SupplementDate != "" {
		c.mode = model.ModeSupplement
		c.date = card.Metadata.SupplementDate
	} else {
		c.mode = model.ModeReport
		c.date = ""
	}
	return nil
}

// LatestOpenCard returns the most recent open summary card on display.
func (c *Controller) LatestOpenCard() (model.Message, bool) {
	msgs := c.store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if confirm.StateOf(msgs[i]) == confirm.StateOpen {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}

func (c *Controller) cardAction(msgID string, action confirm.Action) (model.Message, error) {
	var (
		card    model.Message
		found   bool
		applied bool
	)
	c.store.Update(c.store.Active(), func(msgs []model.Message) []model.Message {
		out, ok := mapMessage(msgs, msgID, func(m model.Message) model.Message {
			updated, changed := confirm.Apply(m, action)
			card, applied = updated, changed
			return updated
		})
		found = ok
		return out
	})

	switch {
	case !found || confirm.StateOf(card) == confirm.StateNone:
		return model.Message{}, ErrCardNotFound
	case !applied:
		return model.Message{}, ErrCardClosed
	}
	c.store.Snapshot(c.store.Active())
	return card, nil
}

// SelectSession switches the display to id.
func (c *Controller) SelectSession(ctx context.Context, id model.SessionID) {
	c.store.Select(ctx, id)
}

// NewSession switches the display to a fresh transient session.
func (c *Controller) NewSession() {
	c.store.NewSession()
}

// ListSessions returns the user's persisted sessions.
func (c *Controller) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	return c.backend.ListSessions(ctx)
}

// DeleteSession deletes id on the agent and drops it locally.
func (c *Controller) DeleteSession(ctx context.Context, id model.SessionID) error {
	if err := c.backend.DeleteSession(ctx, id); err != nil {
		return err
	}
	c.store.Forget(id)
	return nil
}

// Wait blocks until background session fetches have finished.
func (c *Controller) Wait() {
	c.store.Wait()
}
