package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/store"
	"github.com/smart-daily/dailychat/pkg/logger"
	"github.com/smart-daily/dailychat/pkg/metrics"
)

// Replies of the confirm action.
const (
	ReplySubmitted = "日报已提交成功！"
	ReplyNoPending = "没有待确认的日报，请先输入工作内容。"
)

const (
	dateLayout  = "2006-01-02"
	searchLimit = 20
)

// Publisher announces committed entries.
type Publisher interface {
	PublishEntry(ctx context.Context, e store.Entry) error
}

// Pending is a summarized report awaiting the user's confirmation.
type Pending struct {
	Content string
	Summary string
	Risks   []string
	// Date is the supplemented day; empty means the day of confirmation.
	Date string
}

// ReportService manages pending reports and committed daily entries.
type ReportService struct {
	store     *store.Store
	publisher Publisher
	logger    *logger.Logger
	now       func() time.Time

	// pending maps user id to its latest unconfirmed Pending.
	pending sync.Map
}

// NewReportService creates a report service. publisher may be nil.
func NewReportService(st *store.Store, publisher Publisher, log *logger.Logger) *ReportService {
	return &ReportService{
		store:     st,
		publisher: publisher,
		logger:    logger.OrNop(log).Named("reports"),
		now:       time.Now,
	}
}

// Remember replaces the pending report of uid.
func (s *ReportService) Remember(uid int, p Pending) {
	s.pending.Store(uid, p)
}

// HasPending reports whether uid has a report awaiting confirmation.
func (s *ReportService) HasPending(uid int) bool {
	_, ok := s.pending.Load(uid)
	return ok
}

// Confirm commits the pending report of uid and returns the reply text.
// Without a pending report the reply says so and nothing is written.
func (s *ReportService) Confirm(ctx context.Context, uid int) (string, error) {
	v, ok := s.pending.LoadAndDelete(uid)
	if !ok {
		return ReplyNoPending, nil
	}
	p := v.(Pending)

	entry := store.Entry{
		MemberID: uid,
		Date:     p.Date,
		Content:  p.Content,
		Summary:  p.Summary,
		Risk:     strings.Join(p.Risks, "；"),
		Source:   store.SourceChat,
	}
	if entry.Date == "" {
		entry.Date = s.now().Format(dateLayout)
	}

	id, err := s.store.SaveEntry(ctx, entry)
	if err != nil {
		// Keep the report so the user can retry.
		s.pending.LoadOrStore(uid, p)
		return "", fmt.Errorf("failed to save entry: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = s.now()
	metrics.DailyEntriesTotal.WithLabelValues(store.SourceChat).Inc()

	s.logger.Info("daily entry committed",
		zap.Int("member_id", uid),
		zap.String("date", entry.Date),
		zap.Int64("entry_id", id),
	)
	s.publish(ctx, entry)

	return ReplySubmitted, nil
}

// WeekEntries returns the entries of uid from the last seven days.
func (s *ReportService) WeekEntries(ctx context.Context, uid int) ([]store.Entry, error) {
	since := s.now().AddDate(0, 0, -6).Format(dateLayout)
	return s.store.MemberEntriesSince(ctx, uid, since)
}

// Search returns entries relevant to question. When no entry contains the
// question verbatim the most recent entries are returned.
func (s *ReportService) Search(ctx context.Context, question string) ([]store.Entry, error) {
	entries, err := s.store.SearchEntries(ctx, strings.TrimSpace(question), searchLimit)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}
	return s.store.SearchEntries(ctx, "", searchLimit)
}

func (s *ReportService) publish(ctx context.Context, entries ...store.Entry) {
	if s.publisher == nil {
		return
	}
	for _, e := range entries {
		if err := s.publisher.PublishEntry(ctx, e); err != nil {
			s.logger.Warn("failed to publish entry",
				zap.Int("member_id", e.MemberID),
				zap.String("date", e.Date),
				zap.Error(err),
			)
		}
	}
}
