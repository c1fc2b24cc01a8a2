package service

import (
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/store"
	"github.com/smart-daily/dailychat/pkg/logger"
	"github.com/smart-daily/dailychat/pkg/metrics"
)

var (
	// ErrTokenExpired is returned for unknown, consumed or expired import tokens.
	ErrTokenExpired = errors.New("预览已过期，请重新上传")

	// ErrEmptyImport is returned when a file holds no data rows.
	ErrEmptyImport = errors.New("文件中没有可导入的记录")
)

// Member is a team member import rows are matched against.
type Member struct {
	ID   int
	Name string
}

type preview struct {
	entries []model.PreviewEntry
	expires time.Time
}

// ImportService implements the two-phase bulk import.
type ImportService struct {
	store     *store.Store
	members   []Member
	ttl       time.Duration
	publisher Publisher
	logger    *logger.Logger
	now       func() time.Time

	previews sync.Map // token -> preview
}

// NewImportService creates an import service whose preview tokens live for
// ttl. publisher may be nil.
func NewImportService(st *store.Store, members []Member, ttl time.Duration, publisher Publisher, log *logger.Logger) *ImportService {
	return &ImportService{
		store:     st,
		members:   members,
		ttl:       ttl,
		publisher: publisher,
		logger:    logger.OrNop(log).Named("imports"),
		now:       time.Now,
	}
}

// Preview parses a CSV file of date,name,content rows. A header row is
// optional. The parsed rows are held under the returned token until
// Confirm or expiry.
func (s *ImportService) Preview(ctx context.Context, r io.Reader) (*model.PreviewResult, error) {
	entries, err := parseRows(r)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptyImport
	}

	seen := make(map[string]bool)
	unmatched := []string{}
	for _, e := range entries {
		// Empty rows are skipped on confirm, so their names are not reported.
		if e.Name == "" || strings.TrimSpace(e.Content) == "" || seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		if _, ok := s.matchMember(e.Name); !ok {
			unmatched = append(unmatched, e.Name)
		}
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	s.previews.Store(token, preview{entries: entries, expires: s.now().Add(s.ttl)})
	metrics.ImportPreviewsActive.Inc()

	s.logger.Info("import preview created",
		zap.Int("rows", len(entries)),
		zap.Int("unmatched", len(unmatched)),
	)

	return &model.PreviewResult{
		Token:            token,
		Entries:          entries,
		UnmatchedMembers: unmatched,
	}, nil
}

// Confirm consumes token and writes its rows. Rows with empty content or an
// unknown member are skipped.
func (s *ImportService) Confirm(ctx context.Context, token string) (*model.ConfirmResult, error) {
	v, ok := s.previews.LoadAndDelete(token)
	if !ok {
		return nil, ErrTokenExpired
	}
	metrics.ImportPreviewsActive.Dec()
	p := v.(preview)
	if s.now().After(p.expires) {
		return nil, ErrTokenExpired
	}

	result := &model.ConfirmResult{SkippedMembers: []string{}, Total: len(p.entries)}
	skippedSeen := make(map[string]bool)

	var rows []store.Entry
	for _, e := range p.entries {
		if strings.TrimSpace(e.Content) == "" {
			result.Skipped++
			continue
		}
		m, ok := s.matchMember(e.Name)
		if !ok {
			result.Skipped++
			if !skippedSeen[e.Name] {
				skippedSeen[e.Name] = true
				result.SkippedMembers = append(result.SkippedMembers, e.Name)
			}
			continue
		}
		rows = append(rows, store.Entry{
			MemberID: m.ID,
			Date:     e.Date,
			Content:  e.Content,
			Source:   store.SourceImport,
		})
	}

	imported, merged, err := s.store.ReplaceImported(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to write imported entries: %w", err)
	}
	result.Imported = imported
	result.Merged = merged
	metrics.DailyEntriesTotal.WithLabelValues(store.SourceImport).Add(float64(imported + merged))

	s.logger.Info("import confirmed",
		zap.Int("imported", imported),
		zap.Int("merged", merged),
		zap.Int("skipped", result.Skipped),
	)

	if s.publisher != nil {
		for _, e := range rows {
			if err := s.publisher.PublishEntry(ctx, e); err != nil {
				s.logger.Warn("failed to publish imported entry", zap.Error(err))
			}
		}
	}
	return result, nil
}

// StartSweeper removes expired previews every interval until ctx is done.
func (s *ImportService) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.logger.Debug("expired import previews removed", zap.Int("count", n))
				}
			}
		}
	}()
}

// Sweep removes expired previews and returns how many were removed.
func (s *ImportService) Sweep() int {
	now := s.now()
	removed := 0
	s.previews.Range(func(k, v interface{}) bool {
		if now.After(v.(preview).expires) {
			if _, ok := s.previews.LoadAndDelete(k); ok {
				metrics.ImportPreviewsActive.Dec()
				removed++
			}
		}
		return true
	})
	return removed
}

// matchMember finds the member for a row name: an exact match first, then a
// name containing or contained in the row name.
func (s *ImportService) matchMember(name string) (Member, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Member{}, false
	}
	for _, m := range s.members {
		if m.Name == name {
			return m, true
		}
	}
	for _, m := range s.members {
		if m.Name != "" && (strings.Contains(m.Name, name) || strings.Contains(name, m.Name)) {
			return m, true
		}
	}
	return Member{}, false
}

func parseRows(r io.Reader) ([]model.PreviewEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("文件格式错误: %w", err)
	}

	entries := []model.PreviewEntry{}
	for i, rec := range records {
		if i == 0 && isHeader(rec) {
			continue
		}
		if len(rec) < 2 {
			continue
		}
		e := model.PreviewEntry{
			Date: strings.TrimSpace(strings.TrimPrefix(rec[0], "\uFEFF")),
			Name: strings.TrimSpace(rec[1]),
		}
		if len(rec) > 2 {
			e.Content = strings.TrimSpace(strings.Join(rec[2:], ","))
		}
		if e.Date == "" && e.Name == "" && e.Content == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(rec[0], "\uFEFF"))) {
	case "date", "日期":
		return true
	}
	return false
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
