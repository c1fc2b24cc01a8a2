package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/store"
	"github.com/smart-daily/dailychat/pkg/logger"
)

// DefaultSessionTitle names sessions created without a title.
const DefaultSessionTitle = "新对话"

// ErrSessionNotFound is returned for unknown or foreign sessions.
var ErrSessionNotFound = errors.New("session not found")

// SessionService handles chat session operations.
type SessionService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(st *store.Store, log *logger.Logger) *SessionService {
	return &SessionService{
		store:  st,
		logger: logger.OrNop(log).Named("sessions"),
	}
}

// Create creates a session for uid.
func (s *SessionService) Create(ctx context.Context, uid int, title string) (model.SessionInfo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultSessionTitle
	}
	info, err := s.store.CreateSession(ctx, uid, title)
	if err != nil {
		return model.SessionInfo{}, fmt.Errorf("failed to create session: %w", err)
	}
	return info, nil
}

// List returns the sessions of uid, most recently updated first.
func (s *SessionService) List(ctx context.Context, uid int) ([]model.SessionInfo, error) {
	return s.store.ListSessions(ctx, uid)
}

// Delete removes a session of uid with its messages.
func (s *SessionService) Delete(ctx context.Context, uid int, id model.SessionID) error {
	return notFound(s.store.DeleteSession(ctx, uid, id))
}

// Messages returns the stored rows of a session of uid.
func (s *SessionService) Messages(ctx context.Context, uid int, id model.SessionID) ([]model.MessageRow, error) {
	rows, err := s.store.Messages(ctx, uid, id)
	return rows, notFound(err)
}

// Owns returns ErrSessionNotFound unless id is a session of uid.
func (s *SessionService) Owns(ctx context.Context, uid int, id model.SessionID) error {
	owned, err := s.store.OwnsSession(ctx, uid, id)
	if err != nil {
		return err
	}
	if !owned {
		return ErrSessionNotFound
	}
	return nil
}

// Turn is one exchange to record in a session.
type Turn struct {
	User      string
	UserDate  string
	Assistant string
	Metadata  *model.Metadata
}

// RecordTurn appends the user and assistant messages of t to a session of
// uid. The assistant metadata is stored as the row config.
func (s *SessionService) RecordTurn(ctx context.Context, uid int, id model.SessionID, t Turn) error {
	if err := s.Owns(ctx, uid, id); err != nil {
		return err
	}

	var err error
	userConfig := ""
	if t.UserDate != "" {
		userConfig, err = encodeConfig(&model.Metadata{SupplementDate: t.UserDate})
		if err != nil {
			return err
		}
	}
	if err := s.store.AppendMessage(ctx, id, string(model.RoleUser), t.User, userConfig); err != nil {
		return err
	}

	assistantConfig, err := encodeConfig(t.Metadata)
	if err != nil {
		return err
	}
	return s.store.AppendMessage(ctx, id, string(model.RoleAssistant), t.Assistant, assistantConfig)
}

// MarkConfirmed flags the newest assistant message of the session as a
// confirmed card, when it is an unconfirmed card.
func (s *SessionService) MarkConfirmed(ctx context.Context, uid int, id model.SessionID) error {
	if err := s.Owns(ctx, uid, id); err != nil {
		return err
	}
	row, err := s.store.LastMessage(ctx, id, string(model.RoleAssistant))
	if err != nil {
		return notFound(err)
	}

	md := &model.Metadata{}
	if row.Config == "" || json.Unmarshal([]byte(row.Config), md) != nil {
		return nil
	}
	if md.Type != string(model.TypeSummaryConfirm) || md.Terminal() {
		return nil
	}
	md.Confirmed = true

	config, err := encodeConfig(md)
	if err != nil {
		return err
	}
	return s.store.SetMessageConfig(ctx, row.ID, config)
}

func encodeConfig(md *model.Metadata) (string, error) {
	if md == nil {
		return "", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("failed to encode message config: %w", err)
	}
	return string(b), nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}
