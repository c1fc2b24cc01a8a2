// Package auth holds the process-wide authentication context: the bearer
// credential and the signed-in user, initialised from a persistent Store
// and torn down on logout.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/pkg/logger"
)

// ErrAuthFailed is returned when the agent rejects a login.
var ErrAuthFailed = errors.New("authentication failed")

// AnonymousName is shown when nobody is signed in.
const AnonymousName = "未登录"

// Credentials is what a Store persists.
type Credentials struct {
	Token string     `yaml:"token"`
	User  model.User `yaml:"user"`
}

// Store persists credentials between runs.
type Store interface {
	Load() (Credentials, error)
	Save(Credentials) error
	Clear() error
}

// Context is the authentication state seen by the rest of the client.
type Context interface {
	Token() string
	User() model.User
	LoggedIn() bool
	SignIn(token string, user model.User) error
	Rotate(token string)
	Logout()
}

// Session is the Store-backed Context implementation.
type Session struct {
	mu       sync.RWMutex
	creds    Credentials
	store    Store
	logger   *logger.Logger
	onLogout []func()
}

// Init loads persisted credentials from store. A missing credential file is
// not an error; the session simply starts signed out.
func Init(store Store, log *logger.Logger) (*Session, error) {
	creds, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return &Session{
		creds:  creds,
		store:  store,
		logger: logger.OrNop(log),
	}, nil
}

// OnLogout registers a hook run after every logout, forced or explicit.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// Token returns the current bearer credential.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Token
}

// User returns the signed-in user, or an anonymous placeholder.
func (s *Session) User() model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.Token == "" {
		return model.User{Name: AnonymousName}
	}
	return s.creds.User
}

// LoggedIn reports whether a credential is present.
func (s *Session) LoggedIn() bool {
	return s.Token() != ""
}

// SignIn stores a fresh credential and user.
func (s *Session) SignIn(token string, user model.User) error {
	s.mu.Lock()
	s.creds = Credentials{Token: token, User: user}
	creds := s.creds
	s.mu.Unlock()

	if err := s.store.Save(creds); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	return nil
}

// Rotate replaces the credential with one issued by the agent.
func (s *Session) Rotate(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.creds.Token = token
	creds := s.creds
	s.mu.Unlock()

	if err := s.store.Save(creds); err != nil {
		s.logger.Warn("failed to persist rotated credential", zap.Error(err))
	}
}

// Logout clears the credential in memory and in the store.
func (s *Session) Logout() {
	s.mu.Lock()
	s.creds = Credentials{}
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		s.logger.Warn("failed to clear credentials", zap.Error(err))
	}
	for _, fn := range hooks {
		fn()
	}
}
