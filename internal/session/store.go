// Package session keeps per-session message lists and arbitrates which
// session currently owns the display.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/pkg/logger"
	"github.com/smart-daily/dailychat/pkg/metrics"
)

// Fetcher loads the authoritative message list of a persisted session.
type Fetcher interface {
	LoadMessages(ctx context.Context, id model.SessionID) ([]model.Message, error)
}

// DisplayFunc is notified with the displayed list whenever it changes.
type DisplayFunc func(id model.SessionID, msgs []model.Message)

// Store holds the displayed message list of the active session and a cache
// of last-known lists for every other session. All list mutations are whole
// list replacements, so a list handed out by Messages is never modified
// afterwards.
type Store struct {
	mu      sync.Mutex
	active  model.SessionID
	display []model.Message
	cache   map[model.SessionID][]model.Message

	fetcher   Fetcher
	welcome   func() model.Message
	onDisplay DisplayFunc
	log       *logger.Logger

	fetches sync.WaitGroup
}

// NewStore creates a store showing the welcome message of a transient session.
func NewStore(fetcher Fetcher, welcome func() model.Message, log *logger.Logger) *Store {
	s := &Store{
		cache:   make(map[model.SessionID][]model.Message),
		fetcher: fetcher,
		welcome: welcome,
		log:     logger.OrNop(log).Named("session"),
	}
	s.display = s.welcomeList()
	return s
}

// OnDisplay registers fn to be called after every change of the displayed
// list. It is called without the store lock held.
func (s *Store) OnDisplay(fn DisplayFunc) {
	s.mu.Lock()
	s.onDisplay = fn
	s.mu.Unlock()
}

// Active returns the id of the session that owns the display.
func (s *Store) Active() model.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsActive reports whether id currently owns the display.
func (s *Store) IsActive(id model.SessionID) bool {
	return s.Active() == id
}

// Messages returns the displayed list.
func (s *Store) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

// List returns the current list of id: the displayed list when id is
// active, its cache entry otherwise.
func (s *Store) List(id model.SessionID) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == id {
		return s.display
	}
	return s.cache[id]
}

// Cached returns the cached list of id.
func (s *Store) Cached(id model.SessionID) ([]model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.cache[id]
	return msgs, ok
}

// Select makes id the active session. The outgoing list is snapshotted into
// the cache first. A non-empty cache entry for id is displayed immediately,
// and a background fetch replaces it when the fetched list is at least as
// long as the local one at the time the fetch completes.
func (s *Store) Select(ctx context.Context, id model.SessionID) {
	s.mu.Lock()
	s.snapshotLocked()
	s.active = id

	if !id.Valid() {
		s.display = s.welcomeList()
		s.notifyLocked()
		return
	}

	cached := s.cache[id]
	hit := len(cached) > 0
	if hit {
		s.display = cached
	} else {
		// Nothing known locally yet; the fetch fills the list.
		s.display = nil
	}
	s.notifyLocked()
	metrics.RecordCacheLookup(hit)

	s.fetches.Add(1)
	go s.fetch(ctx, id)
}

// NewSession clears the display to the welcome message of a transient
// session.
func (s *Store) NewSession() {
	s.mu.Lock()
	s.snapshotLocked()
	s.active = model.NoSession
	s.display = s.welcomeList()
	s.notifyLocked()
}

// Adopt gives the transient session its persisted id. The displayed list is
// kept.
func (s *Store) Adopt(id model.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == model.NoSession {
		s.active = id
	}
}

// Update replaces the list of session id with fn applied to it. The
// displayed list is used when id is active, the cached list otherwise. It
// reports whether the change was visible.
func (s *Store) Update(id model.SessionID, fn func([]model.Message) []model.Message) bool {
	s.mu.Lock()
	if s.active == id {
		s.display = fn(s.display)
		s.notifyLocked()
		return true
	}
	s.cache[id] = fn(s.cache[id])
	s.mu.Unlock()
	return false
}

// Snapshot copies the current list of id into the cache.
func (s *Store) Snapshot(id model.SessionID) {
	if !id.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == id {
		s.cache[id] = s.display
	}
}

// Forget drops id from the cache. If id is active the store moves to a new
// transient session.
func (s *Store) Forget(id model.SessionID) {
	s.mu.Lock()
	delete(s.cache, id)
	if s.active != id {
		s.mu.Unlock()
		return
	}
	s.active = model.NoSession
	s.display = s.welcomeList()
	s.notifyLocked()
}

// Wait blocks until all background fetches have finished.
func (s *Store) Wait() {
	s.fetches.Wait()
}

func (s *Store) fetch(ctx context.Context, id model.SessionID) {
	defer s.fetches.Done()
	log := s.log.WithSession(int64(id))

	msgs, err := s.fetcher.LoadMessages(ctx, id)
	if err != nil {
		log.Warn("failed to load session messages", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.active != id || len(msgs) == 0 {
		s.mu.Unlock()
		return
	}
	local := len(s.cache[id])
	if n := len(s.display); n > local {
		local = n
	}
	if len(msgs) < local {
		s.mu.Unlock()
		metrics.SessionFetchesDiscarded.Inc()
		log.Debug("discarded stale session fetch",
			zap.Int("fetched", len(msgs)),
			zap.Int("local", local),
		)
		return
	}
	msgs = keepClosedCards(msgs, s.display)
	s.display = msgs
	s.cache[id] = msgs
	s.notifyLocked()
}

// keepClosedCards carries terminal card flags from the local list onto the
// fetched one. Card actions are local, so a fetched card that is still open
// must not reopen a card the user already closed. Cards are matched by id,
// then by position.
func keepClosedCards(fetched, local []model.Message) []model.Message {
	closed := make(map[string]*model.Metadata)
	for _, m := range local {
		if m.IsSummaryCard() && m.Metadata.Terminal() {
			closed[m.ID] = m.Metadata
		}
	}
	if len(closed) == 0 {
		return fetched
	}

	out := model.CloneMessages(fetched)
	for i, m := range out {
		if !m.IsSummaryCard() || m.Metadata.Terminal() {
			continue
		}
		src, ok := closed[m.ID]
		if !ok && i < len(local) && local[i].IsSummaryCard() && local[i].Metadata.Terminal() {
			src, ok = local[i].Metadata, true
		}
		if !ok {
			continue
		}
		out[i] = m.WithMetadata(func(md *model.Metadata) {
			md.Confirmed = src.Confirmed
			md.Dismissed = src.Dismissed
			md.Edited = src.Edited
		})
	}
	return out
}

// snapshotLocked caches the displayed list under the active id. The
// transient session is never cached.
func (s *Store) snapshotLocked() {
	if s.active.Valid() {
		s.cache[s.active] = s.display
	}
}

// notifyLocked releases the lock and reports the displayed list.
func (s *Store) notifyLocked() {
	fn, id, msgs := s.onDisplay, s.active, s.display
	s.mu.Unlock()
	if fn != nil {
		fn(id, msgs)
	}
}

func (s *Store) welcomeList() []model.Message {
	if s.welcome == nil {
		return nil
	}
	return []model.Message{s.welcome()}
}
