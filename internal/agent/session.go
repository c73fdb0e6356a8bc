package agent

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"coursebot/internal/domain"
	"coursebot/internal/metrics"
)

// SessionManager keeps a bounded, in-memory history per session. Each
// session has its own mutex, so appends to one session are serialized while
// different sessions never wait on each other. The map lock is held only to
// look up or create a session.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*session
	maxTurns int
	logger   *slog.Logger
}

type session struct {
	mu      sync.Mutex
	id      string
	title   string
	turns   []domain.ConversationTurn
	ordinal int // last ordinal handed out
	updated time.Time
}

// SessionInfo summarizes one session for listings.
type SessionInfo struct {
	ID        string
	Title     string
	Turns     int
	Exchanges int // total exchanges, including evicted ones
	Updated   time.Time
}

// NewSessionManager keeps at most maxTurns exchanges per session; 0 keeps none.
func NewSessionManager(maxTurns int, logger *slog.Logger) *SessionManager {
	if maxTurns < 0 {
		maxTurns = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions: make(map[string]*session),
		maxTurns: maxTurns,
		logger:   logger,
	}
}

// NewSessionID returns a fresh random session id.
func (sm *SessionManager) NewSessionID() string {
	return uuid.NewString()
}

func (sm *SessionManager) MaxTurns() int { return sm.maxTurns }

func (sm *SessionManager) lookup(id string) *session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

func (sm *SessionManager) getOrCreate(id string) *session {
	if s := sm.lookup(id); s != nil {
		return s
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	// Another goroutine may have created it.
	if s, ok := sm.sessions[id]; ok {
		return s
	}
	s := &session{id: id, updated: time.Now()}
	sm.sessions[id] = s
	metrics.ActiveSession.Inc()
	sm.logger.Debug("created session", "session", id)
	return s
}

// History returns a copy of the retained turns, oldest first. An unseen
// session has an empty history.
func (sm *SessionManager) History(id string) []domain.ConversationTurn {
	s := sm.lookup(id)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ConversationTurn(nil), s.turns...)
}

// AddExchange appends a completed exchange, creating the session on first
// use, then evicts the oldest turns until at most maxTurns remain.
func (sm *SessionManager) AddExchange(id, user, assistant string) domain.ConversationTurn {
	s := sm.getOrCreate(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ordinal++
	turn := domain.ConversationTurn{Ordinal: s.ordinal, User: user, Assistant: assistant}
	if s.title == "" {
		s.title = generateTitle(user)
	}
	s.turns = append(s.turns, turn)
	if over := len(s.turns) - sm.maxTurns; over > 0 {
		s.turns = append([]domain.ConversationTurn(nil), s.turns[over:]...)
	}
	s.updated = time.Now()
	return turn
}

// Clear forgets a session. It reports whether the session existed.
func (sm *SessionManager) Clear(id string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[id]; !ok {
		return false
	}
	delete(sm.sessions, id)
	metrics.ActiveSession.Dec()
	sm.logger.Info("session cleared", "session", id)
	return true
}

// Len returns the number of sessions held.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Sessions lists all sessions, most recently updated first.
func (sm *SessionManager) Sessions() []SessionInfo {
	sm.mu.RLock()
	all := make([]*session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		all = append(all, s)
	}
	sm.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		infos = append(infos, SessionInfo{
			ID:        s.id,
			Title:     s.title,
			Turns:     len(s.turns),
			Exchanges: s.ordinal,
			Updated:   s.updated,
		})
		s.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Updated.After(infos[j].Updated) })
	return infos
}

func generateTitle(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "New conversation"
	}
	if idx := strings.IndexAny(msg, "\n\r"); idx > 0 {
		msg = msg[:idx]
	}
	// Cut on rune boundaries so titles stay valid UTF-8.
	if runes := []rune(msg); len(runes) > 60 {
		head := string(runes[:60])
		cut := strings.LastIndex(head, " ")
		if cut < 20 {
			cut = len(head)
		}
		msg = head[:cut] + "..."
	}
	return msg
}
