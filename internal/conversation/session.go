package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/anbuinfosec/anbu-ai/internal/logging"
)

const (
	// DefaultIdleTimeout is how long a session can be inactive before cleanup.
	DefaultIdleTimeout = 24 * time.Hour

	// DefaultMaxSessions is the maximum number of sessions before LRU eviction.
	DefaultMaxSessions = 1000

	// maxCleanupInterval bounds how often the idle sweep runs.
	maxCleanupInterval = 1 * time.Hour
)

// Settings bounds the memory held by a SessionManager.
type Settings struct {
	// MaxSessions is the session count past which the least recently used
	// session is evicted. Values below 1 mean DefaultMaxSessions.
	MaxSessions int

	// IdleTimeout is how long a session may go untouched before the sweep
	// drops it. Zero disables the sweep.
	IdleTimeout time.Duration
}

// sessionInfo tracks a session and its last activity time.
type sessionInfo struct {
	manager      *Manager
	lastActivity time.Time
}

// SessionManager provides thread-safe management of conversation sessions.
// Each session is identified by a caller-supplied id and owns its own
// history window.
//
// If the session count exceeds Settings.MaxSessions, the least recently
// used session is evicted. When an idle timeout is set, a background
// goroutine periodically removes sessions that have not been touched
// within it.
type SessionManager struct {
	mu            sync.RWMutex
	sessions      map[string]*sessionInfo
	settings      Settings
	logger        *logging.Logger
	now           func() time.Time
	cancelCleanup context.CancelFunc
	cleanupDone   chan struct{}
}

// NewSessionManager creates a session manager with the default limits and a
// discarding logger.
func NewSessionManager() *SessionManager {
	return NewSessionManagerWithSettings(Settings{
		MaxSessions: DefaultMaxSessions,
		IdleTimeout: DefaultIdleTimeout,
	}, nil)
}

// NewSessionManagerWithSettings creates a session manager with the given
// limits. If logger is nil, log output is discarded.
func NewSessionManagerWithSettings(settings Settings, logger *logging.Logger) *SessionManager {
	if settings.MaxSessions < 1 {
		settings.MaxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = logging.Discard()
	}

	sm := &SessionManager{
		sessions: make(map[string]*sessionInfo),
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}

	if settings.IdleTimeout > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		sm.cancelCleanup = cancel
		sm.cleanupDone = make(chan struct{})
		go sm.cleanupLoop(ctx, cleanupInterval(settings.IdleTimeout))
	}

	return sm
}

// cleanupInterval sweeps at half the idle timeout, capped at an hour.
func cleanupInterval(idle time.Duration) time.Duration {
	interval := idle / 2
	if interval > maxCleanupInterval {
		interval = maxCleanupInterval
	}
	if interval <= 0 {
		interval = idle
	}
	return interval
}

// GetOrCreate returns the Manager for the given session ID.
// If the session does not exist, a new Manager is created and stored.
// Updates the last activity time for the session.
func (sm *SessionManager) GetOrCreate(sessionID string) *Manager {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()

	if info, ok := sm.sessions[sessionID]; ok {
		info.lastActivity = now
		return info.manager
	}

	if len(sm.sessions) >= sm.settings.MaxSessions {
		sm.evictLRU()
	}

	manager := NewManager()
	sm.sessions[sessionID] = &sessionInfo{
		manager:      manager,
		lastActivity: now,
	}
	return manager
}

// Get returns the Manager for the given session ID, or nil if it doesn't exist.
// This method does not create a new session.
func (sm *SessionManager) Get(sessionID string) *Manager {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if info, ok := sm.sessions[sessionID]; ok {
		return info.manager
	}
	return nil
}

// Delete removes the session with the given ID and reports whether it
// existed. Deleting an unknown session is a no-op that returns false.
func (sm *SessionManager) Delete(sessionID string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	_, ok := sm.sessions[sessionID]
	delete(sm.sessions, sessionID)
	return ok
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Shutdown stops the cleanup goroutine and waits for it to finish.
// It is safe to call more than once.
func (sm *SessionManager) Shutdown() {
	if sm.cancelCleanup != nil {
		sm.cancelCleanup()
		<-sm.cleanupDone
	}
}

// cleanupLoop runs periodically to remove inactive sessions.
func (sm *SessionManager) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer close(sm.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.cleanupInactiveSessions()
		}
	}
}

// cleanupInactiveSessions removes sessions that have been inactive for too
// long and returns how many were removed.
func (sm *SessionManager) cleanupInactiveSessions() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	removed := 0

	for sessionID, info := range sm.sessions {
		if now.Sub(info.lastActivity) > sm.settings.IdleTimeout {
			delete(sm.sessions, sessionID)
			removed++
		}
	}

	if removed > 0 {
		sm.logger.Info("Cleaned up %d inactive sessions (total: %d)", removed, len(sm.sessions))
	}
	return removed
}

// evictLRU removes the least recently used session.
// Must be called with sm.mu held for writing.
func (sm *SessionManager) evictLRU() {
	var oldestID string
	var oldestTime time.Time

	for sessionID, info := range sm.sessions {
		if oldestID == "" || info.lastActivity.Before(oldestTime) {
			oldestID = sessionID
			oldestTime = info.lastActivity
		}
	}

	if oldestID != "" {
		delete(sm.sessions, oldestID)
		sm.logger.Debug("Evicted LRU session %s (was inactive for %v)", oldestID, sm.now().Sub(oldestTime))
	}
}
