package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

type memoryEntry struct {
	snapshot  entity.Snapshot
	expiresAt time.Time
}

type memorySession struct {
	mu        sync.RWMutex
	sessions  map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewMemorySessionRepository keeps sessions in process memory; they are lost on restart.
// A positive ttl expires sessions that were not saved for that long, zero keeps them forever.
func NewMemorySessionRepository(ttl time.Duration) SessionRepository {
	return &memorySession{
		sessions:  make(map[string]memoryEntry),
		ttl:       ttl,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

func (that *memorySession) CreateOrUpdate(_ context.Context, sessionID string, snapshot entity.Snapshot) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	now := that.now()

	entry := memoryEntry{snapshot: cloneSnapshot(snapshot)}
	if that.ttl > 0 {
		entry.expiresAt = now.Add(that.ttl)
	}
	that.sessions[sessionID] = entry

	// full scan at most once per ttl
	if that.ttl > 0 && now.Sub(that.lastSweep) >= that.ttl {
		that.sweep(now)
	}

	return nil
}

func (that *memorySession) GetByID(_ context.Context, sessionID string) (entity.Snapshot, error) {
	that.mu.RLock()
	entry, ok := that.sessions[sessionID]
	that.mu.RUnlock()

	if !ok {
		return entity.Snapshot{}, ErrSessionNotFound
	}

	if entry.expired(that.now()) {
		that.mu.Lock()
		if current, found := that.sessions[sessionID]; found && current.expired(that.now()) {
			delete(that.sessions, sessionID)
		}
		that.mu.Unlock()

		return entity.Snapshot{}, ErrSessionNotFound
	}

	return cloneSnapshot(entry.snapshot), nil
}

func (that *memorySession) DeleteByID(_ context.Context, sessionID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry, ok := that.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	delete(that.sessions, sessionID)

	if entry.expired(that.now()) {
		return ErrSessionNotFound
	}

	return nil
}

// sweep expects mu to be held.
func (that *memorySession) sweep(now time.Time) {
	for sessionID, entry := range that.sessions {
		if entry.expired(now) {
			delete(that.sessions, sessionID)
		}
	}

	that.lastSweep = now
}

func (that memoryEntry) expired(now time.Time) bool {
	return !that.expiresAt.IsZero() && !now.Before(that.expiresAt)
}

// cloneSnapshot detaches the pointer fields so stored state cannot be changed through a caller's copy.
func cloneSnapshot(snapshot entity.Snapshot) entity.Snapshot {
	if snapshot.WinningLine != nil {
		line := *snapshot.WinningLine
		snapshot.WinningLine = &line
	}

	if snapshot.LastMove != nil {
		lastMove := *snapshot.LastMove
		snapshot.LastMove = &lastMove
	}

	return snapshot
}
