// Package sessions keeps the server-side state of a browser session between
// the upload request and the mapping request.
package sessions

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
)

// UpdateFunc mutates a session state in place. Returning an error discards
// the mutation.
type UpdateFunc func(state *models.SessionState) error

// Store persists SessionState by session id.
type Store interface {
	// Load returns a copy of the state for id. Unknown or expired sessions
	// load as a fresh state with every UploadStatus entry false.
	Load(ctx context.Context, id string) (*models.SessionState, error)
	// Update applies fn to the current state for id and stores the result,
	// restarting its TTL. Concurrent updates of one session are serialized,
	// so each caller only changes the entries it touches. The error from fn
	// is returned unchanged and nothing is stored.
	Update(ctx context.Context, id string, fn UpdateFunc) (*models.SessionState, error)
	// Sweep drops expired sessions and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

type memoryEntry struct {
	state   *models.SessionState
	touched time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.Named("session-store"),
	}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current(id).Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.current(id).Clone()
	if err := fn(state); err != nil {
		return nil, err
	}
	s.entries[id] = memoryEntry{state: state.Clone(), touched: s.now()}
	return state, nil
}

// current returns the live state for id, nil when unknown or expired.
// Callers hold s.mu.
func (s *MemoryStore) current(id string) *models.SessionState {
	entry, ok := s.entries[id]
	if !ok {
		return nil
	}
	if s.expired(entry) {
		delete(s.entries, id)
		return nil
	}
	return entry.state
}

func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Swept expired sessions", zap.Int("removed", removed))
	}
	return removed, nil
}

// size returns the number of sessions held, expired ones included.
func (s *MemoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(entry memoryEntry) bool {
	return s.now().Sub(entry.touched) > s.ttl
}
