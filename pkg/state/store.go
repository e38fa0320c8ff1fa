// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/chapo-dev/chapo/pkg/storage"
)

const (
	defaultDebounce     = 300 * time.Millisecond
	defaultIdleTTL      = 24 * time.Hour
	persistRetryInitial = 500 * time.Millisecond
	persistRetryCap     = 10 * time.Second
	persistMaxAttempts  = 8
)

// Config configures a Store.
type Config struct {
	Backend storage.Backend
	Logger  *zap.Logger

	// Debounce is the delay between the first mutation and the durable
	// write. Further mutations within the window piggyback on the same
	// write. Zero means the default (300ms).
	Debounce time.Duration

	// IdleTTL is how long a session stays in memory without being touched.
	// Zero means the default (24h).
	IdleTTL time.Duration
}

// Store is the single source of truth for ConversationState. Loads are
// deduplicated, writes are debounced and retried, and gate transitions can
// force an immediate flush.
type Store struct {
	backend  storage.Backend
	logger   *zap.Logger
	debounce time.Duration
	idleTTL  time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	loads    singleflight.Group
}

type sessionEntry struct {
	mu   sync.Mutex
	cond *sync.Cond

	state *ConversationState

	// gen counts mutations; persistedGen is the generation last written
	// durably. gen > persistedGen means the entry is dirty.
	gen          uint64
	persistedGen uint64

	lastPersisted []byte
	writeInFlight bool
	retryAttempt  int

	persistTimer *time.Timer
	ttlTimer     *time.Timer
}

// NewStore creates a state store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	return &Store{
		backend:  cfg.Backend,
		logger:   cfg.Logger,
		debounce: cfg.Debounce,
		idleTTL:  cfg.IdleTTL,
		sessions: make(map[string]*sessionEntry),
	}, nil
}

// EnsureLoaded returns a snapshot of the session state, loading it from the
// backend on first access. Concurrent calls for the same session share one
// load. A missing row creates the default state and schedules an immediate
// persist.
func (s *Store) EnsureLoaded(ctx context.Context, sessionID string) (*ConversationState, error) {
	if entry := s.lookup(sessionID); entry != nil {
		s.touch(sessionID, entry)
		entry.mu.Lock()
		defer entry.mu.Unlock()
		return entry.state.Clone(), nil
	}

	_, err, _ := s.loads.Do(sessionID, func() (interface{}, error) {
		return nil, s.load(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}

	entry := s.lookup(sessionID)
	if entry == nil {
		return nil, fmt.Errorf("session %s evicted during load", sessionID)
	}
	s.touch(sessionID, entry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone(), nil
}

func (s *Store) load(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	entry := &sessionEntry{}
	entry.cond = sync.NewCond(&entry.mu)

	raw, err := s.backend.GetRow(ctx, storage.TableAgentStates, sessionID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		entry.state = NewConversationState()
		entry.gen = 1 // fresh state needs an immediate persist
	case err != nil:
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	default:
		st := NewConversationState()
		if uerr := json.Unmarshal(raw, st); uerr != nil {
			s.logger.Warn("corrupt persisted state, starting fresh",
				zap.String("session_id", sessionID), zap.Error(uerr))
			st = NewConversationState()
		}
		// A persisted running flag with no runtime loop is stale by
		// definition: loops never survive the entry leaving memory.
		if st.IsLoopRunning {
			st.IsLoopRunning = false
			st.ActiveTurnID = ""
			entry.gen = 1
		}
		entry.state = st
		entry.lastPersisted = raw
	}

	s.mu.Lock()
	s.sessions[sessionID] = entry
	s.mu.Unlock()

	if entry.gen > entry.persistedGen {
		entry.mu.Lock()
		s.schedulePersistLocked(sessionID, entry, 0)
		entry.mu.Unlock()
	}
	return nil
}

// Get returns a snapshot without triggering a load.
func (s *Store) Get(sessionID string) (*ConversationState, bool) {
	entry := s.lookup(sessionID)
	if entry == nil {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone(), true
}

// Update applies the mutator under the per-session exclusion scope and
// schedules a debounced persist. The session must be loaded (or loadable).
func (s *Store) Update(ctx context.Context, sessionID string, mutate func(*ConversationState)) error {
	entry := s.lookup(sessionID)
	if entry == nil {
		if _, err := s.EnsureLoaded(ctx, sessionID); err != nil {
			return err
		}
		entry = s.lookup(sessionID)
		if entry == nil {
			return fmt.Errorf("session %s evicted during update", sessionID)
		}
	}
	s.touch(sessionID, entry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	mutate(entry.state)
	entry.gen++
	entry.retryAttempt = 0
	s.schedulePersistLocked(sessionID, entry, s.debounce)
	return nil
}

// Flush cancels any pending debounce and persists synchronously. Gate
// transitions call this before returning control to the caller.
func (s *Store) Flush(ctx context.Context, sessionID string) error {
	entry := s.lookup(sessionID)
	if entry == nil {
		return nil
	}

	entry.mu.Lock()
	if entry.persistTimer != nil {
		entry.persistTimer.Stop()
		entry.persistTimer = nil
	}
	for entry.writeInFlight {
		entry.cond.Wait()
	}
	if entry.gen == entry.persistedGen {
		entry.mu.Unlock()
		return nil
	}
	gen := entry.gen
	encoded, err := entry.state.encodeForPersist()
	if err != nil {
		entry.mu.Unlock()
		return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
	}
	if bytes.Equal(encoded, entry.lastPersisted) {
		entry.persistedGen = gen
		entry.mu.Unlock()
		return nil
	}
	entry.writeInFlight = true
	entry.mu.Unlock()

	werr := s.backend.PutRow(ctx, storage.TableAgentStates, sessionID, encoded)

	entry.mu.Lock()
	entry.writeInFlight = false
	entry.cond.Broadcast()
	if werr == nil {
		entry.lastPersisted = encoded
		if gen > entry.persistedGen {
			entry.persistedGen = gen
		}
		if entry.gen > entry.persistedGen {
			s.schedulePersistLocked(sessionID, entry, s.debounce)
		}
		entry.mu.Unlock()
		return nil
	}
	entry.retryAttempt++
	s.schedulePersistLocked(sessionID, entry, s.retryDelay(entry.retryAttempt))
	entry.mu.Unlock()
	return fmt.Errorf("failed to flush session %s: %w", sessionID, werr)
}

// Delete evicts the session from memory and cancels its timers. The durable
// row is left in place.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	entry.mu.Lock()
	if entry.persistTimer != nil {
		entry.persistTimer.Stop()
		entry.persistTimer = nil
	}
	if entry.ttlTimer != nil {
		entry.ttlTimer.Stop()
		entry.ttlTimer = nil
	}
	entry.mu.Unlock()
}

func (s *Store) lookup(sessionID string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

// touch resets the idle eviction timer.
func (s *Store) touch(sessionID string, entry *sessionEntry) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.ttlTimer != nil {
		entry.ttlTimer.Stop()
	}
	entry.ttlTimer = time.AfterFunc(s.idleTTL, func() {
		s.evict(sessionID)
	})
}

// evict flushes best-effort and drops the session from memory.
func (s *Store) evict(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Flush(ctx, sessionID); err != nil {
		s.logger.Warn("flush on eviction failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	s.Delete(sessionID)
	s.logger.Debug("session evicted after idle TTL", zap.String("session_id", sessionID))
}

// schedulePersistLocked arms the persist timer. Caller holds entry.mu.
func (s *Store) schedulePersistLocked(sessionID string, entry *sessionEntry, delay time.Duration) {
	if entry.persistTimer != nil {
		// A pending write is already scheduled; the new mutation
		// piggybacks on it unless this is a retry reschedule.
		if delay >= s.debounce || delay == 0 {
			return
		}
		entry.persistTimer.Stop()
	}
	entry.persistTimer = time.AfterFunc(delay, func() {
		s.persist(sessionID, entry)
	})
}

// persist performs one durable write attempt for the entry.
func (s *Store) persist(sessionID string, entry *sessionEntry) {
	entry.mu.Lock()
	entry.persistTimer = nil
	if entry.writeInFlight {
		// The in-flight completion reschedules if still dirty.
		entry.mu.Unlock()
		return
	}
	if entry.gen == entry.persistedGen {
		entry.mu.Unlock()
		return
	}
	gen := entry.gen
	encoded, err := entry.state.encodeForPersist()
	if err != nil {
		s.logger.Error("failed to encode state", zap.String("session_id", sessionID), zap.Error(err))
		entry.mu.Unlock()
		return
	}
	if bytes.Equal(encoded, entry.lastPersisted) {
		entry.persistedGen = gen
		entry.mu.Unlock()
		return
	}
	entry.writeInFlight = true
	entry.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	werr := s.backend.PutRow(ctx, storage.TableAgentStates, sessionID, encoded)
	cancel()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.writeInFlight = false
	entry.cond.Broadcast()

	if werr == nil {
		entry.lastPersisted = encoded
		if gen > entry.persistedGen {
			entry.persistedGen = gen
		}
		entry.retryAttempt = 0
		if entry.gen > entry.persistedGen {
			s.schedulePersistLocked(sessionID, entry, s.debounce)
		}
		return
	}

	entry.retryAttempt++
	if entry.retryAttempt >= persistMaxAttempts {
		s.logger.Error("giving up persisting state after retries",
			zap.String("session_id", sessionID),
			zap.Int("attempts", entry.retryAttempt),
			zap.Error(werr))
		// A later mutation resets the attempt counter and reschedules.
		return
	}
	delay := s.retryDelay(entry.retryAttempt)
	s.logger.Warn("state persist failed, retrying",
		zap.String("session_id", sessionID),
		zap.Int("attempt", entry.retryAttempt),
		zap.Duration("delay", delay),
		zap.Error(werr))
	s.schedulePersistLocked(sessionID, entry, delay)
}

func (s *Store) retryDelay(attempt int) time.Duration {
	delay := persistRetryInitial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= persistRetryCap {
			return persistRetryCap
		}
	}
	if delay > persistRetryCap {
		delay = persistRetryCap
	}
	return delay
}
