package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/browser"
	"github.com/javimaligno/goapply-core/internal/logging"
)

// ErrNotFound is returned by operations referencing an unknown session id.
var ErrNotFound = errors.New("session not found")

const (
	// DefaultIdleTimeout matches original_source/session_manager.py.
	DefaultIdleTimeout = 1800 * time.Second
	// DefaultCleanupInterval matches original_source/session_manager.py.
	DefaultCleanupInterval = 300 * time.Second
)

type entry struct {
	record  Record
	adapter browser.Adapter
}

// Manager owns session-id → (record, adapter), grounded on
// original_source/src/browser_service/session_manager.py for the state
// machine/defaults and on a mutex-guarded-map idiom for the Go shape.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory Factory

	idleTimeout     time.Duration
	cleanupInterval time.Duration

	log *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Manager. idleTimeout/cleanupInterval of zero select the
// spec defaults.
func New(factory Factory, idleTimeout, cleanupInterval time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &Manager{
		entries:         make(map[string]*entry),
		factory:         factory,
		idleTimeout:     idleTimeout,
		cleanupInterval: cleanupInterval,
		log:             logging.L().Named("session"),
		stopCh:          make(chan struct{}),
	}
}

// StartCleanup launches the background idle-timeout sweep. Call once.
func (m *Manager) StartCleanup(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sweepIdle(ctx)
			}
		}
	}()
}

// StopCleanup halts the sweep and closes every session in parallel, per
// "On process shutdown it closes all sessions in parallel."
func (m *Manager) StopCleanup(ctx context.Context) {
	close(m.stopCh)
	m.wg.Wait()
	m.closeAll(ctx)
}

func (m *Manager) sweepIdle(ctx context.Context) {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.Lock()
	var stale []string
	for id, e := range m.entries {
		if e.record.Status != StatusClosed && e.record.LastActionAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		if err := m.CloseSession(ctx, id); err != nil {
			m.log.Warn("idle close failed", zap.String("session_id", id), zap.Error(err))
		}
	}
}

func (m *Manager) closeAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = m.CloseSession(ctx, id)
		}(id)
	}
	wg.Wait()
}

// CreateSession opens a new Browser Session, instantiating an adapter for
// the requested backend and initializing it.
func (m *Manager) CreateSession(ctx context.Context, cfg Config) (Record, error) {
	adapter, err := m.factory(cfg.Backend)
	if err != nil {
		return Record{}, fmt.Errorf("create adapter: %w", err)
	}

	now := time.Now()
	rec := Record{
		ID:           uuid.NewString(),
		Status:       StatusCreating,
		Backend:      cfg.Backend,
		CreatedAt:    now,
		LastActionAt: now,
	}

	m.mu.Lock()
	m.entries[rec.ID] = &entry{record: rec, adapter: adapter}
	m.mu.Unlock()

	result := adapter.Initialize(ctx, cfg.Init)
	if !result.Success {
		m.mu.Lock()
		delete(m.entries, rec.ID)
		m.mu.Unlock()
		return Record{}, fmt.Errorf("initialize adapter: %s", result.Error)
	}

	m.mu.Lock()
	m.entries[rec.ID].record.Status = StatusActive
	rec = m.entries[rec.ID].record
	m.mu.Unlock()

	m.log.Info("session created", zap.String("session_id", rec.ID), zap.String("backend", string(cfg.Backend)))
	return rec, nil
}

// CloseSession releases browser resources for id. Idempotent: closing an
// already-closed or unknown session is not an error.
func (m *Manager) CloseSession(ctx context.Context, id string) error {
	m.mu.Lock()
	e, found := m.entries[id]
	if !found {
		m.mu.Unlock()
		return nil
	}
	if e.record.Status == StatusClosed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	e.adapter.Close(ctx)

	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.record.Status = StatusClosed
	}
	m.mu.Unlock()

	m.log.Info("session closed", zap.String("session_id", id))
	return nil
}

// GetSession returns the current record for id.
func (m *Manager) GetSession(id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.entries[id]
	if !found {
		return Record{}, ErrNotFound
	}
	return e.record, nil
}

// GetAdapter returns the adapter owned by session id.
func (m *Manager) GetAdapter(id string) (browser.Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.entries[id]
	if !found {
		return nil, ErrNotFound
	}
	return e.adapter, nil
}

// ListSessions returns a snapshot of every known session record.
func (m *Manager) ListSessions() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.record)
	}
	return out
}

// UpdateActivity bumps last_action_at and increments action_count.
// last_action_at is monotonically non-decreasing, and action_count counts
// the UpdateActivity calls made for the session.
func (m *Manager) UpdateActivity(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.entries[id]
	if !found {
		return ErrNotFound
	}
	now := time.Now()
	if now.After(e.record.LastActionAt) {
		e.record.LastActionAt = now
	}
	e.record.ActionCount++
	return nil
}

// UpdateURL records the session's current URL and optional page title.
func (m *Manager) UpdateURL(id, url string, title *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, found := m.entries[id]
	if !found {
		return ErrNotFound
	}
	e.record.CurrentURL = url
	if title != nil {
		e.record.PageTitle = *title
	}
	return nil
}
