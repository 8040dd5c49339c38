// Package appstate implements the Session State Store (C7): a durable,
// resumable record of one in-flight application per Browser Session,
// file-per-session on disk with a read-through cache. Every save and
// delete is mirrored into a sqlite secondary index (session_states);
// List and ListResumable scan the JSON files and do not query it.
// Grounded on original_source/src/automation/session_store.py.
package appstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/logging"
	"github.com/javimaligno/goapply-core/internal/storage"
)

// Status is the Application Session State status.
type Status string

const (
	StatusPending          Status = "pending"
	StatusInProgress       Status = "in_progress"
	StatusPaused           Status = "paused"
	StatusNeedsIntervention Status = "needs_intervention"
	StatusSubmitted        Status = "submitted"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// Mode is the Application Session execution mode.
type Mode string

const (
	ModeAssisted  Mode = "assisted"
	ModeSemiAuto  Mode = "semi_auto"
	ModeAuto      Mode = "auto"
)

// resumableWindow matches 24h resumability cutoff.
const resumableWindow = 24 * time.Hour

// ErrNotFound is returned by operations on an unknown session id.
var ErrNotFound = errors.New("application session state not found")

// State is the Application Session State entity, serialized to
// stable storage by Store.
type State struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	JobURL    string `json:"job_url"`
	Status    Status `json:"status"`
	Mode      Mode   `json:"mode"`

	CurrentStep    int      `json:"current_step"`
	StepsCompleted []string `json:"steps_completed"`

	FieldsFilled map[string]string `json:"fields_filled"`

	BlockerType    string `json:"blocker_type,omitempty"`
	BlockerMessage string `json:"blocker_message,omitempty"`
	InterventionID string `json:"intervention_id,omitempty"`

	CurrentURL   string            `json:"current_url,omitempty"`
	Cookies      []map[string]any  `json:"cookies,omitempty"`
	LocalStorage map[string]string `json:"local_storage,omitempty"`

	UserDataJSON string `json:"user_data_json,omitempty"`
	CVContent    string `json:"cv_content,omitempty"`
	CVFilePath   string `json:"cv_file_path,omitempty"`
	CoverLetter  string `json:"cover_letter,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`

	LastScreenshotPath string `json:"last_screenshot_path,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// isResumable reports whether s meets resumability predicate.
func (s State) isResumable(now time.Time) bool {
	if s.Status != StatusPaused && s.Status != StatusNeedsIntervention {
		return false
	}
	if s.PausedAt != nil && now.Sub(*s.PausedAt) > resumableWindow {
		return false
	}
	return s.CurrentURL != "" || len(s.Cookies) > 0
}

// Filter narrows List results.
type Filter struct {
	Status Status
	UserID string
}

// Store is the file-per-session durable store with a read-through cache.
type Store struct {
	mu       sync.Mutex
	dir      string
	cache    map[string]*State
	db       *storage.DB
	log      *zap.Logger
}

// New builds a Store rooted at dir, creating it if necessary. db receives
// the secondary-index rows written on Save and Delete (List and
// ListResumable do not read them); it may be nil in tests that only
// exercise save/load/delete.
func New(dir string, db *storage.DB) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session state dir: %w", err)
	}
	return &Store{
		dir:   dir,
		cache: make(map[string]*State),
		db:    db,
		log:   logging.L().Named("appstate"),
	}, nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save upserts state, stamping updated_at, atomically replacing the file
// (write to temp, rename) crash-survival requirement.
func (s *Store) Save(ctx context.Context, state State) error {
	state.UpdatedAt = time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	final := s.path(state.SessionID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp session state: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename session state into place: %w", err)
	}

	s.mu.Lock()
	cached := state
	s.cache[state.SessionID] = &cached
	s.mu.Unlock()

	if err := s.indexUpsert(ctx, state); err != nil {
		s.log.Warn("secondary index upsert failed", zap.Error(err))
	}
	return nil
}

// Load returns the state for sessionID, preferring the cache.
func (s *Store) Load(ctx context.Context, sessionID string) (State, error) {
	s.mu.Lock()
	if cached, ok := s.cache[sessionID]; ok {
		defer s.mu.Unlock()
		return *cached, nil
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("read session state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("unmarshal session state: %w", err)
	}

	s.mu.Lock()
	s.cache[sessionID] = &state
	s.mu.Unlock()
	return state, nil
}

// Delete removes sessionID's state from disk and cache.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session state: %w", err)
	}
	s.mu.Lock()
	delete(s.cache, sessionID)
	s.mu.Unlock()

	if s.db != nil {
		if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM session_states WHERE id = ?`, sessionID); err != nil {
			s.log.Warn("secondary index delete failed", zap.Error(err))
		}
	}
	return nil
}

// List scans every persisted session, applying filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]State, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list session state dir: %w", err)
	}

	var out []State
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		sessionID := entry.Name()[:len(entry.Name())-len(".json")]
		state, err := s.Load(ctx, sessionID)
		if err != nil {
			s.log.Warn("failed to load session state", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		if filter.Status != "" && state.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && state.UserID != filter.UserID {
			continue
		}
		out = append(out, state)
	}

	sortByCreatedAtDesc(out)
	return out, nil
}

// ListResumable returns sessions satisfying resumability
// predicate: status in {paused, needs_intervention}, pause age ≤ 24h, and
// persisted browser state (cookies or URL).
func (s *Store) ListResumable(ctx context.Context, userID string) ([]State, error) {
	all, err := s.List(ctx, Filter{UserID: userID})
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var resumable []State
	for _, state := range all {
		if state.isResumable(now) {
			resumable = append(resumable, state)
		}
	}
	return resumable, nil
}

// UpdateStatus loads, mutates, and saves just the status (stamping
// paused_at/completed_at as appropriate), matching session_store.py's
// update_status.
func (s *Store) UpdateStatus(ctx context.Context, sessionID string, status Status, errMsg string) error {
	state, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	state.Status = status
	if errMsg != "" {
		state.Error = errMsg
	}
	now := time.Now()
	switch status {
	case StatusPaused:
		state.PausedAt = &now
	case StatusSubmitted, StatusFailed:
		state.CompletedAt = &now
	}
	return s.Save(ctx, state)
}

// UpdateProgress records a completed step, merges newly filled fields, and
// records the current URL.
func (s *Store) UpdateProgress(ctx context.Context, sessionID, step string, fieldsFilled map[string]string, currentURL string) error {
	state, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if step != "" && !containsStep(state.StepsCompleted, step) {
		state.StepsCompleted = append(state.StepsCompleted, step)
		state.CurrentStep = len(state.StepsCompleted)
	}
	if len(fieldsFilled) > 0 {
		if state.FieldsFilled == nil {
			state.FieldsFilled = make(map[string]string)
		}
		for k, v := range fieldsFilled {
			state.FieldsFilled[k] = v
		}
	}
	if currentURL != "" {
		state.CurrentURL = currentURL
	}
	return s.Save(ctx, state)
}

// SaveBrowserState records cookies/local storage/URL for later
// restoration.
func (s *Store) SaveBrowserState(ctx context.Context, sessionID string, cookies []map[string]any, localStorage map[string]string, currentURL string) error {
	state, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	state.Cookies = cookies
	if localStorage != nil {
		state.LocalStorage = localStorage
	}
	if currentURL != "" {
		state.CurrentURL = currentURL
	}
	return s.Save(ctx, state)
}

// CleanupOld deletes terminal-state sessions older than maxAge, returning
// the number removed.
func (s *Store) CleanupOld(ctx context.Context, maxAge time.Duration) (int, error) {
	all, err := s.List(ctx, Filter{})
	if err != nil {
		return 0, err
	}

	now := time.Now()
	deleted := 0
	for _, state := range all {
		if state.Status != StatusSubmitted && state.Status != StatusFailed && state.Status != StatusCancelled {
			continue
		}
		checkTime := state.UpdatedAt
		if state.CompletedAt != nil {
			checkTime = *state.CompletedAt
		}
		if now.Sub(checkTime) > maxAge {
			if err := s.Delete(ctx, state.SessionID); err == nil {
				deleted++
			}
		}
	}
	if deleted > 0 {
		s.log.Info("cleaned up old session states", zap.Int("count", deleted))
	}
	return deleted, nil
}

// RecoverInterrupted scans every persisted session on process start and
// transitions any still marked pending/in_progress to failed, since no
// process could have been driving them across a restart. Sessions already
// paused or needing intervention are left untouched — those are
// legitimately resumable, not interrupted. Returns the number recovered.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	all, err := s.List(ctx, Filter{})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, state := range all {
		if state.Status != StatusPending && state.Status != StatusInProgress {
			continue
		}
		if err := s.UpdateStatus(ctx, state.SessionID, StatusFailed, "interrupted by restart"); err != nil {
			s.log.Warn("failed to recover interrupted session", zap.String("session_id", state.SessionID), zap.Error(err))
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.log.Info("recovered interrupted session states", zap.Int("count", recovered))
	}
	return recovered, nil
}

func (s *Store) indexUpsert(ctx context.Context, state State) error {
	if s.db == nil {
		return nil
	}
	hasBrowserState := 0
	if state.CurrentURL != "" || len(state.Cookies) > 0 {
		hasBrowserState = 1
	}
	var pausedAt sql.NullString
	if state.PausedAt != nil {
		pausedAt = sql.NullString{String: state.PausedAt.Format(time.RFC3339), Valid: true}
	}
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO session_states (id, user_id, job_url, status, mode, updated_at, paused_at, has_browser_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, mode = excluded.mode,
			updated_at = excluded.updated_at, paused_at = excluded.paused_at, has_browser_state = excluded.has_browser_state`,
		state.SessionID, state.UserID, state.JobURL, string(state.Status), string(state.Mode),
		state.UpdatedAt.Format(time.RFC3339), pausedAt, hasBrowserState,
	)
	return err
}

func containsStep(steps []string, step string) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

func sortByCreatedAtDesc(states []State) {
	for i := 1; i < len(states); i++ {
		for j := i; j > 0 && states[j].CreatedAt.After(states[j-1].CreatedAt); j-- {
			states[j], states[j-1] = states[j-1], states[j]
		}
	}
}
