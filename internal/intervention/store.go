// Package intervention implements the Intervention Store (C6): durable
// records of paused sessions awaiting a human resolve/cancel decision.
// original_source/src/automation/{pause_manager,intervention_manager}.py
// are stub files with no real body, so the concrete logic here is
// designed fresh against linearizable single-shot resolve
// requirement, structurally grounded on the same mutex-guarded-map idiom
// used by internal/session/manager.go.
package intervention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/logging"
	"github.com/javimaligno/goapply-core/internal/storage"
)

// Kind is the Intervention type.
type Kind string

const (
	KindCaptcha       Kind = "captcha"
	KindLoginRequired Kind = "login_required"
	KindFileUpload    Kind = "file_upload"
	KindMultiStepForm Kind = "multi_step_form"
	KindLocationMismatch Kind = "location_mismatch"
	KindUnknown       Kind = "unknown"
	// KindPreSubmit is the assisted-mode pre-submit review pause before
	// the final submit click.
	KindPreSubmit Kind = "pre_submit"
)

// Resolution is the human decision that closes an Intervention.
type Resolution string

const (
	ResolutionContinue Resolution = "continue"
	ResolutionCancel   Resolution = "cancel"
	ResolutionRetry    Resolution = "retry"
)

// ErrNotFound is returned when an id has no known intervention.
var ErrNotFound = errors.New("intervention not found")

// ErrAlreadyResolved is returned to every resolve caller but the one that
// wins a race to resolve the same intervention: concurrent resolve
// attempts yield a conflict error to all but one caller.
var ErrAlreadyResolved = errors.New("intervention already resolved")

// Record is the Intervention entity.
type Record struct {
	ID             string
	SessionID      string
	UserID         string
	Type           Kind
	Title          string
	Description    string
	CurrentURL     string
	SnapshotRef    string
	CreatedAt      time.Time
	ResolvedAt     *time.Time
	Resolution     Resolution
	ResolverNotes  string
}

// Filter narrows List results.
type Filter struct {
	SessionID string
	UserID    string
	Unresolved bool
}

// Notifier is implemented by the notification fan-out (C10); every create
// and resolve emits through it.
type Notifier interface {
	BroadcastIntervention(ctx context.Context, interventionID, sessionID, userID string, kind Kind, title, description, currentURL string)
}

type noopNotifier struct{}

func (noopNotifier) BroadcastIntervention(ctx context.Context, interventionID, sessionID, userID string, kind Kind, title, description, currentURL string) {
}

// Store owns every Intervention. The in-memory map is authoritative;
// every create/resolve is written through to the sqlite secondary index,
// which serves ListPausedSessions; List filters the in-memory map.
type Store struct {
	mu       sync.Mutex
	records  map[string]*Record
	db       *storage.DB
	notifier Notifier
	log      *zap.Logger
}

// New builds a Store backed by db's secondary index. notifier may be nil,
// in which case create/resolve events are dropped (useful for tests that
// don't exercise C10).
func New(db *storage.DB, notifier Notifier) *Store {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Store{
		records:  make(map[string]*Record),
		db:       db,
		notifier: notifier,
		log:      logging.L().Named("intervention"),
	}
}

// Create records a new, unresolved Intervention and emits a notification.
func (s *Store) Create(ctx context.Context, sessionID, userID string, kind Kind, title, description, currentURL, snapshotRef string) (Record, error) {
	rec := &Record{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		UserID:      userID,
		Type:        kind,
		Title:       title,
		Description: description,
		CurrentURL:  currentURL,
		SnapshotRef: snapshotRef,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()

	if err := s.indexUpsert(ctx, rec); err != nil {
		s.log.Warn("secondary index upsert failed", zap.Error(err))
	}

	s.notifier.BroadcastIntervention(ctx, rec.ID, sessionID, userID, kind, title, description, currentURL)
	s.log.Info("intervention created", zap.String("id", rec.ID), zap.String("session_id", sessionID), zap.String("kind", string(kind)))
	return *rec, nil
}

// Get returns the intervention for id.
func (s *Store) Get(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// List returns every intervention matching filter.
func (s *Store) List(filter Filter) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.records {
		if filter.SessionID != "" && rec.SessionID != filter.SessionID {
			continue
		}
		if filter.UserID != "" && rec.UserID != filter.UserID {
			continue
		}
		if filter.Unresolved && rec.ResolvedAt != nil {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// Resolve performs the linearizable single-shot transition from
// unresolved to resolved. The mutex makes this atomic: only the first
// caller to observe rec.ResolvedAt == nil wins; every other caller
// (concurrent or later) gets ErrAlreadyResolved.
func (s *Store) Resolve(ctx context.Context, id string, resolution Resolution, notes string) (Record, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return Record{}, ErrNotFound
	}
	if rec.ResolvedAt != nil {
		s.mu.Unlock()
		return Record{}, ErrAlreadyResolved
	}
	now := time.Now()
	rec.ResolvedAt = &now
	rec.Resolution = resolution
	rec.ResolverNotes = notes
	snapshot := *rec
	s.mu.Unlock()

	if err := s.indexUpsert(ctx, &snapshot); err != nil {
		s.log.Warn("secondary index upsert failed", zap.Error(err))
	}

	s.notifier.BroadcastIntervention(ctx, snapshot.ID, snapshot.SessionID, snapshot.UserID, snapshot.Type, snapshot.Title, snapshot.Description, snapshot.CurrentURL)
	s.log.Info("intervention resolved", zap.String("id", id), zap.String("resolution", string(resolution)))
	return snapshot, nil
}

// ListPausedSessions returns the session ids with an unresolved
// intervention, served from the sqlite secondary index.
func (s *Store) ListPausedSessions(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return s.listPausedFromMemory(), nil
	}
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT DISTINCT session_id FROM interventions WHERE resolved_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("list paused sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan paused session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) listPausedFromMemory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for _, rec := range s.records {
		if rec.ResolvedAt == nil && !seen[rec.SessionID] {
			seen[rec.SessionID] = true
			ids = append(ids, rec.SessionID)
		}
	}
	return ids
}

func (s *Store) indexUpsert(ctx context.Context, rec *Record) error {
	if s.db == nil {
		return nil
	}
	var resolvedAt sql.NullString
	if rec.ResolvedAt != nil {
		resolvedAt = sql.NullString{String: rec.ResolvedAt.Format(time.RFC3339), Valid: true}
	}
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO interventions (id, session_id, user_id, type, title, description, current_url, snapshot_ref, created_at, resolved_at, resolution, resolver_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET resolved_at = excluded.resolved_at, resolution = excluded.resolution, resolver_notes = excluded.resolver_notes`,
		rec.ID, rec.SessionID, rec.UserID, string(rec.Type), rec.Title, rec.Description, rec.CurrentURL, rec.SnapshotRef,
		rec.CreatedAt.Format(time.RFC3339), resolvedAt, string(rec.Resolution), rec.ResolverNotes,
	)
	return err
}
