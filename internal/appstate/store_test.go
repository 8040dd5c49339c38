package appstate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/javimaligno/goapply-core/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(filepath.Join(t.TempDir(), "sessions"), db)
	require.NoError(t, err)
	return s
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := State{SessionID: "sess-1", UserID: "user-1", JobURL: "https://x/apply", Status: StatusPending, Mode: ModeAssisted}
	require.NoError(t, s.Save(ctx, state))

	got, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", got.SessionID)
	require.Equal(t, StatusPending, got.Status)
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadPrefersCacheOverDisk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, State{SessionID: "sess-1", Status: StatusPending}))

	// Mutate only the cache directly to prove Load doesn't re-read disk.
	s.mu.Lock()
	s.cache["sess-1"].Status = StatusSubmitted
	s.mu.Unlock()

	got, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, got.Status)
}

func TestUpdateStatusStampsPausedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, State{SessionID: "sess-1", Status: StatusInProgress}))

	require.NoError(t, s.UpdateStatus(ctx, "sess-1", StatusPaused, ""))

	got, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, StatusPaused, got.Status)
	require.NotNil(t, got.PausedAt)
}

func TestUpdateProgressAppendsStepsAndFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, State{SessionID: "sess-1", Status: StatusInProgress}))

	require.NoError(t, s.UpdateProgress(ctx, "sess-1", "fill_name", map[string]string{"#first": "Ada"}, "https://x/step2"))
	require.NoError(t, s.UpdateProgress(ctx, "sess-1", "fill_name", map[string]string{"#last": "Lovelace"}, ""))

	got, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, []string{"fill_name"}, got.StepsCompleted)
	require.Equal(t, 1, got.CurrentStep)
	require.Equal(t, "Ada", got.FieldsFilled["#first"])
	require.Equal(t, "Lovelace", got.FieldsFilled["#last"])
	require.Equal(t, "https://x/step2", got.CurrentURL)
}

func TestListResumableFiltersByStatusAgeAndBrowserState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recentPause := time.Now().Add(-time.Hour)
	stalePause := time.Now().Add(-48 * time.Hour)

	require.NoError(t, s.Save(ctx, State{SessionID: "resumable", Status: StatusPaused, PausedAt: &recentPause, CurrentURL: "https://x"}))
	require.NoError(t, s.Save(ctx, State{SessionID: "too-old", Status: StatusPaused, PausedAt: &stalePause, CurrentURL: "https://x"}))
	require.NoError(t, s.Save(ctx, State{SessionID: "no-browser-state", Status: StatusNeedsIntervention, PausedAt: &recentPause}))
	require.NoError(t, s.Save(ctx, State{SessionID: "submitted", Status: StatusSubmitted}))

	resumable, err := s.ListResumable(ctx, "")
	require.NoError(t, err)

	ids := make([]string, 0, len(resumable))
	for _, r := range resumable {
		ids = append(ids, r.SessionID)
	}
	require.Equal(t, []string{"resumable"}, ids)
}

func TestRecoverInterruptedFailsPendingAndInProgressOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, State{SessionID: "was-pending", Status: StatusPending}))
	require.NoError(t, s.Save(ctx, State{SessionID: "was-in-progress", Status: StatusInProgress}))
	require.NoError(t, s.Save(ctx, State{SessionID: "was-paused", Status: StatusPaused}))
	require.NoError(t, s.Save(ctx, State{SessionID: "was-needs-intervention", Status: StatusNeedsIntervention}))
	require.NoError(t, s.Save(ctx, State{SessionID: "was-submitted", Status: StatusSubmitted}))

	recovered, err := s.RecoverInterrupted(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, recovered)

	pending, err := s.Load(ctx, "was-pending")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, pending.Status)
	require.Equal(t, "interrupted by restart", pending.Error)

	inProgress, err := s.Load(ctx, "was-in-progress")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, inProgress.Status)
	require.Equal(t, "interrupted by restart", inProgress.Error)

	paused, err := s.Load(ctx, "was-paused")
	require.NoError(t, err)
	require.Equal(t, StatusPaused, paused.Status)

	needsIntervention, err := s.Load(ctx, "was-needs-intervention")
	require.NoError(t, err)
	require.Equal(t, StatusNeedsIntervention, needsIntervention.Status)

	submitted, err := s.Load(ctx, "was-submitted")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)
}

func TestCleanupOldDeletesOnlyTerminalExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oldCompleted := time.Now().Add(-72 * time.Hour)
	require.NoError(t, s.Save(ctx, State{SessionID: "old-submitted", Status: StatusSubmitted, CompletedAt: &oldCompleted}))
	require.NoError(t, s.Save(ctx, State{SessionID: "fresh-submitted", Status: StatusSubmitted}))
	require.NoError(t, s.Save(ctx, State{SessionID: "still-paused", Status: StatusPaused}))

	deleted, err := s.CleanupOld(ctx, 48*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = s.Load(ctx, "old-submitted")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load(ctx, "still-paused")
	require.NoError(t, err)
}

func TestDeleteRemovesFromCacheAndDisk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, State{SessionID: "sess-1"}))
	require.NoError(t, s.Delete(ctx, "sess-1"))

	_, err := s.Load(ctx, "sess-1")
	require.ErrorIs(t, err, ErrNotFound)
}
