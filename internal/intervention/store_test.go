package intervention

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/javimaligno/goapply-core/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateAndGet(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()

	rec, err := s.Create(ctx, "sess-1", "user-1", KindCaptcha, "CAPTCHA blocked", "turnstile detected", "https://x/apply", "")
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	require.Equal(t, KindCaptcha, got.Type)
	require.Nil(t, got.ResolvedAt)
}

func TestGetNotFound(t *testing.T) {
	s := New(openTestDB(t), nil)
	_, err := s.Get("unknown")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveIsSingleShot(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()
	rec, err := s.Create(ctx, "sess-1", "user-1", KindLoginRequired, "t", "d", "https://x", "")
	require.NoError(t, err)

	resolved, err := s.Resolve(ctx, rec.ID, ResolutionContinue, "looks fine")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = s.Resolve(ctx, rec.ID, ResolutionCancel, "too late")
	require.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResolveConcurrentOnlyOneWinner(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()
	rec, err := s.Create(ctx, "sess-1", "user-1", KindCaptcha, "t", "d", "https://x", "")
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	successCount := 0
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Resolve(ctx, rec.ID, ResolutionContinue, ""); err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successCount)
}

func TestListFiltersBySessionAndUnresolved(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()
	a, _ := s.Create(ctx, "sess-1", "user-1", KindCaptcha, "t", "d", "https://x", "")
	_, _ = s.Create(ctx, "sess-2", "user-1", KindLoginRequired, "t", "d", "https://y", "")
	_, _ = s.Resolve(ctx, a.ID, ResolutionContinue, "")

	unresolved := s.List(Filter{UserID: "user-1", Unresolved: true})
	require.Len(t, unresolved, 1)
	require.Equal(t, "sess-2", unresolved[0].SessionID)
}

func TestListPausedSessions(t *testing.T) {
	s := New(openTestDB(t), nil)
	ctx := context.Background()
	_, _ = s.Create(ctx, "sess-1", "user-1", KindCaptcha, "t", "d", "https://x", "")
	_, _ = s.Create(ctx, "sess-2", "user-1", KindLoginRequired, "t", "d", "https://y", "")

	ids, err := s.ListPausedSessions(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sess-1", "sess-2"}, ids)
}
