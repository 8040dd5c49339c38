package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/javimaligno/goapply-core/internal/appstate"
	"github.com/javimaligno/goapply-core/internal/browser"
	"github.com/javimaligno/goapply-core/internal/intervention"
	"github.com/javimaligno/goapply-core/internal/jobstore"
	"github.com/javimaligno/goapply-core/internal/orchestrator"
	"github.com/javimaligno/goapply-core/internal/session"
	"github.com/javimaligno/goapply-core/internal/storage"
	"github.com/javimaligno/goapply-core/internal/strategy"
)

// fakeAdapter is a minimal always-succeeding browser.Adapter double.
type fakeAdapter struct{}

func (f *fakeAdapter) Backend() browser.Backend { return browser.BackendDirect }
func (f *fakeAdapter) Initialize(ctx context.Context, cfg browser.InitConfig) browser.OperationResult {
	return browser.OperationResult{Success: true}
}
func (f *fakeAdapter) Close(ctx context.Context) browser.OperationResult {
	return browser.OperationResult{Success: true}
}
func (f *fakeAdapter) Navigate(ctx context.Context, url string, w browser.WaitUntil, t time.Duration) browser.NavigateResult {
	return browser.NavigateResult{OperationResult: browser.OperationResult{Success: true}, FinalURL: url}
}
func (f *fakeAdapter) Fill(ctx context.Context, locator, value string, clearFirst, force bool, t time.Duration) browser.OperationResult {
	return browser.OperationResult{Success: true}
}
func (f *fakeAdapter) Click(ctx context.Context, locator, button string, count int, force bool, t time.Duration) browser.OperationResult {
	return browser.OperationResult{Success: true}
}
func (f *fakeAdapter) Select(ctx context.Context, l, v string) browser.OperationResult {
	return browser.OperationResult{Success: true}
}
func (f *fakeAdapter) Upload(ctx context.Context, locator, filePath string) browser.OperationResult {
	return browser.OperationResult{Success: true}
}
func (f *fakeAdapter) Screenshot(ctx context.Context, full bool, p string) browser.ScreenshotResult {
	return browser.ScreenshotResult{}
}
func (f *fakeAdapter) Evaluate(ctx context.Context, script string, args ...any) browser.EvaluateResult {
	return browser.EvaluateResult{OperationResult: browser.OperationResult{Success: true}}
}
func (f *fakeAdapter) GetDOM(ctx context.Context, scope string, formFieldsOnly bool) browser.DOMResult {
	return browser.DOMResult{OperationResult: browser.OperationResult{Success: true}, URL: "https://x/apply", HTMLSnippet: "<html><body><form></form></body></html>"}
}
func (f *fakeAdapter) WaitFor(ctx context.Context, l string, st browser.ElementState, t time.Duration) browser.WaitForResult {
	return browser.WaitForResult{Satisfied: true}
}
func (f *fakeAdapter) GetCurrentURL(ctx context.Context) (string, error)     { return "https://x/apply", nil }
func (f *fakeAdapter) GetPageTitle(ctx context.Context) (string, error)      { return "Apply", nil }
func (f *fakeAdapter) GetPageContent(ctx context.Context) (string, error)    { return "", nil }

// fakeStrategy always fills and submits successfully.
type fakeStrategy struct{ strategy.BaseStrategy }

func (s *fakeStrategy) Name() string                                           { return "fake" }
func (s *fakeStrategy) URLPatterns() []string                                  { return []string{`.*`} }
func (s *fakeStrategy) Detect(ctx context.Context, html, url string) bool      { return true }
func (s *fakeStrategy) AnalyzeForm(ctx context.Context, adapter browser.Adapter) (strategy.FormAnalysis, error) {
	return strategy.FormAnalysis{}, nil
}
func (s *fakeStrategy) FillForm(ctx context.Context, adapter browser.Adapter, profile strategy.UserProfile, cvPath, coverLetter string) strategy.FormFillResult {
	return strategy.FormFillResult{Success: true, FieldsFilled: map[string]string{"#first_name": profile.FirstName}}
}
func (s *fakeStrategy) Submit(ctx context.Context, adapter browser.Adapter) strategy.SubmitResult {
	return strategy.SubmitResult{Success: true}
}

// fakeJobs is an in-memory jobstore.JobStore double.
type fakeJobs struct {
	jobs     []jobstore.Job
	statuses map[string]string
}

func (f *fakeJobs) ListJobs(ctx context.Context, userID, status string, pageSize int) ([]jobstore.Job, error) {
	out := f.jobs
	if len(out) > pageSize {
		out = out[:pageSize]
	}
	return out, nil
}

func (f *fakeJobs) GetJob(ctx context.Context, id string) (jobstore.Job, error) {
	for _, j := range f.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return jobstore.Job{}, fmt.Errorf("job %s not found", id)
}

func (f *fakeJobs) UpdateJobStatus(ctx context.Context, id, status, blockerKind, blockerDetails string) error {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[id] = status
	return nil
}

// fakeUsers is an in-memory jobstore.UserStore double.
type fakeUsers struct {
	user           jobstore.User
	linkedInStatus bool
}

func (f *fakeUsers) GetUser(ctx context.Context, id string) (jobstore.User, error) {
	return f.user, nil
}

func (f *fakeUsers) GetLinkedInStatus(ctx context.Context, userID string) (bool, error) {
	return f.linkedInStatus, nil
}

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()

	sessions := session.New(func(backend browser.Backend) (browser.Adapter, error) {
		return &fakeAdapter{}, nil
	}, time.Hour, time.Hour)

	registry := strategy.NewRegistry()
	registry.Register(&fakeStrategy{})

	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	interventions := intervention.New(db, nil)
	states, err := appstate.New(t.TempDir(), db)
	require.NoError(t, err)

	return orchestrator.New(sessions, registry, nil, interventions, states, nil)
}

func TestRunAppliesToAllJobsAndSubmits(t *testing.T) {
	jobs := &fakeJobs{jobs: []jobstore.Job{
		{ID: "job-1", SourceURL: "https://company.example/apply/1"},
		{ID: "job-2", SourceURL: "https://company.example/apply/2"},
	}}
	users := &fakeUsers{user: jobstore.User{ID: "user-1", FirstName: "Ada"}}

	p := New(jobs, users, newTestOrchestrator(t), nil, nil, nil)

	report, err := p.Run(context.Background(), "user-1", nil, appstate.ModeAuto, Config{DelayBetweenApps: time.Millisecond})

	require.NoError(t, err)
	require.Equal(t, 2, report.TotalJobs)
	require.Equal(t, 2, report.Submitted)
	require.Len(t, report.Attempts, 2)
	require.Equal(t, "applied", jobs.statuses["job-1"])
	require.Equal(t, "applied", jobs.statuses["job-2"])
}

func TestRunSkipsIndeedJobs(t *testing.T) {
	jobs := &fakeJobs{jobs: []jobstore.Job{
		{ID: "job-1", SourceURL: "https://www.indeed.com/viewjob?jk=abc"},
	}}
	users := &fakeUsers{user: jobstore.User{ID: "user-1"}}

	p := New(jobs, users, newTestOrchestrator(t), nil, nil, nil)

	report, err := p.Run(context.Background(), "user-1", nil, appstate.ModeAuto, Config{})

	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 0, report.Submitted)
	require.Equal(t, "inbox", jobs.statuses["job-1"])
}

func TestRunSkipsLinkedInWithoutConnectedSession(t *testing.T) {
	jobs := &fakeJobs{jobs: []jobstore.Job{
		{ID: "job-1", SourceURL: "https://www.linkedin.com/jobs/view/123"},
	}}
	users := &fakeUsers{user: jobstore.User{ID: "user-1"}, linkedInStatus: false}

	p := New(jobs, users, newTestOrchestrator(t), nil, nil, nil)

	report, err := p.Run(context.Background(), "user-1", nil, appstate.ModeAuto, Config{})

	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
}

func TestRunAppliesLinkedInWithConnectedSession(t *testing.T) {
	jobs := &fakeJobs{jobs: []jobstore.Job{
		{ID: "job-1", SourceURL: "https://www.linkedin.com/jobs/view/123"},
	}}
	users := &fakeUsers{user: jobstore.User{ID: "user-1"}, linkedInStatus: true}

	p := New(jobs, users, newTestOrchestrator(t), nil, nil, nil)

	report, err := p.Run(context.Background(), "user-1", nil, appstate.ModeAuto, Config{})

	require.NoError(t, err)
	require.Equal(t, 0, report.Skipped)
	require.Equal(t, 1, report.Submitted)
}

func TestRunNarrowsToExplicitJobIDs(t *testing.T) {
	jobs := &fakeJobs{jobs: []jobstore.Job{
		{ID: "job-1", SourceURL: "https://company.example/apply/1"},
		{ID: "job-2", SourceURL: "https://company.example/apply/2"},
	}}
	users := &fakeUsers{user: jobstore.User{ID: "user-1"}}

	p := New(jobs, users, newTestOrchestrator(t), nil, nil, nil)

	report, err := p.Run(context.Background(), "user-1", []string{"job-2"}, appstate.ModeAuto, Config{})

	require.NoError(t, err)
	require.Equal(t, 1, report.TotalJobs)
	require.Equal(t, "job-2", report.Attempts[0].JobID)
}

func TestIsRetryableMatchesWhitelist(t *testing.T) {
	require.True(t, isRetryable(fmt.Errorf("received 429 Too Many Requests")))
	require.True(t, isRetryable(fmt.Errorf("dial tcp: connection refused")))
	require.True(t, isRetryable(fmt.Errorf("unhandled errors in a TaskGroup")))
	require.False(t, isRetryable(fmt.Errorf("invalid credentials")))
}

func TestSaveReportWritesJSONFile(t *testing.T) {
	report := Report{UserID: "user-1", StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), TotalJobs: 1}

	path, err := SaveReport(t.TempDir(), report)

	require.NoError(t, err)
	require.Contains(t, path, "pipeline_report_20260102_030405.json")
}
