package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/javimaligno/goapply-core/internal/appstate"
	"github.com/javimaligno/goapply-core/internal/browser"
	"github.com/javimaligno/goapply-core/internal/intervention"
	"github.com/javimaligno/goapply-core/internal/session"
	"github.com/javimaligno/goapply-core/internal/storage"
	"github.com/javimaligno/goapply-core/internal/strategy"
)

// fakeAdapter is a scriptable browser.Adapter test double: each call to
// GetDOM returns the next entry in htmlSequence (repeating the last one
// once exhausted), letting a test simulate a page changing across loop
// iterations (e.g. a blocker disappearing after a simulated captcha solve).
type fakeAdapter struct {
	htmlSequence []string
	domCalls     int
	urlCalls     int
	submitted    bool
	submitOK     bool
}

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
	idx := f.domCalls
	if idx >= len(f.htmlSequence) {
		idx = len(f.htmlSequence) - 1
	}
	f.domCalls++
	return browser.DOMResult{OperationResult: browser.OperationResult{Success: true}, URL: "https://x/apply", HTMLSnippet: f.htmlSequence[idx]}
}
func (f *fakeAdapter) WaitFor(ctx context.Context, l string, st browser.ElementState, t time.Duration) browser.WaitForResult {
	return browser.WaitForResult{Satisfied: true}
}
func (f *fakeAdapter) GetCurrentURL(ctx context.Context) (string, error) {
	f.urlCalls++
	return "https://x/apply", nil
}
func (f *fakeAdapter) GetPageTitle(ctx context.Context) (string, error)   { return "Apply", nil }
func (f *fakeAdapter) GetPageContent(ctx context.Context) (string, error) { return "", nil }

// fakeStrategy always succeeds at fill and lets its Submit outcome be
// configured per test.
type fakeStrategy struct {
	strategy.BaseStrategy
	submitSuccess bool
}

func (s *fakeStrategy) Name() string              { return "fake" }
func (s *fakeStrategy) URLPatterns() []string      { return []string{`.*`} }
func (s *fakeStrategy) Detect(ctx context.Context, html, url string) bool { return true }
func (s *fakeStrategy) AnalyzeForm(ctx context.Context, adapter browser.Adapter) (strategy.FormAnalysis, error) {
	return strategy.FormAnalysis{}, nil
}
func (s *fakeStrategy) FillForm(ctx context.Context, adapter browser.Adapter, profile strategy.UserProfile, cvPath, coverLetter string) strategy.FormFillResult {
	return strategy.FormFillResult{Success: true, FieldsFilled: map[string]string{"#first_name": profile.FirstName}}
}
func (s *fakeStrategy) Submit(ctx context.Context, adapter browser.Adapter) strategy.SubmitResult {
	return strategy.SubmitResult{Success: s.submitSuccess}
}

func newTestOrchestrator(t *testing.T, adapter browser.Adapter, strat strategy.Strategy) *Orchestrator {
	t.Helper()

	sessions := session.New(func(backend browser.Backend) (browser.Adapter, error) {
		return adapter, nil
	}, time.Hour, time.Hour)

	registry := strategy.NewRegistry()
	registry.Register(strat)

	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	interventions := intervention.New(db, nil)
	states, err := appstate.New(t.TempDir(), db)
	require.NoError(t, err)

	return New(sessions, registry, nil, interventions, states, nil)
}

func TestRunSubmitsSuccessfullyInAutoMode(t *testing.T) {
	adapter := &fakeAdapter{htmlSequence: []string{"<html><body><form></form></body></html>"}}
	strat := &fakeStrategy{submitSuccess: true}
	o := newTestOrchestrator(t, adapter, strat)

	req := Request{JobURL: "https://x/apply", UserID: "user-1", UserData: strategy.UserProfile{FirstName: "Ada"}, Mode: appstate.ModeAuto, MaxSteps: 5}
	result, err := o.Run(context.Background(), req)

	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, result.Status)
	require.Equal(t, "Ada", result.FieldsFilled["#first_name"])
}

func TestRunUpdatesSessionActivityAndURLOnEachStep(t *testing.T) {
	adapter := &fakeAdapter{htmlSequence: []string{"<html><body><form></form></body></html>"}}
	strat := &fakeStrategy{submitSuccess: true}

	sessions := session.New(func(backend browser.Backend) (browser.Adapter, error) {
		return adapter, nil
	}, time.Hour, time.Hour)

	registry := strategy.NewRegistry()
	registry.Register(strat)

	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	interventions := intervention.New(db, nil)
	states, err := appstate.New(t.TempDir(), db)
	require.NoError(t, err)

	o := New(sessions, registry, nil, interventions, states, nil)

	req := Request{JobURL: "https://x/apply", UserID: "user-1", Mode: appstate.ModeAuto, MaxSteps: 5}
	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, result.Status)

	rec, err := sessions.GetSession(result.SessionID)
	require.NoError(t, err)
	require.Greater(t, rec.ActionCount, 0)
	require.Equal(t, "https://x/apply", rec.CurrentURL)
}

func TestRunFailsImmediatelyWithZeroMaxSteps(t *testing.T) {
	adapter := &fakeAdapter{htmlSequence: []string{"<html><body><form></form></body></html>"}}
	strat := &fakeStrategy{submitSuccess: true}
	o := newTestOrchestrator(t, adapter, strat)

	req := Request{JobURL: "https://x/apply", UserID: "user-1", Mode: appstate.ModeAuto, MaxSteps: 0}
	result, err := o.Run(context.Background(), req)

	require.Error(t, err)
	require.Equal(t, StatusFailed, result.Status)
}

func TestRunPausesBeforeSubmitInAssistedMode(t *testing.T) {
	adapter := &fakeAdapter{htmlSequence: []string{"<html><body><form></form></body></html>"}}
	strat := &fakeStrategy{submitSuccess: true}
	o := newTestOrchestrator(t, adapter, strat)

	req := Request{JobURL: "https://x/apply", UserID: "user-1", Mode: appstate.ModeAssisted, MaxSteps: 5}
	result, err := o.Run(context.Background(), req)

	require.NoError(t, err)
	require.Equal(t, StatusPaused, result.Status)

	state, err := o.states.Load(context.Background(), result.SessionID)
	require.NoError(t, err)
	require.Equal(t, appstate.StatusPaused, state.Status)
}

func TestRunCreatesInterventionOnLoginRequired(t *testing.T) {
	loginHTML := `<html><body><p>Please log in to continue</p></body></html>`
	adapter := &fakeAdapter{htmlSequence: []string{loginHTML}}
	strat := &fakeStrategy{submitSuccess: true}
	o := newTestOrchestrator(t, adapter, strat)

	req := Request{JobURL: "https://x/apply", UserID: "user-1", Mode: appstate.ModeAuto, MaxSteps: 5}
	result, err := o.Run(context.Background(), req)

	require.NoError(t, err)
	require.Equal(t, StatusNeedsIntervention, result.Status)
	require.Equal(t, string(intervention.KindLoginRequired), result.BlockerType)
}

func TestRunReturnsNeedsInterventionWhenSubmitKeepsFailing(t *testing.T) {
	adapter := &fakeAdapter{htmlSequence: []string{"<html><body><form></form></body></html>"}}
	strat := &fakeStrategy{submitSuccess: false}
	o := newTestOrchestrator(t, adapter, strat)

	req := Request{JobURL: "https://x/apply", UserID: "user-1", Mode: appstate.ModeAuto, MaxSteps: 2}
	result, err := o.Run(context.Background(), req)

	require.NoError(t, err)
	require.Equal(t, StatusNeedsIntervention, result.Status)
}
