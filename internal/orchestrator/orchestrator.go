// Package orchestrator implements the Orchestrator Agent (C8): drives a
// single application attempt through the navigate -> analyze -> fill ->
// submit step loop, coordinating the Session Manager (C2), Blocker
// Detector (C3), CAPTCHA Solver (C4), ATS Strategy Registry (C5),
// Intervention Store (C6), and Session State Store (C7). Grounded on
// original_source/src/automation/application_pipeline.py's per-job driving
// logic, generalized from one hardcoded HTTP round-trip per job into the
// step loop describes.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/appstate"
	"github.com/javimaligno/goapply-core/internal/blocker"
	"github.com/javimaligno/goapply-core/internal/browser"
	"github.com/javimaligno/goapply-core/internal/captcha"
	"github.com/javimaligno/goapply-core/internal/intervention"
	"github.com/javimaligno/goapply-core/internal/logging"
	"github.com/javimaligno/goapply-core/internal/notify"
	"github.com/javimaligno/goapply-core/internal/session"
	"github.com/javimaligno/goapply-core/internal/strategy"
)

var tracer = otel.Tracer("goapply/orchestrator")

// Status is the terminal (or paused) outcome of Run.
type Status string

const (
	StatusSubmitted          Status = "submitted"
	StatusPaused             Status = "paused"
	StatusNeedsIntervention  Status = "needs_intervention"
	StatusFailed             Status = "failed"
)

// Request is one application attempt's input.
type Request struct {
	JobURL          string
	UserID          string
	UserData        strategy.UserProfile
	CVContent       string
	CVPath          string
	CoverLetter     string
	Mode            appstate.Mode
	AutoSolveCaptcha bool
	MaxSteps        int
	Backend         browser.Backend
}

// Result is Run's output.
type Result struct {
	Status         Status
	SessionID      string
	FieldsFilled   map[string]string
	BlockerType    string
	BlockerMessage string
	FinalURL       string
	Steps          []string
}

const (
	// DefaultMaxSteps is the step budget callers should use when they have
	// no specific reason to pick another number. Run itself does not
	// substitute this for a zero or negative Request.MaxSteps — that is a
	// caller error, not an unset field, and fails immediately.
	DefaultMaxSteps       = 30
	defaultNavTimeout     = 60 * time.Second
	defaultActionTimeout  = 15 * time.Second
	defaultIdleBudget     = 5 * time.Minute
)

// Orchestrator wires together one attempt's collaborators.
type Orchestrator struct {
	sessions      *session.Manager
	strategies    *strategy.Registry
	solver        *captcha.Solver
	interventions *intervention.Store
	states        *appstate.Store
	notifier      *notify.Fanout
	log           *zap.Logger
}

// New builds an Orchestrator from its collaborators. notifier may be nil.
func New(sessions *session.Manager, strategies *strategy.Registry, solver *captcha.Solver, interventions *intervention.Store, states *appstate.Store, notifier *notify.Fanout) *Orchestrator {
	return &Orchestrator{
		sessions:      sessions,
		strategies:    strategies,
		solver:        solver,
		interventions: interventions,
		states:        states,
		notifier:      notifier,
		log:           logging.L().Named("orchestrator"),
	}
}

// Run drives req through the full step loop and
// returns the terminal or paused outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("job_url", req.JobURL),
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	result := Result{FieldsFilled: map[string]string{}}

	if req.MaxSteps <= 0 {
		result.Status = StatusFailed
		span.SetStatus(codes.Error, "no steps")
		return result, fmt.Errorf("orchestrator: no steps")
	}
	maxSteps := req.MaxSteps

	// 1. Open session.
	rec, err := o.sessions.CreateSession(ctx, session.Config{
		Backend: req.Backend,
		Init: browser.InitConfig{
			ViewportWidth:  1280,
			ViewportHeight: 720,
			Headless:       true,
			DefaultTimeout: defaultActionTimeout,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session failed")
		result.Status = StatusFailed
		return result, fmt.Errorf("orchestrator: open session: %w", err)
	}
	result.SessionID = rec.ID

	adapter, err := o.sessions.GetAdapter(rec.ID)
	if err != nil {
		result.Status = StatusFailed
		return result, fmt.Errorf("orchestrator: get adapter: %w", err)
	}

	state := appstate.State{
		SessionID:  rec.ID,
		UserID:     req.UserID,
		JobURL:     req.JobURL,
		Status:     appstate.StatusInProgress,
		Mode:       req.Mode,
		CVContent:  req.CVContent,
		CVFilePath: req.CVPath,
		CoverLetter: req.CoverLetter,
		MaxRetries: 0,
	}
	if err := o.states.Save(ctx, state); err != nil {
		o.log.Warn("failed to persist initial state", zap.Error(err))
	}

	closeSession := true
	defer func() {
		if closeSession {
			_ = o.sessions.CloseSession(context.Background(), rec.ID)
		}
	}()

	// 2. Navigate.
	var navTitle string
	navResult := o.step(ctx, "navigate", func(ctx context.Context) error {
		nav := adapter.Navigate(ctx, req.JobURL, browser.WaitLoad, defaultNavTimeout)
		if !nav.Success {
			return fmt.Errorf("navigate failed: %s", nav.Error)
		}
		result.FinalURL = nav.FinalURL
		navTitle = nav.Title
		return nil
	})
	if navResult != nil {
		result.Status = StatusFailed
		_ = o.states.UpdateStatus(ctx, rec.ID, appstate.StatusFailed, navResult.Error())
		return result, nil
	}
	result.Steps = append(result.Steps, "navigate")
	_ = o.sessions.UpdateActivity(rec.ID)
	_ = o.sessions.UpdateURL(rec.ID, result.FinalURL, &navTitle)

	// 3. Step loop.
	for i := 0; i < maxSteps; i++ {
		dom := adapter.GetDOM(ctx, "", false)
		currentURL := dom.URL
		if currentURL == "" {
			currentURL, _ = adapter.GetCurrentURL(ctx)
		}
		if dom.Success {
			_ = o.sessions.UpdateActivity(rec.ID)
			_ = o.sessions.UpdateURL(rec.ID, currentURL, &dom.Title)
		}

		blockers := blocker.DetectAll(dom.HTMLSnippet, currentURL, "")

		if b, handled := o.handleCaptcha(ctx, adapter, req, rec.ID, currentURL, blockers, &result); handled {
			if b {
				continue
			}
			return result, nil
		}

		if b, found := firstOfKind(blockers, blocker.KindLoginRequired); found {
			o.pauseForIntervention(ctx, req, rec.ID, currentURL, intervention.KindLoginRequired, "Login required", b.Message, &result)
			return result, nil
		}

		strat, found := o.strategies.Detect(ctx, dom.HTMLSnippet, currentURL)
		if !found {
			o.pauseForIntervention(ctx, req, rec.ID, currentURL, intervention.KindUnknown, "Unrecognized application form", "no ATS strategy matched this page", &result)
			return result, nil
		}

		fillResult := strat.FillForm(ctx, adapter, req.UserData, req.CVPath, req.CoverLetter)
		for k, v := range fillResult.FieldsFilled {
			result.FieldsFilled[k] = v
		}
		_ = o.states.UpdateProgress(ctx, rec.ID, fmt.Sprintf("fill_form:%s", strat.Name()), fillResult.FieldsFilled, currentURL)
		result.Steps = append(result.Steps, "fill_form")
		if fillResult.Success {
			_ = o.sessions.UpdateActivity(rec.ID)
		}
		if o.notifier != nil {
			pct := 50
			if maxSteps > 0 {
				pct = (i + 1) * 100 / maxSteps
			}
			o.notifier.BroadcastProgress(rec.ID, "fill_form", pct, fmt.Sprintf("filled %d fields", len(fillResult.FieldsFilled)))
		}

		if len(fillResult.Errors) > 0 {
			o.pauseForIntervention(ctx, req, rec.ID, currentURL, intervention.KindUnknown, "Unanswered custom questions", fmt.Sprintf("%d fields could not be filled", len(fillResult.Errors)), &result)
			return result, nil
		}

		if req.Mode == appstate.ModeAssisted {
			o.pauseForReview(ctx, req, rec.ID, currentURL, &result)
			return result, nil
		}

		submit := strat.Submit(ctx, adapter)
		result.Steps = append(result.Steps, "submit")
		if submit.Success {
			_ = o.sessions.UpdateActivity(rec.ID)
			result.Status = StatusSubmitted
			now := time.Now()
			_ = o.states.UpdateStatus(ctx, rec.ID, appstate.StatusSubmitted, "")
			o.broadcastStatus(rec.ID, string(appstate.StatusInProgress), string(appstate.StatusSubmitted), "application submitted")
			_ = now
			return result, nil
		}

		// Submit failed: loop again and let the next iteration's blocker
		// detection decide whether a new obstacle appeared.
		result.Steps = append(result.Steps, "submit_retry")
	}

	o.pauseForIntervention(ctx, req, rec.ID, result.FinalURL, intervention.KindUnknown, "Step budget exhausted", "max_steps reached without reaching a terminal state", &result)
	return result, nil
}

// step runs fn inside its own span named "orchestrator.step."+name.
func (o *Orchestrator) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "orchestrator.step."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// handleCaptcha inspects blockers for a captcha kind. When auto-solve is
// enabled and succeeds it injects the token and reports (true, true) to
// continue the loop; on failure, or when auto-solve is disabled, it creates
// an intervention and reports (false, true) to stop. Absence of a captcha
// blocker reports (false, false).
func (o *Orchestrator) handleCaptcha(ctx context.Context, adapter browser.Adapter, req Request, sessionID, currentURL string, blockers []blocker.Blocker, result *Result) (bool, bool) {
	b, found := firstOfKind(blockers, blocker.KindCaptcha)
	if !found {
		return false, false
	}

	if req.AutoSolveCaptcha && o.solver != nil {
		dom := adapter.GetDOM(ctx, "", false)
		solved := o.solver.SolveFromHTML(ctx, dom.HTMLSnippet, currentURL)
		if solved.Success {
			script := captcha.InjectionScript(solved.Family, solved.Token)
			adapter.Evaluate(ctx, script)
			_ = o.sessions.UpdateActivity(sessionID)
			result.Steps = append(result.Steps, "captcha_solved")
			return true, true
		}
		o.log.Warn("captcha auto-solve failed", zap.String("error", solved.Error))
	}

	o.pauseForIntervention(ctx, req, sessionID, currentURL, intervention.KindCaptcha, "CAPTCHA blocked", b.Message, result)
	return false, true
}

func firstOfKind(blockers []blocker.Blocker, kind blocker.Kind) (blocker.Blocker, bool) {
	for _, b := range blockers {
		if b.Type == kind {
			return b, true
		}
	}
	return blocker.Blocker{}, false
}

// pauseForIntervention creates an intervention, persists state, and returns
// needs_intervention.
func (o *Orchestrator) pauseForIntervention(ctx context.Context, req Request, sessionID, currentURL string, kind intervention.Kind, title, description string, result *Result) {
	rec, err := o.interventions.Create(ctx, sessionID, req.UserID, kind, title, description, currentURL, "")
	if err != nil {
		o.log.Warn("failed to create intervention", zap.Error(err))
	} else {
		result.BlockerType = string(kind)
		result.BlockerMessage = description
		_ = o.states.UpdateStatus(ctx, sessionID, appstate.StatusNeedsIntervention, description)
		s, loadErr := o.states.Load(ctx, sessionID)
		if loadErr == nil {
			s.InterventionID = rec.ID
			s.BlockerType = string(kind)
			s.BlockerMessage = description
			_ = o.states.Save(ctx, s)
		}
		o.broadcastStatus(sessionID, string(appstate.StatusInProgress), string(appstate.StatusNeedsIntervention), description)
	}
	result.Status = StatusNeedsIntervention
	result.FinalURL = currentURL
}

// pauseForReview implements step g: assisted mode always pauses
// before submit for a human to review and confirm.
func (o *Orchestrator) pauseForReview(ctx context.Context, req Request, sessionID, currentURL string, result *Result) {
	_, err := o.interventions.Create(ctx, sessionID, req.UserID, intervention.KindPreSubmit, "Ready to submit", "Review filled fields before submitting", currentURL, "")
	if err != nil {
		o.log.Warn("failed to create pre-submit intervention", zap.Error(err))
	}
	_ = o.states.UpdateStatus(ctx, sessionID, appstate.StatusPaused, "")
	o.broadcastStatus(sessionID, string(appstate.StatusInProgress), string(appstate.StatusPaused), "assisted mode pre-submit pause")
	result.Status = StatusPaused
	result.FinalURL = currentURL
}

func (o *Orchestrator) broadcastStatus(sessionID, oldStatus, newStatus, reason string) {
	if o.notifier != nil {
		o.notifier.BroadcastStatusChange(sessionID, oldStatus, newStatus, reason)
	}
}
