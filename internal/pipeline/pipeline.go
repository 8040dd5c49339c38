// Package pipeline drives a batch run of the automation core across many
// jobs for one user: fetching candidate jobs, skipping ones the strategy
// can't safely handle, retrying transient failures with backoff, pacing
// requests between jobs, and writing a summary report. Generalized from
// the job-selection, retry, and reporting logic of the original batch
// runner.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/appstate"
	"github.com/javimaligno/goapply-core/internal/browser"
	"github.com/javimaligno/goapply-core/internal/jobstore"
	"github.com/javimaligno/goapply-core/internal/metrics"
	"github.com/javimaligno/goapply-core/internal/orchestrator"
	"github.com/javimaligno/goapply-core/internal/ratelimit"
	"github.com/javimaligno/goapply-core/internal/strategy"
)

// retryableSubstrings is the whitelist of error-message fragments that
// qualify a failed attempt for a retry rather than an immediate skip.
var retryableSubstrings = []string{
	"429",
	"too many requests",
	"rate limit",
	"taskgroup",
	"timeout",
	"connection",
	"temporary",
}

// Config controls batch behavior. Zero values are replaced by Run's
// defaults (MaxApplications=5, DelayBetweenApps=60s, MaxRetries=3,
// RetryDelayBase=120s, MaxSteps=orchestrator.DefaultMaxSteps).
type Config struct {
	MaxApplications  int
	DelayBetweenApps time.Duration
	MaxRetries       int
	RetryDelayBase   time.Duration
	MaxSteps         int
	AutoSubmit       bool
	AutoSolveCaptcha bool
	Backend          browser.Backend
}

func (c Config) withDefaults() Config {
	if c.MaxApplications <= 0 {
		c.MaxApplications = 5
	}
	if c.DelayBetweenApps <= 0 {
		c.DelayBetweenApps = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelayBase <= 0 {
		c.RetryDelayBase = 120 * time.Second
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = orchestrator.DefaultMaxSteps
	}
	return c
}

// AttemptRecord is one job's outcome in a Report.
type AttemptRecord struct {
	JobID       string    `json:"job_id"`
	SourceURL   string    `json:"source_url"`
	Result      string    `json:"result"`
	Retries     int       `json:"retries"`
	Error       string    `json:"error,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	BlockerType string    `json:"blocker_type,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Report summarizes one batch run, mirroring the original pipeline's
// end-of-run summary fields.
type Report struct {
	UserID        string          `json:"user_id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	TotalJobs     int             `json:"total_jobs"`
	Submitted     int             `json:"submitted"`
	Paused        int             `json:"paused"`
	Intervention  int             `json:"needs_intervention"`
	Skipped       int             `json:"skipped"`
	Failed        int             `json:"failed"`
	Attempts      []AttemptRecord `json:"attempts"`
}

// Pipeline is the batch driver. It owns no storage of its own: jobs, users,
// and rate limits are all read through the external contracts injected at
// construction.
type Pipeline struct {
	jobs         jobstore.JobStore
	users        jobstore.UserStore
	orchestrator *orchestrator.Orchestrator
	limiter      *ratelimit.Limiter
	metrics      *metrics.Metrics
	log          *zap.Logger
}

// New builds a Pipeline. metrics may be nil to disable instrumentation.
func New(jobs jobstore.JobStore, users jobstore.UserStore, orch *orchestrator.Orchestrator, limiter *ratelimit.Limiter, m *metrics.Metrics, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{jobs: jobs, users: users, orchestrator: orch, limiter: limiter, metrics: m, log: log}
}

// Run fetches the user's "inbox" jobs (optionally narrowed to jobIDs),
// applies skip rules, and drives each surviving job through the
// orchestrator with retry and pacing, returning a Report.
func (p *Pipeline) Run(ctx context.Context, userID string, jobIDs []string, mode appstate.Mode, cfg Config) (Report, error) {
	cfg = cfg.withDefaults()

	report := Report{UserID: userID, StartedAt: time.Now()}

	user, err := p.users.GetUser(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("pipeline: load user %s: %w", userID, err)
	}

	jobs, err := p.jobsToApply(ctx, userID, jobIDs, cfg.MaxApplications)
	if err != nil {
		return report, fmt.Errorf("pipeline: load jobs: %w", err)
	}
	report.TotalJobs = len(jobs)

	profile := profileFromUser(user)

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			break
		}

		if skip, reason := p.shouldSkip(ctx, userID, job); skip {
			p.log.Info("skipping job", zap.String("job_id", job.ID), zap.String("reason", reason))
			p.recordJobStatus(ctx, job.ID, "skipped", "", "")
			report.Skipped++
			report.Attempts = append(report.Attempts, AttemptRecord{
				JobID: job.ID, SourceURL: job.SourceURL, Result: "skipped", Error: reason,
				StartedAt: time.Now(), FinishedAt: time.Now(),
			})
			continue
		}

		if p.limiter != nil {
			if err := p.limiter.CheckLimit(ctx, userID, mode); err != nil {
				var denied *ratelimit.ErrLimitExceeded
				if p.metrics != nil && errors.As(err, &denied) {
					p.metrics.RecordRateLimitDenial(denied.Period)
				}
				p.log.Warn("rate limit reached, stopping batch", zap.Error(err))
				break
			}
		}

		record := p.applyWithRetry(ctx, job, profile, userID, mode, cfg)
		report.Attempts = append(report.Attempts, record)

		switch record.Result {
		case string(orchestrator.StatusSubmitted):
			report.Submitted++
			if p.limiter != nil {
				_ = p.limiter.RecordSubmission(ctx, userID, mode)
			}
		case string(orchestrator.StatusPaused):
			report.Paused++
		case string(orchestrator.StatusNeedsIntervention):
			report.Intervention++
		default:
			report.Failed++
		}

		p.recordJobStatus(ctx, job.ID, mapResultToJobStatus(record.Result), record.BlockerType, record.Error)

		if i < len(jobs)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.DelayBetweenApps):
			}
		}
	}

	report.FinishedAt = time.Now()
	return report, nil
}

// applyWithRetry drives one job through the orchestrator, retrying on
// retryable errors up to cfg.MaxRetries with linear backoff.
func (p *Pipeline) applyWithRetry(ctx context.Context, job jobstore.Job, profile strategy.UserProfile, userID string, mode appstate.Mode, cfg Config) AttemptRecord {
	started := time.Now()
	record := AttemptRecord{JobID: job.ID, SourceURL: job.SourceURL, StartedAt: started}

	req := orchestrator.Request{
		JobURL:           job.SourceURL,
		UserID:           userID,
		UserData:         profile,
		Mode:             mode,
		AutoSolveCaptcha: cfg.AutoSolveCaptcha,
		MaxSteps:         cfg.MaxSteps,
		Backend:          cfg.Backend,
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := p.orchestrator.Run(ctx, req)
		if err == nil && result.Status != orchestrator.StatusFailed {
			record.Result = string(result.Status)
			record.SessionID = result.SessionID
			record.BlockerType = result.BlockerType
			record.Retries = attempt
			record.FinishedAt = time.Now()
			if p.metrics != nil {
				p.metrics.RecordAttempt(record.Result, record.FinishedAt.Sub(started))
			}
			return record
		}

		if err == nil {
			err = fmt.Errorf("%s", result.BlockerMessage)
		}
		lastErr = err
		if !isRetryable(err) || attempt == cfg.MaxRetries {
			break
		}

		if p.metrics != nil {
			p.metrics.RecordRetry(job.ID)
		}
		p.log.Info("retrying job after transient error",
			zap.String("job_id", job.ID), zap.Int("attempt", attempt+1), zap.Error(err))

		delay := time.Duration(attempt+1) * cfg.RetryDelayBase
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = cfg.MaxRetries
		case <-time.After(delay):
		}
	}

	record.Result = "failed"
	record.Retries = cfg.MaxRetries
	record.Error = lastErr.Error()
	record.FinishedAt = time.Now()
	if p.metrics != nil {
		p.metrics.RecordAttempt(record.Result, record.FinishedAt.Sub(started))
	}
	return record
}

// jobsToApply fetches the user's actionable job queue, optionally
// narrowed to an explicit jobIDs allow-list, capped at limit entries.
func (p *Pipeline) jobsToApply(ctx context.Context, userID string, jobIDs []string, limit int) ([]jobstore.Job, error) {
	if len(jobIDs) > 0 {
		jobs := make([]jobstore.Job, 0, len(jobIDs))
		for _, id := range jobIDs {
			job, err := p.jobs.GetJob(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("job %s: %w", id, err)
			}
			jobs = append(jobs, job)
		}
		if len(jobs) > limit {
			jobs = jobs[:limit]
		}
		return jobs, nil
	}

	return p.jobs.ListJobs(ctx, userID, "inbox", limit)
}

// shouldSkip applies the two hard skip rules: LinkedIn Easy Apply jobs are
// skipped unless the user has a connected LinkedIn session, and any job
// sourced from Indeed is always skipped (its anti-automation posture makes
// unattended submission unsafe).
func (p *Pipeline) shouldSkip(ctx context.Context, userID string, job jobstore.Job) (bool, string) {
	lower := strings.ToLower(job.SourceURL)

	if strings.Contains(lower, "indeed.com") {
		return true, "indeed jobs are never auto-applied"
	}

	if strings.Contains(lower, "linkedin.com") {
		connected, err := p.users.GetLinkedInStatus(ctx, userID)
		if err != nil || !connected {
			return true, "no connected LinkedIn session"
		}
	}

	return false, ""
}

// recordJobStatus best-effort propagates an outcome back to the job store;
// failures are logged, not fatal to the batch.
func (p *Pipeline) recordJobStatus(ctx context.Context, jobID, status, blockerKind, blockerDetails string) {
	if err := p.jobs.UpdateJobStatus(ctx, jobID, status, blockerKind, blockerDetails); err != nil {
		p.log.Warn("failed to update job status", zap.String("job_id", jobID), zap.Error(err))
	}
}

// mapResultToJobStatus converts an orchestrator/attempt result into the
// job-store status vocabulary.
func mapResultToJobStatus(result string) string {
	switch result {
	case string(orchestrator.StatusSubmitted):
		return "applied"
	case string(orchestrator.StatusPaused):
		return "ready"
	case string(orchestrator.StatusNeedsIntervention):
		return "blocked"
	case "skipped":
		return "inbox"
	default:
		return "inbox"
	}
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func profileFromUser(u jobstore.User) strategy.UserProfile {
	return strategy.UserProfile{
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Phone:        u.Phone,
		PhoneCountryCode: u.PhoneCountryCode,
		City:         u.City,
		Country:      u.Country,
		LinkedInURL:  u.LinkedInURL,
		GitHubURL:    u.GitHubURL,
		PortfolioURL: u.PortfolioURL,
	}
}

// SaveReport writes report as indented JSON to dir/pipeline_report_<ts>.json
// and returns the full path written.
func SaveReport(dir string, report Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pipeline: create report dir: %w", err)
	}

	name := fmt.Sprintf("pipeline_report_%s.json", report.StartedAt.UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("pipeline: marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("pipeline: write report: %w", err)
	}

	return path, nil
}
