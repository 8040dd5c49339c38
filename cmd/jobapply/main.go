// Command jobapply drives a batch run of the automation core against one
// user's job queue. It is a direct composition root: every collaborator
// package is wired here and driven through one pipeline.Run call.
//
// Usage:
//
//	jobapply --user-id <id> [--max N] [--delay S] [--job-ids id1,id2]
//	         [--auto-submit] [--api-url http://host:port] [--scan-email]
//	         [--format human|json|csv|yaml] [--trace]
//
// Exit codes: 0 when no job failed or needs intervention; 1 on a
// configuration or setup error, or when any job failed or needs
// intervention; 2 when the pipeline run itself fails (the user or the job
// list could not be loaded).
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/javimaligno/goapply-core/internal/appstate"
	"github.com/javimaligno/goapply-core/internal/browser"
	"github.com/javimaligno/goapply-core/internal/captcha"
	"github.com/javimaligno/goapply-core/internal/config"
	"github.com/javimaligno/goapply-core/internal/intervention"
	"github.com/javimaligno/goapply-core/internal/jobstore"
	"github.com/javimaligno/goapply-core/internal/logging"
	"github.com/javimaligno/goapply-core/internal/metrics"
	"github.com/javimaligno/goapply-core/internal/notify"
	"github.com/javimaligno/goapply-core/internal/orchestrator"
	"github.com/javimaligno/goapply-core/internal/pipeline"
	"github.com/javimaligno/goapply-core/internal/ratelimit"
	"github.com/javimaligno/goapply-core/internal/session"
	"github.com/javimaligno/goapply-core/internal/storage"
	"github.com/javimaligno/goapply-core/internal/strategy"
	"github.com/javimaligno/goapply-core/internal/tracing"

	gooutput "github.com/javimaligno/goapply-core/cmd/gasoline-cmd/output"
)

// version is set at build time via -ldflags.
var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		userID     string
		maxApps    int
		delayS     int
		jobIDsCSV  string
		autoSubmit bool
		apiURL     string
		scanEmail  bool
		format     string
		configFile string
		trace      bool
	)

	exitCode := 0

	root := &cobra.Command{
		Use:     "jobapply",
		Short:   "Run the automated job-application pipeline for one user",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runPipeline(cmd.Context(), userID, maxApps, delayS, jobIDsCSV, autoSubmit, apiURL, scanEmail, format, configFile, trace)
			exitCode = code
			return err
		},
		SilenceUsage: true,
	}

	flags := root.Flags()
	flags.StringVar(&userID, "user-id", "", "user to run the pipeline for (required)")
	flags.IntVar(&maxApps, "max", 5, "maximum applications to attempt")
	flags.IntVar(&delayS, "delay", 60, "seconds to wait between applications")
	flags.StringVar(&jobIDsCSV, "job-ids", "", "comma-separated job IDs to restrict the run to")
	flags.BoolVar(&autoSubmit, "auto-submit", false, "submit applications automatically instead of pausing for review")
	flags.StringVar(&apiURL, "api-url", "http://localhost:8000", "base URL of the external job/user API")
	flags.BoolVar(&scanEmail, "scan-email", false, "scan inbox for new postings before running (not implemented: out of scope)")
	flags.StringVar(&format, "format", "human", "report output format: human|json|csv|yaml")
	flags.StringVar(&configFile, "config", "", "path to a config file")
	flags.BoolVar(&trace, "trace", false, "emit orchestrator spans as JSON to stderr")
	_ = root.MarkFlagRequired("user-id")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: bind flags: %v\n", err)
		return 1
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

// runPipeline builds every collaborator and drives one pipeline.Run,
// returning the process exit code alongside any error.
func runPipeline(ctx context.Context, userID string, maxApps, delayS int, jobIDsCSV string, autoSubmit bool, apiURL string, scanEmail bool, format, configFile string, trace bool) (int, error) {
	log := logging.Init(os.Getenv("GOAPPLY_ENV") == "dev")
	defer logging.Sync()

	shutdownTracing, err := tracing.Init("jobapply", os.Stderr, trace)
	if err != nil {
		return 1, fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	if scanEmail {
		log.Warn("--scan-email requested but email ingestion is an external collaborator not wired into this binary; skipping")
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return 1, fmt.Errorf("configuration: %w", err)
	}
	cfg.MaxApplications = maxApps
	cfg.DelayBetweenApps = time.Duration(delayS) * time.Second
	cfg.AutoSubmit = autoSubmit
	cfg.APIBaseURL = apiURL

	db, err := storage.Open(dbPath(cfg))
	if err != nil {
		return 1, fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	states, err := appstate.New(cfg.StateDir, db)
	if err != nil {
		return 1, fmt.Errorf("open state store: %w", err)
	}
	if recovered, err := states.RecoverInterrupted(ctx); err != nil {
		log.Warn("failed to recover interrupted session states", zap.Error(err))
	} else if recovered > 0 {
		log.Info("recovered interrupted session states from a prior restart", zap.Int("count", recovered))
	}

	notifier := notify.New()
	interventions := intervention.New(db, notifier)

	sessions := session.New(browserFactory(cfg), cfg.IdleTimeout, cfg.CleanupInterval)

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewGenericStrategy())

	solver := captcha.New(captcha.NewTwoCaptchaProvider(cfg.CaptchaAPIKey))

	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = ratelimit.New(redisClient, ratelimit.Limits{
			MaxApplicationsPerDay:     cfg.MaxAutomatedPerDay,
			MaxAutoApplicationsPerDay: cfg.MaxAutoOnlyPerDay,
		})
	}

	m := metrics.New("")

	orch := orchestrator.New(sessions, registry, solver, interventions, states, notifier)

	jobs := jobstore.NewHTTPClient(cfg.APIBaseURL)
	p := pipeline.New(jobs, jobs, orch, limiter, m, log)

	mode := appstate.ModeAssisted
	if cfg.AutoSubmit {
		mode = appstate.ModeAuto
	}

	var jobIDs []string
	if jobIDsCSV != "" {
		for _, id := range strings.Split(jobIDsCSV, ",") {
			if id = strings.TrimSpace(id); id != "" {
				jobIDs = append(jobIDs, id)
			}
		}
	}

	report, err := p.Run(ctx, userID, jobIDs, mode, pipeline.Config{
		MaxApplications:  cfg.MaxApplications,
		DelayBetweenApps: cfg.DelayBetweenApps,
		MaxRetries:       cfg.MaxRetries,
		RetryDelayBase:   cfg.RetryDelayBase,
		AutoSubmit:       cfg.AutoSubmit,
		AutoSolveCaptcha: true,
		Backend:          browser.BackendDirect,
	})
	if err != nil {
		return 2, fmt.Errorf("pipeline run: %w", err)
	}

	if reportsDir := cfg.ReportsDir; reportsDir != "" {
		if path, err := pipeline.SaveReport(reportsDir, report); err != nil {
			log.Warn("failed to save report", zap.Error(err))
		} else {
			log.Info("report saved", zap.String("path", path))
		}
	}

	printReport(format, report)

	if report.Failed > 0 || report.Intervention > 0 {
		return 1, nil
	}
	return 0, nil
}

func dbPath(cfg config.Config) string {
	if cfg.StateDir == "" {
		return ":memory:"
	}
	return cfg.StateDir + "/jobapply.db"
}

// browserFactory builds a session.Factory from the configured backend.
// Only "devtools-mcp" has a wired transport in this binary; configuring
// "direct-automation" requires a DirectDriver implementation supplied by
// the deployment (spec leaves the actual browser engine external).
func browserFactory(cfg config.Config) session.Factory {
	return func(backend browser.Backend) (browser.Adapter, error) {
		switch cfg.BrowserBackend {
		case "devtools-mcp":
			client := browser.NewHTTPDevtoolsClient(cfg.DevtoolsEndpoint)
			return browser.NewDevtoolsAdapter(client), nil
		default:
			return nil, fmt.Errorf("browser backend %q requires a driver supplied by the deployment", cfg.BrowserBackend)
		}
	}
}

func printReport(format string, report pipeline.Report) {
	result := &gooutput.Result{
		Success: report.Failed == 0 && report.Intervention == 0,
		Tool:    "jobapply",
		Action:  "run",
		Data: map[string]any{
			"user_id":           report.UserID,
			"total_jobs":        report.TotalJobs,
			"submitted":         report.Submitted,
			"paused":            report.Paused,
			"needs_intervention": report.Intervention,
			"skipped":           report.Skipped,
			"failed":            report.Failed,
		},
	}

	formatter := gooutput.GetFormatter(format)
	if err := formatter.Format(os.Stdout, result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: format report: %v\n", err)
	}
}
