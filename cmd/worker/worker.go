// Package worker implements the command that runs the job loop: browser
// check, platform registration, scheduler, heartbeat, status server, and
// graceful shutdown with a run summary.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ellipsesearch/visibility-worker/cmd/common"
	"github.com/ellipsesearch/visibility-worker/internal/api"
	"github.com/ellipsesearch/visibility-worker/internal/browser"
	"github.com/ellipsesearch/visibility-worker/internal/config"
	"github.com/ellipsesearch/visibility-worker/internal/cooldown"
	"github.com/ellipsesearch/visibility-worker/internal/dedup"
	internalengines "github.com/ellipsesearch/visibility-worker/internal/engines"
	"github.com/ellipsesearch/visibility-worker/internal/heartbeat"
	"github.com/ellipsesearch/visibility-worker/internal/logger"
	"github.com/ellipsesearch/visibility-worker/internal/output"
	"github.com/ellipsesearch/visibility-worker/internal/pacing"
	"github.com/ellipsesearch/visibility-worker/internal/platform"
	"github.com/ellipsesearch/visibility-worker/internal/scheduler"
	execution "github.com/ellipsesearch/visibility-worker/internal/worker"
)

// Command returns the worker subcommand. The version pointer is resolved
// at run time so build stamping applies.
func Command(version *string) *cobra.Command {
	var enginesFile string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the job processing loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *version, enginesFile)
		},
	}

	cmd.Flags().StringVar(&enginesFile, "engines-file", "engines.yml", "path to engines.yml")
	cmd.Flags().Bool("sequential", false, "process one job at a time")
	cmd.Flags().Int("max-parallel", 0, "max engines driven concurrently")
	cmd.Flags().Bool("no-stealth", false, "disable humanized pacing extras")

	_ = viper.BindPFlag("worker.sequential", cmd.Flags().Lookup("sequential"))
	_ = viper.BindPFlag("cli.max_parallel", cmd.Flags().Lookup("max-parallel"))
	_ = viper.BindPFlag("cli.no_stealth", cmd.Flags().Lookup("no-stealth"))

	return cmd
}

func run(ctx context.Context, version, enginesFile string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg)

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	engineDefs, err := config.LoadEngines(enginesFile)
	if err != nil {
		return fmt.Errorf("load engines: %w", err)
	}

	deps := common.CommandDeps{Logger: log, Config: cfg, Engines: engineDefs}
	if err := deps.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerID := newWorkerID()
	log.Info("worker starting",
		"worker_id", workerID,
		"version", version,
		"sequential", cfg.Worker.Sequential,
	)

	// The attached browser is the one hard precondition. Everything
	// else degrades; this does not.
	checker := browser.NewChecker(cfg.Browser.CDPURL)
	info, err := checker.Check(ctx)
	if err != nil {
		log.Error("browser check failed", "diagnosis", checker.Diagnose(ctx))
		return fmt.Errorf("browser not available: %w", err)
	}
	log.Info("browser attached", "browser", info.Browser)

	enabled := config.EnabledNames(engineDefs)
	cfg.Scheduler.Engines = enabled

	tracker := cooldown.NewTracker(config.CooldownMap(engineDefs))
	policy := pacing.NewPolicy(&cfg.Pacing, tracker, log)
	deduper := dedup.New(cfg.Dedup.Window, cfg.Dedup.SimilarityThreshold)
	client := platform.NewClient(cfg.Platform.URL, cfg.Platform.Secret, workerID, version, log)

	units, err := buildUnits(engineDefs, cfg, policy, deduper, log)
	if err != nil {
		return err
	}
	pool := execution.NewPool(units, cfg.Worker.JobTimeout, cfg.Worker.Sequential, log)

	archive, err := output.NewArchive(cfg.Output.Path, uuid.NewString(), workerID, log)
	if err != nil {
		return fmt.Errorf("open results archive: %w", err)
	}

	stats := scheduler.NewStats()
	sched := scheduler.New(&cfg.Scheduler, client, pool, tracker, policy, archive, stats, log)

	status := &statusProvider{
		workerID:   workerID,
		version:    version,
		sequential: cfg.Worker.Sequential,
		stats:      stats,
		pool:       pool,
		tracker:    tracker,
		engines:    enabled,
	}

	reporter := heartbeat.NewReporter(client, status.heartbeat, cfg.Worker.HeartbeatInterval, log)
	go reporter.Run(ctx)

	var statusServer *api.Server
	if cfg.Server.Enabled {
		statusServer = api.NewServer(cfg.Server.Address, status, log)
		go func() {
			if err := statusServer.Start(); err != nil {
				log.Warn("status server failed", "error", err)
			}
		}()
	}

	maintenance := cron.New()
	if cfg.Worker.RotationSchedule != "" {
		if _, err := maintenance.AddFunc(cfg.Worker.RotationSchedule, func() {
			policy.RotateSession()
			if err := archive.Flush(); err != nil {
				log.Warn("scheduled archive flush failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("invalid rotation schedule %q: %w", cfg.Worker.RotationSchedule, err)
		}
	}
	maintenance.Start()

	runErr := sched.Run(ctx)

	// Shutdown: stop maintenance, close sessions, flush the archive,
	// stop the status server, then print the summary.
	cronCtx := maintenance.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool.Close(shutdownCtx)
	if statusServer != nil {
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("status server shutdown failed", "error", err)
		}
	}
	if err := archive.Close(); err != nil {
		log.Warn("final archive write failed", "error", err)
	}

	printSummary(workerID, cfg.Worker.Sequential, stats.Snapshot(), archive)
	return runErr
}

// applyFlagOverrides folds the worker command's flags into the loaded
// config. Flags win over file and environment.
func applyFlagOverrides(cfg *config.Config) {
	if v := viper.GetInt("cli.max_parallel"); v > 0 {
		cfg.Scheduler.MaxParallel = v
	}
	if viper.GetBool("cli.no_stealth") {
		cfg.Worker.Stealth = false
	}
	if cfg.Worker.Sequential {
		cfg.Scheduler.MaxParallel = 1
	}
	if !cfg.Worker.Stealth {
		cfg.Pacing.ThinkingPauses = false
		cfg.Pacing.ReduceNightActivity = false
	}
}

// buildUnits creates one execution unit per enabled engine that has a UI
// driver. Engines without a driver are logged and left to other workers.
func buildUnits(engineDefs []config.Engine, cfg *config.Config, policy *pacing.Policy, deduper *dedup.Deduplicator, log logger.Interface) (map[string]*execution.Unit, error) {
	units := make(map[string]*execution.Unit)
	for _, def := range engineDefs {
		if !def.Enabled {
			continue
		}
		adapter, err := internalengines.NewAdapter(def.Name, def.URL, cfg.Browser.CDPURL, log)
		if err != nil {
			log.Warn("engine has no UI driver, skipping", "engine", def.Name, "error", err)
			continue
		}
		units[def.Name] = execution.NewUnit(def.Name, adapter, policy, deduper, log)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no usable engines configured")
	}
	return units, nil
}

func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("rpa-%s-%s", host, uuid.NewString()[:8])
}

// statusProvider assembles the live picture shared by the heartbeat and
// the local status endpoint.
type statusProvider struct {
	workerID   string
	version    string
	sequential bool
	stats      *scheduler.Stats
	pool       *execution.Pool
	tracker    *cooldown.Tracker
	engines    []string
}

func (s *statusProvider) heartbeat() platform.Heartbeat {
	return platform.Heartbeat{
		Status:          "active",
		BrowserAttached: true,
		EnginesReady:    s.tracker.ReadyEngines(s.engines),
		JobsProcessed:   s.stats.Processed(),
		JobsFailed:      s.stats.Failed(),
		ParallelMode:    !s.sequential,
	}
}

func (s *statusProvider) StatusSnapshot() api.Status {
	return api.Status{
		WorkerID:     s.workerID,
		Version:      s.version,
		Sequential:   s.sequential,
		Stats:        s.stats.Snapshot(),
		UnitStates:   s.pool.States(),
		Cooldowns:    s.tracker.Snapshot(),
		EnginesReady: s.tracker.ReadyEngines(s.engines),
	}
}

// printSummary renders the end-of-run table.
func printSummary(workerID string, sequential bool, snap scheduler.Snapshot, archive *output.Archive) {
	mode := "parallel"
	if sequential {
		mode = "sequential"
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Run summary")
	t.AppendRows([]table.Row{
		{"Worker", workerID},
		{"Mode", mode},
		{"Runtime", snap.Runtime.Round(time.Second)},
		{"Cycles", snap.Cycles},
		{"Batches", snap.Batches},
		{"Processed", snap.Processed},
		{"Succeeded", snap.Succeeded},
		{"Failed", snap.Failed},
		{"Skipped", snap.Skipped},
		{"Archive", archive.Path()},
	})
	t.Render()

	perEngine := archive.Summary().PerEngine
	if len(perEngine) == 0 {
		return
	}

	et := table.NewWriter()
	et.SetOutputMirror(os.Stdout)
	et.SetStyle(table.StyleLight)
	et.AppendHeader(table.Row{"Engine", "Total", "Succeeded", "Failed", "Skipped", "Citations"})
	for engine, s := range perEngine {
		et.AppendRow(table.Row{engine, s.Total, s.Succeeded, s.Failed, s.Skipped, s.Citations})
	}
	et.Render()
}
