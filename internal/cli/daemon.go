package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/claimsynth/internal/pipeline"
)

var (
	runOnStart bool
	runTimeout time.Duration
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Periodically synthesize and evaluate configured users",
	Long: `Daemon runs synthesis followed by evaluation for every user in
schedule.users (or --user) on the schedule.cron spec. The spec is a 5-field
cron expression or a descriptor such as "@every 6h" or "@daily".
Runs never overlap: a tick arriving while the previous run is busy is skipped.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().BoolVar(&runOnStart, "run-now", false, "run once immediately on start")
	daemonCmd.Flags().DurationVar(&runTimeout, "run-timeout", time.Hour, "timeout for one scheduled run")
}

// parseSchedule accepts 5-field cron expressions and descriptors
func parseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	users := cfg.Schedule.Users
	if u := strings.TrimSpace(userID); u != "" {
		users = []string{u}
	}
	if len(users) == 0 {
		return fmt.Errorf("no users to schedule (set schedule.users or --user)")
	}
	sched, err := parseSchedule(cfg.Schedule.Cron)
	if err != nil {
		return err
	}

	p, l, cleanup, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()

		started := time.Now()
		runs, err := p.RunUsers(runCtx, users)
		logRuns(l, runs, err, time.Since(started))
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(run))

	l.Info("Daemon started",
		zap.String("schedule", cfg.Schedule.Cron),
		zap.Strings("users", users),
		zap.Time("next_run", sched.Next(time.Now())))

	if runOnStart {
		run()
	}

	c.Start()
	<-ctx.Done()

	// Wait for a running job to finish
	<-c.Stop().Done()
	l.Info("Daemon stopped")
	return nil
}

func logRuns(l *zap.Logger, runs []pipeline.UserRun, err error, took time.Duration) {
	for _, r := range runs {
		fields := []zap.Field{zap.String("user", r.UserID)}
		if r.Synthesis != nil {
			fields = append(fields,
				zap.Int("claims_created", r.Synthesis.ClaimsCreated),
				zap.Int("links_created", r.Synthesis.LinksCreated))
		}
		if r.Evaluation != nil {
			fields = append(fields, zap.Int("issues", len(r.Evaluation.Issues)))
		}
		l.Info("Scheduled run finished", fields...)
	}
	if err != nil {
		l.Warn("Scheduled run had failures", zap.Error(err), zap.Duration("took", took))
	}
}
