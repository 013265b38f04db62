package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/recurpay/internal/billing"
	"github.com/frahmantamala/recurpay/internal/webhook"
	"github.com/frahmantamala/recurpay/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the in-process scheduler",
	Long:  `Run billing cycles, webhook sweeps and session expiry on the cron specs from config`,
	Run: func(cmd *cobra.Command, args []string) {
		startWorker()
	},
}

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Billing commands",
}

var billingRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Charge every due subscription once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), func(ctx context.Context, deps *Dependencies) (interface{}, error) {
			return deps.Billing.RunDueCycle(ctx)
		})
	},
}

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Webhook commands",
}

var sweepBatchSize int

var webhooksSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Deliver queued webhooks once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), func(ctx context.Context, deps *Dependencies) (interface{}, error) {
			return deps.Webhooks.Sweep(ctx, sweepBatchSize)
		})
	},
}

func startWorker() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	runner, err := newCronRunner(deps)
	if err != nil {
		deps.Logger.Error("failed to schedule worker", "error", err)
		os.Exit(1)
	}

	runner.Start()
	deps.Logger.Info("worker started", "entries", len(runner.Entries()))

	<-ctx.Done()
	deps.Logger.Info("worker stopping, waiting for running jobs")
	<-runner.Stop().Done()
	deps.Logger.Info("worker stopped")
}

// newCronRunner schedules the periodic jobs. Overlapping runs of the same job are skipped
// locally; the redis lock inside each job guards against other replicas.
func newCronRunner(deps *Dependencies) (*cron.Cron, error) {
	log := logger.Component("worker")
	runner := cron.New(cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})))

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) (interface{}, error)
	}{
		{"billing", deps.Config.Scheduler.BillingSpec, func(ctx context.Context) (interface{}, error) {
			return deps.Billing.RunDueCycle(ctx)
		}},
		{"webhooks", deps.Config.Scheduler.WebhookSpec, func(ctx context.Context) (interface{}, error) {
			return deps.Webhooks.Sweep(ctx, 0)
		}},
		{"session_expiry", deps.Config.Scheduler.SessionExpirySpec, func(ctx context.Context) (interface{}, error) {
			return deps.Sessions.ExpireStale(ctx)
		}},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		jobLog := log.With("job", job.name)
		_, err := runner.AddFunc(job.spec, func() {
			ctx := logger.Into(context.Background(), jobLog)
			started := time.Now()
			result, err := job.run(ctx)
			switch {
			case errors.Is(err, billing.ErrRunInProgress), errors.Is(err, webhook.ErrSweepInProgress):
				jobLog.Info("skipped, another run holds the lock")
			case err != nil:
				jobLog.Error("job failed", "error", err, "duration", time.Since(started))
			default:
				jobLog.Info("job finished", "result", result, "duration", time.Since(started))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("invalid cron spec %q for %s: %w", job.spec, job.name, err)
		}
	}

	return runner, nil
}

func runOnce(ctx context.Context, fn func(ctx context.Context, deps *Dependencies) (interface{}, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := initializeDependencies(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	result, err := fn(ctx, deps)
	if err != nil {
		return err
	}
	deps.Logger.Info("run finished", "result", result)
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

func init() {
	webhooksSweepCmd.Flags().IntVar(&sweepBatchSize, "batch-size", 0, "maximum webhooks to deliver, 0 uses the configured batch size")

	billingCmd.AddCommand(billingRunCmd)
	webhooksCmd.AddCommand(webhooksSweepCmd)

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(billingCmd)
	rootCmd.AddCommand(webhooksCmd)
}
