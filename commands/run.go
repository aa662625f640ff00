package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/retailops/sheetsync/config"
	"github.com/retailops/sheetsync/fetch"
	"github.com/retailops/sheetsync/pipeline"
	"github.com/retailops/sheetsync/sheets"
	"github.com/retailops/sheetsync/table"
)

func newRunCmd() *cobra.Command {
	var (
		envFile     string
		schedule    string
		metricsAddr string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetches orders and inventory from the API and publishes them to the shared spreadsheet",
		Long: `Fetches order and inventory records from the configured JSON API endpoints,
coerces the configured columns, and replaces the contents of the target
worksheets in the shared Google spreadsheet. By default the sync runs once
and exits; with --schedule it stays resident and runs on the cron schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(envFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			log, closeLog, err := newLogger(cfg.LogDir, debug)
			if err != nil {
				return err
			}
			defer closeLog()
			slog.SetDefault(log)

			metrics := pipeline.NewMetrics()

			var metricsServer *http.Server
			if metricsAddr != "" {
				metricsServer = &http.Server{
					Addr:    metricsAddr,
					Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
				}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("metrics server failed", slog.Any("error", err))
					}
				}()
				defer metricsServer.Close()
				log.Info("metrics server enabled", slog.String("addr", metricsAddr))
			}

			fetcher := fetch.New(fetch.Policy{
				MaxAttempts: cfg.MaxRetries,
				Delay:       cfg.RetryDelay,
			}, log)

			publisher := &lazyPublisher{credentials: cfg.Credentials, log: log}

			runner := pipeline.NewRunner(fetcher, publisher, metrics, log)
			kinds := pipeline.Kinds(cfg)

			if schedule == "" {
				log.Info("starting sync run", slog.String("started", time.Now().Format("2006-01-02 15:04:05")))
				ok := runner.Run(ctx, kinds)
				if ctx.Err() != nil {
					log.Info("sync interrupted")
					return fmt.Errorf("interrupted: %w", ctx.Err())
				}
				if !ok {
					return fmt.Errorf("sync completed with failures")
				}
				log.Info("sync completed successfully")
				return nil
			}

			// ... scheduled mode: stay resident, trigger on the cron spec
			scheduler := cron.New()
			if _, err := scheduler.AddFunc(schedule, func() {
				log.Info("scheduled sync triggered", slog.String("schedule", schedule))
				if ok := runner.Run(ctx, kinds); !ok {
					log.Warn("scheduled sync completed with failures")
				}
			}); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}

			scheduler.Start()
			log.Info("scheduler started", slog.String("schedule", schedule))

			<-ctx.Done()
			<-scheduler.Stop().Done()
			log.Info("scheduler stopped")

			return fmt.Errorf("interrupted: %w", ctx.Err())
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file with the sync configuration")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule; when set the process stays resident and syncs on the schedule")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

// lazyPublisher defers authentication to the first publish so a credentials
// problem fails that kind's publish step instead of aborting the run before
// any fetch happens.
type lazyPublisher struct {
	credentials string
	log         *slog.Logger
	publisher   *sheets.Publisher
}

func (l *lazyPublisher) Publish(ctx context.Context, t *table.Table, target sheets.Target) error {
	if l.publisher == nil {
		publisher, err := sheets.NewPublisher(ctx, l.credentials, l.log)
		if err != nil {
			return err
		}
		l.publisher = publisher
	}

	return l.publisher.Publish(ctx, t, target)
}
