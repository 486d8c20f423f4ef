// Command sweep runs the copilot retention sweep from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"interview-copilot-be/internal/config"
	"interview-copilot-be/internal/dto"
	"interview-copilot-be/internal/pkg/logger"
	"interview-copilot-be/internal/repository/unitofwork"
	"interview-copilot-be/internal/service"
	"interview-copilot-be/pkg/copilot/retention"
	"interview-copilot-be/pkg/database"
	"interview-copilot-be/pkg/events"
	pktNats "interview-copilot-be/pkg/nats"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		live          bool
		eventsDays    int
		summariesDays int
		sessionsDays  int
		publish       bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete aged copilot events, summaries and sessions",
		Long: `Apply the retention policy to copilot data.

Without --live nothing is deleted: the command prints the cutoffs a live
run would use. Active sessions are never removed by age.

Examples:
  sweep                          # preview with the configured policy
  sweep --events-days 7          # preview with a shorter event window
  sweep --live                   # delete`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.Database.Connection == "" {
				return fmt.Errorf("DB_CONNECTION_STRING is not set")
			}

			db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}

			var publisher events.Publisher = events.NopPublisher{}
			if publish {
				natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
				if err != nil {
					color.Yellow("NATS unavailable, sweep event will not be published: %v", err)
				} else {
					defer natsPub.Close()
					publisher = natsPub
				}
			}

			svc := service.NewRetentionService(
				unitofwork.NewRepositoryFactory(db),
				service.NewRetentionPolicy(cfg.Retention),
				publisher,
				logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction()),
				time.Now,
			)

			dryRun := !live
			req := &dto.SweepRequest{DryRun: &dryRun}
			if cmd.Flags().Changed("events-days") {
				req.EventsDays = &eventsDays
			}
			if cmd.Flags().Changed("summaries-days") {
				req.SummariesDays = &summariesDays
			}
			if cmd.Flags().Changed("sessions-days") {
				req.SessionsDays = &sessionsDays
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			res, err := svc.Sweep(ctx, req)
			if err != nil {
				color.Red("✗ Sweep failed: %v", err)
				return err
			}
			printResult(res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "actually delete rows (default is a dry run)")
	cmd.Flags().IntVar(&eventsDays, "events-days", 0, "override event retention in days")
	cmd.Flags().IntVar(&summariesDays, "summaries-days", 0, "override summary retention in days")
	cmd.Flags().IntVar(&sessionsDays, "sessions-days", 0, "override session retention in days")
	cmd.Flags().BoolVar(&publish, "publish", true, "publish a sweep event to NATS after a live run")

	return cmd
}

func printResult(res *retention.Result) {
	if res.DryRun {
		color.Cyan("Retention preview (dry run, nothing deleted)")
	} else {
		color.Green("✓ Retention sweep completed")
	}

	fmt.Printf("  %-10s %5s  %-25s %s\n", "class", "days", "cutoff", "deleted")
	row := func(name string, days int, cutoff time.Time, deleted int64) {
		count := color.HiBlackString("-")
		if !res.DryRun {
			count = color.YellowString("%d", deleted)
		}
		fmt.Printf("  %-10s %5d  %-25s %s\n", name, days, cutoff.Format(time.RFC3339), count)
	}
	row("events", res.Policy.EventsDays, res.Cutoffs.Events, res.Deleted.Events)
	row("summaries", res.Policy.SummariesDays, res.Cutoffs.Summaries, res.Deleted.Summaries)
	row("sessions", res.Policy.SessionsDays, res.Cutoffs.Sessions, res.Deleted.Sessions)
}
