package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"auction_scout/internal/report"
	"auction_scout/internal/scheduler"
)

var scrapePages int

func init() {
	scrapeCmd.Flags().IntVar(&scrapePages, "pages", 0, "override source.max_pages for this run")
	rootCmd.AddCommand(scrapeCmd, monitorCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--pages <n>]",
	Short: "Runs the ingestion pipeline once and prints a run summary.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scrapePages > 0 {
			cfg.Source.MaxPages = scrapePages
		}

		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		p, err := buildPipeline(db, cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		stats, runErr := p.ingest.Run(cmd.Context())
		if stats != nil {
			report.RunStats(os.Stdout, stats)
		}
		return runErr
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Runs the pipeline every monitor.interval and the urgent check every monitor.urgent_interval.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		p, err := buildPipeline(db, cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		logger.Info("starting auction monitor",
			"base_url", cfg.Source.BaseURL,
			"interval", cfg.Monitor.Interval,
			"urgent_interval", cfg.Monitor.UrgentInterval,
			"urgent_hours", cfg.Monitor.UrgentHours,
			"max_pages", cfg.Source.MaxPages,
		)

		sched := scheduler.NewScheduler(p.ingest, cfg.Monitor.Interval, cfg.Monitor.RunTimeout, logger).
			WithUrgentCheck(p.urgent, cfg.Monitor.UrgentInterval)
		if err := sched.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
