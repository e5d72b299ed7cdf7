package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"auction_scout/internal/report"
	"auction_scout/internal/service"
	"auction_scout/internal/storage/postgres"
)

var (
	urgentHours  int
	urgentNotify bool
	urgentCSV    bool
)

func init() {
	urgentCmd.Flags().IntVar(&urgentHours, "hours", 0, "override monitor.urgent_hours")
	urgentCmd.Flags().BoolVar(&urgentNotify, "notify", false, "publish an alert per item when alerts are enabled")
	urgentCmd.Flags().BoolVar(&urgentCSV, "csv", false, "write CSV instead of a table")
	rootCmd.AddCommand(urgentCmd)
}

var urgentCmd = &cobra.Command{
	Use:   "urgent [--hours <n>] [--notify] [--csv]",
	Short: "Lists profitable items ending within monitor.urgent_hours, soonest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if urgentHours > 0 {
			cfg.Monitor.UrgentHours = urgentHours
		}

		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		var pub service.Publisher
		if urgentNotify && !cfg.Alerts.Enabled {
			logger.Warn("alerts are disabled, listing only")
		}
		if urgentNotify && cfg.Alerts.Enabled {
			rabbitMQ, err := newPublisher(cfg.Alerts)
			if err != nil {
				return err
			}
			defer rabbitMQ.Close()
			pub = rabbitMQ
		}

		urgent := service.NewUrgentService(
			postgres.NewProfitAnalysisStore(db),
			pub,
			cfg.Monitor.UrgentWindow(),
			cfg.Profit.MinPercentage,
			logger,
		)

		items, checkErr := urgent.Check(cmd.Context())
		if items == nil && checkErr != nil {
			return fmt.Errorf("check urgent items: %w", checkErr)
		}

		report.Urgent(os.Stdout, items, time.Now(), outputFormat(urgentCSV))
		return checkErr
	},
}
