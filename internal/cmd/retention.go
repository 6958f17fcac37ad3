package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinicalintel/intake/internal/retention"
)

var retentionDays int

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Conversation retention and record clean-up",
}

var retentionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Purge old conversations and remove duplicate records now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "retention.run")
		defer span.End()

		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		days := cfg.RetentionDays
		if cmd.Flags().Changed("days") {
			days = retentionDays
		}
		rep, err := retention.Run(ctx, store, days, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Conversations purged: %d\n", rep.ConversationsPurged)
		fmt.Fprintf(cmd.OutOrStdout(), "Duplicate records removed: %d\n", rep.RecordsRemoved)
		return nil
	},
}

func init() {
	retentionRunCmd.Flags().IntVar(&retentionDays, "days", 0, "override retention_days for this run (0 keeps conversations)")
	retentionCmd.AddCommand(retentionRunCmd)
	rootCmd.AddCommand(retentionCmd)
}
