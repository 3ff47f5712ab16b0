package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/avolkov/macrocoach/internal/services"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the daily review sweep once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB) error {
			_, sweep := buildServices(db)
			summary, err := sweep.Run(context.Background())
			if err != nil {
				return err
			}
			if summary == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Sweep already ran today")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sweep %s: %d generated, %d skipped, %d errored\n",
				summary.RunID, summary.Generated, summary.Skipped, summary.Errored)
			for _, o := range summary.Outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "  program %d (user %d): %s %s\n", o.ProgramID, o.UserID, o.Result, o.Detail)
			}
			return nil
		})
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Complete ended programs and expire stale pending reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB) error {
			reviews, _ := buildServices(db)
			programs := services.NewProgramService(db)
			nPrograms, err := programs.ExpireEndedPrograms(context.Background())
			if err != nil {
				return err
			}
			nReviews, err := reviews.ExpireStaleReviews(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed %d programs, expired %d reviews\n", nPrograms, nReviews)
			return nil
		})
	},
}
