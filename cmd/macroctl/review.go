package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/avolkov/macrocoach/internal/services"
)

var (
	reviewUserID    uint
	reviewProgramID uint
	reviewForce     bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Generate a weekly review for one program",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB) error {
			reviews, _ := buildServices(db)
			review, err := reviews.GenerateReview(context.Background(), reviewUserID, reviewProgramID, reviewForce)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Review %d created for week %d (compliance %d%%, confidence %s)\n",
				review.ID, review.ReviewWeek, review.ComplianceRate, review.Confidence)
			fmt.Fprintf(cmd.OutOrStdout(), "Recommended: %d kcal / %dg protein / %dg carbs / %dg fat\n",
				review.RecommendedCalories, review.RecommendedProtein, review.RecommendedCarbs, review.RecommendedFat)
			return nil
		})
	},
}

var statsUserID uint

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a user's streak and achievements",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB) error {
			streaks := services.NewStreakService(db, nil)
			stats, err := streaks.GetStats(context.Background(), statsUserID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Current streak: %d days (longest %d, total %d)\n",
				stats.CurrentStreak, stats.LongestStreak, stats.TotalDaysLogged)
			fmt.Fprintf(cmd.OutOrStdout(), "Achievements: %s\n", string(stats.Achievements))
			return nil
		})
	},
}

func init() {
	reviewCmd.Flags().UintVar(&reviewUserID, "user", 0, "User id")
	reviewCmd.Flags().UintVar(&reviewProgramID, "program", 0, "Program id")
	reviewCmd.Flags().BoolVar(&reviewForce, "force", false, "Generate even if this week was already reviewed")
	_ = reviewCmd.MarkFlagRequired("user")
	_ = reviewCmd.MarkFlagRequired("program")

	statsCmd.Flags().UintVar(&statsUserID, "user", 0, "User id")
	_ = statsCmd.MarkFlagRequired("user")
}
