package services

import (
	"fmt"
	"strings"

	"github.com/avolkov/macrocoach/internal/database"
)

type promptStats struct {
	DaysAnalyzed   int
	AvgCalories    int
	AvgProtein     int
	AvgCarbs       int
	AvgFat         int
	ComplianceRate int
	CurrentWeight  *float64
	TrendWeight    *float64
	WeightChange   *float64
}

// goalType derives the program goal from its template identifier.
func goalType(template string) string {
	t := strings.ToLower(template)
	switch {
	case strings.Contains(t, "cut"):
		return "cut"
	case strings.Contains(t, "bulk"):
		return "bulk"
	default:
		return "maintain"
	}
}

func expectedWeeklyRange(goal string) string {
	switch goal {
	case "cut":
		return "-0.8 to -0.4 kg/week"
	case "bulk":
		return "+0.2 to +0.4 kg/week"
	default:
		return "-0.2 to +0.2 kg/week"
	}
}

func pctDeviation(avg, target int) string {
	if target == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", 100*float64(avg-target)/float64(target))
}

// buildReviewPrompt renders the structured weekly-review prompt. The
// response format demands are deliberately strict; the parser still treats
// the reply as untrusted free text.
func buildReviewPrompt(program *database.Program, currentWeek int, stats promptStats) string {
	goal := goalType(program.Template)
	remaining := program.DurationWeeks - currentWeek
	if remaining < 0 {
		remaining = 0
	}

	var b strings.Builder
	b.WriteString("You are an evidence-based nutrition coach reviewing one week of a macro program.\n\n")

	fmt.Fprintf(&b, "PROGRAM:\n")
	fmt.Fprintf(&b, "- Template: %s (goal: %s)\n", program.Template, goal)
	fmt.Fprintf(&b, "- Week %d of %d (%d weeks remaining)\n", currentWeek, program.DurationWeeks, remaining)
	fmt.Fprintf(&b, "- Current daily targets: %d kcal, %dg protein, %dg carbs, %dg fat\n\n",
		program.CalorieTarget, program.ProteinTarget, program.CarbTarget, program.FatTarget)

	fmt.Fprintf(&b, "WEEKLY DATA (%d days logged):\n", stats.DaysAnalyzed)
	fmt.Fprintf(&b, "- Average calories: %d (%s vs target)\n", stats.AvgCalories, pctDeviation(stats.AvgCalories, program.CalorieTarget))
	fmt.Fprintf(&b, "- Average protein: %dg (%s vs target)\n", stats.AvgProtein, pctDeviation(stats.AvgProtein, program.ProteinTarget))
	fmt.Fprintf(&b, "- Average carbs: %dg (%s vs target)\n", stats.AvgCarbs, pctDeviation(stats.AvgCarbs, program.CarbTarget))
	fmt.Fprintf(&b, "- Average fat: %dg (%s vs target)\n", stats.AvgFat, pctDeviation(stats.AvgFat, program.FatTarget))
	fmt.Fprintf(&b, "- Compliance rate: %d%% (a day is compliant when protein >= 80%% of target and calories <= target)\n\n", stats.ComplianceRate)

	fmt.Fprintf(&b, "WEIGHT:\n")
	if program.StartingWeight != nil {
		fmt.Fprintf(&b, "- Starting weight: %.1f kg\n", *program.StartingWeight)
	}
	if stats.CurrentWeight != nil {
		fmt.Fprintf(&b, "- Current weight: %.1f kg\n", *stats.CurrentWeight)
	}
	if stats.TrendWeight != nil {
		fmt.Fprintf(&b, "- Trend weight (smoothed): %.1f kg\n", *stats.TrendWeight)
	}
	if stats.WeightChange != nil {
		fmt.Fprintf(&b, "- Total change: %+.1f kg over %d week(s) (%+.2f kg/week)\n",
			*stats.WeightChange, currentWeek, *stats.WeightChange/float64(currentWeek))
	}
	if program.StartingWeight == nil && stats.CurrentWeight == nil {
		b.WriteString("- No weight data available\n")
	}
	fmt.Fprintf(&b, "- Expected rate for this goal: %s\n\n", expectedWeeklyRange(goal))

	b.WriteString(`CONFIDENCE GUIDANCE:
- high: 6+ logged days, clear weight trend, good adherence
- medium: 4-5 logged days or mixed adherence
- low: fewer than 4 logged days or adherence below 50%

TASK:
1. Analyze adherence and progress against the expected rate for this goal
2. Recommend adjusted daily macro targets for the coming week
3. Keep adjustments conservative; large jumps will be rejected
4. Assess your confidence in the recommendation

CRITICAL JSON FORMAT REQUIREMENTS:
- Your response MUST be a valid JSON object
- Do not include any markdown formatting, bullet points, or dashes
- Do not include any explanatory text before or after the JSON
- The JSON must have these exact fields:
  {
    "analysis": "Your analysis of the week",
    "recommendedCalories": 2000,
    "recommendedProtein": 150,
    "recommendedCarbs": 200,
    "recommendedFat": 65,
    "confidenceLevel": "low|medium|high",
    "reasoning": "Why these numbers"
  }`)

	return b.String()
}
