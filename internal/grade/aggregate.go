package grade

import (
	"math"
	"sort"

	"skillbench/internal/rubric"
)

// Aggregate folds per-field results into section totals, the overall
// percentage, and the pass/fail verdict. The verdict is derived, never set
// directly: overall percentage at or above the threshold, every section at
// or above the per-section minimum when one is configured, and no critical
// failures when critical gating is on.
func Aggregate(results []FieldResult, thresholds rubric.Thresholds) *ScoreReport {
	report := &ScoreReport{
		SectionScores:    map[string]SectionScore{},
		FieldDetails:     results,
		CriticalFailures: []string{},
	}

	for _, result := range results {
		section := report.SectionScores[result.Section]
		section.PointsEarned += result.PointsEarned
		section.MaxPoints += result.PointsPossible
		report.SectionScores[result.Section] = section

		report.OverallEarned += result.PointsEarned
		report.OverallPossible += result.PointsPossible
		if result.Critical && !result.Passed {
			report.CriticalFailures = append(report.CriticalFailures, result.Path)
		}
	}
	sort.Strings(report.CriticalFailures)

	for name, section := range report.SectionScores {
		section.PointsEarned = round2(section.PointsEarned)
		section.MaxPoints = round2(section.MaxPoints)
		section.Percentage = percentage(section.PointsEarned, section.MaxPoints)
		report.SectionScores[name] = section
	}
	report.OverallEarned = round2(report.OverallEarned)
	report.OverallPossible = round2(report.OverallPossible)
	report.OverallScore = percentage(report.OverallEarned, report.OverallPossible)

	passed := report.OverallScore >= thresholds.PassPercentage()
	if thresholds.PerSectionMinimumPercentage != nil {
		minimum := *thresholds.PerSectionMinimumPercentage
		for _, section := range report.SectionScores {
			if section.Percentage < minimum {
				passed = false
				break
			}
		}
	}
	if thresholds.RequireAllCriticalPass && len(report.CriticalFailures) > 0 {
		passed = false
	}
	report.Passed = passed
	report.Verdict = VerdictFail
	if passed {
		report.Verdict = VerdictPass
	}
	return report
}

// percentage guards the zero-possible case and clamps so a report can never
// leave the 0..100 range.
func percentage(earned, possible float64) float64 {
	if possible <= 0 {
		return 0
	}
	value := 100 * earned / possible
	return round2(math.Min(100, math.Max(0, value)))
}
