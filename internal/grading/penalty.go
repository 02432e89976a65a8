package grading

import (
	"math"
	"time"
)

const (
	// LatePointsPerDay is the number of absolute points removed per late day at submission time.
	LatePointsPerDay = 10
	// MaxLateDays is the last day a late submission still earns credit.
	MaxLateDays = 3

	// ExportPenaltyPerDay is the percentage of the score removed per late day in export estimates.
	ExportPenaltyPerDay = 10
	// ExportPenaltyCap caps the export estimate percentage.
	ExportPenaltyCap = 50
)

const day = 24 * time.Hour

// LatePenalty is the outcome of the submission-time late policy.
type LatePenalty struct {
	OriginalScore  float64
	FinalScore     float64
	DaysLate       int
	PenaltyPercent float64
	IsLate         bool
	IsZero         bool
}

// DaysLate counts started days after the due instant. Submissions on or before the due
// instant are never late; one second past due is one day late.
func DaysLate(due, submitted time.Time) int {
	if !submitted.After(due) {
		return 0
	}
	elapsed := submitted.Sub(due)
	return int((elapsed + day - 1) / day)
}

// SubmissionPenalty applies the points-off policy to a submission made at submitted for
// work due at due.
func SubmissionPenalty(rawScore float64, due, submitted time.Time) LatePenalty {
	return ApplyLatePenalty(rawScore, DaysLate(due, submitted))
}

// ApplyLatePenalty removes LatePointsPerDay absolute points per late day, floored at zero,
// and zeroes the score entirely past MaxLateDays.
func ApplyLatePenalty(rawScore float64, daysLate int) LatePenalty {
	result := LatePenalty{
		OriginalScore: rawScore,
		FinalScore:    rawScore,
	}
	if daysLate <= 0 {
		return result
	}

	result.DaysLate = daysLate
	result.IsLate = true

	if daysLate > MaxLateDays {
		result.FinalScore = 0
		result.PenaltyPercent = 100
		result.IsZero = true
		return result
	}

	points := float64(daysLate * LatePointsPerDay)
	result.FinalScore = math.Max(0, rawScore-points)
	result.PenaltyPercent = points
	return result
}

// ExportPenalty is the estimate used when exporting records whose late penalty was never
// applied at submission time. It is a percentage-of-score policy and deliberately differs
// from ApplyLatePenalty.
type ExportPenalty struct {
	Percent int
	Points  float64
	Score   float64
}

// ExportPenaltyEstimate removes ExportPenaltyPerDay percent of the score per late day,
// capped at ExportPenaltyCap percent, rounding the removed points to the nearest integer.
func ExportPenaltyEstimate(rawScore float64, daysLate int) ExportPenalty {
	if daysLate <= 0 {
		return ExportPenalty{Score: rawScore}
	}

	percent := daysLate * ExportPenaltyPerDay
	if percent > ExportPenaltyCap {
		percent = ExportPenaltyCap
	}

	points := math.Round(rawScore * float64(percent) / 100)
	return ExportPenalty{
		Percent: percent,
		Points:  points,
		Score:   rawScore - points,
	}
}
