package grading

import (
	"time"

	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/models"
)

// CellState describes how a roster cell took part in aggregation.
type CellState string

const (
	// CellGraded has a score (stored or derived) and counts.
	CellGraded CellState = "graded"
	// CellMissing has no score, is past due and started, and counts as zero.
	CellMissing CellState = "missing"
	// CellPending has no score and is not yet due; it is excluded.
	CellPending CellState = "pending"
	// CellUngraded was submitted but grading failed; it is excluded until graded or overridden.
	CellUngraded CellState = "ungraded"
)

// StudentProgress is everything known about one student, already normalised.
type StudentProgress struct {
	UserID        string
	Records       map[string]models.ProgressRecord
	Participation []models.ParticipationEvent
}

// Cell is one roster assignment for one student.
type Cell struct {
	AssignmentID string
	Week         int
	Kind         course.Kind
	Category     course.Category
	State        CellState
	Score        *float64
	Status       models.Status
	IsLate       bool
	IsOverride   bool
}

// Counted reports whether the cell enters its category average.
func (c Cell) Counted() bool {
	return c.State == CellGraded || c.State == CellMissing
}

// Value returns the contribution of a counted cell.
func (c Cell) Value() float64 {
	if c.Score == nil {
		return 0
	}
	return *c.Score
}

// CategoryResult is the mean over a category's counted cells.
type CategoryResult struct {
	Category course.Category
	Weight   float64
	Average  float64
	Counted  int
}

// Included reports whether the category has anything countable.
func (r CategoryResult) Included() bool {
	return r.Counted > 0
}

// Summary is a student's aggregated grade.
type Summary struct {
	UserID         string
	Cells          []Cell
	Categories     []CategoryResult
	Total          float64
	HasGrades      bool
	SyllabusLocked bool
}

// Category returns the result for c.
func (s Summary) Category(c course.Category) CategoryResult {
	for _, result := range s.Categories {
		if result.Category == c {
			return result
		}
	}
	return CategoryResult{Category: c, Weight: course.Weights[c]}
}

// Cell returns the roster cell for an assignment.
func (s Summary) Cell(assignmentID string) (Cell, bool) {
	for _, cell := range s.Cells {
		if cell.AssignmentID == assignmentID {
			return cell, true
		}
	}
	return Cell{}, false
}

// Aggregator turns normalised progress into category averages and a weighted total.
type Aggregator struct {
	calendar *course.Calendar
}

// NewAggregator builds an aggregator over the course calendar.
func NewAggregator(calendar *course.Calendar) *Aggregator {
	return &Aggregator{calendar: calendar}
}

// Aggregate computes the summary at instant now. It never fails: absent data is treated
// as not yet submitted.
func (a *Aggregator) Aggregate(progress StudentProgress, now time.Time) Summary {
	summary := Summary{UserID: progress.UserID}
	events := participationByWeek(progress)

	totals := make(map[course.Category]*CategoryResult, len(course.Categories))
	for _, category := range course.Categories {
		totals[category] = &CategoryResult{Category: category, Weight: course.Weights[category]}
	}
	sums := make(map[course.Category]float64, len(course.Categories))

	for _, assignment := range a.calendar.Roster() {
		record, hasRecord := progress.Records[assignment.ID]
		cell := Cell{
			AssignmentID: assignment.ID,
			Week:         assignment.Week,
			Kind:         assignment.Kind,
			Category:     assignment.Kind.Category(),
			Status:       record.Status,
			IsLate:       record.Late(),
			IsOverride:   record.IsOverride,
		}

		var score *float64
		switch {
		case assignment.Kind == course.KindParticipation && !(hasRecord && record.IsOverride && record.Score != nil):
			if weekEvents := events[assignment.Week]; len(weekEvents) > 0 {
				derived := ParticipationScore(assignment.Week, weekEvents, a.calendar.ExpectedSections(assignment.Week))
				score = &derived
				if cell.Status == "" {
					cell.Status = models.StatusParticipated
				}
			}
		case hasRecord && record.Score != nil:
			value := *record.Score
			score = &value
		}

		switch {
		case score != nil:
			cell.State = CellGraded
			cell.Score = score
		case record.Status == models.StatusUngraded:
			cell.State = CellUngraded
		case a.calendar.IsPastDue(assignment.ID, now) && a.calendar.IsStarted(assignment.Week, now):
			zero := 0.0
			cell.State = CellMissing
			cell.Score = &zero
		default:
			cell.State = CellPending
		}

		if cell.Counted() {
			totals[cell.Category].Counted++
			sums[cell.Category] += cell.Value()
		}
		summary.Cells = append(summary.Cells, cell)
	}

	var weighted, weightSum float64
	for _, category := range course.Categories {
		result := totals[category]
		if result.Counted > 0 {
			result.Average = sums[category] / float64(result.Counted)
			weighted += result.Average * result.Weight
			weightSum += result.Weight
		}
		summary.Categories = append(summary.Categories, *result)
	}

	if weightSum > 0 {
		summary.Total = weighted / weightSum
		summary.HasGrades = true
	}

	if syllabus := a.calendar.SyllabusQuiz(); syllabus != "" {
		record := progress.Records[syllabus]
		summary.SyllabusLocked = record.Score == nil || *record.Score < 100
	}

	return summary
}

// participationByWeek merges the event log with legacy "participated" status records
// for section identifiers that never reached the log.
func participationByWeek(progress StudentProgress) map[int][]models.ParticipationEvent {
	byWeek := make(map[int][]models.ParticipationEvent)
	logged := make(map[string]struct{})

	for _, event := range progress.Participation {
		week := event.Week
		if week == 0 {
			resolved, ok := course.SectionWeek(event.SectionID)
			if !ok {
				continue
			}
			week = resolved
		}
		event.Week = week
		byWeek[week] = append(byWeek[week], event)
		logged[event.SectionID] = struct{}{}
	}

	for id, record := range progress.Records {
		if record.Status != models.StatusParticipated {
			continue
		}
		if _, gradable := course.ParseAssignment(id); gradable {
			continue
		}
		if _, ok := logged[id]; ok {
			continue
		}
		week, ok := course.SectionWeek(id)
		if !ok {
			continue
		}
		event := models.ParticipationEvent{SectionID: id, Week: week}
		if record.Timestamp != nil {
			event.Timestamp = *record.Timestamp
		}
		byWeek[week] = append(byWeek[week], event)
	}

	return byWeek
}
