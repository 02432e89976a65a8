package dto

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/csharp-course-api/internal/grading"
)

// NoGradesLabel is displayed instead of a percentage when nothing counts yet.
const NoGradesLabel = "No grades yet"

// GradeCell is one roster assignment as shown to students and instructors.
type GradeCell struct {
	AssignmentID string   `json:"assignment_id"`
	Kind         string   `json:"kind"`
	Category     string   `json:"category"`
	State        string   `json:"state"`
	Score        *float64 `json:"score"`
	Status       string   `json:"status,omitempty"`
	IsLate       bool     `json:"is_late"`
	IsOverride   bool     `json:"is_override"`
}

// CategoryAverage is the mean of one grading category.
type CategoryAverage struct {
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
	Average  float64 `json:"average"`
	Counted  int     `json:"counted"`
	Included bool    `json:"included"`
}

// WeekGrades groups cells by course week.
type WeekGrades struct {
	Week  int         `json:"week"`
	Cells []GradeCell `json:"cells"`
}

// GradeSummaryResponse is the student-facing grade view.
type GradeSummaryResponse struct {
	UserID         string            `json:"user_id"`
	Total          *float64          `json:"total"`
	TotalDisplay   string            `json:"total_display"`
	HasGrades      bool              `json:"has_grades"`
	SyllabusLocked bool              `json:"syllabus_locked"`
	Categories     []CategoryAverage `json:"categories"`
	Weeks          []WeekGrades      `json:"weeks"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// NewGradeSummaryResponse converts an aggregation summary.
func NewGradeSummaryResponse(summary grading.Summary, generatedAt time.Time) GradeSummaryResponse {
	total, display := totalView(summary)
	response := GradeSummaryResponse{
		UserID:         summary.UserID,
		Total:          total,
		TotalDisplay:   display,
		HasGrades:      summary.HasGrades,
		SyllabusLocked: summary.SyllabusLocked,
		Categories:     newCategoryAverages(summary.Categories),
		GeneratedAt:    generatedAt,
	}

	byWeek := make(map[int][]GradeCell)
	for _, cell := range summary.Cells {
		byWeek[cell.Week] = append(byWeek[cell.Week], NewGradeCell(cell))
	}
	weeks := make([]int, 0, len(byWeek))
	for week := range byWeek {
		weeks = append(weeks, week)
	}
	sort.Ints(weeks)
	response.Weeks = make([]WeekGrades, 0, len(weeks))
	for _, week := range weeks {
		response.Weeks = append(response.Weeks, WeekGrades{Week: week, Cells: byWeek[week]})
	}

	return response
}

// NewGradeCell converts one aggregation cell.
func NewGradeCell(cell grading.Cell) GradeCell {
	return GradeCell{
		AssignmentID: cell.AssignmentID,
		Kind:         string(cell.Kind),
		Category:     string(cell.Category),
		State:        string(cell.State),
		Score:        Round2Ptr(cell.Score),
		Status:       string(cell.Status),
		IsLate:       cell.IsLate,
		IsOverride:   cell.IsOverride,
	}
}

func newCategoryAverages(results []grading.CategoryResult) []CategoryAverage {
	categories := make([]CategoryAverage, 0, len(results))
	for _, result := range results {
		categories = append(categories, CategoryAverage{
			Category: string(result.Category),
			Weight:   result.Weight,
			Average:  Round2(result.Average),
			Counted:  result.Counted,
			Included: result.Included(),
		})
	}
	return categories
}

func totalView(summary grading.Summary) (*float64, string) {
	if !summary.HasGrades {
		return nil, NoGradesLabel
	}
	total := Round2(summary.Total)
	return &total, fmt.Sprintf("%.2f%%", total)
}

// GradebookRow is one student in the instructor gradebook.
type GradebookRow struct {
	UserID         string             `json:"user_id"`
	Name           string             `json:"name,omitempty"`
	Total          *float64           `json:"total"`
	TotalDisplay   string             `json:"total_display"`
	HasGrades      bool               `json:"has_grades"`
	SyllabusLocked bool               `json:"syllabus_locked"`
	Categories     map[string]float64 `json:"categories"`
	Cells          []GradeCell        `json:"cells"`
}

// GradebookResponse is the instructor gradebook.
type GradebookResponse struct {
	Roster      []string       `json:"roster"`
	Rows        []GradebookRow `json:"rows"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// NewGradebookRow converts one student's summary.
func NewGradebookRow(summary grading.Summary, name string) GradebookRow {
	total, display := totalView(summary)
	row := GradebookRow{
		UserID:         summary.UserID,
		Name:           name,
		Total:          total,
		TotalDisplay:   display,
		HasGrades:      summary.HasGrades,
		SyllabusLocked: summary.SyllabusLocked,
		Categories:     make(map[string]float64, len(summary.Categories)),
		Cells:          make([]GradeCell, 0, len(summary.Cells)),
	}
	for _, category := range summary.Categories {
		if category.Included() {
			row.Categories[string(category.Category)] = Round2(category.Average)
		}
	}
	for _, cell := range summary.Cells {
		row.Cells = append(row.Cells, NewGradeCell(cell))
	}
	return row
}
