package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/models"
)

func newTestGradeService(h *courseHarness, now time.Time) GradeService {
	svc := NewGradeService(h.calendar, h.progress, h.participation, h.profiles, h.logger)
	svc.(*gradeService).now = fixedClock(now)
	return svc
}

func TestStudentSummaryWithoutGrades(t *testing.T) {
	h := newCourseHarness(t)
	h.useCompactCalendar(t)
	svc := newTestGradeService(h, time.Date(2026, time.January, 14, 0, 0, 0, 0, time.UTC))

	summary, err := svc.StudentSummary(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, summary.HasGrades)
	require.Nil(t, summary.Total)
	require.Equal(t, dto.NoGradesLabel, summary.TotalDisplay)

	_, err = svc.StudentSummary(context.Background(), "  ")
	require.ErrorIs(t, err, ErrUnknownStudent)
}

func TestStudentSummaryExcludesEmptyCategories(t *testing.T) {
	h := newCourseHarness(t)
	h.useCompactCalendar(t)
	h.seed(t, testStudent.SubjectID, "week-01-lab", map[string]string{models.FieldScore: "80"})
	h.seed(t, testStudent.SubjectID, "week-02-lab", map[string]string{models.FieldScore: "100"})
	svc := newTestGradeService(h, time.Date(2026, time.January, 14, 0, 0, 0, 0, time.UTC))

	summary, err := svc.StudentSummary(context.Background(), testStudent.SubjectID)
	require.NoError(t, err)
	require.True(t, summary.HasGrades)
	require.InDelta(t, 90, *summary.Total, 0.001)
	require.Equal(t, "90.00%", summary.TotalDisplay)

	for _, category := range summary.Categories {
		if category.Category == "labs" {
			require.True(t, category.Included)
			require.Equal(t, 90.0, category.Average)
			continue
		}
		require.False(t, category.Included, category.Category)
	}

	require.Len(t, summary.Weeks, 2)
	require.Equal(t, 1, summary.Weeks[0].Week)
	require.Equal(t, "graded", summary.Weeks[0].Cells[0].State)
	require.Equal(t, "pending", summary.Weeks[0].Cells[1].State)
}

func TestGradebookRowsPerStudent(t *testing.T) {
	h := newCourseHarness(t)
	h.useCompactCalendar(t)
	ctx := context.Background()

	h.profiles.Remember(ctx, testStudent)
	h.seed(t, testStudent.SubjectID, "week-01-lab", map[string]string{models.FieldScore: "90"})
	h.seed(t, "student-2", "week-01-homework", map[string]string{
		models.FieldStatus:       string(models.StatusUngraded),
		models.FieldGradingError: "grader offline",
	})
	svc := newTestGradeService(h, time.Date(2026, time.January, 22, 0, 0, 0, 0, time.UTC))

	book, err := svc.Gradebook(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"week-01-lab", "week-01-homework", "week-02-lab", "week-02-quiz"}, book.Roster)
	require.Len(t, book.Rows, 2)

	first := book.Rows[0]
	require.Equal(t, testStudent.SubjectID, first.UserID)
	require.Equal(t, "Ada Student", first.Name)
	require.InDelta(t, 60, *first.Total, 0.001)
	require.Equal(t, 90.0, first.Categories["labs"])
	require.Equal(t, 0.0, first.Categories["homework"])
	require.Equal(t, "missing", first.Cells[1].State)

	second := book.Rows[1]
	require.Equal(t, "student-2", second.UserID)
	require.Empty(t, second.Name)
	require.Equal(t, "missing", second.Cells[0].State)
	require.Equal(t, "ungraded", second.Cells[1].State)
	_, hasHomework := second.Categories["homework"]
	require.False(t, hasHomework)
}
