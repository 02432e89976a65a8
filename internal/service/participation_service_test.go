package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/models"
)

func newTestParticipationService(h *courseHarness) ParticipationService {
	svc := NewParticipationService(h.calendar, h.progress, h.participation, h.profiles, h.validator, h.logger)
	svc.(*participationService).now = fixedClock(h.at(2026, time.January, 20, 9, 0))
	return svc
}

func TestParticipationCountsDistinctSections(t *testing.T) {
	h := newCourseHarness(t)
	svc := newTestParticipationService(h)
	ctx := context.Background()

	for _, section := range []string{"week-02-variables", "week-02-loops", "week-02-loops"} {
		_, err := svc.Record(ctx, testStudent, dto.ParticipationRequest{SectionID: section})
		require.NoError(t, err)
	}

	resp, err := svc.Record(ctx, testStudent, dto.ParticipationRequest{SectionID: "week-02-participation"})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Week)
	require.Equal(t, 75.0, resp.WeekScore)

	events, err := h.participation.List(ctx, testStudent.SubjectID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, models.StatusParticipated, h.record(t, testStudent.SubjectID, "week-02-loops").Status)
}

func TestParticipationRejectsUnknownSections(t *testing.T) {
	h := newCourseHarness(t)
	svc := newTestParticipationService(h)
	ctx := context.Background()

	for _, section := range []string{"intro", "week-99-loops", "week-02-lab", "week-02-"} {
		_, err := svc.Record(ctx, testStudent, dto.ParticipationRequest{SectionID: section})
		require.ErrorIs(t, err, ErrUnknownSection, section)
	}

	events, err := h.participation.List(ctx, testStudent.SubjectID)
	require.NoError(t, err)
	require.Empty(t, events)
}
