package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/models"
	"github.com/noah-isme/csharp-course-api/pkg/docker"
)

const helloSource = `using System;

class Program
{
    static void Main() => Console.WriteLine("hi");
}
`

func newTestCodeService(h *courseHarness, runner CodeRunner) CodeService {
	svc := NewCodeService(h.progress, runner, h.validator, h.logger)
	svc.(*codeService).now = fixedClock(h.at(2026, time.January, 20, 9, 0))
	return svc
}

func TestCodeSaveMarksInProgress(t *testing.T) {
	h := newCourseHarness(t)
	svc := newTestCodeService(h, nil)

	resp, err := svc.Save(context.Background(), testStudent, dto.CodeSaveRequest{AssignmentID: "week-02-lab", Code: helloSource})
	require.NoError(t, err)
	require.True(t, resp.Saved)
	require.Equal(t, len(helloSource), resp.Bytes)

	record := h.record(t, testStudent.SubjectID, "week-02-lab")
	require.Equal(t, helloSource, record.SavedCode)
	require.Equal(t, models.StatusInProgress, record.Status)
}

func TestCodeSaveKeepsCompletedStatus(t *testing.T) {
	h := newCourseHarness(t)
	h.seed(t, testStudent.SubjectID, "week-02-lab", map[string]string{models.FieldStatus: string(models.StatusCompleted)})
	svc := newTestCodeService(h, nil)

	_, err := svc.Save(context.Background(), testStudent, dto.CodeSaveRequest{AssignmentID: "week-02-lab", Code: helloSource})
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, h.record(t, testStudent.SubjectID, "week-02-lab").Status)
}

func TestCodeSaveRejectsBinaryPayloads(t *testing.T) {
	h := newCourseHarness(t)
	svc := newTestCodeService(h, nil)

	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01"
	_, err := svc.Save(context.Background(), testStudent, dto.CodeSaveRequest{AssignmentID: "week-02-lab", Code: png})
	require.ErrorIs(t, err, ErrCodeNotText)

	_, err = svc.Save(context.Background(), testStudent, dto.CodeSaveRequest{AssignmentID: "lab", Code: helloSource})
	require.ErrorIs(t, err, ErrUnknownAssignment)
}

func TestCodeRunReturnsSandboxOutput(t *testing.T) {
	h := newCourseHarness(t)
	runner := &fakeRunner{output: docker.RunOutput{Stdout: "hi\n", Duration: 1500 * time.Millisecond}}
	svc := newTestCodeService(h, runner)

	resp, err := svc.Run(context.Background(), testStudent, dto.CodeRunRequest{AssignmentID: "week-02-lab", Code: helloSource})
	require.NoError(t, err)
	require.True(t, resp.Saved)
	require.True(t, resp.Ran)
	require.Equal(t, "hi\n", resp.Stdout)
	require.EqualValues(t, 1500, resp.DurationMS)
	require.Empty(t, resp.Error)
	require.Equal(t, helloSource, runner.source)
}

func TestCodeRunSavesWhenSandboxFails(t *testing.T) {
	h := newCourseHarness(t)
	svc := newTestCodeService(h, &fakeRunner{err: errSandboxDown})

	resp, err := svc.Run(context.Background(), testStudent, dto.CodeRunRequest{AssignmentID: "week-02-lab", Code: helloSource})
	require.NoError(t, err)
	require.True(t, resp.Saved)
	require.False(t, resp.Ran)
	require.Equal(t, sandboxUnavailableMessage, resp.Error)
	require.Equal(t, helloSource, h.record(t, testStudent.SubjectID, "week-02-lab").SavedCode)

	unavailable := newTestCodeService(h, nil)
	resp, err = unavailable.Run(context.Background(), testStudent, dto.CodeRunRequest{AssignmentID: "week-02-lab", Code: helloSource})
	require.NoError(t, err)
	require.Equal(t, sandboxUnavailableMessage, resp.Error)
}

func TestCodeRunReportsTimeout(t *testing.T) {
	h := newCourseHarness(t)
	svc := newTestCodeService(h, &fakeRunner{output: docker.RunOutput{TimedOut: true, ExitCode: 137}})

	resp, err := svc.Run(context.Background(), testStudent, dto.CodeRunRequest{AssignmentID: "week-02-lab", Code: helloSource})
	require.NoError(t, err)
	require.True(t, resp.TimedOut)
	require.NotEmpty(t, resp.Error)
}
