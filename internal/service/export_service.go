package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/csharp-course-api/internal/course"
	"github.com/noah-isme/csharp-course-api/internal/dto"
	"github.com/noah-isme/csharp-course-api/internal/grading"
	"github.com/noah-isme/csharp-course-api/internal/models"
)

const (
	exportSheet        = "Sheet1"
	pointsPossibleRow  = "Points Possible"
	pointsPossible     = "100"
	exportTotalColumn  = "Course Total"
	exportStudentLabel = "Student"
	exportUserIDLabel  = "User ID"
)

// ExportTable is the cohort grade sheet: header, points-possible row, one row per student.
type ExportTable struct {
	Header         []string
	PointsPossible []string
	Rows           [][]string
}

// ExportService renders the cohort grade sheet.
type ExportService interface {
	Table(ctx context.Context) (ExportTable, error)
	WriteCSV(ctx context.Context, w io.Writer) error
	WriteXLSX(ctx context.Context, w io.Writer) error
}

type exportService struct {
	calendar *course.Calendar
	grades   GradeService
	profiles ProfileService
	logger   zerolog.Logger
}

// NewExportService constructs the export service.
func NewExportService(calendar *course.Calendar, grades GradeService, profiles ProfileService, logger zerolog.Logger) ExportService {
	return &exportService{
		calendar: calendar,
		grades:   grades,
		profiles: profiles,
		logger:   logger.With().Str("component", "export_service").Logger(),
	}
}

func (s *exportService) Table(ctx context.Context) (ExportTable, error) {
	cohort, err := s.grades.Cohort(ctx)
	if err != nil {
		return ExportTable{}, err
	}

	roster := s.calendar.Roster()
	table := ExportTable{
		Header:         make([]string, 0, len(roster)+3),
		PointsPossible: make([]string, 0, len(roster)+3),
		Rows:           make([][]string, 0, len(cohort)),
	}
	table.Header = append(table.Header, exportStudentLabel, exportUserIDLabel)
	table.PointsPossible = append(table.PointsPossible, pointsPossibleRow, "")
	for _, assignment := range roster {
		table.Header = append(table.Header, assignment.ID)
		table.PointsPossible = append(table.PointsPossible, pointsPossible)
	}
	table.Header = append(table.Header, exportTotalColumn)
	table.PointsPossible = append(table.PointsPossible, pointsPossible)

	ids := make([]string, 0, len(cohort))
	for _, student := range cohort {
		ids = append(ids, student.Summary.UserID)
	}
	names := s.profiles.Names(ctx, ids)

	for _, student := range cohort {
		userID := student.Summary.UserID
		row := make([]string, 0, len(table.Header))
		row = append(row, names[userID], userID)
		for _, assignment := range roster {
			cell, ok := student.Summary.Cell(assignment.ID)
			if !ok {
				row = append(row, "")
				continue
			}
			record, hasRecord := student.Progress.Records[assignment.ID]
			row = append(row, exportCell(cell, record, hasRecord))
		}
		if student.Summary.HasGrades {
			row = append(row, formatExportScore(student.Summary.Total))
		} else {
			row = append(row, "")
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func (s *exportService) WriteCSV(ctx context.Context, w io.Writer) error {
	table, err := s.Table(ctx)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(table.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := writer.Write(table.PointsPossible); err != nil {
		return fmt.Errorf("write csv points row: %w", err)
	}
	if err := writer.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}

	s.logger.Info().Int("students", len(table.Rows)).Msg("csv export written")
	return nil
}

func (s *exportService) WriteXLSX(ctx context.Context, w io.Writer) error {
	table, err := s.Table(ctx)
	if err != nil {
		return err
	}

	file := excelize.NewFile()
	defer func() {
		if err := file.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close workbook")
		}
	}()

	rows := make([][]string, 0, len(table.Rows)+2)
	rows = append(rows, table.Header, table.PointsPossible)
	rows = append(rows, table.Rows...)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("resolve cell: %w", err)
		}
		values := make([]interface{}, 0, len(row))
		for col, value := range row {
			values = append(values, spreadsheetValue(i, col, value))
		}
		if err := file.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("write sheet row %d: %w", i+1, err)
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info().Int("students", len(table.Rows)).Msg("xlsx export written")
	return nil
}

// spreadsheetValue keeps the header and identity columns as text and writes scores as numbers.
func spreadsheetValue(row, col int, value string) interface{} {
	if row == 0 || col < 2 || value == "" {
		return value
	}
	if number, err := strconv.ParseFloat(value, 64); err == nil {
		return number
	}
	return value
}

// exportCell renders one roster cell: graded scores as numbers, past-due missing work as
// "0", and anything not yet due or still ungraded as an empty cell. Legacy late records
// that never had a penalty applied get the export estimate.
func exportCell(cell grading.Cell, record models.ProgressRecord, hasRecord bool) string {
	switch cell.State {
	case grading.CellGraded:
		score := cell.Value()
		if hasRecord && cell.Kind != course.KindParticipation && unpenalisedLate(record) {
			score = grading.ExportPenaltyEstimate(score, *record.DaysLate).Score
		}
		return formatExportScore(score)
	case grading.CellMissing:
		return "0"
	default:
		return ""
	}
}

func unpenalisedLate(record models.ProgressRecord) bool {
	return record.Late() &&
		!record.IsOverride &&
		record.Penalty == nil &&
		record.OriginalScore == nil &&
		record.DaysLate != nil &&
		*record.DaysLate > 0
}

func formatExportScore(score float64) string {
	return strconv.FormatFloat(dto.Round2(score), 'f', -1, 64)
}
