package course

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pelletier/go-toml/v2"
)

//go:embed default_calendar.toml
var defaultCalendar []byte

const localLayout = "2006-01-02T15:04:05"

// ErrInvalidCalendar is returned when a calendar violates ordering invariants.
var ErrInvalidCalendar = errors.New("invalid course calendar")

// WeekConfig describes one scheduling unit of the course.
type WeekConfig struct {
	Number                        int
	Unlock                        time.Time
	Due                           time.Time
	ExpectedParticipationSections int
	Kinds                         []Kind
}

type calendarFile struct {
	Timezone     string     `toml:"timezone"`
	SyllabusQuiz string     `toml:"syllabus_quiz"`
	Weeks        []weekFile `toml:"weeks"`
}

type weekFile struct {
	Number                int      `toml:"number"`
	Unlock                string   `toml:"unlock"`
	Due                   string   `toml:"due"`
	ParticipationSections int      `toml:"participation_sections"`
	Assignments           []string `toml:"assignments"`
}

// Calendar is the immutable course schedule.
type Calendar struct {
	weeks    map[int]WeekConfig
	order    []int
	syllabus string
	location *time.Location
}

// DefaultCalendar returns the built-in semester calendar.
func DefaultCalendar() *Calendar {
	cal, err := ParseCalendar(defaultCalendar)
	if err != nil {
		panic(fmt.Sprintf("default calendar: %v", err))
	}
	return cal
}

// LoadCalendar reads a TOML calendar from path. An empty path yields the default calendar.
func LoadCalendar(path string) (*Calendar, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCalendar(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar file: %w", err)
	}

	cal, err := ParseCalendar(data)
	if err != nil {
		return nil, fmt.Errorf("calendar %s: %w", path, err)
	}
	return cal, nil
}

// ParseCalendar decodes and validates a TOML calendar document.
func ParseCalendar(data []byte) (*Calendar, error) {
	var file calendarFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	location := time.UTC
	if file.Timezone != "" {
		loc, err := time.LoadLocation(file.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", file.Timezone, err)
		}
		location = loc
	}

	cal := &Calendar{
		weeks:    make(map[int]WeekConfig, len(file.Weeks)),
		syllabus: strings.TrimSpace(file.SyllabusQuiz),
		location: location,
	}

	for _, w := range file.Weeks {
		unlock, err := time.ParseInLocation(localLayout, w.Unlock, location)
		if err != nil {
			return nil, fmt.Errorf("week %d unlock: %w", w.Number, err)
		}
		due, err := time.ParseInLocation(localLayout, w.Due, location)
		if err != nil {
			return nil, fmt.Errorf("week %d due: %w", w.Number, err)
		}

		kinds := make([]Kind, 0, len(w.Assignments))
		for _, raw := range w.Assignments {
			kind := Kind(strings.TrimSpace(raw))
			if !kind.Valid() {
				return nil, fmt.Errorf("%w: week %d has unknown assignment kind %q", ErrInvalidCalendar, w.Number, raw)
			}
			kinds = append(kinds, kind)
		}

		if _, exists := cal.weeks[w.Number]; exists {
			return nil, fmt.Errorf("%w: week %d defined twice", ErrInvalidCalendar, w.Number)
		}

		cal.weeks[w.Number] = WeekConfig{
			Number:                        w.Number,
			Unlock:                        unlock,
			Due:                           due,
			ExpectedParticipationSections: w.ParticipationSections,
			Kinds:                         kinds,
		}
		cal.order = append(cal.order, w.Number)
	}

	sort.Ints(cal.order)
	if err := cal.validate(); err != nil {
		return nil, err
	}

	return cal, nil
}

func (c *Calendar) validate() error {
	var previous *WeekConfig
	for _, number := range c.order {
		week := c.weeks[number]
		if number <= 0 {
			return fmt.Errorf("%w: week numbers must be positive", ErrInvalidCalendar)
		}
		if !week.Unlock.Before(week.Due) {
			return fmt.Errorf("%w: week %d unlocks at or after its due instant", ErrInvalidCalendar, number)
		}
		if previous != nil && !previous.Due.Before(week.Unlock) {
			return fmt.Errorf("%w: week %d overlaps week %d", ErrInvalidCalendar, number, previous.Number)
		}
		w := week
		previous = &w
	}
	return nil
}

// Location returns the calendar's timezone.
func (c *Calendar) Location() *time.Location {
	return c.location
}

// Weeks returns the configured weeks in ascending order.
func (c *Calendar) Weeks() []WeekConfig {
	weeks := make([]WeekConfig, 0, len(c.order))
	for _, number := range c.order {
		weeks = append(weeks, c.weeks[number])
	}
	return weeks
}

// Week returns the configuration for a week number.
func (c *Calendar) Week(number int) (WeekConfig, bool) {
	week, ok := c.weeks[number]
	return week, ok
}

// WeekOf maps an assignment identifier to its week number.
func (c *Calendar) WeekOf(assignmentID string) (int, bool) {
	return WeekOf(assignmentID)
}

// DueInstant returns the due instant of a configured week.
func (c *Calendar) DueInstant(week int) (time.Time, bool) {
	cfg, ok := c.weeks[week]
	if !ok {
		return time.Time{}, false
	}
	return cfg.Due, true
}

// UnlockInstant returns the unlock instant of a configured week.
func (c *Calendar) UnlockInstant(week int) (time.Time, bool) {
	cfg, ok := c.weeks[week]
	if !ok {
		return time.Time{}, false
	}
	return cfg.Unlock, true
}

// IsPastDue reports whether the assignment's week closed before now. Identifiers
// without a week and unconfigured weeks are never past due.
func (c *Calendar) IsPastDue(assignmentID string, now time.Time) bool {
	week, ok := WeekOf(assignmentID)
	if !ok {
		return false
	}
	due, ok := c.DueInstant(week)
	if !ok {
		return false
	}
	return now.After(due)
}

// IsStarted reports whether the week has unlocked. Unconfigured weeks are not started.
func (c *Calendar) IsStarted(week int, now time.Time) bool {
	unlock, ok := c.UnlockInstant(week)
	if !ok {
		return false
	}
	return !now.Before(unlock)
}

// ExpectedSections returns the participation section count for a week, at least 1.
func (c *Calendar) ExpectedSections(week int) int {
	cfg, ok := c.weeks[week]
	if !ok || cfg.ExpectedParticipationSections <= 0 {
		return 1
	}
	return cfg.ExpectedParticipationSections
}

// Roster returns every gradable assignment in week order, then in the order each week lists them.
func (c *Calendar) Roster() []Assignment {
	roster := make([]Assignment, 0, len(c.order)*4)
	for _, number := range c.order {
		for _, kind := range c.weeks[number].Kinds {
			roster = append(roster, Assignment{
				ID:   AssignmentID(number, kind),
				Week: number,
				Kind: kind,
			})
		}
	}
	return roster
}

// SyllabusQuiz returns the assignment gating the instructor view, if configured.
func (c *Calendar) SyllabusQuiz() string {
	return c.syllabus
}
