package course

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the type of gradable unit encoded in an assignment identifier.
type Kind string

const (
	KindParticipation Kind = "participation"
	KindQuiz          Kind = "quiz"
	KindLab           Kind = "lab"
	KindHomework      Kind = "homework"
	KindRequiredQuiz  Kind = "required-quiz"
	KindFinal         Kind = "final"
)

// Category groups kinds for weighting in the course total.
type Category string

const (
	CategoryLabs          Category = "labs"
	CategoryQuizzes       Category = "quizzes"
	CategoryHomework      Category = "homework"
	CategoryParticipation Category = "participation"
	CategoryFinal         Category = "final"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryLabs,
	CategoryQuizzes,
	CategoryHomework,
	CategoryParticipation,
	CategoryFinal,
}

// Weights is the fixed course weighting. The values sum to 1.0 over the full set.
var Weights = map[Category]float64{
	CategoryLabs:          0.40,
	CategoryQuizzes:       0.20,
	CategoryHomework:      0.20,
	CategoryParticipation: 0.10,
	CategoryFinal:         0.10,
}

var kinds = map[Kind]Category{
	KindParticipation: CategoryParticipation,
	KindQuiz:          CategoryQuizzes,
	KindRequiredQuiz:  CategoryQuizzes,
	KindLab:           CategoryLabs,
	KindHomework:      CategoryHomework,
	KindFinal:         CategoryFinal,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Category returns the weighting category for the kind.
func (k Kind) Category() Category {
	return kinds[k]
}

// IsQuiz reports whether the kind follows the attempt policy.
func (k Kind) IsQuiz() bool {
	return k == KindQuiz || k == KindRequiredQuiz
}

// Graded reports whether the kind is scored through the graded-work submission path.
func (k Kind) Graded() bool {
	return k == KindLab || k == KindHomework || k == KindFinal
}

var weekPattern = regexp.MustCompile(`week-(\d+)`)

// Assignment is a parsed assignment identifier.
type Assignment struct {
	ID   string
	Week int
	Kind Kind
}

// AssignmentID builds the canonical identifier for a week and kind.
func AssignmentID(week int, kind Kind) string {
	return fmt.Sprintf("week-%02d-%s", week, kind)
}

// WeekOf extracts the week number following "week-". It returns false when the
// identifier carries no week.
func WeekOf(id string) (int, bool) {
	match := weekPattern.FindStringSubmatch(id)
	if len(match) < 2 {
		return 0, false
	}
	week, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return week, true
}

// ParseAssignment splits an identifier of the form week-NN-<kind>. Identifiers whose
// suffix is not a known kind (participation sections such as week-03-checkpoint-loops)
// report false.
func ParseAssignment(id string) (Assignment, bool) {
	id = strings.TrimSpace(id)
	week, ok := WeekOf(id)
	if !ok || !strings.HasPrefix(id, "week-") {
		return Assignment{}, false
	}

	rest := strings.TrimPrefix(id, "week-")
	idx := strings.Index(rest, "-")
	if idx < 0 {
		return Assignment{}, false
	}

	kind := Kind(rest[idx+1:])
	if !kind.Valid() {
		return Assignment{}, false
	}

	return Assignment{ID: id, Week: week, Kind: kind}, true
}

// SectionWeek resolves a participation section identifier (week-NN-<anything>) to its week.
func SectionWeek(sectionID string) (int, bool) {
	sectionID = strings.TrimSpace(sectionID)
	if !strings.HasPrefix(sectionID, "week-") {
		return 0, false
	}
	rest := strings.TrimPrefix(sectionID, "week-")
	idx := strings.Index(rest, "-")
	if idx <= 0 || idx == len(rest)-1 {
		return 0, false
	}
	return WeekOf(sectionID)
}
