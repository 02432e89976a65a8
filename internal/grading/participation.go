package grading

import "github.com/noah-isme/csharp-course-api/internal/models"

// ParticipationScore derives a 0-100 participation score for a week from its events.
// Week 1 counts raw events rather than distinct sections; every other week counts
// distinct sections. The result is capped at 100.
func ParticipationScore(week int, events []models.ParticipationEvent, expectedSections int) float64 {
	if expectedSections <= 0 {
		expectedSections = 1
	}

	var count int
	if week == 1 {
		for _, event := range events {
			if event.Week == 0 || event.Week == week {
				count++
			}
		}
	} else {
		distinct := make(map[string]struct{}, len(events))
		for _, event := range events {
			if event.Week != 0 && event.Week != week {
				continue
			}
			distinct[event.SectionID] = struct{}{}
		}
		count = len(distinct)
	}

	score := float64(count) / float64(expectedSections) * 100
	if score > 100 {
		return 100
	}
	return score
}
