package repository

import "fmt"

// Key layout of the course store. Every key is scoped by the opaque user id.
const (
	studentsKey = "students"
	auditKey    = "audit:overrides"
)

// AuditLogCap bounds the override audit list.
const AuditLogCap = 1000

func progressKey(userID string) string {
	return fmt.Sprintf("progress:%s", userID)
}

func legacyProgressKey(userID string) string {
	return fmt.Sprintf("user:%s:progress", userID)
}

func legacySubmissionKey(userID, assignmentID string) string {
	return fmt.Sprintf("submission:%s:%s", userID, assignmentID)
}

func legacySubmissionPattern(userID string) string {
	return fmt.Sprintf("submission:%s:*", escapeGlob(userID))
}

func completedKey(userID string) string {
	return fmt.Sprintf("completed:%s", userID)
}

func quizHistoryKey(userID, quizID string) string {
	return fmt.Sprintf("quiz-history:%s:%s", userID, quizID)
}

func participationKey(userID string) string {
	return fmt.Sprintf("participation:%s", userID)
}

func profileKey(userID string) string {
	return fmt.Sprintf("profile:%s", userID)
}

func fieldKey(assignmentID, field string) string {
	return assignmentID + ":" + field
}

func escapeGlob(value string) string {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		switch r {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
