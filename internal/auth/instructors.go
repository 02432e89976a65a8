package auth

import "strings"

// StaticInstructors is the built-in instructor list. Additional identities come from
// configuration.
var StaticInstructors = []string{
	"prof@csharp-course.edu",
	"ta@csharp-course.edu",
}

// InstructorAllowList authorises instructor actions by exact, case-insensitive email
// match. Organisational domain is never consulted.
type InstructorAllowList struct {
	members map[string]struct{}
}

// NewInstructorAllowList merges the static list with configured extensions.
func NewInstructorAllowList(static []string, extra []string) *InstructorAllowList {
	list := &InstructorAllowList{members: make(map[string]struct{}, len(static)+len(extra))}
	for _, group := range [][]string{static, extra} {
		for _, email := range group {
			normalized := normalizeEmail(email)
			if normalized != "" {
				list.members[normalized] = struct{}{}
			}
		}
	}
	return list
}

// ParseInstructorList splits a comma or whitespace separated list of emails.
func ParseInstructorList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	result := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Allows reports whether the identity may act as an instructor.
func (l *InstructorAllowList) Allows(identity Identity) bool {
	if l == nil {
		return false
	}
	email := normalizeEmail(identity.Email)
	if email == "" {
		return false
	}
	_, ok := l.members[email]
	return ok
}

// Size returns the number of distinct allowed identities.
func (l *InstructorAllowList) Size() int {
	if l == nil {
		return 0
	}
	return len(l.members)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
