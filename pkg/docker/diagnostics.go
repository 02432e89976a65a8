package docker

import (
	"regexp"
	"strconv"
	"strings"
)

// Diagnostic is one compiler message reported by the C# toolchain.
type Diagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// Program.cs(12,5): error CS1002: ; expected [/workspace/app.csproj]
var diagnosticLine = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\):\s+(error|warning)\s+([A-Z]+\d+):\s+(.*?)(?:\s+\[[^\]]*\])?$`)

// ParseDiagnostics extracts compiler diagnostics from build output. Duplicate lines,
// which msbuild prints once per target, are collapsed.
func ParseDiagnostics(output string) []Diagnostic {
	diagnostics := make([]Diagnostic, 0)
	seen := make(map[string]struct{})
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		match := diagnosticLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}

		lineNo, _ := strconv.Atoi(match[2])
		column, _ := strconv.Atoi(match[3])
		file := match[1]
		if idx := strings.LastIndexAny(file, `/\`); idx >= 0 {
			file = file[idx+1:]
		}
		diagnostics = append(diagnostics, Diagnostic{
			File:     file,
			Line:     lineNo,
			Column:   column,
			Severity: match[4],
			Code:     match[5],
			Message:  match[6],
		})
	}
	return diagnostics
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diagnostics []Diagnostic) bool {
	for _, d := range diagnostics {
		if d.Severity == "error" {
			return true
		}
	}
	return false
}
