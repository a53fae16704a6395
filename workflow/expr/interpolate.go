package expr

import (
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{\s*([A-Za-z_][A-Za-z0-9_]*)((?:\.[A-Za-z0-9_]+)*)\s*\}`)

// References returns the distinct root variable names used by ${...} placeholders in s.
func References(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range refPattern.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Interpolate replaces ${path} placeholders with values looked up in vars.
// Unresolved placeholders expand to the empty string.
func Interpolate(s string, vars map[string]any) string {
	return refPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := refPattern.FindStringSubmatch(match)
		v := Resolve(m[1]+m[2], vars)
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}

// RenameReference rewrites ${oldName...} placeholders to use newName.
func RenameReference(s, oldName, newName string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return refPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := refPattern.FindStringSubmatch(match)
		if m[1] != oldName {
			return match
		}
		return "${" + newName + m[2] + "}"
	})
}
