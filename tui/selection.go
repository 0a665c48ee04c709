package tui

import (
	"strconv"
	"strings"
)

// ParseSelection turns a comma-separated list of 1-based indexes into the
// chosen items. Blank input selects nothing. Any out-of-range or non-numeric
// entry invalidates the whole selection and ok is false.
func ParseSelection(input string, items []string) (selected []string, ok bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return []string{}, true
	}

	for _, field := range strings.Split(input, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n < 1 || n > len(items) {
			return nil, false
		}
		selected = append(selected, items[n-1])
	}
	return selected, true
}

// resolveImages applies an image selection to a task being created (current
// is nil) or edited. Blank or invalid input on edit keeps the current images;
// invalid input on create selects none.
func resolveImages(input string, available, current []string, editing bool) ([]string, bool) {
	selected, ok := ParseSelection(input, available)
	if editing && (!ok || strings.TrimSpace(input) == "") {
		return current, ok
	}
	if !ok {
		return []string{}, false
	}
	return selected, true
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
