package ical

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	notAvailable = regexp.MustCompile(`not[\s_-]*available`)
	leadingBlock = regexp.MustCompile(`^block(\b|[^a-z])`)
	separators   = regexp.MustCompile(`[\s_-]+`)
)

// IsOwnerBlackout reports whether an event summary marks dates the owner
// closed on the host platform rather than a guest reservation. Such events
// are not imported as reservation blocks.
func IsOwnerBlackout(summary string) bool {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return false
	}
	normalized := cases.Fold().String(summary)
	collapsed := separators.ReplaceAllString(normalized, "")

	switch {
	case notAvailable.MatchString(normalized), strings.Contains(normalized, "unavailable"):
		return true
	case strings.Contains(collapsed, "owner") && !strings.Contains(collapsed, "ownerless"):
		return true
	case strings.Contains(normalized, "blocked") && !strings.Contains(normalized, "unblocked"):
		return true
	case leadingBlock.MatchString(normalized),
		strings.HasPrefix(collapsed, "blockout"),
		strings.HasPrefix(collapsed, "blockoff"):
		return true
	case strings.Contains(collapsed, "calendarblock"),
		strings.Contains(collapsed, "blockcalendar"),
		strings.Contains(collapsed, "calendarhold"):
		return true
	}
	return false
}
