package utils

import (
	"regexp"
	"strings"
	"unicode"
)

// NormalizeString trims whitespace and normalizes string input
func NormalizeString(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail normalizes email addresses (lowercase and trim)
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps the digits of phone and a leading +.
func NormalizePhone(phone string) string {
	cleaned := strings.TrimSpace(phone)
	if cleaned == "" {
		return ""
	}

	var result strings.Builder
	for i, r := range cleaned {
		if (i == 0 && r == '+') || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// IsValidPhone reports whether phone has enough digits to be dialable.
func IsValidPhone(phone string) bool {
	return len(strings.TrimPrefix(NormalizePhone(phone), "+")) >= 7
}

var (
	unsafeSegmentChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	dashRuns           = regexp.MustCompile(`-+`)
)

// PathSegment makes s safe to use as one storage path segment. Unsafe
// characters become dashes; an empty result yields fallback.
func PathSegment(s, fallback string) string {
	seg := unsafeSegmentChars.ReplaceAllString(strings.TrimSpace(s), "-")
	seg = strings.Trim(dashRuns.ReplaceAllString(seg, "-"), "-")
	if seg == "" {
		return fallback
	}
	return seg
}
