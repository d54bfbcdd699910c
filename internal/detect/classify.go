package detect

import (
	"regexp"
	"strings"
)

var (
	// alphanumeric decides whether recovered text has any substance at all;
	// a cover with nothing but punctuation or box-drawing junk under it is a
	// decorated rectangle, not a leak.
	alphanumeric = regexp.MustCompile(`[\p{L}\p{N}]`)

	// placeholderWords matches labels that are routinely printed under or
	// instead of redacted content. Text consisting only of these is the
	// redaction working as intended. Longest alternatives first so whole
	// phrases win over their truncations.
	placeholderWords = regexp.MustCompile(`(?i)\b(?:` +
		`redacted\s+and\s+publicly\s+filed|` +
		`name\s+redacted|` +
		`confidential|` +
		`privileged|privilege|` +
		`redacted|redacte|redact|redac|reda|red|re` +
		`)\b`)

	// datePatterns match text that is, in its entirety, a date: ISO dates
	// and slash or dash separated day/month forms. The ISO pattern must run
	// first; the day/month pattern would otherwise eat "21-01-05" out of
	// "2021-01-05" and leave the century behind.
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-[01]?\d-[0-3]?\d`),
		regexp.MustCompile(`[0-3]?\d[/\-][0-3]?\d[/\-]\d{2,4}`),
	}
)

// keepText reports whether recovered text is worth reporting as a leak.
// Blank text, a single repeated character (XXXXXX fills, runs of spaces),
// text without a single letter or digit, and placeholder labels are all
// signs of a redaction that hides nothing sensitive.
func keepText(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if isRepeatedChars(text) {
		return false
	}
	if !alphanumeric.MatchString(text) {
		return false
	}
	if isPlaceholder(text) {
		return false
	}
	return true
}

// isRepeatedChars reports whether the text is two or more copies of a
// single character.
func isRepeatedChars(text string) bool {
	runes := []rune(text)
	if len(runes) <= 1 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

// isPlaceholder reports whether the text contains nothing of substance once
// placeholder labels are removed.
func isPlaceholder(text string) bool {
	collapsed := strings.Join(strings.Fields(text), " ")
	stripped := placeholderWords.ReplaceAllString(collapsed, "")
	return !alphanumeric.MatchString(stripped)
}

// looksLikeDate reports whether the text is, in its entirety, one or more
// dates. Filing dates are stamped on documents and then routinely covered
// during scanning workflows; they are not leaks.
func looksLikeDate(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, p := range datePatterns {
		text = p.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text) == ""
}
