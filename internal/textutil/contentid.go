package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ContentIDPrefix is the canonical prefix of every content identifier.
const ContentIDPrefix = "FC2-PPV-"

var contentIDPattern = regexp.MustCompile(`(?i)FC2[\s_-]*PPV[\s_-]*(\d+)`)

// Normalize applies NFKC folding so full-width digits and dashes in listing
// titles compare equal to their ASCII forms.
func Normalize(text string) string {
	return strings.TrimSpace(norm.NFKC.String(text))
}

// ExtractContentID returns the canonical identifier embedded in text and
// whether one was found.
func ExtractContentID(text string) (string, bool) {
	digits, ok := ContentDigits(text)
	if !ok {
		return "", false
	}
	return ContentIDPrefix + digits, true
}

// ContentDigits returns the numeric part of the identifier in text.
func ContentDigits(text string) (string, bool) {
	match := contentIDPattern.FindStringSubmatch(Normalize(text))
	if match == nil {
		return "", false
	}
	return match[1], true
}
