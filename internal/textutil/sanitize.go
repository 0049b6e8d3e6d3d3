package textutil

import (
	"strings"
	"unicode"
)

const (
	mediaExtension  = ".mp4"
	maxFileNameRune = 180
)

// SanitizeFileName keeps letters, digits, spaces, dots, underscores, and
// hyphens and replaces every other rune with an underscore. Separators are
// always replaced, so the result never escapes its directory.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	count := 0
	for _, r := range name {
		if count == maxFileNameRune {
			break
		}
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsNumber(r):
			b.WriteRune(r)
		case r == ' ', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		count++
	}
	out := strings.TrimSpace(b.String())
	if strings.Trim(out, ".") == "" {
		return ""
	}
	return out
}

// MediaFileName derives the local file name for a title, falling back to
// the content id when the title sanitizes to nothing.
func MediaFileName(title, id string) string {
	name := SanitizeFileName(title)
	if name == "" {
		name = SanitizeFileName(id)
	}
	if name == "" {
		name = "untitled"
	}
	if !strings.HasSuffix(strings.ToLower(name), mediaExtension) {
		name += mediaExtension
	}
	return name
}
