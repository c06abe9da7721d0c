package util

import (
	"regexp"
	"strings"
)

var presignUnsafe = regexp.MustCompile(`[^\w\-. ]`)

// SanitizeHeaderName strips characters that break a quoted
// Content-Disposition filename.
func SanitizeHeaderName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', ';', ',':
			return -1
		}
		return r
	}, name)
}

// SanitizeObjectName replaces everything outside word characters, dashes, dots
// and spaces with underscores.
func SanitizeObjectName(name string) string {
	return presignUnsafe.ReplaceAllString(name, "_")
}

// ArchiveEntryName makes a name safe to use as one path segment of a ZIP entry.
func ArchiveEntryName(name, fallback string) string {
	cleaned := strings.NewReplacer("/", "_", "\\", "_").Replace(SanitizeHeaderName(name))
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return fallback
	}
	return cleaned
}
