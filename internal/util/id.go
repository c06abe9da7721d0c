package util

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.NewString()
}

// IsID reports whether s is a canonical UUID.
func IsID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// ObjectKey returns the storage key for an uploaded file: documents/{uuid}{ext}
// with the extension lowercased.
func ObjectKey(filename string) string {
	return "documents/" + uuid.NewString() + FileExtension(filename)
}

// FileExtension returns the lowercased extension including the dot, or "".
func FileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
