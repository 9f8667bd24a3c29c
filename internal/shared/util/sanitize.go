package util

import (
	"path"
	"strings"
	"unicode"

	"transcript-backend/internal/shared/apperr"
)

// maxFileNameLen bounds the stored file name, extension included.
const maxFileNameLen = 120

// SanitizeFileName flattens path separators, rejects traversal and control
// characters, and shortens long names while keeping the extension.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", apperr.Validationf("invalid file name %q", name)
	}
	s := strings.TrimSpace(name)
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	if s == "" {
		return "", apperr.Validationf("file name is required")
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", apperr.Validationf("file name contains control characters")
	}
	if r := []rune(s); len(r) > maxFileNameLen {
		ext := []rune(path.Ext(s))
		if len(ext) >= maxFileNameLen {
			ext = nil
		}
		s = string(r[:maxFileNameLen-len(ext)]) + string(ext)
	}
	return s, nil
}
