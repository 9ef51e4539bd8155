// Package pathutil validates the relative folder paths that drive both the
// logical folder keys and the on-disk storage layout.
package pathutil

import (
	"strings"

	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

// Separator is the only recognised path separator. Backslashes are ordinary
// (and therefore forbidden) characters, never separators.
const Separator = "/"

// Sanitize validates a user supplied relative folder path and returns its
// canonical form. The canonical form of a valid path is the input itself:
// nothing is collapsed, trimmed or case folded, so Sanitize is idempotent and
// a rejected path stays rejected. The single returned value is safe to use
// both as the folder's unique key within a project and as a directory suffix
// under the storage root.
func Sanitize(raw string) (string, error) {
	if raw == "" {
		return "", appErrors.Clone(appErrors.ErrInvalidPath, "folder path must not be empty")
	}
	if strings.HasPrefix(raw, Separator) {
		return "", appErrors.Clone(appErrors.ErrInvalidPath, "folder path must not start with a separator")
	}
	if strings.HasSuffix(raw, Separator) {
		return "", appErrors.Clone(appErrors.ErrInvalidPath, "folder path must not end with a separator")
	}
	for _, segment := range strings.Split(raw, Separator) {
		if segment == "" {
			return "", appErrors.Clone(appErrors.ErrInvalidPath, "folder path must not contain empty segments")
		}
		if segment == ".." {
			return "", appErrors.Clone(appErrors.ErrInvalidPath, "folder path must not contain parent traversal")
		}
		if strings.HasPrefix(segment, ".") {
			return "", appErrors.Clone(appErrors.ErrInvalidPath, "folder path segments must not start with a dot")
		}
		for _, r := range segment {
			if !allowedRune(r) {
				return "", appErrors.Clone(appErrors.ErrInvalidPath, "folder path contains unsupported characters")
			}
		}
	}
	return raw, nil
}

func allowedRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-' || r == '.':
		return true
	}
	return false
}
