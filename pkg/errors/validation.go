package errors

import (
	"path/filepath"
	"strings"
	"unicode"
)

// MaxFilenameLength bounds upload filenames.
const MaxFilenameLength = 255

// allowedExtensions are the upload types accepted by the photo picker.
var allowedExtensions = []string{".jpg", ".jpeg", ".png"}

// ValidateQuality checks a JPEG quality setting.
// Zero means "use the default" and is accepted.
func ValidateQuality(q int) error {
	if q < 0 || q > 100 {
		return New(ErrCodeInvalidQuality, "quality must be between 1 and 100, got %d", q)
	}
	return nil
}

// ValidateStyleName validates a style name against the known names.
// Matching is case-sensitive.
func ValidateStyleName(name string, known []string) error {
	if name == "" {
		return New(ErrCodeInvalidStyle, "style name cannot be empty")
	}
	for _, k := range known {
		if k == name {
			return nil
		}
	}
	return New(ErrCodeInvalidStyle, "unknown style %q (available: %s)", name, strings.Join(known, ", "))
}

// ValidateFilename validates an uploaded photo's filename.
// It ensures the filename is a simple basename with an image extension.
//
// Validation rules:
//   - Filename cannot be empty
//   - Maximum length of 255 characters
//   - No null bytes or control characters
//   - No path separators or traversal sequences
//   - Extension must be .jpg, .jpeg or .png (case-insensitive)
func ValidateFilename(name string) error {
	if name == "" {
		return New(ErrCodeInvalidFilename, "filename cannot be empty")
	}

	if len(name) > MaxFilenameLength {
		return New(ErrCodeInvalidFilename, "filename too long (max %d characters)", MaxFilenameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidFilename, "filename contains invalid characters")
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidFilename, "filename cannot contain path separators")
	}

	if strings.Contains(name, "..") {
		return New(ErrCodeInvalidFilename, "filename cannot contain path traversal sequences (..)")
	}

	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowedExtensions {
		if ext == a {
			return nil
		}
	}
	return New(ErrCodeInvalidFilename, "unsupported file type %q (allowed: %s)", ext, strings.Join(allowedExtensions, ", "))
}

// SanitizeFilename reduces name to a safe basename for use in a
// Content-Disposition header or on disk. Path components are dropped and
// characters outside [A-Za-z0-9._-] become underscores. It returns
// fallback if nothing usable remains.
func SanitizeFilename(name, fallback string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if len(out) > MaxFilenameLength {
		out = out[len(out)-MaxFilenameLength:]
	}
	if strings.Trim(out, "_") == "" {
		return fallback
	}
	return out
}
