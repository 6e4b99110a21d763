package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

// ExtensionForMime picks a file extension for a stored attachment: the
// declared mime type wins, then the original filename, then a generic
// binary extension.
func ExtensionForMime(mimeType, filename string) string {
	base := mimeType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSpace(base)

	if base != "" {
		if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}

	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}

	return ".bin"
}

// MimeForExtension is the reverse lookup used when an asset is found on
// disk and only its storage key is known.
func MimeForExtension(ext string) string {
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
