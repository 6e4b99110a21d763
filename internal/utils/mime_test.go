package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtensionForMime(t *testing.T) {
	ext := ExtensionForMime("application/pdf", "")
	assert.Equal(t, ".pdf", ext)

	// Parameters after the media type are ignored.
	ext = ExtensionForMime("audio/ogg; codecs=opus", "")
	assert.True(t, strings.HasPrefix(ext, ".og"), "got %q", ext)
}

func TestExtensionForMimeFilenameFallback(t *testing.T) {
	assert.Equal(t, ".csv", ExtensionForMime("", "report.csv"))
	assert.Equal(t, ".csv", ExtensionForMime("application/x-never-registered", "report.csv"))
}

func TestExtensionForMimeBinaryFallback(t *testing.T) {
	assert.Equal(t, ".bin", ExtensionForMime("", ""))
	assert.Equal(t, ".bin", ExtensionForMime("application/x-never-registered", "noext"))
}

func TestMimeForExtension(t *testing.T) {
	assert.Equal(t, "application/pdf", MimeForExtension(".pdf"))
	assert.Equal(t, "application/octet-stream", MimeForExtension(".bin"))
	assert.Equal(t, "application/octet-stream", MimeForExtension(""))
}
