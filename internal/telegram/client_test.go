package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitByBytes(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitByBytes("short", 10))

	parts := splitByBytes(strings.Repeat("ab", 5), 4)
	assert.Equal(t, []string{"abab", "abab", "ab"}, parts)

	// Multi-byte runes are never cut in half.
	parts = splitByBytes(strings.Repeat("ж", 5), 3)
	for _, p := range parts {
		assert.True(t, utf8.ValidString(p))
		assert.LessOrEqual(t, len(p), 3)
	}
	assert.Equal(t, strings.Repeat("ж", 5), strings.Join(parts, ""))
}

func TestTruncateByBytes(t *testing.T) {
	assert.Equal(t, "hello", truncateByBytes("hello", 0))
	assert.Equal(t, "hel", truncateByBytes("hello", 3))
	assert.Equal(t, "ж", truncateByBytes("жж", 3))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "poster.jpg", fileName("poster", "image/jpeg"))
	assert.Equal(t, "poster.webp", fileName("poster", "image/webp"))
	assert.Equal(t, "poster.png", fileName("poster", "unknown/type"))
}
