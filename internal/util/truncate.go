package util

import (
	"fmt"
	"unicode/utf8"
)

// SnippetLen bounds comment content echoed into debug logs.
const SnippetLen = 80

// TruncateLog shortens s to at most maxLen bytes without splitting a rune,
// noting the original size.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// Snippet is TruncateLog with SnippetLen.
func Snippet(s string) string {
	return TruncateLog(s, SnippetLen)
}
