// Package util holds small shared helpers: atomic file writes, dmux
// directory layout, and text utilities used by capture processing.
package util

import (
	"strings"
	"unicode/utf8"
)

// ExtractNewOutput returns the portion of after that was not already present
// at the end of before. The two captures are aligned on the longest suffix of
// before that is a prefix of after; if no overlap exists, all of after is
// considered new. This handles both clean appends and scrolled buffers.
func ExtractNewOutput(before, after string) string {
	if before == "" || after == "" {
		return after
	}

	// Fast path: clean append.
	if strings.HasPrefix(after, before) {
		return after[len(before):]
	}

	max := len(before)
	if max > len(after) {
		max = len(after)
	}
	for n := max; n > 0; n-- {
		if before[len(before)-n:] == after[:n] {
			return after[n:]
		}
	}
	return after
}

// Truncate shortens s to at most n bytes, appending "..." when content was
// dropped and n leaves room for it. Runes are never split.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}

	budget := n
	ellipsis := ""
	if n > 3 {
		budget = n - 3
		ellipsis = "..."
	}

	out := make([]byte, 0, budget)
	for _, r := range s {
		rl := utf8.RuneLen(r)
		if len(out)+rl > budget {
			break
		}
		out = utf8.AppendRune(out, r)
	}
	return string(out) + ellipsis
}

// SanitizeFilename makes s safe for use as a file name: path separators and
// shell-special characters become '-', spaces and dots become '_', and the
// result is capped at 50 bytes.
func SanitizeFilename(s string) string {
	s = strings.TrimSpace(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '.':
			b.WriteRune('_')
		case r == '/' || r == '\\' || r == ':' || r == '?' || r == '*' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	out := b.String()
	if len(out) > 50 {
		out = out[:50]
	}
	return out
}
