package agent

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// maxSlugLength keeps branch and directory names readable.
const maxSlugLength = 28

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether s is usable as a pane slug: lowercase
// kebab-case, no leading or trailing hyphen.
func ValidSlug(s string) bool {
	return s != "" && len(s) <= maxSlugLength && slugPattern.MatchString(s)
}

// SanitizeSlug coerces arbitrary model output into a valid slug. Returns ""
// when nothing usable remains.
func SanitizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	// Models sometimes answer with a sentence; keep the first token that
	// looks like a name.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case r == '-' || r == '_' || r == ' ' || r == '/' || r == '.':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > maxSlugLength {
		out = out[:maxSlugLength]
		if i := strings.LastIndexByte(out, '-'); i > maxSlugLength/2 {
			out = out[:i]
		}
		out = strings.Trim(out, "-")
	}
	if !ValidSlug(out) {
		return ""
	}
	return out
}

// FallbackSlug is the name used when slug generation fails.
func FallbackSlug(t time.Time) string {
	return fmt.Sprintf("dmux-%d", t.Unix())
}

// UniqueSlug appends -2, -3, ... until taken reports the slug free.
func UniqueSlug(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !taken(candidate) {
			return candidate
		}
	}
}
