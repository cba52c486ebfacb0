package agent

import "regexp"

// destructivePatterns flag dialog text proposing work that loses data or
// rewrites history: deletions, hard resets, force pushes. A match blocks
// autopilot no matter which option the agent marks as default.
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdelete\b`),
	regexp.MustCompile(`(?i)\bremove\b`),
	regexp.MustCompile(`(?i)\bdiscard\b`),
	regexp.MustCompile(`(?i)\boverwrite\b`),
	regexp.MustCompile(`(?i)\berase\b`),
	regexp.MustCompile(`(?i)\bwipe\b`),
	regexp.MustCompile(`(?i)\bdestroy\b`),
	regexp.MustCompile(`(?i)\bdrop\b`),
	regexp.MustCompile(`(?i)\btruncate\b`),
	regexp.MustCompile(`(?i)\buninstall\b`),
	regexp.MustCompile(`(?i)\bpermanently\b`),
	regexp.MustCompile(`(?i)irreversible`),
	regexp.MustCompile(`(?i)can(not|'t) be undone`),
	regexp.MustCompile(`(?i)\brm\s+-[a-z]*f`),
	regexp.MustCompile(`(?i)reset\s+--hard|hard[- ]reset`),
	regexp.MustCompile(`(?i)force[- ]push|push\s+.*--force|--force\b`),
	regexp.MustCompile(`(?i)git\s+clean\b`),
}

// Risky reports whether the dialog's text proposes destructive work, and
// the phrase that tripped the check. The scan covers the question and every
// option label, so a safe-looking default cannot slip past a dangerous
// sibling option.
func (a Analysis) Risky() (string, bool) {
	texts := make([]string, 0, len(a.Options)+1)
	texts = append(texts, a.Question)
	for _, o := range a.Options {
		texts = append(texts, o.Action)
	}
	for _, text := range texts {
		for _, p := range destructivePatterns {
			if m := p.FindString(text); m != "" {
				return m, true
			}
		}
	}
	return "", false
}
