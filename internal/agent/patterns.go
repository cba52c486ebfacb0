package agent

import (
	"regexp"
	"strings"
)

// Claude Code patterns.
var (
	// claudeWorkingIndicators appear while the agent is busy. When one is
	// visible, DO NOT send keystrokes.
	claudeWorkingIndicators = []string{
		"esc to interrupt",
		"ctrl+b to run in background",
		"press esc to",
	}

	// claudePromptTails match the idle input box.
	claudePromptTails = []*regexp.Regexp{
		regexp.MustCompile(`>\s*$`),
		regexp.MustCompile(`❯\s*$`),
		regexp.MustCompile(`│\s*>\s*│?\s*$`),
	}
)

// OpenCode patterns.
var (
	opencodeWorkingIndicators = []string{
		"esc to interrupt",
		"working...",
		"generating",
	}

	opencodePromptTails = []*regexp.Regexp{
		regexp.MustCompile(`>\s*$`),
		regexp.MustCompile(`┃\s*$`),
	}
)

// Codex CLI patterns.
var (
	codexWorkingIndicators = []string{
		"esc to interrupt",
		"working",
		"thinking",
	}

	codexPromptTails = []*regexp.Regexp{
		regexp.MustCompile(`>\s*$`),
		regexp.MustCompile(`\?\s*for\s*shortcuts`),
		regexp.MustCompile(`▌\s*$`),
	}
)

// Generic fallback for agents without a dedicated table.
var (
	genericWorkingIndicators = []string{
		"esc to interrupt",
	}

	genericPromptTails = []*regexp.Regexp{
		regexp.MustCompile(`>\s*$`),
		regexp.MustCompile(`\$\s*$`),
	}
)

// Shared across agents: interactive dialogs look alike.
var (
	// spinnerRunes are progress glyphs agents animate while busy.
	spinnerRunes = "⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏·✢✳✶✻✽"

	// optionLinePattern matches one numbered menu entry, optionally marked
	// as the current selection.
	optionLinePattern = regexp.MustCompile(`^\s*(❯|›|>)?\s*(\d+)[.)]\s+(\S.*)$`)

	// yesNoPattern matches inline y/n questions.
	yesNoPattern = regexp.MustCompile(`(?i)[\[(]y/n[\])]`)

	// pressEnterPattern matches single-acknowledgement prompts.
	pressEnterPattern = regexp.MustCompile(`(?i)press enter to continue|enter to confirm`)

	// boxBorderPattern matches TUI frame lines that carry no content.
	boxBorderPattern = regexp.MustCompile(`^[\s─━│┃╭╮╰╯┌┐└┘├┤╌=_-]*$`)
)

// PatternSet groups the deterministic patterns for one agent CLI.
type PatternSet struct {
	Agent             string
	WorkingIndicators []string
	PromptTails       []*regexp.Regexp
}

// Catalog returns the pattern set for the named agent, falling back to a
// generic set for unknown agents.
func Catalog(agent string) *PatternSet {
	switch agent {
	case "claude":
		return &PatternSet{Agent: agent, WorkingIndicators: claudeWorkingIndicators, PromptTails: claudePromptTails}
	case "opencode":
		return &PatternSet{Agent: agent, WorkingIndicators: opencodeWorkingIndicators, PromptTails: opencodePromptTails}
	case "codex":
		return &PatternSet{Agent: agent, WorkingIndicators: codexWorkingIndicators, PromptTails: codexPromptTails}
	default:
		return &PatternSet{Agent: agent, WorkingIndicators: genericWorkingIndicators, PromptTails: genericPromptTails}
	}
}

// matchAny returns true if text contains any of the patterns
// (case-insensitive).
func matchAny(text string, patterns []string) bool {
	textLower := strings.ToLower(text)
	for _, p := range patterns {
		if strings.Contains(textLower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// containsSpinner reports whether any progress glyph is visible.
func containsSpinner(text string) bool {
	return strings.ContainsAny(text, spinnerRunes)
}

// getLastNLines returns the last n lines of text. If the text has fewer
// than n lines, returns the entire text.
func getLastNLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// stripANSICodes removes ANSI escape sequences so pattern matching works on
// rendered terminal output.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripANSICodes(text string) string {
	return ansiPattern.ReplaceAllString(text, "")
}

// trimBox removes TUI frame characters and surrounding space from one line.
func trimBox(line string) string {
	return strings.Trim(line, " \t│┃╭╮╰╯┌┐└┘├┤─━")
}
