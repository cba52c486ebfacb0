package agent

import (
	"regexp"
	"strings"
)

// trustPromptPatterns cover first-run consent dialogs agents show before
// any real work: workspace trust, telemetry opt-ins, theme pickers.
var trustPromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)do you trust the files`),
	regexp.MustCompile(`(?i)trust the files in this (folder|workspace|directory)`),
	regexp.MustCompile(`(?i)trust this (folder|workspace|directory)`),
	regexp.MustCompile(`(?i)yes, proceed`),
	regexp.MustCompile(`(?i)allow .* to (work|run) in this`),
	regexp.MustCompile(`(?i)press enter to (confirm|continue)`),
	regexp.MustCompile(`(?i)enter to confirm`),
	regexp.MustCompile(`(?i)\[y/n\]`),
}

// TrustPrompt describes a detected consent dialog and the keystroke
// sequences that acknowledge it.
type TrustPrompt struct {
	// Matched is the pattern text that fired, for logging.
	Matched string
	// Sequences are sent in order: each inner slice is keys for one
	// submission.
	Sequences [][]string
}

// DetectTrustPrompt scans pane content for a first-run consent dialog.
// Numbered menus are acknowledged with Enter (accepting the highlighted
// default); bare y/n questions get an explicit yes.
func DetectTrustPrompt(content string) (TrustPrompt, bool) {
	cleaned := stripANSICodes(content)
	tail := getLastNLines(cleaned, analyzerTailLines)

	var matched string
	for _, p := range trustPromptPatterns {
		if m := p.FindString(tail); m != "" {
			matched = m
			break
		}
	}
	if matched == "" {
		return TrustPrompt{}, false
	}

	if yesNoPattern.MatchString(tail) && !hasNumberedMenu(tail) {
		return TrustPrompt{Matched: matched, Sequences: [][]string{{"y"}, {"Enter"}}}, true
	}
	return TrustPrompt{Matched: matched, Sequences: [][]string{{"Enter"}}}, true
}

func hasNumberedMenu(tail string) bool {
	count := 0
	for _, line := range strings.Split(tail, "\n") {
		if optionMatch(line) != nil {
			count++
		}
	}
	return count >= 2
}
