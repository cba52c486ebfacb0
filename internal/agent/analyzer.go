package agent

import "strings"

// analyzerTailLines bounds how much pane content the pattern analyzer
// inspects.
const analyzerTailLines = 15

// Analyze runs the deterministic pattern analyzer over pane content. The
// boolean reports whether a classification was reached; when it is false
// the caller may consult the model for a display-only opinion.
func Analyze(agentName, content string) (Analysis, bool) {
	set := Catalog(agentName)
	cleaned := stripANSICodes(content)
	tail := getLastNLines(cleaned, analyzerTailLines)

	if analysis, ok := detectOptionDialog(tail); ok {
		return analysis, true
	}
	if matchAny(tail, set.WorkingIndicators) || containsSpinner(tail) {
		return Analysis{State: StateInProgress}, true
	}
	if line, ok := lastContentLine(tail); ok {
		for _, p := range set.PromptTails {
			if p.MatchString(line) {
				return Analysis{State: StateOpenPrompt}, true
			}
		}
	}
	return Analysis{}, false
}

// Working is the fast-path check: true when a busy indicator is visible in
// the raw capture.
func Working(agentName, content string) bool {
	set := Catalog(agentName)
	cleaned := stripANSICodes(content)
	tail := getLastNLines(cleaned, analyzerTailLines)
	return matchAny(tail, set.WorkingIndicators) || containsSpinner(tail)
}

// detectOptionDialog looks for a numbered menu, a y/n question, or a
// press-enter acknowledgement at the bottom of the pane.
func detectOptionDialog(tail string) (Analysis, bool) {
	lines := strings.Split(tail, "\n")

	if analysis, ok := detectNumberedMenu(lines); ok {
		return analysis, true
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := trimBox(lines[i])
		if line == "" {
			continue
		}
		if yesNoPattern.MatchString(line) {
			return Analysis{
				State:    StateOptionDialog,
				Question: line,
				Options: []Option{
					{Action: "Yes", Keys: []string{"y"}, Default: true},
					{Action: "No", Keys: []string{"n"}},
				},
			}, true
		}
		if pressEnterPattern.MatchString(line) {
			return Analysis{
				State:    StateOptionDialog,
				Question: line,
				Options:  []Option{{Action: "Continue", Keys: []string{"Enter"}, Default: true}},
			}, true
		}
		break
	}
	return Analysis{}, false
}

// optionMatch matches one menu entry with TUI framing stripped. Returns nil
// when the line is not an entry.
func optionMatch(line string) []string {
	return optionLinePattern.FindStringSubmatch(trimBox(line))
}

// detectNumberedMenu finds the block of consecutive numbered entries closest
// to the bottom of the pane. A real menu starts at 1 and has at least two
// entries.
func detectNumberedMenu(lines []string) (Analysis, bool) {
	end := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if boxBorderPattern.MatchString(lines[i]) {
			continue
		}
		if optionMatch(lines[i]) != nil {
			end = i
		}
		break
	}
	if end == -1 {
		return Analysis{}, false
	}

	start := end
	for start > 0 && optionMatch(lines[start-1]) != nil {
		start--
	}

	var options []Option
	numbers := make([]string, 0, end-start+1)
	for _, line := range lines[start : end+1] {
		m := optionMatch(line)
		numbers = append(numbers, m[2])
		opt := Option{
			Action:  strings.TrimSpace(m[3]),
			Keys:    []string{m[2]},
			Default: m[1] != "",
		}
		// The cursor-marked entry is accepted with Enter; number keys
		// are how the others get picked.
		if opt.Default {
			opt.Keys = []string{"Enter"}
		}
		options = append(options, opt)
	}
	if len(options) < 2 || numbers[0] != "1" {
		return Analysis{}, false
	}
	if !hasDefault(options) {
		options[0].Default = true
	}

	return Analysis{
		State:    StateOptionDialog,
		Question: questionAbove(lines, start),
		Options:  options,
	}, true
}

func hasDefault(options []Option) bool {
	for _, o := range options {
		if o.Default {
			return true
		}
	}
	return false
}

// questionAbove finds the dialog's question text: the nearest content line
// above the menu, preferring one that asks something.
func questionAbove(lines []string, menuStart int) string {
	fallback := ""
	for i := menuStart - 1; i >= 0 && i >= menuStart-6; i-- {
		line := trimBox(lines[i])
		if line == "" {
			continue
		}
		if strings.Contains(line, "?") {
			return line
		}
		if fallback == "" {
			fallback = line
		}
	}
	return fallback
}

// lastContentLine returns the last line that is not blank or pure frame.
func lastContentLine(tail string) (string, bool) {
	lines := strings.Split(tail, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if boxBorderPattern.MatchString(lines[i]) {
			continue
		}
		return lines[i], true
	}
	return "", false
}
