// Package agent classifies what the agent inside a pane is doing and wraps
// the agent CLIs for one-shot prompt work (slugs, commit messages, richer
// pane analysis).
package agent

// State is a classification of pane content.
type State string

const (
	// StateInProgress means the agent is actively producing output.
	StateInProgress State = "in_progress"
	// StateOptionDialog means the agent is blocked on a selectable dialog.
	StateOptionDialog State = "option_dialog"
	// StateOpenPrompt means the agent is idle at an input prompt.
	StateOpenPrompt State = "open_prompt"
)

// Option is one selectable answer extracted from pane content or returned
// by the model.
type Option struct {
	Action  string   `json:"action"`
	Keys    []string `json:"keys"`
	Default bool     `json:"default,omitempty"`
}

// Harm is the model's risk assessment of the offered options.
type Harm struct {
	HasRisk     bool   `json:"hasRisk"`
	Description string `json:"description,omitempty"`
}

// Analysis is the deterministic pattern analyzer's verdict. Only analyses
// from this path may drive autopilot keystrokes: pane content is untrusted
// and model output even more so.
type Analysis struct {
	State    State
	Question string
	Options  []Option
}

// DefaultOption returns the option autopilot would choose: the one the
// agent's own cursor marks, falling back to the first.
func (a Analysis) DefaultOption() (Option, bool) {
	if len(a.Options) == 0 {
		return Option{}, false
	}
	for _, o := range a.Options {
		if o.Default {
			return o, true
		}
	}
	return a.Options[0], true
}

// LLMAnalysis is the richer, display-only classification produced by the
// model. Its keys are rendered for humans to click, never auto-sent.
type LLMAnalysis struct {
	State         string   `json:"state"`
	Question      string   `json:"question,omitempty"`
	Options       []Option `json:"options,omitempty"`
	PotentialHarm *Harm    `json:"potentialHarm,omitempty"`
	Summary       string   `json:"summary,omitempty"`
}
