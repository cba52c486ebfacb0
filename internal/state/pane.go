// Package state owns the persisted pane list and layered settings. All pane
// mutations flow through the Store; other components subscribe to changes and
// read snapshots.
package state

import "strings"

// PaneKind classifies what a pane is for.
type PaneKind string

const (
	KindWorktree           PaneKind = "worktree"
	KindShell              PaneKind = "shell"
	KindWelcome            PaneKind = "welcome"
	KindConflictResolution PaneKind = "conflict-resolution"
)

// String returns the kind as a string.
func (k PaneKind) String() string {
	return string(k)
}

// IsValid returns true if this is a known pane kind.
func (k PaneKind) IsValid() bool {
	switch k {
	case KindWorktree, KindShell, KindWelcome, KindConflictResolution:
		return true
	default:
		return false
	}
}

// HasWorktree reports whether panes of this kind own a worktree directory.
func (k PaneKind) HasWorktree() bool {
	return k == KindWorktree || k == KindConflictResolution
}

// AgentStatus is the latest classification of what the agent in a pane is
// doing.
type AgentStatus string

const (
	StatusWorking   AgentStatus = "working"
	StatusWaiting   AgentStatus = "waiting"
	StatusIdle      AgentStatus = "idle"
	StatusAnalyzing AgentStatus = "analyzing"
	StatusUnknown   AgentStatus = "unknown"
)

// String returns the status as a string.
func (s AgentStatus) String() string {
	return string(s)
}

// IsValid returns true if this is a known agent status.
func (s AgentStatus) IsValid() bool {
	switch s {
	case StatusWorking, StatusWaiting, StatusIdle, StatusAnalyzing, StatusUnknown:
		return true
	default:
		return false
	}
}

// DialogOption is one selectable answer in an agent's option dialog.
type DialogOption struct {
	Action string   `json:"action"`
	Keys   []string `json:"keys"`
}

// PotentialHarm is the analyzer's risk assessment for the currently offered
// options.
type PotentialHarm struct {
	HasRisk     bool   `json:"hasRisk"`
	Description string `json:"description,omitempty"`
}

// SideStatus tracks an auxiliary dev or test window bound to a pane.
type SideStatus string

const (
	SideStopped  SideStatus = "stopped"
	SideStarting SideStatus = "starting"
	SideRunning  SideStatus = "running"
	SideFailed   SideStatus = "failed"
)

// Pane is the central entity: one isolated workspace consisting of a
// terminal pane, usually a git worktree, and the agent running in it.
type Pane struct {
	ID   string   `json:"id"`
	Slug string   `json:"slug"`
	Kind PaneKind `json:"kind"`

	Prompt string `json:"prompt,omitempty"`

	// TerminalPaneID is the tmux pane id. Empty iff the pane is orphaned
	// (worktree on disk, no live terminal).
	TerminalPaneID string `json:"terminalPaneId,omitempty"`

	WorktreePath string `json:"worktreePath,omitempty"`
	Agent        string `json:"agent,omitempty"`

	ProjectRoot string `json:"projectRoot"`
	ProjectName string `json:"projectName"`

	AgentStatus     AgentStatus    `json:"agentStatus,omitempty"`
	OptionsQuestion string         `json:"optionsQuestion,omitempty"`
	Options         []DialogOption `json:"options,omitempty"`
	PotentialHarm   *PotentialHarm `json:"potentialHarm,omitempty"`
	AgentSummary    string         `json:"agentSummary,omitempty"`

	Autopilot bool `json:"autopilot,omitempty"`

	DevWindowID  string     `json:"devWindowId,omitempty"`
	TestWindowID string     `json:"testWindowId,omitempty"`
	DevStatus    SideStatus `json:"devStatus,omitempty"`
	TestStatus   SideStatus `json:"testStatus,omitempty"`
	DevURL       string     `json:"devUrl,omitempty"`

	Orphaned bool `json:"orphaned,omitempty"`
}

// Live reports whether the pane has a terminal attached.
func (p *Pane) Live() bool {
	return p.TerminalPaneID != ""
}

// Clone returns a deep copy so callers can hand out snapshots without
// aliasing the store's slices.
func (p *Pane) Clone() Pane {
	out := *p
	if p.Options != nil {
		out.Options = make([]DialogOption, len(p.Options))
		for i, opt := range p.Options {
			out.Options[i] = DialogOption{Action: opt.Action, Keys: append([]string(nil), opt.Keys...)}
		}
	}
	if p.PotentialHarm != nil {
		harm := *p.PotentialHarm
		out.PotentialHarm = &harm
	}
	return out
}

// StatusUpdate is a shallow merge of analyzer-produced fields. Nil pointers
// leave the existing value untouched; a non-nil pointer to the zero value
// clears it.
type StatusUpdate struct {
	AgentStatus     AgentStatus // empty means unchanged
	OptionsQuestion *string
	Options         []DialogOption // nil unchanged, empty slice clears
	PotentialHarm   *PotentialHarm
	ClearHarm       bool
	AgentSummary    *string
	DevStatus       SideStatus
	TestStatus      SideStatus
	DevURL          *string
}

// apply merges the update into the pane.
func (u StatusUpdate) apply(p *Pane) {
	if u.AgentStatus != "" {
		p.AgentStatus = u.AgentStatus
	}
	if u.OptionsQuestion != nil {
		p.OptionsQuestion = *u.OptionsQuestion
	}
	if u.Options != nil {
		if len(u.Options) == 0 {
			p.Options = nil
		} else {
			p.Options = u.Options
		}
	}
	if u.ClearHarm {
		p.PotentialHarm = nil
	} else if u.PotentialHarm != nil {
		p.PotentialHarm = u.PotentialHarm
	}
	if u.AgentSummary != nil {
		p.AgentSummary = *u.AgentSummary
	}
	if u.DevStatus != "" {
		p.DevStatus = u.DevStatus
	}
	if u.TestStatus != "" {
		p.TestStatus = u.TestStatus
	}
	if u.DevURL != nil {
		p.DevURL = *u.DevURL
	}
}

// ProjectNameFromRoot derives a display name from the project root path.
func ProjectNameFromRoot(root string) string {
	root = strings.TrimRight(root, "/")
	if i := strings.LastIndex(root, "/"); i >= 0 {
		return root[i+1:]
	}
	return root
}
