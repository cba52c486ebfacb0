package action

import "github.com/Dicklesworthstone/dmux/internal/state"

// labels maps action names to their display labels.
var labels = map[Name]string{
	ActionView:            "View",
	ActionClose:           "Close",
	ActionMerge:           "Merge",
	ActionRename:          "Rename",
	ActionDuplicate:       "Duplicate",
	ActionCopyPath:        "Copy path",
	ActionOpenEditor:      "Open in editor",
	ActionToggleAutopilot: "Toggle autopilot",
	ActionOpenPR:          "Open PR",
	ActionDevWindow:       "Dev window",
	ActionTestWindow:      "Test window",
}

// Label returns the human-readable name shown in menus.
func (n Name) Label() string {
	if l, ok := labels[n]; ok {
		return l
	}
	return string(n)
}

// For returns the actions that make sense for a pane of this kind, in
// presentation order. The dispatcher still validates at execution time;
// this only drives menus.
func For(pane state.Pane) []Name {
	switch pane.Kind {
	case state.KindWorktree:
		return Names()
	case state.KindShell:
		return []Name{ActionView, ActionClose, ActionRename}
	default:
		return []Name{ActionView, ActionClose}
	}
}
