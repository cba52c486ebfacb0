package tmux

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// KeyInput is the JSON keystroke descriptor accepted from remote clients:
// a single character or a named key, plus modifier booleans.
type KeyInput struct {
	Key   string `json:"key"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Shift bool   `json:"shift,omitempty"`
}

// namedKeys maps lower-cased client key names to tmux key names.
var namedKeys = map[string]string{
	"enter":     "Enter",
	"return":    "Enter",
	"escape":    "Escape",
	"esc":       "Escape",
	"tab":       "Tab",
	"backspace": "BSpace",
	"delete":    "DC",
	"insert":    "IC",
	"space":     "Space",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pageup":    "PPage",
	"pagedown":  "NPage",
	"f1":        "F1",
	"f2":        "F2",
	"f3":        "F3",
	"f4":        "F4",
	"f5":        "F5",
	"f6":        "F6",
	"f7":        "F7",
	"f8":        "F8",
	"f9":        "F9",
	"f10":       "F10",
	"f11":       "F11",
	"f12":       "F12",
}

// shiftEnterSequence is what terminals emit for Shift+Enter. send-keys cannot
// express the combination, so it goes through the paste-buffer path.
const shiftEnterSequence = "\x1b\r"

// SendKeyInput translates a keystroke descriptor into the appropriate tmux
// operation and sends it to the target pane.
func (c *Client) SendKeyInput(ctx context.Context, target string, in KeyInput) error {
	name := strings.ToLower(strings.TrimSpace(in.Key))
	if name == "" {
		return fmt.Errorf("empty key")
	}

	// Composite keys tmux cannot name are pasted as raw sequences.
	if in.Shift && (name == "enter" || name == "return") {
		return c.PasteText(ctx, target, shiftEnterSequence)
	}

	if tmuxName, ok := namedKeys[name]; ok {
		return c.SendNamedKey(ctx, target, applyModifiers(tmuxName, in))
	}

	// Single printable character.
	if utf8.RuneCountInString(in.Key) == 1 {
		if in.Ctrl || in.Alt {
			return c.SendNamedKey(ctx, target, applyModifiers(in.Key, in))
		}
		return c.SendText(ctx, target, in.Key, false)
	}

	return fmt.Errorf("unrecognized key %q", in.Key)
}

// applyModifiers prefixes a tmux key name with modifier notation: C- for
// ctrl, M- for alt. Shift on named keys maps to S- where tmux supports it.
func applyModifiers(key string, in KeyInput) string {
	if in.Shift && key == "Tab" {
		// Shift+Tab has a dedicated name.
		key = "BTab"
	} else if in.Shift && len(key) > 1 {
		key = "S-" + key
	}
	if in.Alt {
		key = "M-" + key
	}
	if in.Ctrl {
		key = "C-" + key
	}
	return key
}
