package tmux

import (
	"context"
	"strings"
	"testing"
)

func TestSendKeyInput(t *testing.T) {
	tests := []struct {
		name     string
		in       KeyInput
		wantCmd  string // first tmux subcommand expected
		wantArgs string // fragment that must appear in the call
		wantErr  bool
	}{
		{"plain character", KeyInput{Key: "a"}, "send-keys", "-l", false},
		{"named enter", KeyInput{Key: "Enter"}, "send-keys", "Enter", false},
		{"escape alias", KeyInput{Key: "esc"}, "send-keys", "Escape", false},
		{"ctrl char", KeyInput{Key: "c", Ctrl: true}, "send-keys", "C-c", false},
		{"alt char", KeyInput{Key: "x", Alt: true}, "send-keys", "M-x", false},
		{"ctrl alt named", KeyInput{Key: "Up", Ctrl: true, Alt: true}, "send-keys", "C-M-Up", false},
		{"shift tab", KeyInput{Key: "Tab", Shift: true}, "send-keys", "BTab", false},
		{"shift enter pastes", KeyInput{Key: "Enter", Shift: true}, "set-buffer", shiftEnterSequence, false},
		{"page up name", KeyInput{Key: "PageUp"}, "send-keys", "PPage", false},
		{"empty", KeyInput{}, "", "", true},
		{"unknown word", KeyInput{Key: "bogus"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, f := newFakeClient(nil)
			err := c.SendKeyInput(context.Background(), "%5", tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SendKeyInput(%+v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if f.callCount() != 0 {
					t.Errorf("expected no tmux calls on error, got %d", f.callCount())
				}
				return
			}
			if f.callCount() == 0 {
				t.Fatal("expected at least one tmux call")
			}
			first := f.call(0)
			if first[0] != tt.wantCmd {
				t.Errorf("first call = %s, want %s", first[0], tt.wantCmd)
			}
			joined := strings.Join(first, " ")
			if !strings.Contains(joined, tt.wantArgs) {
				t.Errorf("call %q missing %q", joined, tt.wantArgs)
			}
		})
	}
}
