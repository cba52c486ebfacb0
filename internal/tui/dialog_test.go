package tui

import (
	"testing"

	"github.com/Dicklesworthstone/dmux/internal/action"
)

func choiceResult(opts ...action.Option) *action.Result {
	return &action.Result{Type: action.TypeChoice, Title: "Pick", Options: opts}
}

func TestDialogFirstSetShowsImmediately(t *testing.T) {
	var d dialogState
	res := choiceResult(action.Option{ID: "a", Label: "A"})

	if await := d.set(res); await {
		t.Fatal("set on empty dialog should not wait for a paint tick")
	}
	if !d.visible() || d.active != res {
		t.Fatalf("active = %+v, want the set dialog", d.active)
	}
}

func TestDialogSwapClearsThenSets(t *testing.T) {
	var d dialogState
	first := choiceResult(action.Option{ID: "a", Label: "A"})
	second := choiceResult(action.Option{ID: "b", Label: "B"})
	d.set(first)

	if await := d.set(second); !await {
		t.Fatal("swapping dialogs should wait for a paint tick")
	}
	if d.visible() {
		t.Fatal("dialog should be cleared until the tick lands")
	}

	d.painted()
	if d.active != second {
		t.Fatalf("active = %+v, want the second dialog", d.active)
	}
	if d.pending != nil {
		t.Fatal("pending should be consumed")
	}
}

func TestDialogPaintedWithoutPendingIsNoop(t *testing.T) {
	var d dialogState
	d.painted()
	if d.visible() {
		t.Fatal("nothing should appear")
	}
}

func TestDialogCursorStartsOnDefaultOption(t *testing.T) {
	var d dialogState
	d.set(choiceResult(
		action.Option{ID: "a", Label: "A"},
		action.Option{ID: "b", Label: "B", Default: true},
		action.Option{ID: "c", Label: "C"},
	))
	if d.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", d.cursor)
	}

	d.clear()
	d.set(choiceResult(action.Option{ID: "a", Label: "A"}, action.Option{ID: "b", Label: "B"}))
	if d.cursor != 0 {
		t.Fatalf("cursor = %d, want 0 with no default", d.cursor)
	}
}

func TestDialogMoveClamps(t *testing.T) {
	var d dialogState
	d.set(choiceResult(action.Option{ID: "a", Label: "A"}, action.Option{ID: "b", Label: "B"}))

	d.move(-3)
	if d.cursor != 0 {
		t.Fatalf("cursor = %d, want clamp at 0", d.cursor)
	}
	d.move(5)
	if d.cursor != 1 {
		t.Fatalf("cursor = %d, want clamp at last option", d.cursor)
	}
}

func TestDialogInputSeedsTextField(t *testing.T) {
	var d dialogState
	d.set(&action.Result{
		Type:         action.TypeInput,
		Placeholder:  "new name",
		DefaultValue: "agent-fix-1",
	})

	if got := d.input.Value(); got != "agent-fix-1" {
		t.Fatalf("input value = %q, want seeded default", got)
	}
	if d.input.Placeholder != "new name" {
		t.Fatalf("placeholder = %q", d.input.Placeholder)
	}
}
