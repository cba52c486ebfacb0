// Package action defines the dialog protocol shared by every surface and
// the dispatcher that executes pane actions through it.
//
// A Result is one step of an interaction. Interactive results carry
// continuation funcs; invoking one returns the next step, so a flow like
// the merge orchestrator can express an arbitrarily deep dialog tree
// without a back-channel to the UI.
package action

import (
	"context"
	"fmt"
)

// Type discriminates the Result union.
type Type string

const (
	TypeSuccess    Type = "success"
	TypeError      Type = "error"
	TypeInfo       Type = "info"
	TypeConfirm    Type = "confirm"
	TypeChoice     Type = "choice"
	TypeInput      Type = "input"
	TypeProgress   Type = "progress"
	TypeNavigation Type = "navigation"
)

// Interactive reports whether a result of this type carries continuations
// that a transport must keep alive.
func (t Type) Interactive() bool {
	return t == TypeConfirm || t == TypeChoice || t == TypeInput
}

// Option is one selectable entry of a choice result.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Danger      bool   `json:"danger,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// Result is one step of a dialog flow. Only the fields for its Type are
// meaningful. Continuations never marshal; transports replace them with
// callback ids.
type Result struct {
	Type        Type   `json:"type"`
	Title       string `json:"title,omitempty"`
	Message     string `json:"message,omitempty"`
	Dismissable bool   `json:"dismissable,omitempty"`

	// confirm
	ConfirmLabel string                        `json:"confirmLabel,omitempty"`
	CancelLabel  string                        `json:"cancelLabel,omitempty"`
	OnConfirm    func(context.Context) *Result `json:"-"`
	OnCancel     func(context.Context) *Result `json:"-"`

	// choice
	Options  []Option                              `json:"options,omitempty"`
	OnSelect func(context.Context, string) *Result `json:"-"`

	// input
	Placeholder  string                                `json:"placeholder,omitempty"`
	DefaultValue string                                `json:"defaultValue,omitempty"`
	OnSubmit     func(context.Context, string) *Result `json:"-"`

	// progress, 0..1 when known
	Progress *float64 `json:"progress,omitempty"`

	// navigation
	TargetPaneID string `json:"targetPaneId,omitempty"`
}

// Success builds an informational success result.
func Success(format string, args ...any) *Result {
	return &Result{Type: TypeSuccess, Message: fmt.Sprintf(format, args...), Dismissable: true}
}

// Errorf builds an error result shown to the user.
func Errorf(format string, args ...any) *Result {
	return &Result{Type: TypeError, Message: fmt.Sprintf(format, args...), Dismissable: true}
}

// Info builds a neutral informational result.
func Info(title, format string, args ...any) *Result {
	return &Result{Type: TypeInfo, Title: title, Message: fmt.Sprintf(format, args...), Dismissable: true}
}

// Navigate tells the surface to focus a pane.
func Navigate(paneID, message string) *Result {
	return &Result{Type: TypeNavigation, TargetPaneID: paneID, Message: message}
}
