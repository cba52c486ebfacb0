// Package stream turns a tmux pane into an incremental frame stream for
// remote viewers. Each subscriber is seeded with a full INIT snapshot,
// then receives in-place PATCH regions as the pane changes, a RESIZE plus
// fresh INIT when the pane dimensions change, and periodic HEARTBEAT
// frames so proxies keep the connection open.
package stream

import (
	"encoding/json"
	"strings"
)

// Kind discriminates wire frames.
type Kind string

const (
	KindInit      Kind = "INIT"
	KindPatch     Kind = "PATCH"
	KindResize    Kind = "RESIZE"
	KindHeartbeat Kind = "HEARTBEAT"
)

// Frame is one captured snapshot of a pane: the visible rows with their
// escape sequences plus the cursor cell.
type Frame struct {
	Width     int
	Height    int
	Lines     []string
	CursorRow int
	CursorCol int
}

func (f Frame) sameSize(other Frame) bool {
	return f.Width == other.Width && f.Height == other.Height
}

// Init is the full-buffer seed sent once per subscription and again after
// every resize.
type Init struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Content   string `json:"content"`
	CursorRow int    `json:"cursorRow"`
	CursorCol int    `json:"cursorCol"`
}

// Region is one in-place row edit: everything from column Col to the end
// of row Row is replaced by Content. Content keeps its ANSI escapes; a
// nonzero Col only ever covers a plain-ASCII unchanged prefix, so the
// column maps one-to-one onto terminal cells.
type Region struct {
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Content string `json:"content"`
}

// Patch carries the rows that changed since the last delivered frame plus
// the cursor cell after applying them. Clients apply regions in place and
// never scroll.
type Patch struct {
	Regions   []Region `json:"regions"`
	CursorRow int      `json:"cursorRow"`
	CursorCol int      `json:"cursorCol"`
}

// Resize announces new pane dimensions. A fresh Init follows immediately.
type Resize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Heartbeat is an empty keepalive carrying the server's unix time.
type Heartbeat struct {
	Ts int64 `json:"ts"`
}

// Event is one wire frame. The encoded form is `TYPE:{json}` terminated
// by a newline.
type Event struct {
	Kind    Kind
	Payload any
}

// Encode renders the event in its wire form.
func (e Event) Encode() ([]byte, error) {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(e.Kind)+len(body)+2)
	buf = append(buf, e.Kind...)
	buf = append(buf, ':')
	buf = append(buf, body...)
	buf = append(buf, '\n')
	return buf, nil
}

func initEvent(f Frame) Event {
	return Event{Kind: KindInit, Payload: Init{
		Width:     f.Width,
		Height:    f.Height,
		Content:   strings.Join(f.Lines, "\n"),
		CursorRow: f.CursorRow,
		CursorCol: f.CursorCol,
	}}
}
