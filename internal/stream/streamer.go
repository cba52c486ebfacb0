package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Dicklesworthstone/dmux/internal/tmux"
)

const (
	// DefaultTick paces frame capture. A slow subscriber stretches the
	// effective interval because emit blocks the loop, and the next diff
	// is computed against the last frame that was actually delivered, so
	// missed intermediate frames coalesce into one patch.
	DefaultTick = 150 * time.Millisecond

	// DefaultHeartbeat is the idle interval after which a HEARTBEAT frame
	// goes out.
	DefaultHeartbeat = 15 * time.Second
)

// dmp provides the prefix scanner for row diffs. DiffMatchPatch carries
// no state for this call, so one shared instance serves every stream.
var dmp = diffmatchpatch.New()

// Streamer captures pane frames and serves per-subscriber streams.
type Streamer struct {
	Tmux      *tmux.Client
	Logger    *slog.Logger
	Tick      time.Duration
	Heartbeat time.Duration

	// capture is swapped by tests to script frames.
	capture func(ctx context.Context, target string) (Frame, error)
}

// NewStreamer builds a streamer over the given tmux client.
func NewStreamer(tm *tmux.Client) *Streamer {
	s := &Streamer{Tmux: tm, Tick: DefaultTick, Heartbeat: DefaultHeartbeat}
	s.capture = s.capturePane
	return s
}

func (s *Streamer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Streamer) tick() time.Duration {
	if s.Tick > 0 {
		return s.Tick
	}
	return DefaultTick
}

func (s *Streamer) heartbeat() time.Duration {
	if s.Heartbeat > 0 {
		return s.Heartbeat
	}
	return DefaultHeartbeat
}

// Stream serves one subscriber. It emits INIT before anything else, then
// patches in capture order, and blocks until the context ends or emit
// fails. Any error closes the stream; the client reconnects and gets a
// fresh INIT.
func (s *Streamer) Stream(ctx context.Context, target string, emit func(Event) error) error {
	if s.capture == nil {
		s.capture = s.capturePane
	}

	prev, err := s.capture(ctx, target)
	if err != nil {
		return fmt.Errorf("seeding stream: %w", err)
	}
	if err := emit(initEvent(prev)); err != nil {
		return err
	}
	lastSent := time.Now()
	s.logger().Debug("stream subscribed",
		slog.String("component", "stream"),
		slog.String("target", target),
		slog.Int("width", prev.Width),
		slog.Int("height", prev.Height))

	ticker := time.NewTicker(s.tick())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cur, err := s.capture(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("capturing frame: %w", err)
		}

		if !cur.sameSize(prev) {
			if err := emit(Event{Kind: KindResize, Payload: Resize{Width: cur.Width, Height: cur.Height}}); err != nil {
				return err
			}
			if err := emit(initEvent(cur)); err != nil {
				return err
			}
			prev = cur
			lastSent = time.Now()
			continue
		}

		regions := diffFrames(prev, cur)
		cursorMoved := cur.CursorRow != prev.CursorRow || cur.CursorCol != prev.CursorCol
		if len(regions) > 0 || cursorMoved {
			if regions == nil {
				regions = []Region{}
			}
			patch := Patch{Regions: regions, CursorRow: cur.CursorRow, CursorCol: cur.CursorCol}
			if err := emit(Event{Kind: KindPatch, Payload: patch}); err != nil {
				return err
			}
			prev = cur
			lastSent = time.Now()
			continue
		}
		prev = cur

		if time.Since(lastSent) >= s.heartbeat() {
			if err := emit(Event{Kind: KindHeartbeat, Payload: Heartbeat{Ts: time.Now().Unix()}}); err != nil {
				return err
			}
			lastSent = time.Now()
		}
	}
}

// capturePane snapshots the visible buffer, dimensions, and cursor of a
// pane. Lines are padded to the pane height so row indexes stay stable
// when tmux trims trailing blanks.
func (s *Streamer) capturePane(ctx context.Context, target string) (Frame, error) {
	content, err := s.Tmux.CapturePaneEscapes(ctx, target)
	if err != nil {
		return Frame{}, err
	}
	width, height, err := s.Tmux.PaneDimensions(ctx, target)
	if err != nil {
		return Frame{}, err
	}
	cursor, err := s.Tmux.CursorPosition(ctx, target)
	if err != nil {
		return Frame{}, err
	}
	lines := strings.Split(content, "\n")
	for len(lines) < height {
		lines = append(lines, "")
	}
	return Frame{
		Width:     width,
		Height:    height,
		Lines:     lines,
		CursorRow: cursor.Row,
		CursorCol: cursor.Col,
	}, nil
}

// diffFrames returns in-place row edits that transform prev into cur.
// Frames must have equal dimensions; resizes reseed instead.
func diffFrames(prev, cur Frame) []Region {
	rows := cur.Height
	if n := len(cur.Lines); n > rows {
		rows = n
	}
	if n := len(prev.Lines); n > rows {
		rows = n
	}
	var regions []Region
	for row := 0; row < rows; row++ {
		oldLine := lineAt(prev.Lines, row)
		newLine := lineAt(cur.Lines, row)
		if oldLine == newLine {
			continue
		}
		regions = append(regions, rowRegion(row, oldLine, newLine))
	}
	return regions
}

func lineAt(lines []string, row int) string {
	if row < len(lines) {
		return lines[row]
	}
	return ""
}

// rowRegion trims the unchanged prefix off a row edit so that typing a
// few characters ships only the tail of that row. Column arithmetic is
// only sound when the shared prefix is printable single-width ASCII;
// escapes or wide runes fall back to replacing from column zero.
func rowRegion(row int, oldLine, newLine string) Region {
	n := dmp.DiffCommonPrefix(oldLine, newLine)
	if n == 0 {
		return Region{Row: row, Content: newLine}
	}
	prefix := firstRunes(newLine, n)
	if !plainASCII(prefix) {
		return Region{Row: row, Content: newLine}
	}
	return Region{Row: row, Col: len(prefix), Content: newLine[len(prefix):]}
}

// firstRunes returns the prefix of s holding its first n runes.
func firstRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

func plainASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
