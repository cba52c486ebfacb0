// Package layout turns a sidebar pane plus N content panes into a tmux
// custom layout string: a checksum-prefixed container tree that tiles the
// window.
package layout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tuning constants, in terminal cells.
const (
	SidebarWidth        = 40
	MinContentWidth     = 60
	MaxComfortableWidth = 120
	MinPaneHeight       = 15
)

// ErrTooSmall is returned when the window cannot fit the sidebar plus at
// least one content column.
var ErrTooSmall = errors.New("window too small for layout")

// grid describes one candidate arrangement of the content area.
type grid struct {
	cols  int
	rows  int
	cellW int
	cellH int
}

// gridFor computes the cell geometry for n panes in k columns. Border cells
// cost one column between cells and one row between rows.
func gridFor(n, k, availW, availH int) grid {
	rows := (n + k - 1) / k
	return grid{
		cols:  k,
		rows:  rows,
		cellW: (availW - (k - 1)) / k,
		cellH: (availH - (rows - 1)) / rows,
	}
}

// score rates a candidate grid. Zero means rejected.
func (g grid) score() float64 {
	if g.cellW < MinContentWidth || g.cellH < MinPaneHeight {
		return 0
	}
	widthScore := 1.0
	if g.cellW > MaxComfortableWidth {
		widthScore = 0.5
	}
	heightScore := 0.7
	if float64(g.cellH) >= 1.5*MinPaneHeight {
		heightScore = 1.0
	}
	return widthScore * heightScore
}

// Columns picks the column count for n content panes in a content area of
// availW x availH. Candidates below the comfortable minimums are rejected;
// when every candidate is rejected it falls back to the largest k whose
// cell width still reaches 80% of the minimum. When even that fails the
// area cannot hold a usable grid and Columns returns 0 so the caller can
// switch to a built-in layout instead.
func Columns(n, availW, availH int) int {
	if n <= 1 {
		return 1
	}

	best, bestScore := 0, 0.0
	for k := 1; k <= n; k++ {
		if s := gridFor(n, k, availW, availH).score(); s > bestScore {
			best, bestScore = k, s
		}
	}
	if best > 0 {
		return best
	}

	for k := n; k >= 1; k-- {
		if gridFor(n, k, availW, availH).cellW*10 >= MinContentWidth*8 {
			return k
		}
	}
	return 0
}

// node is one rectangle in the layout tree. A node is either a leaf bound
// to a pane or a container splitting horizontally ({...}) or vertically
// ([...]). Coordinates are absolute window offsets, as tmux expects.
type node struct {
	w, h, x, y int
	paneID     int
	horizontal bool
	children   []*node
}

func (n *node) write(sb *strings.Builder) {
	fmt.Fprintf(sb, "%dx%d,%d,%d", n.w, n.h, n.x, n.y)
	if len(n.children) == 0 {
		fmt.Fprintf(sb, ",%d", n.paneID)
		return
	}
	open, closing := byte('['), byte(']')
	if n.horizontal {
		open, closing = '{', '}'
	}
	sb.WriteByte(open)
	for i, child := range n.children {
		if i > 0 {
			sb.WriteByte(',')
		}
		child.write(sb)
	}
	sb.WriteByte(closing)
}

// Checksum is tmux's 16-bit layout checksum: rotate right through the low
// bit, then add each byte.
func Checksum(body string) uint16 {
	var csum uint16
	for i := 0; i < len(body); i++ {
		csum = (csum >> 1) + ((csum & 1) << 15)
		csum += uint16(body[i])
	}
	return csum
}

// PaneNumber converts a tmux pane id like "%5" to the bare number layout
// strings use.
func PaneNumber(paneID string) (int, error) {
	s := strings.TrimPrefix(paneID, "%")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad pane id %q", paneID)
	}
	return n, nil
}

// Build produces the full layout string (checksum prefix included) for a
// sidebar pane plus content panes in a width x height window. Content panes
// flow left-to-right, top-to-bottom. The last row and last column absorb
// rounding remainders so the tree always sums to the window size.
func Build(controlPane string, contentPanes []string, width, height int) (string, error) {
	if len(contentPanes) == 0 {
		return "", errors.New("no content panes")
	}
	contentW := width - SidebarWidth - 1
	if contentW < 1 || height < 1 {
		return "", fmt.Errorf("%w: %dx%d", ErrTooSmall, width, height)
	}
	cols := Columns(len(contentPanes), contentW, height)
	if cols == 0 {
		return "", fmt.Errorf("%w: %d panes in %dx%d", ErrTooSmall, len(contentPanes), width, height)
	}

	controlID, err := PaneNumber(controlPane)
	if err != nil {
		return "", err
	}
	contentIDs := make([]int, len(contentPanes))
	for i, p := range contentPanes {
		if contentIDs[i], err = PaneNumber(p); err != nil {
			return "", err
		}
	}

	root := &node{
		w: width, h: height, x: 0, y: 0,
		horizontal: true,
		children: []*node{
			{w: SidebarWidth, h: height, x: 0, y: 0, paneID: controlID},
			contentTree(contentIDs, cols, contentW, height, SidebarWidth+1, 0),
		},
	}

	var sb strings.Builder
	root.write(&sb)
	body := sb.String()
	return fmt.Sprintf("%04x,%s", Checksum(body), body), nil
}

// contentTree lays out the content panes as rows of cells inside the given
// rectangle, cols cells per row.
func contentTree(ids []int, cols, w, h, x, y int) *node {
	if len(ids) == 1 {
		return &node{w: w, h: h, x: x, y: y, paneID: ids[0]}
	}

	rows := (len(ids) + cols - 1) / cols

	if rows == 1 {
		return rowNode(ids, w, h, x, y)
	}

	rowH := (h - (rows - 1)) / rows
	content := &node{w: w, h: h, x: x, y: y}
	remaining := ids
	curY := y
	for r := 0; r < rows; r++ {
		take := cols
		if take > len(remaining) {
			take = len(remaining)
		}
		hh := rowH
		if r == rows-1 {
			hh = h - (curY - y)
		}
		content.children = append(content.children, rowNode(remaining[:take], w, hh, x, curY))
		remaining = remaining[take:]
		curY += hh + 1
	}
	return content
}

// rowNode lays out one row of cells. A single cell collapses to a leaf.
func rowNode(ids []int, w, h, x, y int) *node {
	if len(ids) == 1 {
		return &node{w: w, h: h, x: x, y: y, paneID: ids[0]}
	}
	cellW := (w - (len(ids) - 1)) / len(ids)
	row := &node{w: w, h: h, x: x, y: y, horizontal: true}
	curX := x
	for i, id := range ids {
		ww := cellW
		if i == len(ids)-1 {
			ww = w - (curX - x)
		}
		row.children = append(row.children, &node{w: ww, h: h, x: curX, y: y, paneID: id})
		curX += ww + 1
	}
	return row
}
