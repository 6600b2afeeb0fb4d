package diff

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"docdiff/api/internal/htmldiff"
)

const (
	// minRowsForCompaction is the smallest table whose rows are compacted;
	// smaller tables are kept whole.
	minRowsForCompaction = 3
	// contextWindow is how many unchanged siblings are kept on each side of a
	// change. The descriptors below only look one sibling away.
	contextWindow = 1

	breakClass   = "diff-context-break"
	breakContent = "…"
	tableWrapper = "table-wrapper"
)

// state of the compaction fold.
type state int

const (
	// stateIdle: no change has been kept yet.
	stateIdle state = iota
	// stateAfterDiffBlock: a change was kept and the previous unit was kept.
	stateAfterDiffBlock
	// stateAfterRemoved: a change was kept earlier and the previous unit was
	// dropped.
	stateAfterRemoved
)

type action int

const (
	actionDrop action = iota
	actionKeep
	actionKeepWithBreak
)

// descriptor classifies one unit (block or table row) for the fold.
type descriptor struct {
	diff     bool
	context  bool
	prevDiff bool
	nextDiff bool
}

// plan decides, in order, what happens to each unit. A unit with a change is
// kept, with a break before it when the previous unit was dropped after an
// earlier change. A context unit before a change is kept, with a break before
// it once any change has been kept. A context unit after a change is kept.
// Everything else is dropped.
func plan(units []descriptor) []action {
	actions := make([]action, len(units))
	st := stateIdle
	for i, u := range units {
		switch {
		case u.diff:
			actions[i] = breakIf(st == stateAfterRemoved)
			st = stateAfterDiffBlock
		case u.context && (u.nextDiff || u.prevDiff):
			if u.nextDiff {
				actions[i] = breakIf(st != stateIdle)
			} else {
				actions[i] = actionKeep
			}
			if st == stateAfterRemoved {
				st = stateAfterDiffBlock
			}
		default:
			actions[i] = actionDrop
			if st != stateIdle {
				st = stateAfterRemoved
			}
		}
	}
	return actions
}

func breakIf(b bool) action {
	if b {
		return actionKeepWithBreak
	}
	return actionKeep
}

// Compact drops unchanged blocks from root, keeping each change with one
// unchanged paragraph of context on either side, and marks elided runs with a
// break. Rows of larger tables are compacted the same way.
func Compact(root *html.Node) {
	blocks := elementChildren(root)
	units := describe(blocks, isContextParagraph)

	for i, act := range plan(units) {
		el := blocks[i]
		switch act {
		case actionDrop:
			root.RemoveChild(el)
			continue
		case actionKeepWithBreak:
			root.InsertBefore(blockBreak(), el)
		}
		if units[i].diff && htmldiff.HasClass(el, tableWrapper) {
			compactRows(el)
		}
	}
}

func compactRows(wrapper *html.Node) {
	rows := htmldiff.FindAll(wrapper, htmldiff.ByTag("tr"))
	if len(rows) < minRowsForCompaction || markedAbove(rows[0], wrapper) {
		return
	}
	units := describe(rows, func(row *html.Node) bool { return !isBreak(row) })

	for i, act := range plan(units) {
		row := rows[i]
		switch act {
		case actionDrop:
			row.Parent.RemoveChild(row)
		case actionKeepWithBreak:
			row.Parent.InsertBefore(rowBreak(cellCount(row)), row)
		}
	}
}

func describe(nodes []*html.Node, isContext func(*html.Node) bool) []descriptor {
	marked := make([]bool, len(nodes))
	for i, n := range nodes {
		marked[i] = htmldiff.HasMarker(n)
	}
	units := make([]descriptor, len(nodes))
	for i, n := range nodes {
		units[i] = descriptor{
			diff:     marked[i],
			context:  isContext(n),
			prevDiff: i >= contextWindow && marked[i-contextWindow],
			nextDiff: i+contextWindow < len(nodes) && marked[i+contextWindow],
		}
	}
	return units
}

// markedAbove reports whether the change marker sits on an element between
// row and wrapper, meaning the whole table changed.
func markedAbove(row, wrapper *html.Node) bool {
	for n := row.Parent; n != nil; n = n.Parent {
		if _, ok := htmldiff.Attr(n, htmldiff.OperationIndexAttr); ok {
			return true
		}
		if n == wrapper {
			break
		}
	}
	return false
}

func isContextParagraph(n *html.Node) bool {
	return n.DataAtom == atom.P && strings.TrimSpace(textContent(n)) != ""
}

func isBreak(n *html.Node) bool {
	if htmldiff.HasClass(n, breakClass) {
		return true
	}
	return htmldiff.FindElement(n, func(c *html.Node) bool { return htmldiff.HasClass(c, breakClass) }) != nil
}

func blockBreak() *html.Node {
	div := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	htmldiff.SetAttr(div, "class", breakClass)
	div.AppendChild(&html.Node{Type: html.TextNode, Data: breakContent})
	return div
}

func rowBreak(columns int) *html.Node {
	tr := &html.Node{Type: html.ElementNode, DataAtom: atom.Tr, Data: "tr"}
	td := &html.Node{Type: html.ElementNode, DataAtom: atom.Td, Data: "td"}
	htmldiff.SetAttr(td, "colspan", strconv.Itoa(max(columns, 1)))
	htmldiff.SetAttr(td, "class", breakClass)
	td.AppendChild(&html.Node{Type: html.TextNode, Data: breakContent})
	tr.AppendChild(td)
	return tr
}

func cellCount(row *html.Node) int {
	n := 0
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom == atom.Td || c.DataAtom == atom.Th {
			n++
		}
	}
	return n
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
