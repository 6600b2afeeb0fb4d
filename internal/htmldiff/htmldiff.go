// Package htmldiff computes a structural diff of two HTML fragments. Changed
// regions in the result carry a data-operation-index attribute whose value
// increases in document order.
package htmldiff

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"docdiff/api/internal/seqdiff"
)

// OperationIndexAttr marks an element as part of a change.
const OperationIndexAttr = "data-operation-index"

// Classes added to whole elements that were inserted or removed.
const (
	ClassInsert = "diff-insert"
	ClassRemove = "diff-remove"
)

// Differ diffs two HTML fragments.
type Differ interface {
	DiffHTML(before, after string) (string, error)
}

// Engine is the structural Differ.
type Engine struct{}

// New returns a structural diff engine.
func New() Engine {
	return Engine{}
}

// DiffHTML implements Differ.
func (Engine) DiffHTML(before, after string) (string, error) {
	return Diff(before, after)
}

// trackedAttrs are the attributes whose change turns an element into a
// remove and insert pair. Changes to any other attribute alone are not shown.
var trackedAttrs = map[string]bool{
	"href":          true,
	"src":           true,
	"class":         true,
	"start":         true,
	"data-language": true,
}

var inlineElements = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Br: true, atom.Code: true,
	atom.Del: true, atom.Em: true, atom.I: true, atom.Img: true, atom.Ins: true,
	atom.Mark: true, atom.S: true, atom.Small: true, atom.Span: true,
	atom.Strong: true, atom.Sub: true, atom.Sup: true, atom.U: true,
}

var wordPattern = regexp.MustCompile(`\s+|[\p{L}\p{N}_]+|[^\s\p{L}\p{N}_]`)

// Diff returns after with the differences from before marked up.
func Diff(before, after string) (string, error) {
	olds, err := parseFragment(before)
	if err != nil {
		return "", fmt.Errorf("parse before: %w", err)
	}
	news, err := parseFragment(after)
	if err != nil {
		return "", fmt.Errorf("parse after: %w", err)
	}

	d := &differ{}
	out := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	d.children(out, olds, news)

	var buf bytes.Buffer
	for c := out.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render diff: %w", err)
		}
	}
	return buf.String(), nil
}

func parseFragment(s string) ([]*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(s), body)
}

type differ struct {
	next int
}

func (d *differ) allocate() int {
	idx := d.next
	d.next++
	return idx
}

func (d *differ) children(parent *html.Node, olds, news []*html.Node) {
	hunks := seqdiff.Hunks(seqdiff.Strings(fingerprints(olds), fingerprints(news)))
	for _, h := range hunks {
		if h.Equal {
			for _, n := range news[h.BStart:h.BEnd] {
				parent.AppendChild(Clone(n))
			}
			continue
		}
		d.replace(parent, olds[h.AStart:h.AEnd], news[h.BStart:h.BEnd])
	}
}

// replace pairs nodes of the same kind for a nested diff; the rest of the run
// becomes removals and insertions sharing one operation index.
func (d *differ) replace(parent *html.Node, olds, news []*html.Node) {
	hunks := seqdiff.Hunks(seqdiff.Strings(kinds(olds), kinds(news)))
	for _, h := range hunks {
		if h.Equal {
			for k := 0; k < h.AEnd-h.AStart; k++ {
				d.pair(parent, olds[h.AStart+k], news[h.BStart+k])
			}
			continue
		}
		op := &lazyIndex{d: d}
		for _, n := range olds[h.AStart:h.AEnd] {
			d.removed(parent, n, op)
		}
		for _, n := range news[h.BStart:h.BEnd] {
			d.inserted(parent, n, op)
		}
	}
}

func (d *differ) pair(parent, old, cur *html.Node) {
	switch {
	case old.Type == html.TextNode && cur.Type == html.TextNode:
		d.text(parent, old.Data, cur.Data)
	case old.Type == html.ElementNode && cur.Type == html.ElementNode:
		if !sameTrackedAttrs(old, cur) {
			op := &lazyIndex{d: d}
			d.removed(parent, old, op)
			d.inserted(parent, cur, op)
			return
		}
		el := shallowClone(cur)
		parent.AppendChild(el)
		d.children(el, childNodes(old), childNodes(cur))
	default:
		parent.AppendChild(Clone(cur))
	}
}

func (d *differ) text(parent *html.Node, before, after string) {
	if isBlank(before) && isBlank(after) {
		parent.AppendChild(&html.Node{Type: html.TextNode, Data: after})
		return
	}
	olds := wordPattern.FindAllString(before, -1)
	news := wordPattern.FindAllString(after, -1)

	for _, h := range seqdiff.Hunks(seqdiff.Strings(olds, news)) {
		if h.Equal {
			parent.AppendChild(&html.Node{Type: html.TextNode, Data: strings.Join(news[h.BStart:h.BEnd], "")})
			continue
		}
		op := &lazyIndex{d: d}
		if removed := strings.Join(olds[h.AStart:h.AEnd], ""); removed != "" {
			parent.AppendChild(wrapText(atom.Del, removed, op.get()))
		}
		if added := strings.Join(news[h.BStart:h.BEnd], ""); added != "" {
			parent.AppendChild(wrapText(atom.Ins, added, op.get()))
		}
	}
}

func (d *differ) removed(parent, n *html.Node, op *lazyIndex) {
	switch n.Type {
	case html.TextNode:
		if isBlank(n.Data) {
			return
		}
		parent.AppendChild(wrapText(atom.Del, n.Data, op.get()))
	case html.ElementNode:
		parent.AppendChild(markElement(n, atom.Del, ClassRemove, op.get()))
	}
}

func (d *differ) inserted(parent, n *html.Node, op *lazyIndex) {
	switch n.Type {
	case html.TextNode:
		if isBlank(n.Data) {
			parent.AppendChild(Clone(n))
			return
		}
		parent.AppendChild(wrapText(atom.Ins, n.Data, op.get()))
	case html.ElementNode:
		parent.AppendChild(markElement(n, atom.Ins, ClassInsert, op.get()))
	}
}

// lazyIndex allocates an operation index on first use so that runs made only
// of whitespace do not consume one.
type lazyIndex struct {
	d   *differ
	idx int
	set bool
}

func (l *lazyIndex) get() int {
	if !l.set {
		l.idx = l.d.allocate()
		l.set = true
	}
	return l.idx
}

// markElement marks a whole inserted or removed element. Inline elements are
// wrapped in ins/del; block elements carry the index themselves so that table
// and list structure stays valid.
func markElement(n *html.Node, wrapper atom.Atom, class string, idx int) *html.Node {
	c := Clone(n)
	if inlineElements[n.DataAtom] {
		w := &html.Node{Type: html.ElementNode, DataAtom: wrapper, Data: wrapper.String()}
		SetAttr(w, OperationIndexAttr, strconv.Itoa(idx))
		w.AppendChild(c)
		return w
	}
	SetAttr(c, OperationIndexAttr, strconv.Itoa(idx))
	AddClass(c, class)
	return c
}

func wrapText(wrapper atom.Atom, s string, idx int) *html.Node {
	w := &html.Node{Type: html.ElementNode, DataAtom: wrapper, Data: wrapper.String()}
	SetAttr(w, OperationIndexAttr, strconv.Itoa(idx))
	w.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	return w
}

func sameTrackedAttrs(a, b *html.Node) bool {
	if a.Data != b.Data {
		return false
	}
	for key := range trackedAttrs {
		av, aok := Attr(a, key)
		bv, bok := Attr(b, key)
		if aok != bok || av != bv {
			return false
		}
	}
	return true
}

func fingerprints(nodes []*html.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = fingerprint(n)
	}
	return out
}

func fingerprint(n *html.Node) string {
	if n.Type == html.TextNode {
		return "#text:" + n.Data
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return fmt.Sprintf("#unrenderable:%p", n)
	}
	return buf.String()
}

func kinds(nodes []*html.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		switch n.Type {
		case html.TextNode:
			out[i] = "#text"
		case html.ElementNode:
			out[i] = n.Data
		default:
			out[i] = fmt.Sprintf("#node%d", n.Type)
		}
	}
	return out
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
