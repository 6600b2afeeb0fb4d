package prosemirror

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// markRank orders marks the way the editor schema declares them.
var markRank = map[string]int{
	MarkLink:   0,
	MarkBold:   1,
	MarkItalic: 2,
	MarkStrike: 3,
	MarkCode:   4,
}

// ParseMarkdown converts markdown text into a document tree. It returns nil
// when the text holds nothing to parse.
func ParseMarkdown(src string) *Node {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	source := []byte(src)
	root := markdown.Parser().Parse(text.NewReader(source))

	c := converter{source: source}
	doc := Normalize(Node{Type: TypeDoc, Content: c.blocks(root)})
	return &doc
}

type converter struct {
	source []byte
}

func (c converter) blocks(parent ast.Node) []Node {
	var out []Node
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		out = append(out, c.block(child)...)
	}
	return out
}

func (c converter) block(n ast.Node) []Node {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return []Node{{Type: TypeParagraph, Content: c.inline(n, nil)}}
	case *ast.Heading:
		return []Node{{
			Type:    TypeHeading,
			Attrs:   map[string]any{"level": float64(n.Level)},
			Content: c.inline(n, nil),
		}}
	case *ast.ThematicBreak:
		return []Node{{Type: TypeHorizontalRule}}
	case *ast.FencedCodeBlock:
		node := Node{Type: TypeCodeBlock}
		if lang := string(n.Language(c.source)); lang != "" {
			node.Attrs = map[string]any{"language": lang}
		}
		if body := c.lines(n); body != "" {
			node.Content = []Node{{Type: TypeText, Text: body}}
		}
		return []Node{node}
	case *ast.CodeBlock:
		node := Node{Type: TypeCodeBlock}
		if body := c.lines(n); body != "" {
			node.Content = []Node{{Type: TypeText, Text: body}}
		}
		return []Node{node}
	case *ast.Blockquote:
		return []Node{{Type: TypeBlockquote, Content: c.blocks(n)}}
	case *ast.List:
		return []Node{c.list(n)}
	case *ast.HTMLBlock:
		body := strings.TrimSpace(c.lines(n))
		if body == "" {
			return nil
		}
		return []Node{{Type: TypeParagraph, Content: []Node{{Type: TypeText, Text: body}}}}
	case *east.Table:
		return []Node{c.table(n)}
	default:
		return c.blocks(n)
	}
}

func (c converter) list(l *ast.List) Node {
	task := isTaskList(l)
	node := Node{Type: TypeBulletList}
	switch {
	case task:
		node.Type = TypeTaskList
	case l.IsOrdered():
		node.Type = TypeOrderedList
		node.Attrs = map[string]any{"order": float64(l.Start)}
	}

	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		if !task {
			node.Content = append(node.Content, Node{Type: TypeListItem, Content: c.blocks(item)})
			continue
		}
		node.Content = append(node.Content, Node{
			Type:    TypeTaskItem,
			Attrs:   map[string]any{"checked": taskChecked(item)},
			Content: c.blocks(item),
		})
	}
	return node
}

func isTaskList(l *ast.List) bool {
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		if taskBox(item) != nil {
			return true
		}
	}
	return false
}

func taskBox(item ast.Node) *east.TaskCheckBox {
	first := item.FirstChild()
	if first == nil {
		return nil
	}
	box, _ := first.FirstChild().(*east.TaskCheckBox)
	return box
}

func taskChecked(item ast.Node) bool {
	if box := taskBox(item); box != nil {
		return box.IsChecked
	}
	return false
}

func (c converter) table(t *east.Table) Node {
	node := Node{Type: TypeTable}
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		cellType := TypeTableCell
		if _, ok := row.(*east.TableHeader); ok {
			cellType = TypeTableHeader
		}
		tr := Node{Type: TypeTableRow}
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			td := Node{Type: cellType}
			if tc, ok := cell.(*east.TableCell); ok && tc.Alignment != east.AlignNone {
				td.Attrs = map[string]any{"alignment": tc.Alignment.String()}
			}
			td.Content = []Node{{Type: TypeParagraph, Content: c.inline(cell, nil)}}
			tr.Content = append(tr.Content, td)
		}
		node.Content = append(node.Content, tr)
	}
	return node
}

func (c converter) inline(parent ast.Node, marks []Mark) []Node {
	var out []Node
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Text:
			out = appendText(out, string(n.Segment.Value(c.source)), marks)
			switch {
			case n.HardLineBreak():
				out = append(out, Node{Type: TypeHardBreak})
			case n.SoftLineBreak():
				out = appendText(out, " ", marks)
			}
		case *ast.String:
			out = appendText(out, string(n.Value), marks)
		case *ast.CodeSpan:
			out = appendText(out, c.plain(n), withMark(marks, Mark{Type: MarkCode}))
		case *ast.Emphasis:
			mark := Mark{Type: MarkItalic}
			if n.Level >= 2 {
				mark.Type = MarkBold
			}
			out = append(out, c.inline(n, withMark(marks, mark))...)
		case *east.Strikethrough:
			out = append(out, c.inline(n, withMark(marks, Mark{Type: MarkStrike}))...)
		case *ast.Link:
			out = append(out, c.inline(n, withMark(marks, linkMark(string(n.Destination), string(n.Title))))...)
		case *ast.AutoLink:
			url := string(n.URL(c.source))
			href := url
			if n.AutoLinkType == ast.AutoLinkEmail {
				href = "mailto:" + url
			}
			out = appendText(out, url, withMark(marks, linkMark(href, "")))
		case *ast.Image:
			attrs := map[string]any{"src": string(n.Destination), "alt": c.plain(n)}
			if len(n.Title) > 0 {
				attrs["title"] = string(n.Title)
			}
			out = append(out, Node{Type: TypeImage, Attrs: attrs})
		case *ast.RawHTML:
			var b strings.Builder
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				b.Write(seg.Value(c.source))
			}
			out = appendText(out, b.String(), marks)
		case *east.TaskCheckBox:
		default:
			out = append(out, c.inline(n, marks)...)
		}
	}
	return out
}

// plain collects the literal text below n.
func (c converter) plain(n ast.Node) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(c.source))
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func (c converter) lines(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(c.source))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func appendText(out []Node, s string, marks []Mark) []Node {
	if s == "" {
		return out
	}
	return append(out, Node{Type: TypeText, Text: s, Marks: marks})
}

func linkMark(href, title string) Mark {
	attrs := map[string]any{"href": href}
	if title != "" {
		attrs["title"] = title
	}
	return Mark{Type: MarkLink, Attrs: attrs}
}

// withMark returns a copy of marks with m added in schema order.
func withMark(marks []Mark, m Mark) []Mark {
	out := make([]Mark, 0, len(marks)+1)
	for _, existing := range marks {
		if existing.Type == m.Type {
			continue
		}
		out = append(out, existing)
	}
	out = append(out, m)
	sort.SliceStable(out, func(i, j int) bool {
		return markRank[out[i].Type] < markRank[out[j].Type]
	})
	return out
}
