// Package prosemirror holds the canonical content tree shared by the resolver,
// the renderer and the CRDT merge path.
package prosemirror

import (
	"encoding/json"
	"strings"
)

// Node types of the fixed document schema.
const (
	TypeDoc            = "doc"
	TypeParagraph      = "paragraph"
	TypeHeading        = "heading"
	TypeBlockquote     = "blockquote"
	TypeBulletList     = "bulletList"
	TypeOrderedList    = "orderedList"
	TypeListItem       = "listItem"
	TypeTaskList       = "taskList"
	TypeTaskItem       = "taskItem"
	TypeCodeBlock      = "codeBlock"
	TypeHorizontalRule = "horizontalRule"
	TypeTable          = "table"
	TypeTableRow       = "tableRow"
	TypeTableHeader    = "tableHeader"
	TypeTableCell      = "tableCell"
	TypeText           = "text"
	TypeHardBreak      = "hardBreak"
	TypeImage          = "image"
)

// Mark types.
const (
	MarkBold   = "bold"
	MarkItalic = "italic"
	MarkCode   = "code"
	MarkLink   = "link"
	MarkStrike = "strike"
)

// Node is a node in the document tree. Attribute values are JSON-native
// (string, float64, bool) so a tree survives encoding unchanged.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is inline formatting applied to a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// EmptyDoc returns a root node without content.
func EmptyDoc() Node {
	return Node{Type: TypeDoc}
}

// IsText reports whether n is a text leaf.
func (n Node) IsText() bool {
	return n.Type == TypeText
}

// AttrString returns a string attribute or def.
func (n Node) AttrString(key, def string) string {
	if v, ok := n.Attrs[key].(string); ok {
		return v
	}
	return def
}

// AttrInt returns a numeric attribute or def.
func (n Node) AttrInt(key string, def int) int {
	switch v := n.Attrs[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// AttrBool returns a boolean attribute or def.
func (n Node) AttrBool(key string, def bool) bool {
	if v, ok := n.Attrs[key].(bool); ok {
		return v
	}
	return def
}

// TextContent concatenates all text below n.
func (n Node) TextContent() string {
	if n.IsText() {
		return n.Text
	}
	var b strings.Builder
	for _, child := range n.Content {
		b.WriteString(child.TextContent())
	}
	return b.String()
}

// Equal reports structural equality. Nil and empty attrs, content and marks
// compare equal.
func Equal(a, b Node) bool {
	if a.Type != b.Type || a.Text != b.Text {
		return false
	}
	if !attrsEqual(a.Attrs, b.Attrs) || !MarksEqual(a.Marks, b.Marks) {
		return false
	}
	if len(a.Content) != len(b.Content) {
		return false
	}
	for i := range a.Content {
		if !Equal(a.Content[i], b.Content[i]) {
			return false
		}
	}
	return true
}

// MarksEqual compares two mark sets in order.
func MarksEqual(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || !attrsEqual(a[i].Attrs, b[i].Attrs) {
			return false
		}
	}
	return true
}

func attrsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !jsonEqual(av, bv) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// Normalize merges adjacent text nodes carrying the same marks and drops empty
// text nodes, recursively.
func Normalize(n Node) Node {
	if len(n.Content) == 0 {
		n.Content = nil
		return n
	}
	out := make([]Node, 0, len(n.Content))
	for _, child := range n.Content {
		if child.IsText() {
			if child.Text == "" {
				continue
			}
			if last := len(out) - 1; last >= 0 && out[last].IsText() && MarksEqual(out[last].Marks, child.Marks) {
				out[last].Text += child.Text
				continue
			}
			out = append(out, child)
			continue
		}
		out = append(out, Normalize(child))
	}
	if len(out) == 0 {
		out = nil
	}
	n.Content = out
	return n
}

// Fingerprint is a canonical encoding of n used to detect identical subtrees.
func Fingerprint(nodes ...Node) string {
	b, err := json.Marshal(nodes)
	if err != nil {
		return ""
	}
	return string(b)
}
