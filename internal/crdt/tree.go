package crdt

import (
	"encoding/json"
	"fmt"

	"docdiff/api/internal/prosemirror"
)

// marksAttr holds the JSON-encoded marks of a character.
const marksAttr = "marks"

// ToTree converts the fragment into a document tree.
func (f *Fragment) ToTree() prosemirror.Node {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()

	return prosemirror.Normalize(prosemirror.Node{
		Type:    prosemirror.TypeDoc,
		Content: nodesOf(f.root.Children()),
	})
}

// FromTree builds the state of a new document whose default fragment holds
// tree.
func FromTree(tree prosemirror.Node, opts ...Option) ([]byte, error) {
	d := NewDoc(opts...)
	if _, err := d.Fragment(DefaultFragment).Reconcile(tree); err != nil {
		return nil, err
	}
	return d.Encode(), nil
}

func nodesOf(items []*Item) []prosemirror.Node {
	var out []prosemirror.Node
	for _, it := range items {
		out = append(out, itemNodes(it)...)
	}
	return out
}

func itemNodes(it *Item) []prosemirror.Node {
	switch it.Kind {
	case KindElement:
		return []prosemirror.Node{{
			Type:    it.Name,
			Attrs:   decodeAttrs(it),
			Content: nodesOf(it.Children()),
		}}
	case KindText:
		return textRuns(it)
	default:
		return nil
	}
}

func textRuns(it *Item) []prosemirror.Node {
	var out []prosemirror.Node
	lastMarks := ""
	for _, ch := range it.Children() {
		marks, _ := ch.Attr(marksAttr)
		if n := len(out); n > 0 && marks == lastMarks {
			out[n-1].Text += ch.Value
			continue
		}
		out = append(out, prosemirror.Node{
			Type:  prosemirror.TypeText,
			Text:  ch.Value,
			Marks: decodeMarks(marks),
		})
		lastMarks = marks
	}
	return out
}

func decodeAttrs(it *Item) map[string]any {
	keys := it.AttrKeys()
	if len(keys) == 0 {
		return nil
	}
	attrs := make(map[string]any, len(keys))
	for _, k := range keys {
		raw, _ := it.Attr(k)
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		attrs[k] = v
	}
	return attrs
}

func decodeMarks(raw string) []prosemirror.Mark {
	if raw == "" {
		return nil
	}
	var marks []prosemirror.Mark
	if err := json.Unmarshal([]byte(raw), &marks); err != nil {
		return nil
	}
	return marks
}

func encodeMarks(marks []prosemirror.Mark) string {
	if len(marks) == 0 {
		return ""
	}
	b, err := json.Marshal(marks)
	if err != nil {
		return ""
	}
	return string(b)
}

func encodeAttrs(attrs map[string]any) (map[string]string, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		enc, err := encodeAttr(v)
		if err != nil {
			return nil, fmt.Errorf("encode attr %q: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

func encodeAttr(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
