package crdt

import (
	"fmt"
	"sort"

	"docdiff/api/internal/prosemirror"
	"docdiff/api/internal/seqdiff"
)

// Reconcile patches the fragment so that it holds tree, as one update which
// it returns. Subtrees that are unchanged keep their items; changed nodes of
// the same type are updated in place and only the remainder is inserted or
// deleted.
func (f *Fragment) Reconcile(tree prosemirror.Node) ([]byte, error) {
	// Only a nil or zero Fragment has no document. Corrupted state is caught
	// by Validate.
	if f.Doc() == nil {
		return nil, fmt.Errorf("%w: fragment has no document", ErrInvariantViolation)
	}
	tree = prosemirror.Normalize(tree)
	return f.doc.Transact(func(tx *Txn) error {
		return tx.reconcileChildren(f.root, tree.Content)
	})
}

// unit is one child position of the desired tree: an element node, or a run
// of adjacent text nodes that maps onto a single text item.
type unit struct {
	node prosemirror.Node
	runs []prosemirror.Node
}

func (u unit) isText() bool {
	return u.runs != nil
}

func (u unit) kind() string {
	if u.isText() {
		return "#text"
	}
	return u.node.Type
}

func (u unit) fingerprint() string {
	if u.isText() {
		return prosemirror.Fingerprint(u.runs...)
	}
	return prosemirror.Fingerprint(u.node)
}

func unitsOf(nodes []prosemirror.Node) []unit {
	var out []unit
	for _, n := range nodes {
		if n.IsText() {
			if last := len(out) - 1; last >= 0 && out[last].isText() {
				out[last].runs = append(out[last].runs, n)
				continue
			}
			out = append(out, unit{runs: []prosemirror.Node{n}})
			continue
		}
		out = append(out, unit{node: n})
	}
	return out
}

func itemKind(it *Item) string {
	if it.Kind == KindText {
		return "#text"
	}
	return it.Name
}

func itemFingerprint(it *Item) string {
	nodes := itemNodes(it)
	if it.Kind == KindElement && len(nodes) == 1 {
		return prosemirror.Fingerprint(prosemirror.Normalize(nodes[0]))
	}
	return prosemirror.Fingerprint(nodes...)
}

func (tx *Txn) reconcileChildren(parent *Item, desired []prosemirror.Node) error {
	existing := parent.Children()
	want := unitsOf(desired)

	have := make([]string, len(existing))
	for i, it := range existing {
		have[i] = itemFingerprint(it)
	}
	need := make([]string, len(want))
	for i, u := range want {
		need[i] = u.fingerprint()
	}

	var anchor *Item
	for _, h := range seqdiff.Hunks(seqdiff.Strings(have, need)) {
		if h.Equal {
			anchor = existing[h.AEnd-1]
			continue
		}
		var err error
		anchor, err = tx.patchRun(parent, anchor, existing[h.AStart:h.AEnd], want[h.BStart:h.BEnd])
		if err != nil {
			return err
		}
	}
	return nil
}

// patchRun replaces olds with news. Items whose kind lines up with a desired
// unit are updated in place.
func (tx *Txn) patchRun(parent, anchor *Item, olds []*Item, news []unit) (*Item, error) {
	oldKinds := make([]string, len(olds))
	for i, it := range olds {
		oldKinds[i] = itemKind(it)
	}
	newKinds := make([]string, len(news))
	for i, u := range news {
		newKinds[i] = u.kind()
	}

	i, j := 0, 0
	for _, e := range seqdiff.Strings(oldKinds, newKinds) {
		for n := 0; n < e.Count; n++ {
			switch e.Op {
			case seqdiff.Equal:
				if err := tx.update(olds[i], news[j]); err != nil {
					return nil, err
				}
				anchor = olds[i]
				i++
				j++
			case seqdiff.Delete:
				tx.Delete(olds[i])
				i++
			case seqdiff.Insert:
				inserted, err := tx.insertUnit(parent, anchor, news[j])
				if err != nil {
					return nil, err
				}
				anchor = inserted
				j++
			}
		}
	}
	return anchor, nil
}

func (tx *Txn) update(it *Item, u unit) error {
	if u.isText() {
		tx.updateText(it, u.runs)
		return nil
	}
	if err := tx.updateAttrs(it, u.node.Attrs); err != nil {
		return err
	}
	return tx.reconcileChildren(it, u.node.Content)
}

func (tx *Txn) updateAttrs(it *Item, attrs map[string]any) error {
	want, err := encodeAttrs(attrs)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if cur, ok := it.Attr(k); !ok || cur != want[k] {
			tx.SetAttr(it, k, want[k])
		}
	}
	for _, k := range it.AttrKeys() {
		if _, ok := want[k]; !ok {
			tx.SetAttr(it, k, attrNull)
		}
	}
	return nil
}

type char struct {
	value string
	marks string
}

func (c char) key() string {
	return c.value + "\x00" + c.marks
}

func charsOf(runs []prosemirror.Node) []char {
	var out []char
	for _, run := range runs {
		marks := encodeMarks(run.Marks)
		for _, r := range run.Text {
			out = append(out, char{value: string(r), marks: marks})
		}
	}
	return out
}

// updateText diffs the characters of a text item. A character whose value
// survives but whose marks changed gets a marks update instead of a
// delete and insert.
func (tx *Txn) updateText(it *Item, runs []prosemirror.Node) {
	existing := it.Children()
	want := charsOf(runs)

	have := make([]string, len(existing))
	for i, ch := range existing {
		marks, _ := ch.Attr(marksAttr)
		have[i] = char{value: ch.Value, marks: marks}.key()
	}
	need := make([]string, len(want))
	for i, c := range want {
		need[i] = c.key()
	}

	var anchor *Item
	for _, h := range seqdiff.Hunks(seqdiff.Strings(have, need)) {
		if h.Equal {
			anchor = existing[h.AEnd-1]
			continue
		}
		anchor = tx.patchChars(it, anchor, existing[h.AStart:h.AEnd], want[h.BStart:h.BEnd])
	}
}

func (tx *Txn) patchChars(parent, anchor *Item, olds []*Item, news []char) *Item {
	oldValues := make([]string, len(olds))
	for i, ch := range olds {
		oldValues[i] = ch.Value
	}
	newValues := make([]string, len(news))
	for i, c := range news {
		newValues[i] = c.value
	}

	i, j := 0, 0
	for _, e := range seqdiff.Strings(oldValues, newValues) {
		for n := 0; n < e.Count; n++ {
			switch e.Op {
			case seqdiff.Equal:
				cur, _ := olds[i].Attr(marksAttr)
				if cur != news[j].marks {
					next := news[j].marks
					if next == "" {
						next = attrNull
					}
					tx.SetAttr(olds[i], marksAttr, next)
				}
				anchor = olds[i]
				i++
				j++
			case seqdiff.Delete:
				tx.Delete(olds[i])
				i++
			case seqdiff.Insert:
				anchor = tx.Insert(parent, anchor, KindChar, "", news[j].value, charAttrs(news[j]))
				j++
			}
		}
	}
	return anchor
}

func charAttrs(c char) map[string]string {
	if c.marks == "" {
		return nil
	}
	return map[string]string{marksAttr: c.marks}
}

func (tx *Txn) insertUnit(parent, after *Item, u unit) (*Item, error) {
	if u.isText() {
		container := tx.Insert(parent, after, KindText, "", "", nil)
		var last *Item
		for _, c := range charsOf(u.runs) {
			last = tx.Insert(container, last, KindChar, "", c.value, charAttrs(c))
		}
		return container, nil
	}

	attrs, err := encodeAttrs(u.node.Attrs)
	if err != nil {
		return nil, err
	}
	el := tx.Insert(parent, after, KindElement, u.node.Type, "", attrs)
	var last *Item
	for _, child := range unitsOf(u.node.Content) {
		if last, err = tx.insertUnit(el, last, child); err != nil {
			return nil, err
		}
	}
	return el, nil
}
