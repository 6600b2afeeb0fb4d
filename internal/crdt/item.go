package crdt

import (
	"fmt"
	"sort"
)

// ID identifies an item or operation: the issuing client and its Lamport
// clock at the time.
type ID struct {
	Client uint64
	Clock  uint64
}

// IsZero reports whether id is unset.
func (id ID) IsZero() bool {
	return id.Client == 0 && id.Clock == 0
}

// Compare orders IDs by clock, then client.
func (id ID) Compare(other ID) int {
	switch {
	case id.Clock < other.Clock:
		return -1
	case id.Clock > other.Clock:
		return 1
	case id.Client < other.Client:
		return -1
	case id.Client > other.Client:
		return 1
	default:
		return 0
	}
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Client, id.Clock)
}

// ItemKind distinguishes the three item shapes of the tree.
type ItemKind uint8

const (
	kindFragment ItemKind = iota
	// KindElement is a named node with attributes and children.
	KindElement
	// KindText holds a run of characters.
	KindText
	// KindChar is a single character inside a text item.
	KindChar
)

func (k ItemKind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindText:
		return "text"
	case KindChar:
		return "char"
	default:
		return "fragment"
	}
}

// attrNull is the encoded value of a removed attribute.
const attrNull = "null"

// register is a last-writer-wins attribute value.
type register struct {
	value string
	stamp ID
}

// Item is one node of the replicated tree. Deleted items stay in place as
// tombstones so that concurrent inserts next to them keep their order.
type Item struct {
	ID      ID
	Pos     Identifier
	Kind    ItemKind
	Name    string
	Value   string
	Deleted bool

	parent   *Item
	root     string
	attrs    map[string]register
	children []*Item
}

// Children returns the live children in order.
func (it *Item) Children() []*Item {
	out := make([]*Item, 0, len(it.children))
	for _, c := range it.children {
		if !c.Deleted {
			out = append(out, c)
		}
	}
	return out
}

// Attr returns the JSON-encoded value of an attribute.
func (it *Item) Attr(key string) (string, bool) {
	reg, ok := it.attrs[key]
	if !ok || reg.value == attrNull {
		return "", false
	}
	return reg.value, true
}

// AttrKeys returns the set attribute names in sorted order.
func (it *Item) AttrKeys() []string {
	keys := make([]string, 0, len(it.attrs))
	for k, reg := range it.attrs {
		if reg.value != attrNull {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (it *Item) setAttr(key, value string, stamp ID) bool {
	if it.attrs == nil {
		it.attrs = make(map[string]register)
	}
	if cur, ok := it.attrs[key]; ok && cur.stamp.Compare(stamp) >= 0 {
		return false
	}
	it.attrs[key] = register{value: value, stamp: stamp}
	return true
}

func itemLess(a, b *Item) bool {
	if c := a.Pos.Compare(b.Pos); c != 0 {
		return c < 0
	}
	return a.ID.Compare(b.ID) < 0
}

func (it *Item) insertChild(child *Item) {
	idx := sort.Search(len(it.children), func(i int) bool {
		return !itemLess(it.children[i], child)
	})
	it.children = append(it.children, nil)
	copy(it.children[idx+1:], it.children[idx:])
	it.children[idx] = child
	child.parent = it
}

func (it *Item) indexOf(child *Item) int {
	for i, c := range it.children {
		if c == child {
			return i
		}
	}
	return -1
}
