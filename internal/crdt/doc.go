// Package crdt implements the replicated document behind collaborative
// editing: a tree of items ordered by dense identifiers, tombstoned deletes,
// last-writer-wins attributes, and an append-only log of updates.
package crdt

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// DefaultFragment is the fragment that mirrors the document content.
const DefaultFragment = "default"

// Doc is a replicated document. A Doc is built from persisted state, edited
// and encoded within one call; it is not shared between goroutines that edit
// concurrently, though its methods are safe to call from several.
type Doc struct {
	mu        sync.Mutex
	client    uint64
	clock     uint64
	generator *IdentifierGenerator
	items     map[ID]*Item
	roots     map[string]*Item
	pending   []Op
	log       [][]byte
}

// Option configures a Doc.
type Option func(*Doc)

// WithClientID fixes the client ID used for local operations.
func WithClientID(client uint64) Option {
	return func(d *Doc) {
		d.client = client
	}
}

// NewDoc returns an empty document.
func NewDoc(opts ...Option) *Doc {
	d := &Doc{
		items: make(map[ID]*Item),
		roots: make(map[string]*Item),
	}
	for _, opt := range opts {
		opt(d)
	}
	for d.client == 0 {
		d.client = rand.Uint64()
	}
	d.generator = NewIdentifierGenerator(d.client)
	return d
}

// Decode rebuilds a document from encoded state.
func Decode(state []byte, opts ...Option) (*Doc, error) {
	updates, err := splitState(state)
	if err != nil {
		return nil, err
	}
	d := NewDoc(opts...)
	for i, update := range updates {
		if err := d.ApplyUpdate(update); err != nil {
			return nil, fmt.Errorf("apply update %d: %w", i, err)
		}
	}
	return d, nil
}

// ClientID returns the client ID used for local operations.
func (d *Doc) ClientID() uint64 {
	return d.client
}

// Encode returns the full state: every update applied so far, in order.
func (d *Doc) Encode() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	var state []byte
	for _, update := range d.log {
		state = appendStateUpdate(state, update)
	}
	return state
}

// ApplyUpdate integrates an update produced by this or another replica.
// Applying the same update twice has no further effect.
func (d *Doc) ApplyUpdate(update []byte) error {
	ops, err := DecodeUpdate(update)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	changed := false
	for _, op := range ops {
		ready, applied := d.integrate(op)
		if !ready {
			d.pending = append(d.pending, op)
			changed = true
			continue
		}
		changed = changed || applied
	}
	d.drainPending()

	if changed {
		d.log = append(d.log, append([]byte(nil), update...))
	}
	return nil
}

// Validate reports operations that still wait for an item that never arrived.
func (d *Doc) Validate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := len(d.pending); n > 0 {
		return fmt.Errorf("%w: %d operations reference unknown items", ErrInvariantViolation, n)
	}
	return nil
}

// Fragment returns the named top-level fragment, creating it when absent.
func (d *Doc) Fragment(name string) *Fragment {
	d.mu.Lock()
	defer d.mu.Unlock()

	return &Fragment{doc: d, root: d.root(name)}
}

// Item returns the item with the given ID.
func (d *Doc) Item(id ID) (*Item, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	it, ok := d.items[id]
	return it, ok
}

func (d *Doc) root(name string) *Item {
	r, ok := d.roots[name]
	if !ok {
		r = &Item{Kind: kindFragment, root: name}
		d.roots[name] = r
	}
	return r
}

func (d *Doc) nextID() ID {
	d.clock++
	return ID{Client: d.client, Clock: d.clock}
}

func (d *Doc) observe(id ID) {
	if id.Clock > d.clock {
		d.clock = id.Clock
	}
}

// integrate applies op. ready is false when op references an item that is not
// known yet; applied is false when op was already reflected in the document.
func (d *Doc) integrate(op Op) (ready, applied bool) {
	switch op.Kind {
	case OpInsert:
		if _, ok := d.items[op.ID]; ok {
			return true, false
		}
		parent := d.container(op.Parent, op.Root)
		if parent == nil {
			return false, false
		}
		it := &Item{
			ID:    op.ID,
			Pos:   op.Pos,
			Kind:  op.ItemKind,
			Name:  op.Name,
			Value: op.Value,
		}
		for k, v := range op.Attrs {
			it.setAttr(k, v, op.ID)
		}
		parent.insertChild(it)
		d.items[op.ID] = it
		d.observe(op.ID)
		return true, true
	case OpDelete:
		target, ok := d.items[op.Target]
		if !ok {
			return false, false
		}
		d.observe(op.ID)
		if target.Deleted {
			return true, false
		}
		target.Deleted = true
		return true, true
	case OpSetAttr:
		target, ok := d.items[op.Target]
		if !ok {
			return false, false
		}
		d.observe(op.ID)
		return true, target.setAttr(op.Key, op.Value, op.ID)
	default:
		return true, false
	}
}

func (d *Doc) container(parent ID, root string) *Item {
	if parent.IsZero() {
		return d.root(root)
	}
	it, ok := d.items[parent]
	if !ok || it.Kind == KindChar {
		return nil
	}
	return it
}

func (d *Doc) drainPending() {
	for progress := true; progress && len(d.pending) > 0; {
		progress = false
		remaining := d.pending[:0]
		for _, op := range d.pending {
			if ready, _ := d.integrate(op); ready {
				progress = true
				continue
			}
			remaining = append(remaining, op)
		}
		d.pending = remaining
	}
}

// Fragment is a named top-level container of a document.
type Fragment struct {
	doc  *Doc
	root *Item
}

// Doc returns the document backing the fragment.
func (f *Fragment) Doc() *Doc {
	if f == nil {
		return nil
	}
	return f.doc
}

// Name returns the fragment name.
func (f *Fragment) Name() string {
	return f.root.root
}

// Children returns the live top-level items.
func (f *Fragment) Children() []*Item {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()

	return f.root.Children()
}
