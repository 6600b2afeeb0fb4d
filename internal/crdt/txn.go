package crdt

// Txn collects the operations of one local edit. Every operation is applied as
// soon as it is created so later operations see its effect.
type Txn struct {
	doc *Doc
	ops []Op
}

// Transact runs fn as a single edit and records it as one update, which it
// returns. A transaction that changes nothing returns a nil update. When fn
// fails the operations it already applied stay in memory and the Doc must be
// discarded.
func (d *Doc) Transact(fn func(tx *Txn) error) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := &Txn{doc: d}
	if err := fn(tx); err != nil {
		return nil, err
	}
	if len(tx.ops) == 0 {
		return nil, nil
	}
	update := EncodeUpdate(tx.ops)
	d.log = append(d.log, update)
	return update, nil
}

// Ops returns the operations recorded so far.
func (tx *Txn) Ops() []Op {
	return tx.ops
}

func (tx *Txn) apply(op Op) {
	tx.doc.integrate(op)
	tx.ops = append(tx.ops, op)
}

// Insert adds a new item under parent directly after the live item after, or
// first when after is nil.
func (tx *Txn) Insert(parent, after *Item, kind ItemKind, name, value string, attrs map[string]string) *Item {
	op := Op{
		Kind:     OpInsert,
		ID:       tx.doc.nextID(),
		Parent:   parent.ID,
		Root:     parent.root,
		Pos:      tx.positionAfter(parent, after),
		ItemKind: kind,
		Name:     name,
		Value:    value,
		Attrs:    attrs,
	}
	tx.apply(op)
	return tx.doc.items[op.ID]
}

// Delete tombstones an item and, with it, its subtree.
func (tx *Txn) Delete(it *Item) {
	if it.Deleted {
		return
	}
	tx.apply(Op{Kind: OpDelete, ID: tx.doc.nextID(), Target: it.ID})
}

// SetAttr assigns a JSON-encoded attribute value; attrNull removes it.
func (tx *Txn) SetAttr(it *Item, key, value string) {
	tx.apply(Op{Kind: OpSetAttr, ID: tx.doc.nextID(), Target: it.ID, Key: key, Value: value})
}

func (tx *Txn) positionAfter(parent, after *Item) Identifier {
	var left Identifier
	start := 0
	if after != nil {
		left = after.Pos
		start = parent.indexOf(after) + 1
	}
	for _, sibling := range parent.children[start:] {
		if sibling.Pos.Compare(left) > 0 {
			return tx.doc.generator.Generate(left, sibling.Pos, true)
		}
	}
	return tx.doc.generator.Generate(left, Identifier{}, false)
}
