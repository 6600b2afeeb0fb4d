package crdt

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// OpKind enumerates the operations an update can carry.
type OpKind uint8

const (
	OpInsert OpKind = iota + 1
	OpDelete
	OpSetAttr
)

// Op is a single replicated operation. ID is the inserted item's ID for
// inserts and the operation stamp otherwise.
type Op struct {
	Kind     OpKind
	ID       ID
	Parent   ID
	Root     string
	Pos      Identifier
	ItemKind ItemKind
	Name     string
	Value    string
	Attrs    map[string]string
	Target   ID
	Key      string
}

// Field numbers of the wire format.
const (
	fieldStateUpdate protowire.Number = 1
	fieldUpdateOp    protowire.Number = 1

	fieldOpKind         protowire.Number = 1
	fieldOpClient       protowire.Number = 2
	fieldOpClock        protowire.Number = 3
	fieldOpParentClient protowire.Number = 4
	fieldOpParentClock  protowire.Number = 5
	fieldOpRoot         protowire.Number = 6
	fieldOpPath         protowire.Number = 7
	fieldOpPosClient    protowire.Number = 8
	fieldOpItemKind     protowire.Number = 9
	fieldOpName         protowire.Number = 10
	fieldOpValue        protowire.Number = 11
	fieldOpAttr         protowire.Number = 12
	fieldOpTargetClient protowire.Number = 13
	fieldOpTargetClock  protowire.Number = 14
	fieldOpKey          protowire.Number = 15
	fieldOpPosSites     protowire.Number = 16

	fieldAttrKey   protowire.Number = 1
	fieldAttrValue protowire.Number = 2
)

// EncodeUpdate serializes one transaction.
func EncodeUpdate(ops []Op) []byte {
	var b []byte
	for _, op := range ops {
		b = protowire.AppendTag(b, fieldUpdateOp, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeOp(op))
	}
	return b
}

// DecodeUpdate parses one transaction.
func DecodeUpdate(raw []byte) ([]Op, error) {
	var ops []Op
	err := walkFields(raw, func(num protowire.Number, _ uint64, v []byte) error {
		if num != fieldUpdateOp {
			return nil
		}
		op, err := decodeOp(v)
		if err != nil {
			return err
		}
		ops = append(ops, op)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	return ops, nil
}

func encodeOp(op Op) []byte {
	var b []byte
	b = appendVarint(b, fieldOpKind, uint64(op.Kind))
	b = appendVarint(b, fieldOpClient, op.ID.Client)
	b = appendVarint(b, fieldOpClock, op.ID.Clock)

	switch op.Kind {
	case OpInsert:
		if op.Parent.IsZero() {
			b = appendString(b, fieldOpRoot, op.Root)
		} else {
			b = appendVarint(b, fieldOpParentClient, op.Parent.Client)
			b = appendVarint(b, fieldOpParentClock, op.Parent.Clock)
		}
		var path []byte
		for _, d := range op.Pos.Path {
			path = protowire.AppendVarint(path, uint64(d))
		}
		b = protowire.AppendTag(b, fieldOpPath, protowire.BytesType)
		b = protowire.AppendBytes(b, path)
		b = appendVarint(b, fieldOpPosClient, op.Pos.Client)
		if len(op.Pos.Sites) > 0 {
			var sites []byte
			for _, site := range op.Pos.Sites {
				sites = protowire.AppendVarint(sites, site)
			}
			b = protowire.AppendTag(b, fieldOpPosSites, protowire.BytesType)
			b = protowire.AppendBytes(b, sites)
		}
		b = appendVarint(b, fieldOpItemKind, uint64(op.ItemKind))
		if op.Name != "" {
			b = appendString(b, fieldOpName, op.Name)
		}
		if op.Value != "" {
			b = appendString(b, fieldOpValue, op.Value)
		}
		keys := make([]string, 0, len(op.Attrs))
		for k := range op.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			var attr []byte
			attr = appendString(attr, fieldAttrKey, k)
			attr = appendString(attr, fieldAttrValue, op.Attrs[k])
			b = protowire.AppendTag(b, fieldOpAttr, protowire.BytesType)
			b = protowire.AppendBytes(b, attr)
		}
	case OpDelete:
		b = appendVarint(b, fieldOpTargetClient, op.Target.Client)
		b = appendVarint(b, fieldOpTargetClock, op.Target.Clock)
	case OpSetAttr:
		b = appendVarint(b, fieldOpTargetClient, op.Target.Client)
		b = appendVarint(b, fieldOpTargetClock, op.Target.Clock)
		b = appendString(b, fieldOpKey, op.Key)
		b = appendString(b, fieldOpValue, op.Value)
	}
	return b
}

func decodeOp(raw []byte) (Op, error) {
	var op Op
	err := walkFields(raw, func(num protowire.Number, n uint64, v []byte) error {
		switch num {
		case fieldOpKind:
			op.Kind = OpKind(n)
		case fieldOpClient:
			op.ID.Client = n
		case fieldOpClock:
			op.ID.Clock = n
		case fieldOpParentClient:
			op.Parent.Client = n
		case fieldOpParentClock:
			op.Parent.Clock = n
		case fieldOpRoot:
			op.Root = string(v)
		case fieldOpPath:
			for len(v) > 0 {
				d, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return protowire.ParseError(m)
				}
				op.Pos.Path = append(op.Pos.Path, uint32(d))
				v = v[m:]
			}
		case fieldOpPosClient:
			op.Pos.Client = n
		case fieldOpPosSites:
			for len(v) > 0 {
				site, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return protowire.ParseError(m)
				}
				op.Pos.Sites = append(op.Pos.Sites, site)
				v = v[m:]
			}
		case fieldOpItemKind:
			op.ItemKind = ItemKind(n)
		case fieldOpName:
			op.Name = string(v)
		case fieldOpValue:
			op.Value = string(v)
		case fieldOpAttr:
			var key, value string
			err := walkFields(v, func(num protowire.Number, _ uint64, v []byte) error {
				switch num {
				case fieldAttrKey:
					key = string(v)
				case fieldAttrValue:
					value = string(v)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if op.Attrs == nil {
				op.Attrs = make(map[string]string)
			}
			op.Attrs[key] = value
		case fieldOpTargetClient:
			op.Target.Client = n
		case fieldOpTargetClock:
			op.Target.Clock = n
		case fieldOpKey:
			op.Key = string(v)
		}
		return nil
	})
	if err != nil {
		return Op{}, err
	}
	if op.Kind < OpInsert || op.Kind > OpSetAttr {
		return Op{}, fmt.Errorf("unknown op kind %d", op.Kind)
	}
	if op.ID.IsZero() {
		return Op{}, fmt.Errorf("op without id")
	}
	return op, nil
}

// walkFields visits every field of a message. Varint fields arrive in n,
// length-delimited fields in v; other wire types are skipped.
func walkFields(b []byte, fn func(num protowire.Number, n uint64, v []byte) error) error {
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]

		switch typ {
		case protowire.VarintType:
			n, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
			if err := fn(num, n, nil); err != nil {
				return err
			}
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
			if err := fn(num, 0, v); err != nil {
				return err
			}
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// splitState returns the raw updates of an encoded state.
func splitState(state []byte) ([][]byte, error) {
	var updates [][]byte
	err := walkFields(state, func(num protowire.Number, _ uint64, v []byte) error {
		if num == fieldStateUpdate {
			updates = append(updates, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	return updates, nil
}

func appendStateUpdate(state, update []byte) []byte {
	state = protowire.AppendTag(state, fieldStateUpdate, protowire.BytesType)
	return protowire.AppendBytes(state, update)
}
