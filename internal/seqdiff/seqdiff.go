// Package seqdiff aligns two token sequences and returns a run-length edit
// script. It is shared by the HTML diff engine and CRDT reconciliation.
package seqdiff

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op is the kind of an edit run.
type Op int

const (
	Equal Op = iota
	Delete
	Insert
)

func (o Op) String() string {
	switch o {
	case Delete:
		return "delete"
	case Insert:
		return "insert"
	default:
		return "equal"
	}
}

// Edit is a run of Count tokens. Equal runs consume both sequences, Delete
// runs consume a, Insert runs consume b.
type Edit struct {
	Op    Op
	Count int
}

// surrogateStart is the first code point that cannot appear in a Go string.
const (
	surrogateStart = 0xD800
	surrogateSpan  = 0x800
)

// Strings computes an edit script turning a into b. Tokens are compared by
// value.
func Strings(a, b []string) []Edit {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	alphabet := make(map[string]rune, len(a)+len(b))
	ra := encode(a, alphabet)
	rb := encode(b, alphabet)

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(ra, rb, false)

	edits := make([]Edit, 0, len(diffs))
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		if n == 0 {
			continue
		}
		var op Op
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = Delete
		case diffmatchpatch.DiffInsert:
			op = Insert
		default:
			op = Equal
		}
		if last := len(edits) - 1; last >= 0 && edits[last].Op == op {
			edits[last].Count += n
			continue
		}
		edits = append(edits, Edit{Op: op, Count: n})
	}
	return edits
}

// encode maps each distinct token to one rune, skipping the surrogate range.
func encode(tokens []string, alphabet map[string]rune) []rune {
	out := make([]rune, len(tokens))
	for i, tok := range tokens {
		r, ok := alphabet[tok]
		if !ok {
			r = rune(len(alphabet) + 1)
			if r >= surrogateStart {
				r += surrogateSpan
			}
			alphabet[tok] = r
		}
		out[i] = r
	}
	return out
}

// Hunk is a contiguous region of the edit script in sequence coordinates.
// Equal hunks have matching lengths; change hunks hold the deleted range of a
// and the inserted range of b together.
type Hunk struct {
	Equal        bool
	AStart, AEnd int
	BStart, BEnd int
}

// Hunks groups an edit script into alternating equal and change regions.
func Hunks(edits []Edit) []Hunk {
	var out []Hunk
	i, j := 0, 0
	for _, e := range edits {
		switch e.Op {
		case Equal:
			out = append(out, Hunk{Equal: true, AStart: i, AEnd: i + e.Count, BStart: j, BEnd: j + e.Count})
			i += e.Count
			j += e.Count
			continue
		case Delete:
			i += e.Count
		case Insert:
			j += e.Count
		}
		if last := len(out) - 1; last >= 0 && !out[last].Equal {
			out[last].AEnd = i
			out[last].BEnd = j
			continue
		}
		start := Hunk{AEnd: i, BEnd: j}
		if e.Op == Delete {
			start.AStart, start.BStart = i-e.Count, j
		} else {
			start.AStart, start.BStart = i, j-e.Count
		}
		out = append(out, start)
	}
	return out
}
