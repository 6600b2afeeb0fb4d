package crdt

import (
	"math/rand"
	"time"
)

// Identifier is the dense position of an item among its siblings. Each digit
// of Path is paired with the client that allocated it: Sites holds the clients
// of all digits but the last, which belongs to Client. Identifiers compare
// level by level on (digit, client), and a prefix sorts first.
type Identifier struct {
	Path   []uint32
	Sites  []uint64
	Client uint64
}

// level is one (digit, client) pair of an identifier.
type level struct {
	digit uint32
	site  uint64
}

func (l level) compare(other level) int {
	switch {
	case l.digit < other.digit:
		return -1
	case l.digit > other.digit:
		return 1
	case l.site < other.site:
		return -1
	case l.site > other.site:
		return 1
	default:
		return 0
	}
}

func (id Identifier) at(depth int) level {
	site := id.Client
	if depth < len(id.Path)-1 {
		site = 0
		if depth < len(id.Sites) {
			site = id.Sites[depth]
		}
	}
	return level{digit: id.Path[depth], site: site}
}

// Compare returns -1 if id comes before other, 1 if after, and 0 if equal.
func (id Identifier) Compare(other Identifier) int {
	n := min(len(id.Path), len(other.Path))
	for i := 0; i < n; i++ {
		if c := id.at(i).compare(other.at(i)); c != 0 {
			return c
		}
	}
	switch {
	case len(id.Path) < len(other.Path):
		return -1
	case len(id.Path) > len(other.Path):
		return 1
	default:
		return 0
	}
}

// IdentifierGenerator creates sortable identifiers between two neighbours.
type IdentifierGenerator struct {
	base     uint32
	boundary uint32
	client   uint64
	rng      *rand.Rand
}

// NewIdentifierGenerator initializes a generator for the given client.
// The base controls the branching factor of the identifier tree and the
// boundary caps how far from the left neighbour a new digit lands, which keeps
// room for sequential appends.
func NewIdentifierGenerator(client uint64) *IdentifierGenerator {
	return &IdentifierGenerator{
		base:     1 << 15,
		boundary: 16,
		client:   client,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate produces an identifier that sorts strictly after left and, when
// bounded, strictly before right. left must sort before right. A zero left
// means the start of the sequence.
func (g *IdentifierGenerator) Generate(left, right Identifier, bounded bool) Identifier {
	path := make([]uint32, 0, len(left.Path)+1)
	var sites []uint64
	for depth := 0; ; depth++ {
		lo := level{}
		if depth < len(left.Path) {
			lo = left.at(depth)
		}
		hi := level{digit: g.base}
		if bounded {
			if depth >= len(right.Path) {
				// right is a prefix of left; only reachable with unordered input.
				bounded = false
			} else {
				hi = right.at(depth)
			}
		}

		if hi.digit > lo.digit+1 {
			step := min(hi.digit-lo.digit-1, g.boundary)
			return Identifier{
				Path:   append(path, lo.digit+1+uint32(g.rng.Int63n(int64(step)))),
				Sites:  sites,
				Client: g.client,
			}
		}

		path = append(path, lo.digit)
		sites = append(sites, lo.site)
		if lo.compare(hi) != 0 {
			bounded = false
		}
	}
}
