package psb

import (
	"fmt"
	"slices"
	"unicode/utf8"
)

// nameTable is the on-disk form of the key name table: a double-array trie.
//
// delta[p] is the base of node p: a child reached by byte c sits at slot
// delta[p]+c. link[s] is the parent of slot s, with 0 being the root.
// root[i] is the terminator slot of the i-th name; its link is the node of
// the name's last byte.
type nameTable struct {
	delta Array
	link  Array
	root  Array
}

// decodeNames expands every name in the table. Bytes are produced from the
// end of a name toward its start and reversed before UTF-8 decoding.
func (t *nameTable) decodeNames() ([]string, error) {
	names := make([]string, len(t.root))
	buf := make([]byte, 0, 64)
	for i, term := range t.root {
		buf = buf[:0]
		node, err := t.link.at(term, "name link")
		if err != nil {
			return nil, fmt.Errorf("%w: name %d: %v", ErrFormat, i, err)
		}
		for steps := 0; node != 0; steps++ {
			if steps > len(t.link) {
				return nil, fmt.Errorf("%w: name %d: cyclic trie link", ErrFormat, i)
			}
			parent, err := t.link.at(node, "name link")
			if err != nil {
				return nil, fmt.Errorf("%w: name %d: %v", ErrFormat, i, err)
			}
			delta, err := t.delta.at(parent, "name delta")
			if err != nil {
				return nil, fmt.Errorf("%w: name %d: %v", ErrFormat, i, err)
			}
			buf = append(buf, byte(node-delta))
			node = parent
		}
		slices.Reverse(buf)
		if !utf8.Valid(buf) {
			return nil, fmt.Errorf("%w: name %d is not valid UTF-8", ErrFormat, i)
		}
		names[i] = string(buf)
	}
	return names, nil
}

// trieNode is one byte position of the in-memory trie used while encoding.
type trieNode struct {
	children map[byte]*trieNode
	name     int // index of the name ending here, or -1
}

func newTrieNode() *trieNode {
	return &trieNode{name: -1}
}

// labels returns the outgoing edge bytes in ascending order; 0 stands for
// the terminator of a name ending at n.
func (n *trieNode) labels() []int {
	out := make([]int, 0, len(n.children)+1)
	if n.name >= 0 {
		out = append(out, 0)
	}
	for c := range n.children {
		out = append(out, int(c))
	}
	slices.Sort(out)
	return out
}

// buildNames compresses names, which must be sorted and distinct, into a
// double-array trie. Names sharing a prefix share its trie nodes.
func buildNames(names []string) (*nameTable, error) {
	root := newTrieNode()
	for i, name := range names {
		if i > 0 && names[i-1] >= name {
			return nil, fmt.Errorf("%w: name table not sorted and distinct at %q", ErrIndex, name)
		}
		if err := checkName(name); err != nil {
			return nil, err
		}
		n := root
		for j := 0; j < len(name); j++ {
			c := name[j]
			child, ok := n.children[c]
			if !ok {
				if n.children == nil {
					n.children = make(map[byte]*trieNode)
				}
				child = newTrieNode()
				n.children[c] = child
			}
			n = child
		}
		n.name = i
	}

	p := &triePlacer{used: []bool{true}}
	t := &nameTable{
		delta: Array{0},
		link:  Array{0},
		root:  make(Array, len(names)),
	}

	type item struct {
		node *trieNode
		slot uint64
	}
	queue := []item{{root, 0}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		labels := it.node.labels()
		if len(labels) == 0 {
			continue
		}
		base := p.place(labels)
		t.grow(base + uint64(labels[len(labels)-1]) + 1)
		t.delta[it.slot] = base
		for _, l := range labels {
			slot := base + uint64(l)
			t.link[slot] = it.slot
			if l == 0 {
				t.root[it.node.name] = slot
				continue
			}
			queue = append(queue, item{it.node.children[byte(l)], slot})
		}
	}
	return t, nil
}

func (t *nameTable) grow(n uint64) {
	for uint64(len(t.delta)) < n {
		t.delta = append(t.delta, 0)
		t.link = append(t.link, 0)
	}
}

// checkName rejects names the trie cannot represent: NUL is the terminator.
func checkName(name string) error {
	for i := 0; i < len(name); i++ {
		if name[i] == 0 {
			return fmt.Errorf("%w: name %q contains NUL", ErrIndex, name)
		}
	}
	return nil
}

// triePlacer tracks occupied slots of the double array.
type triePlacer struct {
	used      []bool
	firstFree int
}

// place finds the smallest base >= 1 whose slots base+l are all free for
// every label, and marks them used.
func (p *triePlacer) place(labels []int) uint64 {
	for p.firstFree < len(p.used) && p.used[p.firstFree] {
		p.firstFree++
	}
	base := max(1, p.firstFree-labels[0])
	for !p.fits(base, labels) {
		base++
	}
	for _, l := range labels {
		slot := base + l
		for len(p.used) <= slot {
			p.used = append(p.used, false)
		}
		p.used[slot] = true
	}
	return uint64(base)
}

func (p *triePlacer) fits(base int, labels []int) bool {
	for _, l := range labels {
		slot := base + l
		if slot < len(p.used) && p.used[slot] {
			return false
		}
	}
	return true
}

// nameIndex resolves key against the sorted name table.
func nameIndex(names []string, key string) (int, error) {
	i, ok := slices.BinarySearch(names, key)
	if !ok {
		return 0, fmt.Errorf("%w: name %q not in name table", ErrIndex, key)
	}
	return i, nil
}
