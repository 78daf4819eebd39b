package psb

import (
	"bytes"

	"github.com/zeebo/blake3"
)

type dedupKey struct {
	Sum  [32]byte
	Size int
}

// resourceDeduper finds resources whose chunk bytes were already seen.
//
// Candidates are keyed by BLAKE3 digest and size; a match is confirmed by
// comparing the bytes, so a digest collision never merges two chunks.
type resourceDeduper struct {
	seen map[dedupKey][]*Resource
}

func newResourceDeduper() *resourceDeduper {
	return &resourceDeduper{seen: make(map[dedupKey][]*Resource)}
}

func (d *resourceDeduper) key(data []byte) dedupKey {
	return dedupKey{Sum: blake3.Sum256(data), Size: len(data)}
}

// FindMatch returns an earlier resource with the same bytes as data.
func (d *resourceDeduper) FindMatch(data []byte) (*Resource, bool) {
	for _, r := range d.seen[d.key(data)] {
		if bytes.Equal(r.Data, data) {
			return r, true
		}
	}
	return nil, false
}

// Add records r as a match candidate.
func (d *resourceDeduper) Add(r *Resource) {
	k := d.key(r.Data)
	d.seen[k] = append(d.seen[k], r)
}
