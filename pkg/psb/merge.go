package psb

import (
	"cmp"
	"maps"
	"slices"
)

// MergeOptions controls how Merge rebuilds the shared tables.
type MergeOptions struct {
	// DedupResources makes distinct resources with identical bytes share
	// one table entry.
	DedupResources bool
}

// Merge recomputes the name, string and resource tables from the current
// tree. It must be called after editing Objects and before Build.
func (d *Document) Merge() {
	d.MergeWithOptions(MergeOptions{})
}

// MergeWithOptions is Merge with explicit options.
func (d *Document) MergeWithOptions(opts MergeOptions) {
	c := &collector{
		names:   make(map[string]struct{}),
		seenStr: make(map[*Str]struct{}),
		seenRes: make(map[*Resource]struct{}),
	}
	if d.Objects != nil {
		c.collect(d.Objects)
	}

	d.Names = slices.Sorted(maps.Keys(c.names))
	d.Strings = reindexStrings(c.strings)
	d.Resources = reindexResources(c.resources, opts.DedupResources)
	d.expireSuffixList = nil
}

// collector gathers every distinct key, string and resource of a tree.
type collector struct {
	names     map[string]struct{}
	strings   []*Str
	seenStr   map[*Str]struct{}
	resources []*Resource
	seenRes   map[*Resource]struct{}
}

func (c *collector) collect(v Value) {
	switch x := v.(type) {
	case *Str:
		if _, ok := c.seenStr[x]; !ok {
			c.seenStr[x] = struct{}{}
			c.strings = append(c.strings, x)
		}
	case *Resource:
		if _, ok := c.seenRes[x]; !ok {
			c.seenRes[x] = struct{}{}
			c.resources = append(c.resources, x)
		}
	case *Collection:
		for _, e := range x.values {
			c.collect(e)
		}
	case *Dictionary:
		for _, k := range x.keys {
			c.names[k] = struct{}{}
			c.collect(x.values[k])
		}
	}
}

// byPriorIndex orders entries by their previous index; unindexed entries
// sort last. The sort is stable, so ties keep traversal order.
func byPriorIndex(ai uint32, aok bool, bi uint32, bok bool) int {
	switch {
	case aok && bok:
		return cmp.Compare(ai, bi)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return 0
	}
}

// reindexStrings assigns dense indices. Strings with equal text share the
// index of the first one; only that one enters the table.
func reindexStrings(strs []*Str) []*Str {
	slices.SortStableFunc(strs, func(a, b *Str) int {
		return byPriorIndex(a.index, a.indexed, b.index, b.indexed)
	})
	table := make([]*Str, 0, len(strs))
	byText := make(map[string]*Str, len(strs))
	for _, s := range strs {
		if first, ok := byText[s.Value]; ok {
			s.setIndex(first.index)
			continue
		}
		s.setIndex(uint32(len(table)))
		byText[s.Value] = s
		table = append(table, s)
	}
	return table
}

// reindexResources assigns dense indices, optionally sharing one entry
// between resources whose bytes are identical.
func reindexResources(res []*Resource, dedup bool) []*Resource {
	slices.SortStableFunc(res, func(a, b *Resource) int {
		return byPriorIndex(a.index, a.indexed, b.index, b.indexed)
	})
	table := make([]*Resource, 0, len(res))
	var dd *resourceDeduper
	if dedup {
		dd = newResourceDeduper()
	}
	for _, r := range res {
		if dd != nil {
			if first, ok := dd.FindMatch(r.Data); ok {
				r.setIndex(first.index)
				continue
			}
		}
		r.setIndex(uint32(len(table)))
		table = append(table, r)
		if dd != nil {
			dd.Add(r)
		}
	}
	return table
}
