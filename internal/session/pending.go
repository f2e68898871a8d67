package session

import (
	"sort"

	"trackdb/internal/dbo"
)

// pendingSet is the pending-flush set. Add, remove and contains are O(1);
// ordered returns members in the order they were first added.
type pendingSet struct {
	seq   uint64
	items map[*dbo.Object]uint64
}

func newPendingSet() *pendingSet {
	return &pendingSet{items: make(map[*dbo.Object]uint64)}
}

func (p *pendingSet) add(o *dbo.Object) bool {
	if _, ok := p.items[o]; ok {
		return false
	}
	p.seq++
	p.items[o] = p.seq
	return true
}

func (p *pendingSet) remove(o *dbo.Object) bool {
	if _, ok := p.items[o]; !ok {
		return false
	}
	delete(p.items, o)
	return true
}

func (p *pendingSet) contains(o *dbo.Object) bool {
	_, ok := p.items[o]
	return ok
}

func (p *pendingSet) len() int {
	return len(p.items)
}

func (p *pendingSet) ordered() []*dbo.Object {
	out := make([]*dbo.Object, 0, len(p.items))
	for o := range p.items {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return p.items[out[i]] < p.items[out[j]]
	})
	return out
}
