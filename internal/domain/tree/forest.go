// Package tree builds subject-category forests and aggregates them bottom-up
// into export documents.
package tree

import (
	"fmt"
	"sort"

	"github.com/okian/shelfrank/internal/domain/model"
)

// Row is one node as loaded from storage.
type Row struct {
	Entity    model.Entity
	WorkCount int64 // direct memberships
}

type node struct {
	row      Row
	parent   int // -1 for roots
	depth    int
	children []int
}

// Forest is an arena of nodes plus a parent index. It is rebuilt wholesale
// from storage and never mutated afterwards, so concurrent reads are safe.
type Forest struct {
	nodes []node
	byID  map[string]int
	roots map[string]int // by UID

	orphans     []string
	unreachable int
}

// Build links rows into a forest. Rows without a parent become roots. A row
// whose parent is missing is an orphan; it and its subtree are left out, as
// are nodes on a parent cycle.
func Build(rows []Row) *Forest {
	f := &Forest{
		nodes: make([]node, len(rows)),
		byID:  make(map[string]int, len(rows)),
		roots: make(map[string]int),
	}
	for i, r := range rows {
		f.nodes[i] = node{row: r, parent: -1}
		f.byID[r.Entity.ID] = i
	}

	var queue []int
	for i := range f.nodes {
		pid := f.nodes[i].row.Entity.ParentID
		if pid == "" {
			queue = append(queue, i)
			continue
		}
		p, ok := f.byID[pid]
		if !ok {
			f.orphans = append(f.orphans, f.nodes[i].row.Entity.ID)
			continue
		}
		f.nodes[i].parent = p
		f.nodes[p].children = append(f.nodes[p].children, i)
	}
	for i := range f.nodes {
		sort.SliceStable(f.nodes[i].children, f.byName(f.nodes[i].children))
	}
	sort.SliceStable(queue, f.byName(queue))
	sort.Strings(f.orphans)

	// Top-down pass; anything not reached from a root is detached.
	reached := make([]bool, len(f.nodes))
	for _, r := range queue {
		f.roots[f.nodes[r].row.Entity.UID] = r
		reached[r] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range f.nodes[cur].children {
			if reached[c] {
				continue
			}
			reached[c] = true
			f.nodes[c].depth = f.nodes[cur].depth + 1
			queue = append(queue, c)
		}
	}
	for i := range reached {
		if !reached[i] {
			f.unreachable++
		}
	}
	return f
}

func (f *Forest) byName(idx []int) func(a, b int) bool {
	return func(a, b int) bool {
		ea, eb := f.nodes[idx[a]].row.Entity, f.nodes[idx[b]].row.Entity
		if ea.Name != eb.Name {
			return ea.Name < eb.Name
		}
		return ea.ID < eb.ID
	}
}

// Len returns the number of loaded nodes, reachable or not.
func (f *Forest) Len() int {
	return len(f.nodes)
}

// Orphans returns the ids of nodes whose parent is not in the forest.
func (f *Forest) Orphans() []string {
	return append([]string(nil), f.orphans...)
}

// Unreachable counts nodes left out of every tree: orphans, their
// descendants and parent cycles.
func (f *Forest) Unreachable() int {
	return f.unreachable
}

// Roots returns root UIDs in name order.
func (f *Forest) Roots() []string {
	idx := make([]int, 0, len(f.roots))
	for _, i := range f.roots {
		idx = append(idx, i)
	}
	sort.SliceStable(idx, f.byName(idx))
	uids := make([]string, len(idx))
	for i, n := range idx {
		uids[i] = f.nodes[n].row.Entity.UID
	}
	return uids
}

// Root returns the root entity with the given UID.
func (f *Forest) Root(uid string) (model.Entity, error) {
	i, ok := f.roots[uid]
	if !ok {
		return model.Entity{}, fmt.Errorf("%w: %s", ErrRootNotFound, uid)
	}
	return f.nodes[i].row.Entity, nil
}

// Descendants returns every node under the root, root excluded, breadth
// first. Siblings are ordered by name, so nodes of one depth stay grouped by
// parent.
func (f *Forest) Descendants(uid string) ([]model.Entity, error) {
	order, err := f.subtree(uid, nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.Entity, 0, len(order)-1)
	for _, i := range order[1:] {
		out = append(out, f.nodes[i].row.Entity)
	}
	return out, nil
}

// subtree lists arena indexes under a root breadth first, each node's
// children ordered by name. Nodes for which skip returns true are left out
// with their subtrees; the root is never skipped.
func (f *Forest) subtree(uid string, skip Predicate) ([]int, error) {
	r, ok := f.roots[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, uid)
	}
	order := []int{r}
	for next := 0; next < len(order); next++ {
		for _, c := range f.nodes[order[next]].children {
			if skip != nil && skip(f.nodes[c].row.Entity) {
				continue
			}
			order = append(order, c)
		}
	}
	return order, nil
}
