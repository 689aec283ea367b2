// Package regionmap resolves values by closest enclosing region.
//
// A RegionMap is a tree rooted at the global region. Every node's region is enclosed by
// its parent's region, so resolving a region means walking down from the root into the
// child that encloses it until no child does. Nodes live in a flat arena and refer to
// each other by index, which keeps re-parenting on insert and erase a slice splice.
//
// A RegionMap is not safe for concurrent use; owners serialize access.
package regionmap

import (
	"iter"
	"slices"

	"github.com/coachpo/chronicle/internal/domain/region"
)

const (
	rootIndex = 0
	noParent  = -1
)

type node[T any] struct {
	region   region.Region
	value    T
	parent   int
	children []int
}

// RegionMap maps regions to values of type T.
type RegionMap[T any] struct {
	nodes []node[T]
	free  []int
	size  int
}

// New constructs a map holding only the global region bound to globalValue.
func New[T any](globalValue T) *RegionMap[T] {
	return NewNamed("Global", globalValue)
}

// NewNamed is New with an explicit name for the global region.
func NewNamed[T any](globalName string, globalValue T) *RegionMap[T] {
	m := new(RegionMap[T])
	m.nodes = []node[T]{{
		region: region.Global(globalName),
		value:  globalValue,
		parent: noParent,
	}}
	m.size = 1
	return m
}

// Len returns the number of regions in the map, including the global region.
func (m *RegionMap[T]) Len() int { return m.size }

// Get returns the value of the closest region enclosing r.
func (m *RegionMap[T]) Get(r region.Region) T {
	return m.nodes[m.find(r)].value
}

// Lookup returns the value stored for exactly r.
func (m *RegionMap[T]) Lookup(r region.Region) (T, bool) {
	if r.IsGlobal() {
		return m.nodes[rootIndex].value, true
	}
	idx, _ := m.locate(r)
	if idx == noParent {
		var zero T
		return zero, false
	}
	return m.nodes[idx].value, true
}

// Set binds r to value. Setting the global region overwrites the root value; any other
// region is inserted below the deepest region enclosing it, adopting existing siblings
// that it encloses.
func (m *RegionMap[T]) Set(r region.Region, value T) {
	if r.IsGlobal() {
		m.nodes[rootIndex].value = value
		return
	}
	parent := rootIndex
descend:
	for {
		for _, child := range m.nodes[parent].children {
			childRegion := m.nodes[child].region
			if childRegion.Equal(r) {
				m.nodes[child].value = value
				return
			}
			if childRegion.Encloses(r) {
				parent = child
				continue descend
			}
		}
		break
	}

	idx := m.alloc(node[T]{region: r, value: value, parent: parent})
	siblings := m.nodes[parent].children
	kept := make([]int, 0, len(siblings)+1)
	for _, child := range siblings {
		if r.Encloses(m.nodes[child].region) {
			m.nodes[child].parent = idx
			m.nodes[idx].children = append(m.nodes[idx].children, child)
			continue
		}
		kept = append(kept, child)
	}
	m.nodes[parent].children = append(kept, idx)
}

// Erase removes exactly r, handing its children to its parent in its place. Erasing the
// global region or a region that is not present does nothing.
func (m *RegionMap[T]) Erase(r region.Region) {
	if r.IsGlobal() {
		return
	}
	idx, parent := m.locate(r)
	if idx == noParent {
		return
	}
	siblings := m.nodes[parent].children
	pos := slices.Index(siblings, idx)
	orphans := m.nodes[idx].children
	for _, child := range orphans {
		m.nodes[child].parent = parent
	}
	m.nodes[parent].children = slices.Concat(siblings[:pos], orphans, siblings[pos+1:])
	m.release(idx)
}

// Find positions an iterator at the closest region enclosing r. The global region is
// returned when nothing narrower encloses r.
func (m *RegionMap[T]) Find(r region.Region) *Iterator[T] {
	return &Iterator[T]{m: m, queue: []int{m.find(r)}}
}

// Begin positions an iterator at the global region.
func (m *RegionMap[T]) Begin() *Iterator[T] {
	return &Iterator[T]{m: m, queue: []int{rootIndex}}
}

// All yields every (region, value) pair breadth-first starting at the global region.
func (m *RegionMap[T]) All() iter.Seq2[region.Region, T] {
	return func(yield func(region.Region, T) bool) {
		for it := m.Begin(); !it.Done(); it.Next() {
			if !yield(it.Region(), it.Value()) {
				return
			}
		}
	}
}

// Clone returns a deep copy of the tree. Values are copied by assignment.
func (m *RegionMap[T]) Clone() *RegionMap[T] {
	out := &RegionMap[T]{
		nodes: make([]node[T], len(m.nodes)),
		free:  slices.Clone(m.free),
		size:  m.size,
	}
	for i, n := range m.nodes {
		n.children = slices.Clone(n.children)
		out.nodes[i] = n
	}
	return out
}

func (m *RegionMap[T]) find(r region.Region) int {
	current := rootIndex
descend:
	for {
		for _, child := range m.nodes[current].children {
			if m.nodes[child].region.Encloses(r) {
				current = child
				continue descend
			}
		}
		return current
	}
}

// locate returns the index of the node holding exactly r and its parent, or noParent.
func (m *RegionMap[T]) locate(r region.Region) (int, int) {
	current := rootIndex
descend:
	for {
		for _, child := range m.nodes[current].children {
			childRegion := m.nodes[child].region
			if childRegion.Equal(r) {
				return child, current
			}
			if childRegion.Encloses(r) {
				current = child
				continue descend
			}
		}
		return noParent, noParent
	}
}

func (m *RegionMap[T]) alloc(n node[T]) int {
	m.size++
	if last := len(m.free) - 1; last >= 0 {
		idx := m.free[last]
		m.free = m.free[:last]
		m.nodes[idx] = n
		return idx
	}
	m.nodes = append(m.nodes, n)
	return len(m.nodes) - 1
}

func (m *RegionMap[T]) release(idx int) {
	m.nodes[idx] = node[T]{parent: noParent}
	m.free = append(m.free, idx)
	m.size--
}

// Iterator walks a subtree breadth-first.
type Iterator[T any] struct {
	m     *RegionMap[T]
	queue []int
}

// Done reports whether the iterator is exhausted.
func (it *Iterator[T]) Done() bool { return len(it.queue) == 0 }

// Region returns the region at the current position.
func (it *Iterator[T]) Region() region.Region { return it.m.nodes[it.queue[0]].region }

// Value returns the value at the current position.
func (it *Iterator[T]) Value() T { return it.m.nodes[it.queue[0]].value }

// Next advances to the next node in breadth-first order.
func (it *Iterator[T]) Next() {
	if it.Done() {
		return
	}
	current := it.queue[0]
	it.queue = append(it.queue[1:], it.m.nodes[current].children...)
}
