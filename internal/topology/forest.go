package topology

import (
	"sort"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// forest is an in-memory adjacency index over one area's devices.
type forest struct {
	nodes    map[int64]*Node
	children map[int64][]int64
	order    []int64 // ids ascending
}

func buildForest(rows []Node) *forest {
	f := &forest{
		nodes:    make(map[int64]*Node, len(rows)),
		children: make(map[int64][]int64),
		order:    make([]int64, 0, len(rows)),
	}
	for i := range rows {
		n := &rows[i]
		f.nodes[n.ID] = n
		f.order = append(f.order, n.ID)
	}
	sort.Slice(f.order, func(i, j int) bool { return f.order[i] < f.order[j] })
	for _, id := range f.order {
		n := f.nodes[id]
		if n.ParentID == nil {
			continue
		}
		// Children are only indexed under parents in the same load, so
		// traversal never leaves the area.
		if _, ok := f.nodes[*n.ParentID]; ok {
			f.children[*n.ParentID] = append(f.children[*n.ParentID], id)
		}
	}
	return f
}

// walk appends the subtree under root to out in breadth-first order,
// skipping ids already in visited.
func (f *forest) walk(root int64, visited *roaring64.Bitmap, out []Node) []Node {
	if _, ok := f.nodes[root]; !ok || visited.Contains(uint64(root)) {
		return out
	}
	visited.Add(uint64(root))
	queue := []int64{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, *f.nodes[id])
		for _, child := range f.children[id] {
			if visited.Contains(uint64(child)) {
				continue
			}
			visited.Add(uint64(child))
			queue = append(queue, child)
		}
	}
	return out
}

// groupView returns the subtree under root followed by every parentless
// device of group root with its own subtree.
func (f *forest) groupView(root int64) []Node {
	visited := roaring64.New()
	out := f.walk(root, visited, nil)
	for _, id := range f.order {
		n := f.nodes[id]
		if n.ParentID == nil && n.SwID != nil && *n.SwID == root {
			out = f.walk(id, visited, out)
		}
	}
	if out == nil {
		out = []Node{}
	}
	return out
}
