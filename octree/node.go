// Package octree implements a growable octree over the bounding boxes of
// scene primitives and a pointer-free serialization format for it.
//
// Each node owns the primitives that fit inside its bounds but straddle the
// boundaries of its canonical octants. Everything that fits inside an octant
// is pushed down to a child node covering exactly that octant. Inserting a
// primitive that does not fit inside the root grows the tree upwards by
// repeatedly doubling the root.
//
// The tree is flattened into a contiguous slice of 32-bit slots where child
// links are encoded as slot offsets relative to the start of the parent's
// block. This is the format consumed by the tracing kernels, which cannot
// dereference host pointers.
package octree

import (
	"bytes"
	"fmt"
	"strings"
)

// A PrimitiveRef identifies a primitive inside an external primitive buffer.
// The tree never inspects the primitive it points to.
type PrimitiveRef uint32

// Node is a node of the octree. A nil entry in Children marks an absent
// octant.
type Node struct {
	Bounds     BBox
	Primitives []PrimitiveRef
	Children   [8]*Node
}

// Create a new empty node. The bounds must be a cube with a finite positive
// side length; the octant splitting and growth logic depend on it.
func New(bounds BBox) (*Node, error) {
	if !bounds.IsFinite() || bounds.Size() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyBounds, bounds)
	}
	if !bounds.IsCube() {
		return nil, fmt.Errorf("%w: %s", ErrNonCubicBounds, bounds)
	}
	return &Node{Bounds: bounds}, nil
}

// MustNew is like New but panics if bounds are invalid.
func MustNew(bounds BBox) *Node {
	n, err := New(bounds)
	if err != nil {
		panic(err)
	}
	return n
}

// Insert adds a primitive with the given bounds to the tree rooted at root
// and returns the root of the updated tree. If the primitive does not fit
// inside the root bounds, the tree grows and a new root is returned; the old
// root becomes one of its descendants. Callers must always replace their root
// with the returned value.
//
// Insert never fails for bounds the root can grow to contain. It panics on
// non-finite bounds and when growing towards bounds overflows float32.
func Insert(root *Node, ref PrimitiveRef, bounds BBox) *Node {
	if !bounds.IsFinite() {
		panic(fmt.Sprintf("octree: cannot insert primitive %d with non-finite bounds %s", ref, bounds))
	}

	for !bounds.IsSubspaceOf(root.Bounds) {
		size := root.Bounds.Size()
		root = root.grow(bounds)
		if !root.Bounds.IsFinite() || !(root.Bounds.Size() > size) {
			panic(fmt.Sprintf("octree: cannot grow root to contain primitive %d with bounds %s", ref, bounds))
		}
	}

	root.place(ref, bounds)
	return root
}

// Wrap n inside a node with twice its side length, extended towards the
// given bounds. The new node holds n as the child covering the octant n
// occupies.
func (n *Node) grow(towards BBox) *Node {
	size := n.Bounds.Size()
	offset := n.Bounds.Lower.Sub(towards.Lower)

	octant := 0
	lower := n.Bounds.Lower
	for axis, bit := range [3]int{4, 2, 1} {
		// The requested region extends below n on this axis; keep n in the
		// upper half of the new node.
		if offset[axis] > 0 {
			octant |= bit
			lower[axis] -= size
		}
	}

	upper := lower
	for axis := 0; axis < 3; axis++ {
		upper[axis] += 2 * size
	}

	parent := &Node{Bounds: NewBBox(lower, upper)}
	parent.Children[octant] = n
	return parent
}

// Store ref at the deepest node below n whose canonical octant decomposition
// cannot fully contain bounds. The caller guarantees that bounds fit inside n.
func (n *Node) place(ref PrimitiveRef, bounds BBox) {
	for index := 0; index < 8; index++ {
		if child := n.Children[index]; child != nil {
			if bounds.IsSubspaceOf(child.Bounds) {
				child.place(ref, bounds)
				return
			}
			continue
		}

		octant := n.Bounds.Octant(index)
		if !bounds.IsSubspaceOf(octant) || !n.canSplitInto(octant) {
			continue
		}

		child := &Node{Bounds: octant}
		n.Children[index] = child
		child.place(ref, bounds)
		return
	}

	n.Primitives = append(n.Primitives, ref)
}

// Subdivision stops once halving the side length no longer produces a
// smaller, non-empty box at float32 precision.
func (n *Node) canSplitInto(octant BBox) bool {
	size := octant.Size()
	return size > 0 && size < n.Bounds.Size()
}

// Walk visits n and its descendants depth-first in octant order. The
// callback receives the depth of each node (0 for n). Returning false from
// the callback skips the node's children.
func (n *Node) Walk(fn func(node *Node, depth int) bool) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(node *Node, depth int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, child := range n.Children {
		if child != nil {
			child.walk(fn, depth+1)
		}
	}
}

// Count returns the number of nodes in the tree rooted at n.
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node, int) bool {
		count++
		return true
	})
	return count
}

// Find returns the node that directly stores ref or nil if ref is not part
// of the tree.
func (n *Node) Find(ref PrimitiveRef) *Node {
	var found *Node
	n.Walk(func(node *Node, _ int) bool {
		if found != nil {
			return false
		}
		for _, r := range node.Primitives {
			if r == ref {
				found = node
				return false
			}
		}
		return true
	})
	return found
}

// Equal reports whether the trees rooted at n and other have the same bounds,
// the same primitives in the same order and the same child layout at every
// node.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Bounds != other.Bounds || len(n.Primitives) != len(other.Primitives) {
		return false
	}
	for index, ref := range n.Primitives {
		if other.Primitives[index] != ref {
			return false
		}
	}
	for index, child := range n.Children {
		if !child.Equal(other.Children[index]) {
			return false
		}
	}
	return true
}

// Dump returns a human readable, indented listing of the tree.
func (n *Node) Dump() string {
	var buf bytes.Buffer
	n.Walk(func(node *Node, depth int) bool {
		refs := make([]string, len(node.Primitives))
		for index, ref := range node.Primitives {
			refs[index] = fmt.Sprint(ref)
		}
		fmt.Fprintf(&buf, "%s%s : [%s]\n", strings.Repeat("  ", depth), node.Bounds, strings.Join(refs, " "))
		return true
	})
	return buf.String()
}
