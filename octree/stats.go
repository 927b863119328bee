package octree

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvariantViolation = errors.New("octree: invariant violation")

// Stats summarizes the shape of a tree.
type Stats struct {
	Nodes             int
	Leaves            int
	MaxDepth          int
	Primitives        int
	MaxNodePrimitives int

	// Number of slots in the flattened tree.
	Slots int
}

// Collect statistics for the tree rooted at n.
func CollectStats(n *Node) Stats {
	var st Stats
	n.Walk(func(node *Node, depth int) bool {
		st.Nodes++
		st.Primitives += len(node.Primitives)
		st.Slots += headerSlots + len(node.Primitives) + descriptorSlots
		if depth > st.MaxDepth {
			st.MaxDepth = depth
		}
		if len(node.Primitives) > st.MaxNodePrimitives {
			st.MaxNodePrimitives = len(node.Primitives)
		}

		leaf := true
		for _, child := range node.Children {
			if child != nil {
				leaf = false
				break
			}
		}
		if leaf {
			st.Leaves++
		}
		return true
	})
	return st
}

// Relative tolerance for child bounds shifted by float32 rounding while the
// tree grew.
const octantEpsilon = 1e-5

// Verify checks that every primitive in expected is stored exactly once, in a
// node whose bounds contain the primitive bounds, and that the tree holds no
// other primitives. It also checks that every child covers the canonical
// octant of its parent that its index selects.
func Verify(n *Node, expected map[PrimitiveRef]BBox) error {
	seen := make(map[PrimitiveRef]BBox, len(expected))

	var err error
	n.Walk(func(node *Node, _ int) bool {
		if err != nil {
			return false
		}
		for _, ref := range node.Primitives {
			bounds, known := expected[ref]
			switch {
			case !known:
				err = fmt.Errorf("%w: unexpected primitive %d in node %s", ErrInvariantViolation, ref, node.Bounds)
			case !bounds.IsSubspaceOf(node.Bounds):
				err = fmt.Errorf("%w: primitive %d with bounds %s stored in node %s", ErrInvariantViolation, ref, bounds, node.Bounds)
			}
			if _, dup := seen[ref]; dup && err == nil {
				err = fmt.Errorf("%w: primitive %d stored more than once", ErrInvariantViolation, ref)
			}
			if err != nil {
				return false
			}
			seen[ref] = node.Bounds
		}
		for index, child := range node.Children {
			if child != nil && !matchesOctant(node.Bounds, index, child.Bounds) {
				err = fmt.Errorf("%w: child %d with bounds %s does not match octant %s of node %s",
					ErrInvariantViolation, index, child.Bounds, node.Bounds.Octant(index), node.Bounds)
				return false
			}
		}
		return err == nil
	})
	if err != nil {
		return err
	}

	for ref := range expected {
		if _, found := seen[ref]; !found {
			return fmt.Errorf("%w: primitive %d missing from tree", ErrInvariantViolation, ref)
		}
	}
	return nil
}

// Reports whether bounds equals octant index of parent and lies inside parent,
// allowing for rounding relative to the magnitude of the parent corners.
func matchesOctant(parent BBox, index int, bounds BBox) bool {
	octant := parent.Octant(index)
	scale := float64(parent.Size())
	for axis := 0; axis < 3; axis++ {
		scale = math.Max(scale, math.Abs(float64(parent.Lower[axis])))
		scale = math.Max(scale, math.Abs(float64(parent.Upper[axis])))
	}
	tolerance := scale * octantEpsilon
	for axis := 0; axis < 3; axis++ {
		if math.Abs(float64(bounds.Lower[axis])-float64(octant.Lower[axis])) > tolerance ||
			math.Abs(float64(bounds.Upper[axis])-float64(octant.Upper[axis])) > tolerance {
			return false
		}
		if float64(bounds.Lower[axis]) < float64(parent.Lower[axis])-tolerance ||
			float64(bounds.Upper[axis]) > float64(parent.Upper[axis])+tolerance {
			return false
		}
	}
	return true
}
