package octree

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/alexd2580/hBalls/types"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidBounds(t *testing.T) {
	_, err := New(NewBBox(types.XYZ(0, 0, 0), types.XYZ(1, 2, 1)))
	require.ErrorIs(t, err, ErrNonCubicBounds)

	_, err = New(NewBBox(types.Splat(1), types.Splat(1)))
	require.ErrorIs(t, err, ErrEmptyBounds)

	_, err = New(NewBBox(types.Splat(0), types.Splat(float32(math.Inf(1)))))
	require.ErrorIs(t, err, ErrEmptyBounds)

	root, err := New(unitBox())
	require.NoError(t, err)
	require.Empty(t, root.Primitives)
	require.Equal(t, 1, root.Count())
}

func TestInsertIntoOctant(t *testing.T) {
	root := MustNew(unitBox())
	got := Insert(root, 1, NewBBox(types.Splat(0.1), types.Splat(0.4)))

	require.True(t, got == root, "expected root to stay the same")
	require.Empty(t, root.Primitives)
	require.NotNil(t, root.Children[0])
	for i := 1; i < 8; i++ {
		require.Nil(t, root.Children[i])
	}

	child := root.Children[0]
	require.Equal(t, NewBBox(types.Splat(0), types.Splat(0.5)), child.Bounds)
	require.Equal(t, []PrimitiveRef{1}, child.Primitives)
	require.True(t, root.Find(1) == child)
}

func TestInsertStraddlingPrimitive(t *testing.T) {
	root := MustNew(unitBox())
	got := Insert(root, 2, NewBBox(types.Splat(0.4), types.Splat(0.6)))

	require.True(t, got == root)
	require.Equal(t, []PrimitiveRef{2}, root.Primitives)
	require.Equal(t, 1, root.Count())
}

func TestInsertReusesExistingChild(t *testing.T) {
	root := MustNew(unitBox())
	root = Insert(root, 1, NewBBox(types.Splat(0.1), types.Splat(0.4)))
	first := root.Children[0]
	root = Insert(root, 2, NewBBox(types.Splat(0.05), types.Splat(0.45)))

	require.True(t, root.Children[0] == first)
	require.Equal(t, []PrimitiveRef{1, 2}, first.Primitives)
}

func TestInsertGrowsTowardsPositiveAxis(t *testing.T) {
	orig := MustNew(unitBox())
	primBounds := NewBBox(types.XYZ(10, 0, 0), types.XYZ(11, 0, 0))
	root := Insert(orig, 3, primBounds)

	require.False(t, root == orig)
	require.True(t, root.Bounds.IsSuperspaceOf(primBounds))
	require.True(t, root.Bounds.IsSuperspaceOf(orig.Bounds))
	require.Equal(t, NewBBox(types.Splat(0), types.Splat(16)), root.Bounds)

	// The old root sits in the low octant of every intermediate node.
	found := false
	root.Walk(func(n *Node, depth int) bool {
		if n == orig {
			found = true
			require.Equal(t, 4, depth)
		}
		return true
	})
	require.True(t, found, "expected original root to be part of the new tree")

	holder := root.Find(3)
	require.NotNil(t, holder)
	require.Equal(t, NewBBox(types.XYZ(10, 0, 0), types.XYZ(11, 1, 1)), holder.Bounds)
}

func TestInsertGrowsTowardsNegativeAxis(t *testing.T) {
	orig := MustNew(unitBox())
	primBounds := NewBBox(types.Splat(-3), types.Splat(-2))
	root := Insert(orig, 4, primBounds)

	require.Equal(t, NewBBox(types.Splat(-3), types.Splat(1)), root.Bounds)
	require.NotNil(t, root.Children[7])
	require.Equal(t, NewBBox(types.Splat(-1), types.Splat(1)), root.Children[7].Bounds)
	require.True(t, root.Children[7].Children[7] == orig)
	require.True(t, root.Bounds.IsSuperspaceOf(primBounds))
}

func TestInsertGrowsOnMixedAxes(t *testing.T) {
	orig := MustNew(unitBox())
	root := Insert(orig, 5, NewBBox(types.XYZ(-0.5, 0.2, 1.2), types.XYZ(-0.25, 0.4, 1.4)))

	// Below on x, inside on y and above on z: the old root occupies the upper
	// x half and the lower y/z halves.
	require.Equal(t, NewBBox(types.XYZ(-1, 0, 0), types.XYZ(1, 2, 2)), root.Bounds)
	require.True(t, root.Children[4] == orig)
}

func TestInsertDegeneratePrimitives(t *testing.T) {
	root := MustNew(unitBox())

	// A single point keeps subdividing until float precision runs out.
	root = Insert(root, 1, NewBBox(types.Splat(0.3), types.Splat(0.3)))
	require.NotNil(t, root.Find(1))

	// A point on the center lands in the first octant containing it.
	root = Insert(root, 2, NewBBox(types.Splat(0.5), types.Splat(0.5)))
	require.NotNil(t, root.Find(2))
	require.True(t, root.Find(2).Bounds.IsSubspaceOf(root.Bounds.Octant(0)))

	require.NoError(t, Verify(root, map[PrimitiveRef]BBox{
		1: NewBBox(types.Splat(0.3), types.Splat(0.3)),
		2: NewBBox(types.Splat(0.5), types.Splat(0.5)),
	}))

	// Both points sit in [0.25, 0.5] where float32 spacing is 2^-25, so
	// subdivision stops once a node side reaches that spacing.
	for _, ref := range []PrimitiveRef{1, 2} {
		depth := depthOf(root, ref)
		require.GreaterOrEqual(t, depth, 20, "ref %d", ref)
		require.LessOrEqual(t, depth, 26, "ref %d", ref)
		require.Greater(t, root.Find(ref).Bounds.Size(), float32(0))
	}
	require.LessOrEqual(t, CollectStats(root).MaxDepth, 26)

	got, err := Reconstruct(FlattenBuffer(root), 0)
	require.NoError(t, err)
	require.True(t, root.Equal(got))
}

// Depth of the node storing ref, or -1.
func depthOf(root *Node, ref PrimitiveRef) int {
	found := -1
	root.Walk(func(node *Node, depth int) bool {
		for _, r := range node.Primitives {
			if r == ref {
				found = depth
			}
		}
		return found < 0
	})
	return found
}

func TestInsertNonFinitePanics(t *testing.T) {
	root := MustNew(unitBox())
	require.Panics(t, func() {
		Insert(root, 1, NewBBox(types.Splat(0), types.Splat(float32(math.NaN()))))
	})
}

func TestInsertPanicsWhenGrowthOverflows(t *testing.T) {
	for _, bounds := range []BBox{
		NewBBox(types.Splat(-3e38), types.Splat(-2e38)),
		NewBBox(types.Splat(2e38), types.Splat(3e38)),
		NewBBox(types.XYZ(-3e38, 0, 0), types.XYZ(0, 3e38, 0)),
	} {
		done := make(chan interface{})
		go func() {
			defer func() { done <- recover() }()
			Insert(MustNew(unitBox()), 1, bounds)
		}()

		select {
		case r := <-done:
			require.NotNil(t, r, "expected Insert to panic for %s", bounds)
			require.Contains(t, r, "cannot grow root")
		case <-time.After(3 * time.Second):
			t.Fatalf("Insert did not return for %s", bounds)
		}
	}
}

func TestRandomInsertionsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	root := MustNew(unitBox())
	expected := make(map[PrimitiveRef]BBox)

	for ref := PrimitiveRef(0); ref < 500; ref++ {
		// Dyadic coordinates keep all bounds math exact.
		lower := types.XYZ(
			float32(rng.Intn(800)-400)/8,
			float32(rng.Intn(800)-400)/8,
			float32(rng.Intn(800)-400)/8,
		)
		size := float32(rng.Intn(32)) / 16
		bounds := NewBBox(lower, lower.Add(types.XYZ(size, size/2, size/4)))

		oldRoot := root
		root = Insert(root, ref, bounds)
		require.True(t, root.Bounds.IsSuperspaceOf(oldRoot.Bounds))
		require.True(t, root.Bounds.IsSuperspaceOf(bounds))
		require.True(t, root.Bounds.IsCube())

		expected[ref] = bounds
	}

	require.NoError(t, Verify(root, expected))
	require.Equal(t, len(expected), CollectStats(root).Primitives)
}

func TestVerifyDetectsViolations(t *testing.T) {
	root := MustNew(unitBox())
	inner := NewBBox(types.Splat(0.1), types.Splat(0.4))
	root = Insert(root, 1, inner)

	require.ErrorIs(t, Verify(root, map[PrimitiveRef]BBox{}), ErrInvariantViolation)
	require.ErrorIs(t, Verify(root, map[PrimitiveRef]BBox{1: inner, 2: inner}), ErrInvariantViolation)
	require.ErrorIs(t, Verify(root, map[PrimitiveRef]BBox{1: unitBox()}), ErrInvariantViolation)

	root.Primitives = append(root.Primitives, 1)
	require.ErrorIs(t, Verify(root, map[PrimitiveRef]BBox{1: inner}), ErrInvariantViolation)
	root.Primitives = root.Primitives[:0]
	require.NoError(t, Verify(root, map[PrimitiveRef]BBox{1: inner}))

	// Children must cover the octant their index selects.
	child := root.Children[0]
	child.Bounds = NewBBox(types.Splat(-5), types.Splat(5))
	require.ErrorIs(t, Verify(root, map[PrimitiveRef]BBox{1: inner}), ErrInvariantViolation)

	child.Bounds = root.Bounds.Octant(7)
	require.ErrorIs(t, Verify(root, map[PrimitiveRef]BBox{1: inner}), ErrInvariantViolation)

	child.Bounds = NewBBox(types.Splat(0), types.Splat(0.45))
	require.ErrorIs(t, Verify(root, map[PrimitiveRef]BBox{1: inner}), ErrInvariantViolation)
}

func TestCollectStats(t *testing.T) {
	root := MustNew(unitBox())
	root = Insert(root, 1, NewBBox(types.Splat(0.1), types.Splat(0.4)))
	root = Insert(root, 2, NewBBox(types.Splat(0.4), types.Splat(0.6)))
	root = Insert(root, 3, NewBBox(types.Splat(0.45), types.Splat(0.55)))

	st := CollectStats(root)
	require.Equal(t, Stats{
		Nodes:             2,
		Leaves:            1,
		MaxDepth:          1,
		Primitives:        3,
		MaxNodePrimitives: 2,
		Slots:             Size(root),
	}, st)
}

func TestDump(t *testing.T) {
	root := MustNew(unitBox())
	root = Insert(root, 1, NewBBox(types.Splat(0.1), types.Splat(0.4)))
	root = Insert(root, 2, NewBBox(types.Splat(0.4), types.Splat(0.6)))

	exp := "(0,0,0) => (1,1,1) : [2]\n  (0,0,0) => (0.5,0.5,0.5) : [1]\n"
	require.Equal(t, exp, root.Dump())
}
