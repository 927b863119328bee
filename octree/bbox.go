package octree

import (
	"fmt"
	"math"

	"github.com/alexd2580/hBalls/types"
)

// Relative tolerance used when checking whether the sides of a box are equal.
const cubeEpsilon = 1e-6

// BBox is an axis-aligned bounding box. Callers are responsible for ensuring
// that Lower <= Upper on every axis. BBox values are immutable and copied
// freely.
type BBox struct {
	Lower types.Vec3
	Upper types.Vec3
}

// Create a bounding box from its two corners.
func NewBBox(lower, upper types.Vec3) BBox {
	return BBox{Lower: lower, Upper: upper}
}

// Create the smallest box enclosing all the given points.
func BBoxOf(points ...types.Vec3) BBox {
	if len(points) == 0 {
		return BBox{}
	}

	b := BBox{Lower: points[0], Upper: points[0]}
	for _, p := range points[1:] {
		b.Lower = types.MinVec3(b.Lower, p)
		b.Upper = types.MaxVec3(b.Upper, p)
	}
	return b
}

// IsSubspaceOf returns true if b lies inside other. Shared faces count as
// inside.
func (b BBox) IsSubspaceOf(other BBox) bool {
	return b.Lower[0] >= other.Lower[0] && b.Lower[1] >= other.Lower[1] &&
		b.Lower[2] >= other.Lower[2] && b.Upper[0] <= other.Upper[0] &&
		b.Upper[1] <= other.Upper[1] && b.Upper[2] <= other.Upper[2]
}

// IsSuperspaceOf returns true if other lies inside b.
func (b BBox) IsSuperspaceOf(other BBox) bool {
	return b.Lower[0] <= other.Lower[0] && b.Lower[1] <= other.Lower[1] &&
		b.Lower[2] <= other.Lower[2] && b.Upper[0] >= other.Upper[0] &&
		b.Upper[1] >= other.Upper[1] && b.Upper[2] >= other.Upper[2]
}

// Size returns the side length along the x axis. For cubic boxes this is
// the side length along every axis.
func (b BBox) Size() float32 {
	return b.Upper[0] - b.Lower[0]
}

// Extent returns the side lengths along all three axes.
func (b BBox) Extent() types.Vec3 {
	return b.Upper.Sub(b.Lower)
}

// IsCube returns true if all three sides have the same length (within a
// small relative tolerance).
func (b BBox) IsCube() bool {
	ext := b.Extent()
	tolerance := float64(ext.MaxComponent()) * cubeEpsilon
	return math.Abs(float64(ext[0]-ext[1])) <= tolerance &&
		math.Abs(float64(ext[0]-ext[2])) <= tolerance
}

// IsFinite returns false if any corner component is NaN or infinite.
func (b BBox) IsFinite() bool {
	for axis := 0; axis < 3; axis++ {
		for _, v := range [2]float32{b.Lower[axis], b.Upper[axis]} {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return false
			}
		}
	}
	return true
}

// Octant returns the canonical octant region with the given index. Index bits
// select the upper half along x (4), y (2) and z (1).
func (b BBox) Octant(index int) BBox {
	half := b.Size() / 2.0
	lower := b.Lower
	if index&4 != 0 {
		lower[0] += half
	}
	if index&2 != 0 {
		lower[1] += half
	}
	if index&1 != 0 {
		lower[2] += half
	}
	return BBox{
		Lower: lower,
		Upper: lower.Add(types.Splat(half)),
	}
}

// Union returns the smallest box that contains both b and other.
func (b BBox) Union(other BBox) BBox {
	return BBox{
		Lower: types.MinVec3(b.Lower, other.Lower),
		Upper: types.MaxVec3(b.Upper, other.Upper),
	}
}

func (b BBox) String() string {
	return fmt.Sprintf(
		"(%g,%g,%g) => (%g,%g,%g)",
		b.Lower[0], b.Lower[1], b.Lower[2],
		b.Upper[0], b.Upper[1], b.Upper[2],
	)
}
