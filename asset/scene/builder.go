package scene

import (
	"math"

	"github.com/alexd2580/hBalls/octree"
	"github.com/alexd2580/hBalls/types"
	"github.com/pkg/errors"
)

// MaxCoordinate bounds the magnitude of primitive coordinates. Growing the
// octree towards larger values would overflow float32.
const MaxCoordinate = math.MaxFloat32 / 16

// Builder collects primitives into surface and lamp buffers and indexes
// them in an octree that grows as needed.
type Builder struct {
	root     *octree.Node
	surfaces PrimitiveBuffer
	lamps    PrimitiveBuffer
	camera   *Camera
}

// Create a builder whose octree initially covers worldBounds. The bounds must
// be a non-empty cube.
func NewBuilder(worldBounds octree.BBox) (*Builder, error) {
	root, err := octree.New(worldBounds)
	if err != nil {
		return nil, err
	}
	return &Builder{root: root}, nil
}

// Add a triangle.
func (b *Builder) Triangle(mat Material, v0, v1, v2 types.Vec3) error {
	for _, v := range []types.Vec3{v0, v1, v2} {
		if !representable(v) {
			return errors.Wrapf(ErrInvalidPrimitive, "triangle vertex %v is out of range", v)
		}
	}

	buf := b.bufferFor(mat)
	ref := buf.PushTriangle(mat, v0, v1, v2)
	b.index(mat, ref, octree.BBoxOf(v0, v1, v2))
	return nil
}

// Add a quad as the two triangles v0-v1-v2 and v0-v2-v3.
func (b *Builder) Quad(mat Material, v0, v1, v2, v3 types.Vec3) error {
	if !representable(v3) {
		return errors.Wrapf(ErrInvalidPrimitive, "quad vertex %v is out of range", v3)
	}
	if err := b.Triangle(mat, v0, v1, v2); err != nil {
		return err
	}
	return b.Triangle(mat, v0, v2, v3)
}

// Add a sphere.
func (b *Builder) Sphere(mat Material, center types.Vec3, radius float32) error {
	if !representable(center) {
		return errors.Wrapf(ErrInvalidPrimitive, "sphere center %v is out of range", center)
	}
	if !(radius >= 0 && radius <= MaxCoordinate) {
		return errors.Wrapf(ErrInvalidPrimitive, "sphere radius %g", radius)
	}
	if bounds := sphereBounds(center, radius); !representable(bounds.Lower) || !representable(bounds.Upper) {
		return errors.Wrapf(ErrInvalidPrimitive, "sphere bounds %s are out of range", bounds)
	}

	buf := b.bufferFor(mat)
	ref := buf.PushSphere(mat, center, radius)
	b.index(mat, ref, sphereBounds(center, radius))
	return nil
}

// Set the scene camera.
func (b *Builder) SetCamera(cam *Camera) {
	b.camera = cam
}

// Drop all primitives. The new, empty root keeps the bounds the tree has
// grown to so far.
func (b *Builder) Clear() {
	b.surfaces.Reset()
	b.lamps.Reset()
	b.root = &octree.Node{Bounds: b.root.Bounds}
}

// Root returns the current octree root.
func (b *Builder) Root() *octree.Node {
	return b.root
}

// Build flattens the octree and returns the compiled scene. The scene does
// not share any state with the builder, which may keep being used.
func (b *Builder) Build() (*Scene, error) {
	for _, buf := range []*PrimitiveBuffer{&b.surfaces, &b.lamps} {
		if octree.PrimitiveRef(len(buf.Slots)) >= LampRefFlag {
			return nil, errors.Wrapf(ErrInvalidPrimitive, "primitive buffer of %d slots exceeds the addressable range", len(buf.Slots))
		}
	}

	cam := b.camera
	if cam == nil {
		cam = DefaultCamera()
	}

	data := octree.FlattenBuffer(b.root)

	// The scene gets its own copy of the tree, decoded from the flat data.
	tree, err := octree.Reconstruct(data, 0)
	if err != nil {
		return nil, err
	}

	return &Scene{
		Surfaces:    cloneBuffer(b.surfaces),
		Lamps:       cloneBuffer(b.lamps),
		Octree:      tree,
		OctreeData:  data,
		Camera:      cam,
		FrameWidth:  DefaultFrameWidth,
		FrameHeight: DefaultFrameHeight,
	}, nil
}

func (b *Builder) bufferFor(mat Material) *PrimitiveBuffer {
	if mat.IsEmissive() {
		return &b.lamps
	}
	return &b.surfaces
}

func (b *Builder) index(mat Material, offset uint32, bounds octree.BBox) {
	ref := octree.PrimitiveRef(offset)
	if mat.IsEmissive() {
		ref |= LampRefFlag
	}
	b.root = octree.Insert(b.root, ref, bounds)
}

func cloneBuffer(pb PrimitiveBuffer) PrimitiveBuffer {
	slots := make([]octree.Slot, len(pb.Slots))
	copy(slots, pb.Slots)
	return PrimitiveBuffer{Slots: slots, Count: pb.Count}
}

// Reports whether every component of v is a number within MaxCoordinate.
func representable(v types.Vec3) bool {
	for _, c := range v {
		if !(c >= -MaxCoordinate && c <= MaxCoordinate) {
			return false
		}
	}
	return true
}
