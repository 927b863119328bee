package scene

import (
	"math"

	"github.com/alexd2580/hBalls/octree"
	"github.com/alexd2580/hBalls/types"
	"github.com/pkg/errors"
)

// The type of a primitive surface. The values are shared with the tracing
// kernels.
type SurfaceType uint8

const (
	Diffuse SurfaceType = iota + 1
	Metallic
	Mirror
	Glass
)

func (t SurfaceType) String() string {
	switch t {
	case Diffuse:
		return "diffuse"
	case Metallic:
		return "metallic"
	case Mirror:
		return "mirror"
	case Glass:
		return "glass"
	}
	return "unknown"
}

// Parse a surface type from its name.
func ParseSurfaceType(name string) (SurfaceType, error) {
	for t := Diffuse; t <= Glass; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, errors.Errorf("unknown surface type %q", name)
}

// Materials with a luminescence above this threshold are treated as lamps.
const lampThreshold float32 = 0.00001

type Material struct {
	Type         SurfaceType
	Roughness    float32
	Luminescence float32
	Color        types.Vec3
}

// IsEmissive returns true if primitives using this material emit light.
func (m Material) IsEmissive() bool {
	return m.Luminescence > lampThreshold
}

// The kind of a primitive record.
type Kind uint8

const (
	KindTriangle Kind = iota + 1
	KindSphere
)

// Primitive records are stored in slots of the same width as the octree
// buffer. Slot 0 packs the surface type (low byte) and the primitive kind
// (high byte). Layout after the material header:
//
//	triangle: [6-8] vertex a, [9-11] vertex b, [12-14] vertex c
//	sphere:   [6-8] center, [9] radius
const (
	materialSlots = 6

	TriangleSlots = materialSlots + 9
	SphereSlots   = materialSlots + 4

	// Octree refs pointing into the lamp buffer have this bit set.
	LampRefFlag octree.PrimitiveRef = 1 << 31
)

var ErrInvalidPrimitive = errors.New("scene: invalid primitive")

// PrimitiveBuffer stores primitive records back to back.
type PrimitiveBuffer struct {
	Slots []octree.Slot

	// Number of records in the buffer.
	Count int
}

// Append a triangle record and return its slot offset.
func (pb *PrimitiveBuffer) PushTriangle(mat Material, a, b, c types.Vec3) uint32 {
	offset := pb.pushMaterial(KindTriangle, mat)
	pb.pushVec3(a)
	pb.pushVec3(b)
	pb.pushVec3(c)
	pb.Count++
	return offset
}

// Append a sphere record and return its slot offset.
func (pb *PrimitiveBuffer) PushSphere(mat Material, center types.Vec3, radius float32) uint32 {
	offset := pb.pushMaterial(KindSphere, mat)
	pb.pushVec3(center)
	pb.Slots = append(pb.Slots, math.Float32bits(radius))
	pb.Count++
	return offset
}

// Drop all records.
func (pb *PrimitiveBuffer) Reset() {
	pb.Slots = pb.Slots[:0]
	pb.Count = 0
}

func (pb *PrimitiveBuffer) pushMaterial(kind Kind, mat Material) uint32 {
	offset := uint32(len(pb.Slots))
	pb.Slots = append(pb.Slots,
		octree.Slot(mat.Type)|octree.Slot(kind)<<24,
		math.Float32bits(mat.Roughness),
		math.Float32bits(mat.Luminescence),
	)
	pb.pushVec3(mat.Color)
	return offset
}

func (pb *PrimitiveBuffer) pushVec3(v types.Vec3) {
	pb.Slots = append(pb.Slots, math.Float32bits(v[0]), math.Float32bits(v[1]), math.Float32bits(v[2]))
}

func (pb *PrimitiveBuffer) float(offset int) float32 {
	return math.Float32frombits(pb.Slots[offset])
}

func (pb *PrimitiveBuffer) vec3(offset int) types.Vec3 {
	return types.XYZ(pb.float(offset), pb.float(offset+1), pb.float(offset+2))
}

// Record decodes the record starting at offset. It returns the kind of
// the primitive, its material, its bounding box and the number of slots the
// record occupies.
func (pb *PrimitiveBuffer) Record(offset int) (Kind, Material, octree.BBox, int, error) {
	if offset < 0 || offset >= len(pb.Slots) {
		return 0, Material{}, octree.BBox{}, 0, errors.Wrapf(ErrInvalidPrimitive, "record offset %d outside buffer of %d slots", offset, len(pb.Slots))
	}

	kind := Kind(pb.Slots[offset] >> 24)
	size := 0
	switch kind {
	case KindTriangle:
		size = TriangleSlots
	case KindSphere:
		size = SphereSlots
	default:
		return 0, Material{}, octree.BBox{}, 0, errors.Wrapf(ErrInvalidPrimitive, "unknown primitive kind %d at slot %d", kind, offset)
	}
	if offset+size > len(pb.Slots) {
		return 0, Material{}, octree.BBox{}, 0, errors.Wrapf(ErrInvalidPrimitive, "truncated record at slot %d", offset)
	}

	mat := Material{
		Type:         SurfaceType(pb.Slots[offset] & 0xff),
		Roughness:    pb.float(offset + 1),
		Luminescence: pb.float(offset + 2),
		Color:        pb.vec3(offset + 3),
	}

	var bounds octree.BBox
	if kind == KindTriangle {
		bounds = octree.BBoxOf(
			pb.vec3(offset+materialSlots),
			pb.vec3(offset+materialSlots+3),
			pb.vec3(offset+materialSlots+6),
		)
	} else {
		bounds = sphereBounds(pb.vec3(offset+materialSlots), pb.float(offset+materialSlots+3))
	}

	return kind, mat, bounds, size, nil
}

// Visit every record in the buffer in storage order.
func (pb *PrimitiveBuffer) Each(fn func(offset int, kind Kind, mat Material, bounds octree.BBox) error) error {
	for offset := 0; offset < len(pb.Slots); {
		kind, mat, bounds, size, err := pb.Record(offset)
		if err != nil {
			return err
		}
		if err = fn(offset, kind, mat, bounds); err != nil {
			return err
		}
		offset += size
	}
	return nil
}

func sphereBounds(center types.Vec3, radius float32) octree.BBox {
	r := types.Splat(radius)
	return octree.NewBBox(center.Sub(r), center.Add(r))
}
