package input

import (
	"math"

	"github.com/alexd2580/hBalls/asset/scene"
	"github.com/alexd2580/hBalls/octree"
	"github.com/alexd2580/hBalls/types"
)

// The name of the material assigned to primitives that do not select one.
const DefaultMaterialName = "scene_default_material"

type Material struct {
	scene.Material

	Name string

	// True if material is referenced by scene geometry.
	Used bool
}

// A triangle primitive
type Primitive struct {
	Vertices      [3]types.Vec3
	MaterialIndex int
}

// Get the primitive AABB.
func (prim *Primitive) BBox() octree.BBox {
	return octree.BBoxOf(prim.Vertices[:]...)
}

// A sphere primitive.
type Sphere struct {
	Center        types.Vec3
	Radius        float32
	MaterialIndex int
}

// Get the sphere AABB.
func (s *Sphere) BBox() octree.BBox {
	r := types.Splat(s.Radius)
	return octree.NewBBox(s.Center.Sub(r), s.Center.Add(r))
}

// A mesh is constructed by a list of primitives.
type Mesh struct {
	Name       string
	Primitives []*Primitive
	Spheres    []*Sphere

	bbox            octree.BBox
	bboxNeedsUpdate bool
}

// Create a new mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:            name,
		Primitives:      make([]*Primitive, 0),
		Spheres:         make([]*Sphere, 0),
		bboxNeedsUpdate: true,
	}
}

// Mark the bbox of this mesh as dirty.
func (m *Mesh) MarkBBoxDirty() {
	m.bboxNeedsUpdate = true
}

// Returns true if the mesh holds no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Primitives) == 0 && len(m.Spheres) == 0
}

// Get mesh bounding box. The box of an empty mesh is inverted.
func (m *Mesh) BBox() octree.BBox {
	if m.bboxNeedsUpdate {
		m.bbox = emptyBBox()
		for _, prim := range m.Primitives {
			m.bbox = m.bbox.Union(prim.BBox())
		}
		for _, s := range m.Spheres {
			m.bbox = m.bbox.Union(s.BBox())
		}

		m.bboxNeedsUpdate = false
	}

	return m.bbox
}

// Camera settings.
type Camera struct {
	FOV  float32
	Eye  types.Vec3
	Look types.Vec3
	Up   types.Vec3
}

// The scene contains all elements that are processed by the scene compiler.
type Scene struct {
	Meshes    []*Mesh
	Materials []*Material
	Camera    *Camera
}

// Create a new scene.
func NewScene() *Scene {
	return &Scene{
		Meshes:    make([]*Mesh, 0),
		Materials: make([]*Material, 0),
		Camera: &Camera{
			FOV:  45.0,
			Eye:  types.Vec3{0, 0, 0},
			Look: types.Vec3{0, 0, -1},
			Up:   types.Vec3{0, 1, 0},
		},
	}
}

// Get the bounding box of all scene geometry. The second return value is
// false if the scene holds no geometry.
func (sc *Scene) BBox() (octree.BBox, bool) {
	bbox := emptyBBox()
	found := false
	for _, m := range sc.Meshes {
		if m.IsEmpty() {
			continue
		}
		bbox = bbox.Union(m.BBox())
		found = true
	}
	return bbox, found
}

func emptyBBox() octree.BBox {
	return octree.NewBBox(
		types.Splat(math.MaxFloat32),
		types.Splat(-math.MaxFloat32),
	)
}
