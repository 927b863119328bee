// Package archive defines the layout of compiled scene archives shared by
// the scene readers and writers.
//
// An archive is a zip file with one entry per buffer. Buffers are stored as
// little-endian 32-bit slots exactly as they are uploaded to the kernels.
package archive

import (
	"github.com/alexd2580/hBalls/octree"
	"github.com/alexd2580/hBalls/types"
)

// Archive format version.
const Version = 1

// Archive entry names.
const (
	OctreeFile   = "octree.bin"
	SurfacesFile = "surfaces.bin"
	LampsFile    = "lamps.bin"
	CameraFile   = "camera.bin"
	MetaFile     = "meta.json"
)

// Meta describes the archive contents. Readers use it to cross-check the
// decoded buffers.
type Meta struct {
	Version     int     `json:"version"`
	Surfaces    int     `json:"surfaces"`
	Lamps       int     `json:"lamps"`
	OctreeSlots int     `json:"octree_slots"`
	FrameWidth  int     `json:"frame_width"`
	FrameHeight int     `json:"frame_height"`
	Bounds      *Bounds `json:"bounds,omitempty"`
}

// Bounds of the octree root.
type Bounds struct {
	Lower [3]float32 `json:"lower"`
	Upper [3]float32 `json:"upper"`
}

func BoundsOf(b octree.BBox) *Bounds {
	return &Bounds{Lower: b.Lower, Upper: b.Upper}
}

func (b *Bounds) BBox() octree.BBox {
	return octree.NewBBox(types.Vec3(b.Lower), types.Vec3(b.Upper))
}
