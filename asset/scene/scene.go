package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/alexd2580/hBalls/octree"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

// A compiled scene. Surfaces and lamps are stored in separate primitive
// buffers; the octree indexes both. Refs with LampRefFlag set point into
// the lamp buffer.
type Scene struct {
	Surfaces PrimitiveBuffer
	Lamps    PrimitiveBuffer

	// The index tree and its flattened form.
	Octree     *octree.Node
	OctreeData octree.Buffer

	// The scene camera and the frame it renders.
	Camera      *Camera
	FrameWidth  int
	FrameHeight int
}

// Default frame dimensions.
const (
	DefaultFrameWidth  = 800
	DefaultFrameHeight = 600
)

// CameraBlock packs the camera, frame size and primitive count into the
// kernel argument layout.
func (sc *Scene) CameraBlock() [CameraBlockSlots]octree.Slot {
	return sc.Camera.Block(sc.FrameWidth, sc.FrameHeight, sc.Surfaces.Count+sc.Lamps.Count)
}

// Primitive decodes the primitive a ref points to.
func (sc *Scene) Primitive(ref octree.PrimitiveRef) (Kind, Material, octree.BBox, error) {
	buf := &sc.Surfaces
	if ref&LampRefFlag != 0 {
		buf = &sc.Lamps
	}
	kind, mat, bounds, _, err := buf.Record(int(ref &^ LampRefFlag))
	return kind, mat, bounds, err
}

// PrimitiveBounds returns the bounds of every primitive in the scene keyed by
// the ref the octree stores for it.
func (sc *Scene) PrimitiveBounds() (map[octree.PrimitiveRef]octree.BBox, error) {
	out := make(map[octree.PrimitiveRef]octree.BBox, sc.Surfaces.Count+sc.Lamps.Count)
	collect := func(buf *PrimitiveBuffer, flag octree.PrimitiveRef) error {
		return buf.Each(func(offset int, _ Kind, _ Material, bounds octree.BBox) error {
			out[octree.PrimitiveRef(offset)|flag] = bounds
			return nil
		})
	}
	if err := collect(&sc.Surfaces, 0); err != nil {
		return nil, errors.Wrap(err, "surface buffer")
	}
	if err := collect(&sc.Lamps, LampRefFlag); err != nil {
		return nil, errors.Wrap(err, "lamp buffer")
	}
	return out, nil
}

// Verify checks that the flattened octree reconstructs into the in-memory
// tree and that every primitive is stored exactly once inside a node that
// contains it.
func (sc *Scene) Verify() error {
	tree, err := octree.Reconstruct(sc.OctreeData, 0)
	if err != nil {
		return err
	}
	if sc.Octree != nil && !sc.Octree.Equal(tree) {
		return errors.Wrap(octree.ErrInvariantViolation, "flattened octree does not match the index tree")
	}

	bounds, err := sc.PrimitiveBounds()
	if err != nil {
		return err
	}
	return octree.Verify(tree, bounds)
}

// Build a tabular representation of scene statistics.
func (sc *Scene) Stats() string {
	var st octree.Stats
	if sc.Octree != nil {
		st = octree.CollectStats(sc.Octree)
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Size"})
	table.Append([]string{"Primitives", "---", fmtSize(sc.Surfaces.Slots, sc.Lamps.Slots)})
	table.Append([]string{"", fmt.Sprintf("Surfaces (%d)", sc.Surfaces.Count), fmtSize(sc.Surfaces.Slots)})
	table.Append([]string{"", fmt.Sprintf("Lamps (%d)", sc.Lamps.Count), fmtSize(sc.Lamps.Slots)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Octree", "---", fmtSize(sc.OctreeData)})
	table.Append([]string{"", "Nodes", fmt.Sprint(st.Nodes)})
	table.Append([]string{"", "Leaves", fmt.Sprint(st.Leaves)})
	table.Append([]string{"", "Depth", fmt.Sprint(st.MaxDepth)})
	table.Append([]string{"", "Max prims/node", fmt.Sprint(st.MaxNodePrimitives)})
	if sc.Octree != nil {
		table.Append([]string{"", "Bounds", sc.Octree.Bounds.String()})
	}
	table.SetFooter([]string{"Total", " ", strings.TrimLeft(fmtSize(sc.Surfaces.Slots, sc.Lamps.Slots, sc.OctreeData), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
