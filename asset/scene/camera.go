package scene

import (
	"fmt"
	"math"

	"github.com/alexd2580/hBalls/octree"
	"github.com/alexd2580/hBalls/types"
	"github.com/pkg/errors"
)

// Number of slots in the kernel camera argument block.
const CameraBlockSlots = 17

var ErrInvalidCamera = errors.New("scene: invalid camera")

// The camera type describes the scene camera as an orthonormal basis.
type Camera struct {
	Position types.Vec3
	Dir      types.Vec3
	Up       types.Vec3
	Left     types.Vec3

	// Vertical field of view in degrees.
	FOV float32
}

// Create a camera at eye looking at the look point. The supplied up vector is
// only a hint; it is re-orthogonalized against the view direction.
func NewCamera(fov float32, eye, look, up types.Vec3) (*Camera, error) {
	dir := look.Sub(eye)
	if dir.Len() == 0 {
		return nil, errors.Wrapf(ErrInvalidCamera, "eye and look point coincide at %v", eye)
	}
	if fov <= 0 || fov >= 180 {
		return nil, errors.Wrapf(ErrInvalidCamera, "field of view %g outside (0, 180)", fov)
	}

	dir = dir.Normalize()
	left := up.Cross(dir)
	if left.Len() == 0 {
		return nil, errors.Wrapf(ErrInvalidCamera, "up vector %v is parallel to the view direction", up)
	}
	left = left.Normalize()

	return &Camera{
		Position: eye,
		Dir:      dir,
		Up:       dir.Cross(left),
		Left:     left,
		FOV:      fov,
	}, nil
}

// The camera used when a scene does not define one.
func DefaultCamera() *Camera {
	cam, _ := NewCamera(45, types.XYZ(0, 0, 0), types.XYZ(0, 0, -1), types.XYZ(0, 1, 0))
	return cam
}

// Block packs the camera into the kernel argument layout:
//
//	[0] fov, [1] aspect, [2-4] position, [5-7] dir, [8-10] up, [11-13] left,
//	[14] width, [15] height, [16] primitive count
func (c *Camera) Block(width, height, primitives int) [CameraBlockSlots]octree.Slot {
	var block [CameraBlockSlots]octree.Slot
	block[0] = math.Float32bits(c.FOV)
	block[1] = math.Float32bits(float32(width) / float32(height))
	for index, v := range []types.Vec3{c.Position, c.Dir, c.Up, c.Left} {
		for axis := 0; axis < 3; axis++ {
			block[2+3*index+axis] = math.Float32bits(v[axis])
		}
	}
	block[14] = octree.Slot(int32(width))
	block[15] = octree.Slot(int32(height))
	block[16] = octree.Slot(int32(primitives))
	return block
}

// CameraFromBlock restores a camera from a packed argument block and returns
// it together with the frame width, height and primitive count.
func CameraFromBlock(block []octree.Slot) (*Camera, int, int, int, error) {
	if len(block) != CameraBlockSlots {
		return nil, 0, 0, 0, errors.Wrapf(ErrInvalidCamera, "expected %d slots; got %d", CameraBlockSlots, len(block))
	}
	b := octree.Buffer(block)
	vec := func(offset int) types.Vec3 {
		return types.XYZ(b.Float(offset), b.Float(offset+1), b.Float(offset+2))
	}
	cam := &Camera{
		FOV:      b.Float(0),
		Position: vec(2),
		Dir:      vec(5),
		Up:       vec(8),
		Left:     vec(11),
	}
	return cam, int(b.Int(14)), int(b.Int(15)), int(b.Int(16)), nil
}

func (c *Camera) String() string {
	return fmt.Sprintf("fov %g pos %v dir %v up %v left %v", c.FOV, c.Position, c.Dir, c.Up, c.Left)
}
