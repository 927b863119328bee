package octree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/alexd2580/hBalls/types"
)

// Serialized node layout (one Slot per entry):
//
//	[0-2]          lower corner (float32)
//	[3-5]          upper corner (float32)
//	[6]            primitive count k (int32)
//	[7, 7+k)       primitive refs (int32)
//	[7+k, 15+k)    child descriptors (int32)
//	[15+k, ...)    child blocks in octant order
//
// A child descriptor is -1 for an absent octant or the slot offset of the
// child block relative to the first slot of the parent block.
const (
	headerSlots     = 7
	descriptorSlots = 8
	noChild         = -1
	noChildSlot     = Slot(0xffffffff)

	// Upper bound for the nesting depth accepted by Reconstruct.
	MaxDepth = 512
)

// Slot is a 32-bit cell of the flat buffer. Depending on its position it
// holds either the bits of a float32 or an int32.
type Slot = uint32

// Buffer is a flattened tree.
type Buffer []Slot

// Float interprets slot i as a float32.
func (b Buffer) Float(i int) float32 {
	return math.Float32frombits(b[i])
}

// Int interprets slot i as an int32.
func (b Buffer) Int(i int) int32 {
	return int32(b[i])
}

// Bytes returns the little-endian byte image of the buffer. This is the form
// that gets copied into device memory.
func (b Buffer) Bytes() []byte {
	out := make([]byte, 4*len(b))
	for index, slot := range b {
		binary.LittleEndian.PutUint32(out[4*index:], slot)
	}
	return out
}

// BufferFromBytes decodes a little-endian byte image produced by Buffer.Bytes.
func BufferFromBytes(data []byte) (Buffer, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: byte length %d is not a multiple of 4", ErrMalformedBuffer, len(data))
	}
	b := make(Buffer, len(data)/4)
	for index := range b {
		b[index] = binary.LittleEndian.Uint32(data[4*index:])
	}
	return b, nil
}

// Size returns the number of slots required for serializing the tree rooted
// at n.
func Size(n *Node) int {
	size := headerSlots + len(n.Primitives) + descriptorSlots
	for _, child := range n.Children {
		if child != nil {
			size += Size(child)
		}
	}
	return size
}

// Flatten serializes the tree rooted at n into buf starting at offset and
// returns the number of slots written. If buf cannot hold the tree a
// *CapacityError is returned and buf is left untouched.
func Flatten(n *Node, buf []Slot, offset int) (int, error) {
	required := Size(n)
	available := 0
	if offset >= 0 && offset <= len(buf) {
		available = len(buf) - offset
	}
	if available < required {
		return 0, &CapacityError{Required: required, Available: available}
	}

	return flatten(n, buf[offset:]), nil
}

// FlattenBuffer serializes the tree rooted at n into a new, exactly sized
// buffer.
func FlattenBuffer(n *Node) Buffer {
	buf := make(Buffer, Size(n))
	flatten(n, buf)
	return buf
}

// Serialize n at the start of buf. The caller ensures that buf is large enough.
func flatten(n *Node, buf []Slot) int {
	putVec3(buf[0:], n.Bounds.Lower)
	putVec3(buf[3:], n.Bounds.Upper)
	buf[6] = Slot(int32(len(n.Primitives)))

	offset := headerSlots
	for _, ref := range n.Primitives {
		buf[offset] = Slot(ref)
		offset++
	}

	descriptors := offset
	offset += descriptorSlots
	for index, child := range n.Children {
		if child == nil {
			buf[descriptors+index] = noChildSlot
			continue
		}
		buf[descriptors+index] = Slot(int32(offset))
		offset += flatten(child, buf[offset:])
	}

	return offset
}

// Reconstruct decodes the tree whose root block starts at offset. Unlike the
// kernels, which trust the buffer, Reconstruct validates every count and
// offset and returns a *MalformedError for inconsistent input. Child blocks
// must follow their parent's descriptor table back to back in octant order,
// exactly as Flatten writes them, so no block is decoded twice.
func Reconstruct(buf []Slot, offset int) (*Node, error) {
	if offset < 0 || offset >= len(buf) {
		return nil, malformed(offset, "offset outside buffer of %d slots", len(buf))
	}
	n, _, err := reconstruct(buf, offset, 0)
	return n, err
}

// Decode the block at start and return the node along with the number of
// slots its subtree occupies.
func reconstruct(buf []Slot, start, depth int) (*Node, int, error) {
	if depth > MaxDepth {
		return nil, 0, malformed(start, "tree exceeds max depth %d", MaxDepth)
	}
	if len(buf)-start < headerSlots {
		return nil, 0, malformed(start, "truncated header")
	}

	n := &Node{
		Bounds: NewBBox(getVec3(buf[start:]), getVec3(buf[start+3:])),
	}

	count := int(int32(buf[start+6]))
	if count < 0 {
		return nil, 0, malformed(start, "negative primitive count %d", count)
	}
	tableEnd := start + headerSlots + count + descriptorSlots
	if count > len(buf) || tableEnd > len(buf) {
		return nil, 0, malformed(start, "primitive count %d reads past end of buffer", count)
	}

	if count > 0 {
		n.Primitives = make([]PrimitiveRef, count)
		for index := range n.Primitives {
			n.Primitives[index] = PrimitiveRef(buf[start+headerSlots+index])
		}
	}

	descriptors := start + headerSlots + count
	next := tableEnd - start
	for index := 0; index < 8; index++ {
		rel := int(int32(buf[descriptors+index]))
		if rel == noChild {
			continue
		}
		if rel != next {
			return nil, 0, malformed(start, "child %d offset %d; expected %d", index, rel, next)
		}
		if start+rel >= len(buf) {
			return nil, 0, malformed(start, "child %d offset %d past end of buffer", index, rel)
		}

		child, size, err := reconstruct(buf, start+rel, depth+1)
		if err != nil {
			return nil, 0, err
		}
		n.Children[index] = child
		next += size
	}

	return n, next, nil
}

func putVec3(buf []Slot, v types.Vec3) {
	buf[0] = math.Float32bits(v[0])
	buf[1] = math.Float32bits(v[1])
	buf[2] = math.Float32bits(v[2])
}

func getVec3(buf []Slot) types.Vec3 {
	return types.XYZ(
		math.Float32frombits(buf[0]),
		math.Float32frombits(buf[1]),
		math.Float32frombits(buf[2]),
	)
}
