package mesh

import (
	"fmt"
	"strings"
)

// Mode is the drawing mode of a primitive batch.
type Mode uint8

// Drawing modes. Only points, lines and triangles can be partitioned.
const (
	ModePoints Mode = iota
	ModeLines
	ModeLineStrip
	ModeLineLoop
	ModeTriangles
	ModeTriangleStrip
	ModeTriangleFan
)

var modeNames = [...]string{
	ModePoints:        "points",
	ModeLines:         "lines",
	ModeLineStrip:     "line_strip",
	ModeLineLoop:      "line_loop",
	ModeTriangles:     "triangles",
	ModeTriangleStrip: "triangle_strip",
	ModeTriangleFan:   "triangle_fan",
}

// String returns the lowercase mode name.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// PrimitiveSize returns the number of indices forming one atomic primitive,
// or 0 for modes whose primitives share indices (strips, fans, loops).
func (m Mode) PrimitiveSize() int {
	switch m {
	case ModePoints:
		return 1
	case ModeLines:
		return 2
	case ModeTriangles:
		return 3
	default:
		return 0
	}
}

// ParseMode parses a mode name as produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown drawing mode %q", s)
}

// IndexWidth is the storage width of a batch's index list.
// IndexNone marks a non-indexed batch drawn from a contiguous vertex range.
type IndexWidth uint8

const (
	IndexNone IndexWidth = iota
	IndexUInt8
	IndexUInt16
	IndexUInt32
)

// String returns the width name.
func (w IndexWidth) String() string {
	switch w {
	case IndexNone:
		return "none"
	case IndexUInt8:
		return "uint8"
	case IndexUInt16:
		return "uint16"
	case IndexUInt32:
		return "uint32"
	default:
		return fmt.Sprintf("width(%d)", uint8(w))
	}
}

// MaxValue returns the largest index storable at this width.
func (w IndexWidth) MaxValue() uint32 {
	switch w {
	case IndexUInt8:
		return 0xFF
	case IndexUInt16:
		return 0xFFFF
	case IndexUInt32:
		return 0xFFFFFFFF
	default:
		return 0
	}
}

// ParseIndexWidth parses a width name as produced by IndexWidth.String.
func ParseIndexWidth(s string) (IndexWidth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return IndexNone, nil
	case "uint8", "ubyte":
		return IndexUInt8, nil
	case "uint16", "ushort":
		return IndexUInt16, nil
	case "uint32", "uint":
		return IndexUInt32, nil
	}
	return 0, fmt.Errorf("unknown index width %q", s)
}

// Batch is a primitive batch: a drawing mode plus either an index list
// (indexed) or a contiguous vertex range (non-indexed).
type Batch struct {
	Mode    Mode
	Width   IndexWidth
	Indices []uint32

	// First and Count describe the vertex range of a non-indexed batch.
	First int
	Count int

	// Wireframe tags a LINES batch outlining the solid geometry of the mesh.
	Wireframe bool
}

// NewElements creates an indexed batch. The slice is copied.
func NewElements(mode Mode, width IndexWidth, indices ...uint32) *Batch {
	return &Batch{
		Mode:    mode,
		Width:   width,
		Indices: append([]uint32(nil), indices...),
	}
}

// NewArrays creates a non-indexed batch drawing count vertices from first.
func NewArrays(mode Mode, first, count int) *Batch {
	return &Batch{Mode: mode, Width: IndexNone, First: first, Count: count}
}

// NewWireframe creates a LINES batch tagged as wireframe overlay.
func NewWireframe(indices ...uint32) *Batch {
	b := NewElements(ModeLines, IndexUInt32, indices...)
	b.Wireframe = true
	return b
}

// Indexed reports whether the batch stores an index list.
func (b *Batch) Indexed() bool {
	return b.Width != IndexNone
}

// NumIndices returns the number of vertices the batch draws.
func (b *Batch) NumIndices() int {
	if !b.Indexed() {
		return b.Count
	}
	return len(b.Indices)
}

// Index returns the i-th vertex index drawn by the batch.
func (b *Batch) Index(i int) uint32 {
	if !b.Indexed() {
		return uint32(b.First + i)
	}
	return b.Indices[i]
}

// Max returns the largest index drawn. ok is false for an empty batch.
func (b *Batch) Max() (hi uint32, ok bool) {
	n := b.NumIndices()
	for i := 0; i < n; i++ {
		if v := b.Index(i); !ok || v > hi {
			hi, ok = v, true
		}
	}
	return hi, ok
}

// NumPrimitives returns the number of complete atomic primitives.
func (b *Batch) NumPrimitives() int {
	size := b.Mode.PrimitiveSize()
	if size == 0 {
		return 0
	}
	return b.NumIndices() / size
}

// Primitive returns the indices of the i-th atomic primitive. The returned
// slice aliases the batch storage for indexed batches.
func (b *Batch) Primitive(i int) []uint32 {
	size := b.Mode.PrimitiveSize()
	if b.Indexed() {
		return b.Indices[i*size : (i+1)*size]
	}
	prim := make([]uint32, size)
	for k := range prim {
		prim[k] = uint32(b.First + i*size + k)
	}
	return prim
}

// Empty reports whether the batch draws nothing.
func (b *Batch) Empty() bool {
	return b.NumIndices() == 0
}

// Clone returns a deep copy of the batch.
func (b *Batch) Clone() *Batch {
	c := *b
	if b.Indices != nil {
		c.Indices = append([]uint32(nil), b.Indices...)
	}
	return &c
}

// Derive returns an empty indexed batch sharing mode, width and wireframe tag.
func (b *Batch) Derive() *Batch {
	width := b.Width
	if width == IndexNone {
		width = IndexUInt32
	}
	return &Batch{Mode: b.Mode, Width: width, Wireframe: b.Wireframe}
}
