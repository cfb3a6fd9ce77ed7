// Package mesh provides the indexed mesh model shared by the splitting tools:
// vertex attribute arrays, primitive batches and deep cloning.
package mesh

import "fmt"

// ArrayKind identifies the role of a vertex attribute array.
type ArrayKind uint8

const (
	KindGeneric ArrayKind = iota
	KindPosition
	KindNormal
	KindColor
	KindTexCoord
)

var kindNames = [...]string{
	KindGeneric:  "generic",
	KindPosition: "position",
	KindNormal:   "normal",
	KindColor:    "color",
	KindTexCoord: "texcoord",
}

func (k ArrayKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseArrayKind parses a kind name as produced by ArrayKind.String.
func ParseArrayKind(s string) (ArrayKind, error) {
	for i, name := range kindNames {
		if name == s {
			return ArrayKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown array kind %q", s)
}

// Array is a homogeneous vertex attribute buffer of Dim-component tuples
// stored flat in Data.
type Array struct {
	Name string
	Kind ArrayKind
	Dim  int
	Data []float32

	// Meta holds auxiliary per-buffer annotations such as bounding corners.
	Meta map[string][]float32
}

// NewArray creates an array of dim-component tuples. The data is copied.
func NewArray(name string, kind ArrayKind, dim int, data []float32) *Array {
	return &Array{
		Name: name,
		Kind: kind,
		Dim:  dim,
		Data: append([]float32(nil), data...),
	}
}

// Len returns the number of tuples in the array.
func (a *Array) Len() int {
	if a.Dim <= 0 {
		return 0
	}
	return len(a.Data) / a.Dim
}

// Element returns the i-th tuple. The slice aliases the array storage.
func (a *Array) Element(i int) []float32 {
	return a.Data[i*a.Dim : (i+1)*a.Dim]
}

// Truncate shrinks the array to at most n tuples.
func (a *Array) Truncate(n int) {
	if n < a.Len() {
		a.Data = a.Data[:n*a.Dim:n*a.Dim]
	}
}

// SetMeta attaches a named annotation to the array.
func (a *Array) SetMeta(key string, value []float32) {
	if a.Meta == nil {
		a.Meta = make(map[string][]float32)
	}
	a.Meta[key] = append([]float32(nil), value...)
}

// MetaValue returns a named annotation.
func (a *Array) MetaValue(key string) ([]float32, bool) {
	v, ok := a.Meta[key]
	return v, ok
}

// Clone returns a deep copy of the array, annotations included.
func (a *Array) Clone() *Array {
	c := &Array{
		Name: a.Name,
		Kind: a.Kind,
		Dim:  a.Dim,
		Data: append([]float32(nil), a.Data...),
	}
	for k, v := range a.Meta {
		c.SetMeta(k, v)
	}
	return c
}

// Mesh is an ordered collection of vertex arrays sharing one vertex index
// space plus an ordered collection of primitive batches.
type Mesh struct {
	Name    string
	Arrays  []*Array
	Batches []*Batch
}

// New creates an empty mesh.
func New(name string) *Mesh {
	return &Mesh{Name: name}
}

// AddArray appends a vertex array and returns it.
func (m *Mesh) AddArray(a *Array) *Array {
	m.Arrays = append(m.Arrays, a)
	return a
}

// AddBatch appends a primitive batch and returns it.
func (m *Mesh) AddBatch(b *Batch) *Batch {
	m.Batches = append(m.Batches, b)
	return b
}

// Positions returns the first position array, or nil.
func (m *Mesh) Positions() *Array {
	for _, a := range m.Arrays {
		if a.Kind == KindPosition {
			return a
		}
	}
	return nil
}

// TexCoords returns all texture coordinate arrays in order.
func (m *Mesh) TexCoords() []*Array {
	var out []*Array
	for _, a := range m.Arrays {
		if a.Kind == KindTexCoord {
			out = append(out, a)
		}
	}
	return out
}

// NumVertices returns the number of vertices addressable by every array,
// i.e. the length of the shortest array.
func (m *Mesh) NumVertices() int {
	if len(m.Arrays) == 0 {
		return 0
	}
	n := m.Arrays[0].Len()
	for _, a := range m.Arrays[1:] {
		if l := a.Len(); l < n {
			n = l
		}
	}
	return n
}

// MaxIndex returns the largest index drawn by any batch.
func (m *Mesh) MaxIndex() (hi uint32, ok bool) {
	for _, b := range m.Batches {
		if v, has := b.Max(); has && (!ok || v > hi) {
			hi, ok = v, true
		}
	}
	return hi, ok
}

// NumPrimitives returns the number of atomic primitives across all batches.
func (m *Mesh) NumPrimitives() int {
	n := 0
	for _, b := range m.Batches {
		n += b.NumPrimitives()
	}
	return n
}

// Prune truncates every vertex array to at most n tuples.
func (m *Mesh) Prune(n int) {
	for _, a := range m.Arrays {
		a.Truncate(n)
	}
}

// Compact truncates every vertex array to the highest referenced index + 1.
// A mesh without batches is left untouched.
func (m *Mesh) Compact() {
	if hi, ok := m.MaxIndex(); ok {
		m.Prune(int(hi) + 1)
	}
}

// Clone returns a deep copy sharing no storage with m.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{Name: m.Name}
	c.Arrays = m.CloneArrays()
	c.Batches = make([]*Batch, len(m.Batches))
	for i, b := range m.Batches {
		c.Batches[i] = b.Clone()
	}
	return c
}

// CloneArrays deep copies the vertex arrays only.
func (m *Mesh) CloneArrays() []*Array {
	arrays := make([]*Array, len(m.Arrays))
	for i, a := range m.Arrays {
		arrays[i] = a.Clone()
	}
	return arrays
}
