package split

import "github.com/Faultbox/meshsplit/pkg/mesh"

// Metadata keys of the per-array bounding corners.
const (
	MetaLowCorner  = "bbl"
	MetaHighCorner = "ufr"
)

// AttachBounds stores the component-wise minimum and maximum of the position
// array and of every texture coordinate array as array metadata. Empty arrays
// are skipped. Indices and vertex data are never modified.
func AttachBounds(m *mesh.Mesh) {
	arrays := m.TexCoords()
	if pos := m.Positions(); pos != nil {
		arrays = append([]*mesh.Array{pos}, arrays...)
	}
	for _, a := range arrays {
		low, high, ok := arrayBounds(a)
		if !ok {
			continue
		}
		a.SetMeta(MetaLowCorner, low)
		a.SetMeta(MetaHighCorner, high)
	}
}

func arrayBounds(a *mesh.Array) (low, high []float32, ok bool) {
	n := a.Len()
	if n == 0 {
		return nil, nil, false
	}
	low = append([]float32(nil), a.Element(0)...)
	high = append([]float32(nil), a.Element(0)...)
	for i := 1; i < n; i++ {
		for c, v := range a.Element(i) {
			if v < low[c] {
				low[c] = v
			}
			if v > high[c] {
				high[c] = v
			}
		}
	}
	return low, high, true
}
