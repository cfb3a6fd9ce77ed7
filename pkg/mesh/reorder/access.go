// Package reorder provides the vertex reordering passes applied before and
// during mesh splitting. Both passes are deterministic and preserve every
// primitive; only the physical position of vertices and indices changes.
package reorder

import "github.com/Faultbox/meshsplit/pkg/mesh"

const unassigned = -1

// ReindexByAccessOrder lays vertices out in first-touch order: walking the
// batches and their indices in order, the n-th distinct vertex referenced is
// moved to position n. Unreferenced vertices follow in their original order.
// Non-indexed batches are converted to 32-bit indexed batches.
func ReindexByAccessOrder(m *mesh.Mesh) {
	count := 0
	for _, a := range m.Arrays {
		if l := a.Len(); l > count {
			count = l
		}
	}
	if hi, ok := m.MaxIndex(); ok && int(hi)+1 > count {
		count = int(hi) + 1
	}
	if count == 0 {
		return
	}

	remap := make([]int, count)
	for i := range remap {
		remap[i] = unassigned
	}
	next := 0
	for _, b := range m.Batches {
		n := b.NumIndices()
		for i := 0; i < n; i++ {
			v := b.Index(i)
			if remap[v] == unassigned {
				remap[v] = next
				next++
			}
		}
	}
	for v := range remap {
		if remap[v] == unassigned {
			remap[v] = next
			next++
		}
	}

	for _, a := range m.Arrays {
		remapArray(a, remap)
	}
	for _, b := range m.Batches {
		remapBatch(b, remap)
	}
}

func remapArray(a *mesh.Array, remap []int) {
	n := a.Len()
	out := make([]float32, n*a.Dim)
	// Arrays shorter than the index space keep their length; vertices mapped
	// past the end are dropped, which only happens for invalid meshes.
	for old := 0; old < n; old++ {
		dst := remap[old]
		if dst >= n {
			continue
		}
		copy(out[dst*a.Dim:(dst+1)*a.Dim], a.Element(old))
	}
	a.Data = out
}

func remapBatch(b *mesh.Batch, remap []int) {
	if !b.Indexed() {
		indices := make([]uint32, b.Count)
		for i := range indices {
			indices[i] = uint32(b.First + i)
		}
		b.Indices = indices
		b.Width = mesh.IndexUInt32
		b.First, b.Count = 0, 0
	}

	var hi uint32
	for i, v := range b.Indices {
		nv := uint32(remap[v])
		b.Indices[i] = nv
		if nv > hi {
			hi = nv
		}
	}
	b.Width = FitWidth(b.Width, hi)
}

// FitWidth returns width, widened if needed so that hi is storable.
func FitWidth(width mesh.IndexWidth, hi uint32) mesh.IndexWidth {
	for width != mesh.IndexUInt32 && hi > width.MaxValue() {
		width++
	}
	return width
}
