package split

import (
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/meshsplit/pkg/mesh"
)

// tracedMesh creates a mesh with n vertices whose position x component is the
// vertex's original id, so primitives can be traced through reorders.
func tracedMesh(name string, n int) *mesh.Mesh {
	m := mesh.New(name)
	pos := make([]float32, 3*n)
	uv := make([]float32, 2*n)
	for i := 0; i < n; i++ {
		pos[3*i] = float32(i)
		pos[3*i+1] = float32(i % 7)
		uv[2*i] = float32(i%11) / 10
		uv[2*i+1] = 1
	}
	m.AddArray(mesh.NewArray("position", mesh.KindPosition, 3, pos))
	m.AddArray(mesh.NewArray("uv", mesh.KindTexCoord, 2, uv))
	return m
}

// disjointTriangles returns indices for n triangles [3i, 3i+1, 3i+2].
func disjointTriangles(n int) []uint32 {
	indices := make([]uint32, 0, 3*n)
	for i := 0; i < n; i++ {
		v := uint32(3 * i)
		indices = append(indices, v, v+1, v+2)
	}
	return indices
}

func originalID(m *mesh.Mesh, index uint32) uint32 {
	return uint32(m.Positions().Element(int(index))[0])
}

// primitiveKey resolves a primitive to sorted original vertex ids.
func primitiveKey(m *mesh.Mesh, b *mesh.Batch, prim []uint32) [4]uint32 {
	var key [4]uint32
	key[0] = uint32(b.Mode)
	ids := make([]int, len(prim))
	for i, v := range prim {
		ids[i] = int(originalID(m, v))
	}
	sort.Ints(ids)
	for i, id := range ids {
		key[i+1] = uint32(id)
	}
	return key
}

// primitiveMultiset counts traced primitives, solid and wireframe separately.
func primitiveMultiset(meshes ...*mesh.Mesh) (solid, wire map[[4]uint32]int) {
	solid = make(map[[4]uint32]int)
	wire = make(map[[4]uint32]int)
	for _, m := range meshes {
		for _, b := range m.Batches {
			for i := 0; i < b.NumPrimitives(); i++ {
				key := primitiveKey(m, b, b.Primitive(i))
				if b.Wireframe {
					wire[key]++
				} else {
					solid[key]++
				}
			}
		}
	}
	return solid, wire
}

// requireBound checks bound satisfaction and compaction safety of every piece.
func requireBound(t *testing.T, res *Result, bound uint32) {
	t.Helper()
	for p, m := range res.Meshes {
		n := m.NumVertices()
		for _, a := range m.Arrays {
			if a.Len() > int(bound)+1 {
				t.Fatalf("piece %d array %s has %d tuples, bound %d", p, a.Name, a.Len(), bound)
			}
		}
		for _, b := range m.Batches {
			for i := 0; i < b.NumIndices(); i++ {
				v := b.Index(i)
				if v > bound {
					t.Fatalf("piece %d index %d exceeds bound %d", p, v, bound)
				}
				if int(v) >= n {
					t.Fatalf("piece %d index %d past %d vertices", p, v, n)
				}
			}
		}
	}
}

// requireWireframeConsistent checks every retained wireframe line has both
// endpoints referenced by solid primitives of the same piece.
func requireWireframeConsistent(t *testing.T, res *Result) {
	t.Helper()
	for p, m := range res.Meshes {
		solid := make(map[uint32]bool)
		for _, b := range m.Batches {
			if b.Wireframe {
				continue
			}
			for _, v := range b.Indices {
				solid[v] = true
			}
		}
		for _, b := range m.Batches {
			if !b.Wireframe {
				continue
			}
			for _, v := range b.Indices {
				if !solid[v] {
					t.Fatalf("piece %d wireframe endpoint %d has no solid primitive", p, v)
				}
			}
		}
	}
}

func newSplitter(t *testing.T, opts Options) *Splitter {
	t.Helper()
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

// counterTotal sums every series of the named counter.
func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
