package reorder

import (
	"math"

	"github.com/Faultbox/meshsplit/pkg/mesh"
)

// Vertex scoring constants of the linear-speed vertex cache optimisation
// (Tom Forsyth, 2006).
const (
	DefaultCacheSize = 32

	cacheDecayPower   = 1.5
	lastTriScore      = 0.75
	valenceBoostScale = 2.0
	valenceBoostPower = 0.5
)

// CacheOptimizer reorders triangles for post-transform vertex cache locality.
type CacheOptimizer struct {
	CacheSize int
}

// NewCacheOptimizer returns an optimizer simulating a cache of DefaultCacheSize entries.
func NewCacheOptimizer() *CacheOptimizer {
	return &CacheOptimizer{CacheSize: DefaultCacheSize}
}

// OptimizeCache reorders m with a default CacheOptimizer.
func OptimizeCache(m *mesh.Mesh) {
	NewCacheOptimizer().Optimize(m)
}

// Optimize reorders the triangles of every solid triangle batch in place.
// Points, lines and wireframe overlays keep their order.
func (o *CacheOptimizer) Optimize(m *mesh.Mesh) {
	size := o.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	for _, b := range m.Batches {
		if b.Wireframe || b.Mode != mesh.ModeTriangles || !b.Indexed() {
			continue
		}
		o.optimizeBatch(b, size)
	}
}

type cacheVertex struct {
	score     float64
	cachePos  int
	remaining int
	tris      []int
}

func vertexScore(v *cacheVertex, cacheSize int) float64 {
	if v.remaining == 0 {
		return -1
	}
	score := 0.0
	switch {
	case v.cachePos < 0:
	case v.cachePos < 3:
		score = lastTriScore
	default:
		scaler := 1.0 / float64(cacheSize-3)
		score = math.Pow(1.0-float64(v.cachePos-3)*scaler, cacheDecayPower)
	}
	return score + valenceBoostScale*math.Pow(float64(v.remaining), -valenceBoostPower)
}

func (o *CacheOptimizer) optimizeBatch(b *mesh.Batch, cacheSize int) {
	numTris := b.NumPrimitives()
	if numTris < 2 {
		return
	}

	// Map sparse vertex ids to dense local slots.
	local := make(map[uint32]int)
	var verts []cacheVertex
	triVerts := make([][3]int, numTris)
	for t := 0; t < numTris; t++ {
		for k, v := range b.Primitive(t) {
			slot, ok := local[v]
			if !ok {
				slot = len(verts)
				local[v] = slot
				verts = append(verts, cacheVertex{cachePos: -1})
			}
			verts[slot].remaining++
			verts[slot].tris = append(verts[slot].tris, t)
			triVerts[t][k] = slot
		}
	}

	for i := range verts {
		verts[i].score = vertexScore(&verts[i], cacheSize)
	}
	triScore := make([]float64, numTris)
	emitted := make([]bool, numTris)
	for t := range triVerts {
		for _, s := range triVerts[t] {
			triScore[t] += verts[s].score
		}
	}

	best := 0
	for t := 1; t < numTris; t++ {
		if triScore[t] > triScore[best] {
			best = t
		}
	}

	out := make([]uint32, 0, numTris*3)
	cache := make([]int, 0, cacheSize+3)
	cursor := 0

	for n := 0; n < numTris; n++ {
		if best < 0 {
			for emitted[cursor] {
				cursor++
			}
			best = cursor
		}

		emitted[best] = true
		prim := b.Primitive(best)
		out = append(out, prim[0], prim[1], prim[2])

		for _, s := range triVerts[best] {
			verts[s].remaining--
		}

		// Move the triangle's vertices to the front of the simulated cache.
		next := make([]int, 0, cacheSize+3)
		next = append(next, triVerts[best][:]...)
		for _, s := range cache {
			if s != triVerts[best][0] && s != triVerts[best][1] && s != triVerts[best][2] {
				next = append(next, s)
			}
		}
		for i, s := range next {
			if i < cacheSize {
				verts[s].cachePos = i
			} else {
				verts[s].cachePos = -1
			}
			verts[s].score = vertexScore(&verts[s], cacheSize)
		}
		if len(next) > cacheSize {
			next = next[:cacheSize]
		}
		cache = next

		best = -1
		bestScore := -1.0
		for _, s := range cache {
			for _, t := range verts[s].tris {
				if emitted[t] {
					continue
				}
				score := 0.0
				for _, v := range triVerts[t] {
					score += verts[v].score
				}
				triScore[t] = score
				if score > bestScore {
					best, bestScore = t, score
				}
			}
		}
	}

	b.Indices = out
}
