package mesh

// WireframeEdges returns the unique edges of every solid triangle batch as
// line endpoint pairs, in first-seen order. Each triangle contributes its
// three edges (a,b), (b,c), (c,a); an edge shared by two triangles is emitted once.
func WireframeEdges(m *Mesh) []uint32 {
	seen := make(map[[2]uint32]struct{})
	var lines []uint32

	for _, b := range m.Batches {
		if b.Wireframe || b.Mode != ModeTriangles {
			continue
		}
		for i := 0; i < b.NumPrimitives(); i++ {
			tri := b.Primitive(i)
			for e := 0; e < 3; e++ {
				a, c := tri[e], tri[(e+1)%3]
				key := [2]uint32{a, c}
				if c < a {
					key = [2]uint32{c, a}
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				lines = append(lines, a, c)
			}
		}
	}
	return lines
}

// AddWireframeOverlay appends a LINES batch tagged as wireframe that outlines
// every solid triangle. Existing overlays are replaced. Returns the new batch,
// or nil when the mesh has no triangles.
func (m *Mesh) AddWireframeOverlay() *Batch {
	kept := m.Batches[:0]
	for _, b := range m.Batches {
		if !b.Wireframe {
			kept = append(kept, b)
		}
	}
	m.Batches = kept

	lines := WireframeEdges(m)
	if len(lines) == 0 {
		return nil
	}
	return m.AddBatch(NewWireframe(lines...))
}
