package split

import (
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/meshsplit/internal/logger"
	"github.com/Faultbox/meshsplit/internal/metrics"
	"github.com/Faultbox/meshsplit/pkg/mesh"
)

const bound16 = 65535

func observeLogs(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(nil) })
	return logs
}

func TestNew_RejectsSmallBound(t *testing.T) {
	_, err := New(Options{MaxIndex: 1})
	require.ErrorIs(t, err, ErrBoundTooSmall)

	_, err = New(Options{MaxIndex: 10, UnsupportedIndexWidth: WidthPolicy(9)})
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestSplit_NoSplitNeeded(t *testing.T) {
	m := tracedMesh("tri", 3)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, 0, 1, 2))

	res := newSplitter(t, Options{MaxIndex: bound16}).Split(m)

	require.True(t, res.Eligible)
	require.False(t, res.Split)
	require.Len(t, res.Meshes, 1)
	out := res.Meshes[0]
	require.NotSame(t, m, out, "output must be independently owned")
	require.Equal(t, []uint32{0, 1, 2}, out.Batches[0].Indices)
	require.Equal(t, m.Arrays[0].Data, out.Arrays[0].Data)

	// No bounds metadata on the no-op path.
	_, ok := out.Positions().MetaValue(MetaLowCorner)
	require.False(t, ok)
}

func TestSplit_NoOpPathPreservesPrimitives(t *testing.T) {
	m := tracedMesh("grid", 64)
	rng := rand.New(rand.NewSource(7))
	var indices []uint32
	for i := 0; i < 40; i++ {
		indices = append(indices, uint32(rng.Intn(64)), uint32(rng.Intn(64)), uint32(rng.Intn(64)))
	}
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, indices...))

	res := newSplitter(t, Options{MaxIndex: 100}).Split(m)

	require.Len(t, res.Meshes, 1)
	wantSolid, _ := primitiveMultiset(m)
	gotSolid, _ := primitiveMultiset(res.Meshes[0])
	require.Equal(t, wantSolid, gotSolid)
	require.Equal(t, m.Arrays[0].Data, res.Meshes[0].Arrays[0].Data, "vertex content must not change")
}

func TestSplit_OverflowAt70000(t *testing.T) {
	const tris = 23334 // 70002 vertices
	m := tracedMesh("big", 3*tris)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(tris)...))
	input := m.Clone()

	res := newSplitter(t, Options{MaxIndex: bound16}).Split(m)

	require.True(t, res.Split)
	require.GreaterOrEqual(t, len(res.Meshes), 2)
	requireBound(t, res, bound16)

	// Piece 0 holds every triangle whose original indices were all in bound.
	first, _ := primitiveMultiset(res.Meshes[0])
	for key := range first {
		require.LessOrEqual(t, key[3], uint32(bound16))
	}
	require.Len(t, first, bound16/3)

	// The triangle referencing 70000 lives in a later piece.
	target := [4]uint32{uint32(mesh.ModeTriangles), 69999, 70000, 70001}
	found := -1
	for p, piece := range res.Meshes {
		solid, _ := primitiveMultiset(piece)
		if solid[target] > 0 {
			found = p
		}
	}
	require.Greater(t, found, 0)

	// Primitive conservation.
	want, _ := primitiveMultiset(input)
	got, _ := primitiveMultiset(res.Meshes...)
	require.Equal(t, want, got)

	// Input untouched.
	require.Equal(t, input.Batches[0].Indices, m.Batches[0].Indices)
	require.Equal(t, input.Arrays[0].Data, m.Arrays[0].Data)
}

func TestSplit_BoundsAttachedWhenSplitting(t *testing.T) {
	m := tracedMesh("bounds", 30)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(10)...))

	res := newSplitter(t, Options{MaxIndex: 8}).Split(m)
	require.True(t, res.Split)

	for _, piece := range res.Meshes {
		low, ok := piece.Positions().MetaValue(MetaLowCorner)
		require.True(t, ok)
		high, _ := piece.Positions().MetaValue(MetaHighCorner)
		require.Equal(t, []float32{0, 0, 0}, low)
		require.Equal(t, []float32{29, 6, 0}, high)
	}
	_, ok := m.Positions().MetaValue(MetaLowCorner)
	require.False(t, ok, "input must not be annotated")
}

func TestSplit_WireframeFollowsSharedTriangle(t *testing.T) {
	const tris = 23334
	m := tracedMesh("wire-shared", 3*tris)
	indices := disjointTriangles(tris)
	// 5 and 70000 share an overflowing triangle.
	indices = append(indices, 5, 70000, 69999)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, indices...))
	m.AddBatch(mesh.NewWireframe(5, 70000))

	res := newSplitter(t, Options{MaxIndex: bound16}).Split(m)

	require.Zero(t, res.DroppedLines)
	requireBound(t, res, bound16)
	requireWireframeConsistent(t, res)

	line := [4]uint32{uint32(mesh.ModeLines), 5, 70000, 0}
	hosts := 0
	for _, piece := range res.Meshes {
		_, wire := primitiveMultiset(piece)
		hosts += wire[line]
	}
	require.Equal(t, 1, hosts, "line must be kept in exactly one piece")
}

func TestSplit_WireframeDroppedWithoutHost(t *testing.T) {
	const tris = 23334
	m := tracedMesh("wire-orphan", 3*tris)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(tris)...))
	m.AddBatch(mesh.NewWireframe(5, 70000, 0, 1))
	logs := observeLogs(t, zapcore.WarnLevel)

	res := newSplitter(t, Options{MaxIndex: bound16, DisablePostTransform: true}).Split(m)

	require.Equal(t, 1, res.DroppedLines)
	requireWireframeConsistent(t, res)

	_, wire := primitiveMultiset(res.Meshes...)
	require.Equal(t, map[[4]uint32]int{{uint32(mesh.ModeLines), 0, 1, 0}: 1}, wire)
	require.Equal(t, 1, logs.FilterMessage("wireframe lines dropped").Len())
}

func TestSplit_ManyIterations(t *testing.T) {
	const vertices = 600
	m := tracedMesh("random", vertices)
	rng := rand.New(rand.NewSource(42))
	var tris []uint32
	for i := 0; i < 900; i++ {
		tris = append(tris, uint32(rng.Intn(vertices)), uint32(rng.Intn(vertices)), uint32(rng.Intn(vertices)))
	}
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, tris...))
	m.AddBatch(mesh.NewElements(mesh.ModePoints, mesh.IndexUInt32, 0, 599, 300, 42))
	m.AddBatch(mesh.NewElements(mesh.ModeLines, mesh.IndexUInt32, 1, 598, 2, 3))
	m.AddWireframeOverlay()

	const bound = 40
	res := newSplitter(t, Options{MaxIndex: bound}).Split(m)

	require.Greater(t, res.Iterations, 2)
	require.Equal(t, res.Iterations, len(res.Meshes))
	requireBound(t, res, bound)
	requireWireframeConsistent(t, res)

	wantSolid, wantWire := primitiveMultiset(m)
	gotSolid, gotWire := primitiveMultiset(res.Meshes...)
	require.Equal(t, wantSolid, gotSolid)

	kept := 0
	for key, n := range gotWire {
		require.LessOrEqual(t, n, wantWire[key], "wireframe line duplicated")
		kept += n
	}
	wantLines := 0
	for _, n := range wantWire {
		wantLines += n
	}
	require.Equal(t, wantLines, kept+res.DroppedLines)
}

func TestSplit_PiecesShareNoStorage(t *testing.T) {
	m := tracedMesh("owned", 30)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(10)...))

	res := newSplitter(t, Options{MaxIndex: 5}).Split(m)
	require.Greater(t, len(res.Meshes), 1)

	res.Meshes[0].Arrays[0].Data[0] = -1
	res.Meshes[0].Positions().Meta[MetaLowCorner][0] = -1
	for _, piece := range res.Meshes[1:] {
		require.NotEqual(t, float32(-1), piece.Arrays[0].Data[0])
		require.NotEqual(t, float32(-1), piece.Positions().Meta[MetaLowCorner][0])
	}
}

func TestSplit_Ineligible(t *testing.T) {
	tests := []struct {
		name  string
		batch *mesh.Batch
	}{
		{"draw arrays", mesh.NewArrays(mesh.ModeTriangles, 0, 3)},
		{"triangle strip", mesh.NewElements(mesh.ModeTriangleStrip, mesh.IndexUInt32, 0, 1, 2, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observeLogs(t, zapcore.WarnLevel)
			reg := prometheus.NewRegistry()
			met := metrics.New(reg)

			m := tracedMesh("bad", 70001)
			m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, 0, 1, 70000))
			m.AddBatch(tt.batch)

			res := newSplitter(t, Options{MaxIndex: bound16, Metrics: met}).Split(m)

			require.False(t, res.Eligible)
			require.Len(t, res.Meshes, 1)
			require.Same(t, m, res.Meshes[0])
			require.Equal(t, 1, logs.FilterMessage("mesh left unsplit").Len())

			count, err := testutil.GatherAndCount(reg, "meshsplit_meshes_ineligible_total")
			require.NoError(t, err)
			require.Equal(t, 1, count)
		})
	}
}

func TestSplit_MalformedWireframeDropped(t *testing.T) {
	logs := observeLogs(t, zapcore.WarnLevel)
	m := tracedMesh("malformed", 30)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(10)...))
	bad := mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, 0, 1, 2)
	bad.Wireframe = true
	m.AddBatch(bad)

	res := newSplitter(t, Options{MaxIndex: 5}).Split(m)

	require.True(t, res.Eligible)
	for _, piece := range res.Meshes {
		for _, b := range piece.Batches {
			require.False(t, b.Wireframe)
		}
	}
	require.Equal(t, 1, logs.FilterMessage("malformed wireframe batch dropped").Len())
}

func TestSplit_OutOfRangeWireframeDropped(t *testing.T) {
	logs := observeLogs(t, zapcore.WarnLevel)

	solidOnly := tracedMesh("stray", 9)
	solidOnly.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(3)...))
	want, _ := primitiveMultiset(solidOnly)

	// The overlay comes first so a reindex would visit index 50 before any solid vertex.
	m := tracedMesh("stray", 9)
	m.AddBatch(mesh.NewWireframe(0, 50))
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(3)...))
	require.True(t, IsEligible(m))

	res := newSplitter(t, Options{MaxIndex: 4, DisablePostTransform: true}).Split(m)

	require.True(t, res.Split)
	requireBound(t, res, 4)
	got, wires := primitiveMultiset(res.Meshes...)
	require.Equal(t, want, got)
	require.Empty(t, wires)
	require.Equal(t, 1, res.DroppedLines)
	require.Equal(t, 1, logs.FilterMessage("malformed wireframe batch dropped").Len())
}

func TestSplit_NoSplitDropsMalformedWireframe(t *testing.T) {
	tests := []struct {
		name  string
		batch *mesh.Batch
		lines int
	}{
		{"out of range", mesh.NewWireframe(0, 7), 1},
		{"incomplete line", mesh.NewWireframe(0, 1, 2), 1},
		{"not lines", &mesh.Batch{Mode: mesh.ModeLineStrip, Width: mesh.IndexUInt32, Indices: []uint32{0, 1, 2}, Wireframe: true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := observeLogs(t, zapcore.WarnLevel)
			reg := prometheus.NewRegistry()
			met := metrics.New(reg)

			m := tracedMesh("small", 3)
			m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, 0, 1, 2))
			m.AddBatch(tt.batch)

			res := newSplitter(t, Options{MaxIndex: bound16, Metrics: met}).Split(m)

			require.False(t, res.Split)
			require.Len(t, res.Meshes, 1)
			require.Len(t, res.Meshes[0].Batches, 1)
			require.False(t, res.Meshes[0].Batches[0].Wireframe)
			require.Equal(t, tt.lines, res.DroppedLines)
			require.Equal(t, 1, logs.FilterMessage("malformed wireframe batch dropped").Len())
			require.Len(t, m.Batches, 2, "input keeps its overlay")
			require.Equal(t, float64(tt.lines), counterTotal(t, reg, "meshsplit_wireframe_lines_dropped_total"))
		})
	}
}

func TestSplit_NoSplitKeepsNarrowWidth(t *testing.T) {
	m := tracedMesh("narrow", 6)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt16, 0, 1, 2, 3, 4, 5))
	m.AddBatch(mesh.NewElements(mesh.ModePoints, mesh.IndexUInt8, 5))

	res := newSplitter(t, Options{MaxIndex: bound16, UnsupportedIndexWidth: PolicyUpgrade}).Split(m)

	require.False(t, res.Split)
	require.Len(t, res.Meshes, 1)
	require.Equal(t, mesh.IndexUInt16, res.Meshes[0].Batches[0].Width)
	require.Equal(t, mesh.IndexUInt8, res.Meshes[0].Batches[1].Width)
}

func narrowWidthMesh() *mesh.Mesh {
	m := tracedMesh("narrow", 153)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(50)...))
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt16, 150, 151, 152))
	return m
}

func TestSplit_UnsupportedWidthUpgrade(t *testing.T) {
	m := narrowWidthMesh()
	res := newSplitter(t, Options{MaxIndex: 100, UnsupportedIndexWidth: PolicyUpgrade}).Split(m)

	requireBound(t, res, 100)
	want, _ := primitiveMultiset(m)
	got, _ := primitiveMultiset(res.Meshes...)
	require.Equal(t, want, got)
	for _, piece := range res.Meshes {
		for _, b := range piece.Batches {
			require.Equal(t, mesh.IndexUInt32, b.Width)
		}
	}
	require.Equal(t, mesh.IndexUInt16, m.Batches[1].Width, "input must keep its width")
}

func TestSplit_UnsupportedWidthSkip(t *testing.T) {
	logs := observeLogs(t, zapcore.DebugLevel)
	m := narrowWidthMesh()

	res := newSplitter(t, Options{
		MaxIndex:              100,
		UnsupportedIndexWidth: PolicySkip,
		DisablePostTransform:  true,
	}).Split(m)

	want, _ := primitiveMultiset(m)
	got, _ := primitiveMultiset(res.Meshes...)
	require.Equal(t, want, got)

	narrow := 0
	for _, piece := range res.Meshes {
		for _, b := range piece.Batches {
			if b.Width == mesh.IndexUInt16 {
				narrow++
				require.Equal(t, 3, b.NumIndices())
				// Compaction never invalidates kept batches.
				hi, _ := b.Max()
				require.Less(t, int(hi), piece.NumVertices())
			}
		}
	}
	require.Equal(t, 1, narrow)
	require.Equal(t, 1, logs.FilterMessage("overflowing batch kept unsplit").Len())
}

func TestSplit_UnsupportedWidthReject(t *testing.T) {
	m := narrowWidthMesh()
	res := newSplitter(t, Options{MaxIndex: 100, UnsupportedIndexWidth: PolicyReject}).Split(m)
	require.False(t, res.Eligible)
	require.Same(t, m, res.Meshes[0])

	// A narrow batch within the bound is harmless under reject.
	ok := tracedMesh("narrow-ok", 9)
	ok.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(3)...))
	ok.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt8, 0, 1, 2))
	res = newSplitter(t, Options{MaxIndex: 4, UnsupportedIndexWidth: PolicyReject}).Split(ok)
	require.True(t, res.Eligible)
}

func TestSplit_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	s := newSplitter(t, Options{MaxIndex: 5, Metrics: met})

	m := tracedMesh("m", 30)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, disjointTriangles(10)...))
	res := s.Split(m)

	small := tracedMesh("small", 3)
	small.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, 0, 1, 2))
	s.Split(small)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	require.Equal(t, 2.0, values["meshsplit_meshes_processed_total"])
	require.Equal(t, 1.0, values["meshsplit_meshes_split_total"])
	require.Equal(t, float64(len(res.Meshes)+1), values["meshsplit_pieces_emitted_total"])
}

type lazyReorderer struct{}

func (lazyReorderer) OptimizeForCacheLocality(*mesh.Mesh) {}
func (lazyReorderer) ReindexByAccessOrder(*mesh.Mesh)     {}

func TestSplit_ProgressGuard(t *testing.T) {
	logs := observeLogs(t, zapcore.WarnLevel)
	m := tracedMesh("stuck", 30)
	m.AddBatch(mesh.NewElements(mesh.ModeTriangles, mesh.IndexUInt32, 20, 21, 22, 0, 1, 2))

	// Without reindexing, the residual [20 21 22] never moves below the bound.
	res := newSplitter(t, Options{MaxIndex: 5, Reorderer: lazyReorderer{}}).Split(m)

	require.Len(t, res.Meshes, 2)
	want, _ := primitiveMultiset(m)
	got, _ := primitiveMultiset(res.Meshes...)
	require.Equal(t, want, got)
	require.Equal(t, 1, logs.FilterMessage("partitioning made no progress, emitting residual unsplit").Len())
}
