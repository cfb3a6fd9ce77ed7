package split

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/meshsplit/internal/logger"
	"github.com/Faultbox/meshsplit/internal/metrics"
	"github.com/Faultbox/meshsplit/pkg/mesh"
	"github.com/Faultbox/meshsplit/pkg/mesh/reorder"
)

// Reorderer relocates vertices and primitives without changing the set of
// primitives or the geometry an index refers to.
type Reorderer interface {
	// OptimizeForCacheLocality reorders primitives for vertex cache reuse.
	OptimizeForCacheLocality(m *mesh.Mesh)
	// ReindexByAccessOrder lays vertices out in first-touch order.
	ReindexByAccessOrder(m *mesh.Mesh)
}

type defaultReorderer struct {
	cache *reorder.CacheOptimizer
}

func (r defaultReorderer) OptimizeForCacheLocality(m *mesh.Mesh) { r.cache.Optimize(m) }
func (r defaultReorderer) ReindexByAccessOrder(m *mesh.Mesh)     { reorder.ReindexByAccessOrder(m) }

// Options configures a Splitter.
type Options struct {
	// MaxIndex is the inclusive index bound of every output mesh.
	MaxIndex uint32
	// DisablePostTransform skips the cache-locality pass.
	DisablePostTransform bool
	// UnsupportedIndexWidth decides the fate of overflowing 8/16-bit batches.
	UnsupportedIndexWidth WidthPolicy
	// CacheSize is the simulated vertex cache size; 0 uses the default.
	CacheSize int
	// Reorderer overrides the built-in reordering passes.
	Reorderer Reorderer
	// Metrics receives split counters; may be nil.
	Metrics *metrics.Metrics
}

// Result is the outcome of splitting one mesh.
type Result struct {
	// Meshes holds the output in emission order. It is never empty.
	Meshes []*mesh.Mesh
	// Eligible is false when the input was passed through unchanged.
	Eligible bool
	// Split is true when the input exceeded the bound.
	Split bool
	// Iterations counts partitioning rounds.
	Iterations int
	// DroppedLines counts wireframe lines that no output piece could host.
	DroppedLines int
}

// Splitter partitions meshes against a fixed index bound.
// It holds no per-mesh state and is safe for concurrent use.
type Splitter struct {
	opts      Options
	reorderer Reorderer
}

// New creates a Splitter.
func New(opts Options) (*Splitter, error) {
	if opts.MaxIndex < MinBound {
		return nil, fmt.Errorf("max index %d: %w", opts.MaxIndex, ErrBoundTooSmall)
	}
	switch opts.UnsupportedIndexWidth {
	case PolicyUpgrade, PolicySkip, PolicyReject:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolicy, opts.UnsupportedIndexWidth)
	}

	r := opts.Reorderer
	if r == nil {
		cache := reorder.NewCacheOptimizer()
		if opts.CacheSize > 0 {
			cache.CacheSize = opts.CacheSize
		}
		r = defaultReorderer{cache: cache}
	}
	return &Splitter{opts: opts, reorderer: r}, nil
}

// MaxIndex returns the configured bound.
func (s *Splitter) MaxIndex() uint32 {
	return s.opts.MaxIndex
}

// Split partitions m. The input is never modified: every output mesh owns its
// arrays and batches, except for an ineligible mesh, which is returned as is.
func (s *Splitter) Split(m *mesh.Mesh) *Result {
	s.opts.Metrics.MeshProcessed()

	if err := s.validate(m); err != nil {
		logger.Warn("mesh left unsplit",
			zap.String("mesh", m.Name),
			zap.Error(err))
		s.opts.Metrics.MeshIneligible(reason(err))
		return &Result{Meshes: []*mesh.Mesh{m}}
	}

	work := m.Clone()
	res := &Result{Eligible: true}
	res.DroppedLines = dropMalformedWireframes(work)

	if !NeedsSplit(work, s.opts.MaxIndex) {
		if !s.opts.DisablePostTransform {
			s.reorderer.OptimizeForCacheLocality(work)
		}
		res.Meshes = []*mesh.Mesh{work}
		s.opts.Metrics.PiecesEmitted(1)
		s.opts.Metrics.WireframeDropped(res.DroppedLines)
		return res
	}

	res.Split = true
	if s.opts.UnsupportedIndexWidth == PolicyUpgrade {
		upgradeWidths(work)
	}
	if !s.opts.DisablePostTransform {
		s.reorderer.OptimizeForCacheLocality(work)
	}
	AttachBounds(work)
	s.reorderer.ReindexByAccessOrder(work)

	for work != nil {
		res.Iterations++
		var piece *mesh.Mesh
		var dropped int
		piece, work, dropped = s.step(work)
		res.Meshes = append(res.Meshes, piece)
		res.DroppedLines += dropped

		if work != nil {
			if !s.opts.DisablePostTransform {
				s.reorderer.OptimizeForCacheLocality(work)
			}
			s.reorderer.ReindexByAccessOrder(work)
		}
	}

	logger.Debug("mesh split",
		zap.String("mesh", m.Name),
		zap.Uint32("max_index", s.opts.MaxIndex),
		zap.Int("pieces", len(res.Meshes)),
		zap.Int("iterations", res.Iterations))

	s.opts.Metrics.MeshSplit(res.Iterations)
	s.opts.Metrics.PiecesEmitted(len(res.Meshes))
	s.opts.Metrics.WireframeDropped(res.DroppedLines)
	return res
}

// validate applies the structural checks plus the reject policy.
func (s *Splitter) validate(m *mesh.Mesh) error {
	if err := Validate(m); err != nil {
		return err
	}
	if s.opts.UnsupportedIndexWidth != PolicyReject {
		return nil
	}
	for i, b := range m.Batches {
		if b.Wireframe || partitionable(b) {
			continue
		}
		if hi, ok := b.Max(); ok && hi > s.opts.MaxIndex {
			return fmt.Errorf("batch %d (%s): %w", i, b.Width, ErrUnsupportedIndexWidth)
		}
	}
	return nil
}

// step runs one partitioning round on w. It returns the emitted piece and the
// residual mesh carrying the overflow, or a nil residual when w needed no
// further split. dropped counts wireframe lines discarded this round.
func (s *Splitter) step(w *mesh.Mesh) (piece, residual *mesh.Mesh, dropped int) {
	bound := s.opts.MaxIndex

	var inBound, overflow, wires []*mesh.Batch
	solidKept := 0
	for i, b := range w.Batches {
		switch {
		case b.Wireframe:
			wires = append(wires, b)
		case !partitionable(b):
			if hi, ok := b.Max(); ok && hi > bound {
				logger.Debug("overflowing batch kept unsplit",
					zap.String("mesh", w.Name),
					zap.Int("batch", i),
					zap.Stringer("width", b.Width))
			}
			inBound = append(inBound, b)
		default:
			kept, over := extractOverflow(b, bound)
			if !kept.Empty() {
				inBound = append(inBound, kept)
				solidKept += kept.NumPrimitives()
			}
			if !over.Empty() {
				overflow = append(overflow, over)
			}
		}
	}
	solidOverflow := len(overflow) > 0

	valid := collectIndices(inBound)
	for _, b := range wires {
		kept, over := splitWireframe(b, valid)
		if !kept.Empty() {
			inBound = append(inBound, kept)
		}
		if over.Empty() {
			continue
		}
		if !solidOverflow {
			// No solid geometry is carried forward, so no later piece can host these lines.
			logger.Warn("wireframe lines dropped",
				zap.String("mesh", w.Name),
				zap.Int("lines", over.NumPrimitives()))
			dropped += over.NumPrimitives()
			continue
		}
		overflow = append(overflow, over)
	}

	if !solidOverflow {
		w.Batches = inBound
		w.Compact()
		return w, nil, dropped
	}

	if solidKept == 0 {
		// Only reachable with a reorderer that does not pack the first
		// primitives below the bound.
		logger.Warn("partitioning made no progress, emitting residual unsplit",
			zap.String("mesh", w.Name),
			zap.Int("primitives", w.NumPrimitives()))
		return w, nil, dropped
	}

	residual = &mesh.Mesh{
		Name:    w.Name,
		Arrays:  w.CloneArrays(),
		Batches: overflow,
	}

	w.Batches = inBound
	s.reorderer.ReindexByAccessOrder(w)
	w.Compact()
	return w, residual, dropped
}

// dropMalformedWireframes removes wireframe batches that are not complete
// indexed LINES within the vertex arrays and returns the number of lines lost.
// It runs before any reorder so a stray index never claims a vertex slot.
func dropMalformedWireframes(m *mesh.Mesh) int {
	numVertices := m.NumVertices()
	dropped := 0
	kept := m.Batches[:0]
	for i, b := range m.Batches {
		if b.Wireframe {
			if why := malformedWireframe(b, numVertices); why != "" {
				logger.Warn("malformed wireframe batch dropped",
					zap.String("mesh", m.Name),
					zap.Int("batch", i),
					zap.Stringer("mode", b.Mode),
					zap.String("reason", why))
				dropped += b.NumIndices() / 2
				continue
			}
		}
		kept = append(kept, b)
	}
	m.Batches = kept
	return dropped
}

func malformedWireframe(b *mesh.Batch, numVertices int) string {
	switch {
	case b.Mode != mesh.ModeLines || !b.Indexed():
		return "not indexed lines"
	case len(b.Indices)%2 != 0:
		return "incomplete line"
	}
	if hi, ok := b.Max(); ok && int(hi) >= numVertices {
		return "index out of range"
	}
	return ""
}

// partitionable reports whether the partitioner can rewrite b.
func partitionable(b *mesh.Batch) bool {
	switch b.Width {
	case mesh.IndexUInt32:
		return true
	case mesh.IndexUInt8, mesh.IndexUInt16, mesh.IndexNone:
		return false
	default:
		return false
	}
}

// upgradeWidths widens every indexed narrow batch to 32 bits.
func upgradeWidths(m *mesh.Mesh) {
	for _, b := range m.Batches {
		switch b.Width {
		case mesh.IndexUInt8, mesh.IndexUInt16:
			b.Width = mesh.IndexUInt32
		case mesh.IndexUInt32, mesh.IndexNone:
		}
	}
}

// extractOverflow splits b into the atomic primitives whose indices are all
// within bound and those with at least one index above it. b is not modified.
func extractOverflow(b *mesh.Batch, bound uint32) (kept, over *mesh.Batch) {
	kept, over = b.Derive(), b.Derive()
	for i := 0; i < b.NumPrimitives(); i++ {
		prim := b.Primitive(i)
		dst := kept
		for _, v := range prim {
			if v > bound {
				dst = over
				break
			}
		}
		dst.Indices = append(dst.Indices, prim...)
	}
	return kept, over
}

// splitWireframe keeps the lines whose endpoints are both in valid.
func splitWireframe(b *mesh.Batch, valid map[uint32]struct{}) (kept, over *mesh.Batch) {
	kept, over = b.Derive(), b.Derive()
	for i := 0; i < b.NumPrimitives(); i++ {
		line := b.Primitive(i)
		_, okA := valid[line[0]]
		_, okB := valid[line[1]]
		dst := over
		if okA && okB {
			dst = kept
		}
		dst.Indices = append(dst.Indices, line...)
	}
	return kept, over
}

// collectIndices returns the set of indices drawn by batches.
func collectIndices(batches []*mesh.Batch) map[uint32]struct{} {
	set := make(map[uint32]struct{})
	for _, b := range batches {
		n := b.NumIndices()
		for i := 0; i < n; i++ {
			set[b.Index(i)] = struct{}{}
		}
	}
	return set
}
