package scene

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/meshsplit/internal/logger"
	"github.com/Faultbox/meshsplit/internal/metrics"
	"github.com/Faultbox/meshsplit/internal/split"
	"github.com/Faultbox/meshsplit/pkg/mesh"
)

// Stats summarises one Apply run.
type Stats struct {
	Containers     int
	References     int
	DistinctMeshes int
	SplitMeshes    int
	Ineligible     int
	Pieces         int
	DroppedLines   int
	CacheHits      int
	Elapsed        time.Duration
}

type entry struct {
	once   sync.Once
	result *split.Result
}

// Integrator splits meshes once per identity and substitutes the pieces into
// the containers that reference them. Results are cached for the lifetime of
// the Integrator, across Apply calls.
type Integrator struct {
	splitter *split.Splitter
	workers  int
	metrics  *metrics.Metrics

	mu    sync.Mutex
	cache map[*mesh.Mesh]*entry
}

// NewIntegrator creates an Integrator. workers <= 0 uses GOMAXPROCS.
func NewIntegrator(s *split.Splitter, workers int, m *metrics.Metrics) *Integrator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Integrator{
		splitter: s,
		workers:  workers,
		metrics:  m,
		cache:    make(map[*mesh.Mesh]*entry),
	}
}

// lookup returns the cache entry for m, inserting it if absent.
func (in *Integrator) lookup(m *mesh.Mesh) *entry {
	in.mu.Lock()
	defer in.mu.Unlock()
	e, ok := in.cache[m]
	if !ok {
		e = &entry{}
		in.cache[m] = e
	}
	return e
}

// Resolve returns the split result of m, splitting it on first use.
// Concurrent callers for the same mesh share one split.
func (in *Integrator) Resolve(m *mesh.Mesh) *split.Result {
	e := in.lookup(m)
	e.once.Do(func() {
		e.result = in.splitter.Split(m)
	})
	return e.result
}

// Apply splits every distinct mesh under root using the worker pool, then
// replaces each container's mesh list with the concatenation of the pieces
// of its references, in reference order. On cancellation no container is
// rewritten and ctx.Err() is returned.
func (in *Integrator) Apply(ctx context.Context, root *Node) (Stats, error) {
	start := time.Now()
	var stats Stats

	distinct := root.DistinctMeshes()
	stats.DistinctMeshes = len(distinct)

	jobs := make(chan *mesh.Mesh)
	var wg sync.WaitGroup
	for i := 0; i < in.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				in.Resolve(m)
			}
		}()
	}

dispatch:
	for _, m := range distinct {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- m:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	for _, m := range distinct {
		res := in.Resolve(m)
		if !res.Eligible {
			stats.Ineligible++
		}
		if res.Split {
			stats.SplitMeshes++
		}
		stats.DroppedLines += res.DroppedLines
	}

	seen := make(map[*mesh.Mesh]struct{}, len(distinct))
	for _, node := range root.Containers() {
		stats.Containers++
		var pieces []*mesh.Mesh
		for _, m := range node.Meshes {
			stats.References++
			if _, ok := seen[m]; ok {
				stats.CacheHits++
				in.metrics.CacheHit()
			}
			seen[m] = struct{}{}
			pieces = append(pieces, in.Resolve(m).Meshes...)
		}
		node.Meshes = pieces
		stats.Pieces += len(pieces)
	}

	stats.Elapsed = time.Since(start)
	logger.Info("scene split",
		zap.Int("containers", stats.Containers),
		zap.Int("distinct_meshes", stats.DistinctMeshes),
		zap.Int("split_meshes", stats.SplitMeshes),
		zap.Int("pieces", stats.Pieces),
		zap.Int("cache_hits", stats.CacheHits),
		zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}
