// meshsplit partitions indexed meshes in JSON scene documents so that no
// output mesh references a vertex index above a configured bound.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Faultbox/meshsplit/internal/config"
	"github.com/Faultbox/meshsplit/internal/logger"
	"github.com/Faultbox/meshsplit/internal/meshio"
	"github.com/Faultbox/meshsplit/internal/metrics"
	"github.com/Faultbox/meshsplit/internal/scene"
	"github.com/Faultbox/meshsplit/internal/split"
	"github.com/Faultbox/meshsplit/pkg/mesh"
)

func main() {
	config.ParseFlags()

	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command, rest := args[0], args[1:]
	switch command {
	case "split":
		err = cmdSplit(cfg, rest)
	case "info":
		err = cmdInfo(cfg, rest)
	case "wireframe", "wire":
		err = cmdWireframe(rest)
	case "check":
		err = cmdCheck(cfg, rest)
	case "config":
		err = cmdConfig(cfg, rest)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshsplit - split indexed meshes to fit an index bound

Usage:
  meshsplit [flags] <command> [args]

Commands:
  split <in.json> <out.json>      Split every mesh above the index bound
  info <in.json>                  Show meshes, index ranges and eligibility
  wireframe <in.json> <out.json>  Add wireframe overlays from triangle edges
  check <in.json>                 Verify bound satisfaction and compaction
  config [out.yaml]               Print or save the effective configuration

Flags:
  -config <path>               Config file (default ./meshsplit.yaml)
  -max-index <n>               Inclusive maximum index (default 65535)
  -no-post-transform           Skip the vertex cache reorder pass
  -index-width-policy <p>      skip, reject or upgrade
  -workers <n>                 Concurrent mesh workers (0 = GOMAXPROCS)
  -wireframe                   Generate wireframe overlays before splitting
  -metrics-file <path>         Write Prometheus metrics after the run
  -debug                       Enable debug logging
  -log-file <path>             Write logs to a rotating file

Examples:
  meshsplit split scene.json scene.split.json
  meshsplit -max-index 255 -workers 4 split scene.json small.json
  meshsplit -max-index 255 check small.json`)
}

func cmdSplit(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: meshsplit split <in.json> <out.json>")
	}

	root, err := meshio.ReadFile(args[0])
	if err != nil {
		return err
	}

	if cfg.Wireframe.Generate {
		for _, m := range root.DistinctMeshes() {
			m.AddWireframeOverlay()
		}
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	opts, err := cfg.SplitOptions()
	if err != nil {
		return err
	}
	opts.Metrics = met

	splitter, err := split.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := scene.NewIntegrator(splitter, cfg.Split.Workers, met).Apply(ctx, root)
	if err != nil {
		return fmt.Errorf("splitting %s: %w", args[0], err)
	}

	if err := meshio.WriteFile(args[1], root); err != nil {
		return err
	}

	fmt.Printf("Meshes:   %d distinct, %d split, %d ineligible\n", stats.DistinctMeshes, stats.SplitMeshes, stats.Ineligible)
	fmt.Printf("Pieces:   %d\n", stats.Pieces)
	if stats.DroppedLines > 0 {
		fmt.Printf("Dropped:  %d wireframe lines\n", stats.DroppedLines)
	}
	fmt.Printf("Elapsed:  %s\n", stats.Elapsed)

	if cfg.Metrics.File != "" {
		if err := metrics.WriteFile(cfg.Metrics.File, reg); err != nil {
			return err
		}
		logger.Debug("metrics written", zap.String("path", cfg.Metrics.File))
	}
	return nil
}

func cmdInfo(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: meshsplit info <in.json>")
	}

	root, err := meshio.ReadFile(args[0])
	if err != nil {
		return err
	}

	bound := cfg.Split.MaxIndex
	meshes := root.DistinctMeshes()
	fmt.Printf("Document:   %s\n", args[0])
	fmt.Printf("Containers: %d\n", len(root.Containers()))
	fmt.Printf("Meshes:     %d\n", len(meshes))
	fmt.Printf("Bound:      %d\n", bound)
	fmt.Println()

	for _, m := range meshes {
		status := "ok"
		if err := split.Validate(m); err != nil {
			status = "ineligible: " + err.Error()
		} else if split.NeedsSplit(m, bound) {
			status = "needs split"
		}

		maxIdx := "-"
		if hi, ok := m.MaxIndex(); ok {
			maxIdx = fmt.Sprint(hi)
		}
		fmt.Printf("  %-24s verts=%-8d prims=%-8d batches=%-3d max=%-8s %s\n",
			displayName(m), m.NumVertices(), m.NumPrimitives(), len(m.Batches), maxIdx, status)
	}
	return nil
}

func cmdWireframe(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: meshsplit wireframe <in.json> <out.json>")
	}

	root, err := meshio.ReadFile(args[0])
	if err != nil {
		return err
	}

	lines := 0
	for _, m := range root.DistinctMeshes() {
		// Meshes without triangles get no overlay.
		if b := m.AddWireframeOverlay(); b != nil {
			lines += b.NumPrimitives()
		}
	}

	if err := meshio.WriteFile(args[1], root); err != nil {
		return err
	}
	fmt.Printf("Added %d wireframe lines\n", lines)
	return nil
}

func cmdCheck(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: meshsplit check <in.json>")
	}

	root, err := meshio.ReadFile(args[0])
	if err != nil {
		return err
	}

	problems := 0
	for _, m := range root.DistinctMeshes() {
		for _, issue := range checkMesh(m, cfg.Split.MaxIndex) {
			fmt.Printf("  %s: %s\n", displayName(m), issue)
			problems++
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d problems found", problems)
	}
	fmt.Println("All meshes within bound")
	return nil
}

// checkMesh reports bound violations of 32-bit batches and buffers longer
// than the highest referenced index. Ineligible meshes are reported once.
func checkMesh(m *mesh.Mesh, bound uint32) []string {
	if err := split.Validate(m); err != nil {
		return []string{"ineligible: " + err.Error()}
	}

	var issues []string
	for i, b := range m.Batches {
		if b.Width != mesh.IndexUInt32 {
			continue
		}
		if hi, ok := b.Max(); ok && hi > bound {
			issues = append(issues, fmt.Sprintf("batch %d (%s) references index %d above bound %d", i, b.Mode, hi, bound))
		}
	}
	if hi, ok := m.MaxIndex(); ok && m.NumVertices() > int(hi)+1 {
		issues = append(issues, fmt.Sprintf("%d vertices but highest index is %d", m.NumVertices(), hi))
	}
	return issues
}

func cmdConfig(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		if err := cfg.SaveTo(args[0]); err != nil {
			return err
		}
		fmt.Printf("Saved config to %s\n", args[0])
		return nil
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func displayName(m *mesh.Mesh) string {
	if m.Name == "" {
		return "(unnamed)"
	}
	return m.Name
}
