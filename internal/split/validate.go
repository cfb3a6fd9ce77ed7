// Package split partitions indexed meshes so that every output mesh addresses
// its vertices with indices no larger than a fixed bound.
package split

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/meshsplit/pkg/mesh"
)

// MinBound is the smallest usable bound: a triangle needs three distinct
// addressable vertices.
const MinBound = 2

var (
	ErrNotIndexed            = errors.New("primitive batch is not indexed")
	ErrUnsupportedMode       = errors.New("unsupported drawing mode")
	ErrIncompletePrimitive   = errors.New("index count is not a multiple of the primitive size")
	ErrIndexOutOfRange       = errors.New("index addresses a vertex outside the vertex arrays")
	ErrUnsupportedIndexWidth = errors.New("overflowing batch uses an unsupported index width")
	ErrBoundTooSmall         = fmt.Errorf("index bound must be at least %d", MinBound)
	ErrInvalidPolicy         = errors.New("invalid unsupported index width policy")
)

// WidthPolicy decides how batches stored with an index width other than
// 32 bits are handled when they overflow the bound.
type WidthPolicy uint8

const (
	// PolicyUpgrade widens narrow batches to 32 bits before partitioning.
	PolicyUpgrade WidthPolicy = iota
	// PolicySkip leaves narrow batches untouched even when they overflow.
	PolicySkip
	// PolicyReject treats a mesh with an overflowing narrow batch as ineligible.
	PolicyReject
)

func (p WidthPolicy) String() string {
	switch p {
	case PolicyUpgrade:
		return "upgrade"
	case PolicySkip:
		return "skip"
	case PolicyReject:
		return "reject"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy parses skip, reject or upgrade.
func ParsePolicy(s string) (WidthPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upgrade":
		return PolicyUpgrade, nil
	case "skip":
		return PolicySkip, nil
	case "reject":
		return PolicyReject, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// Validate reports why m cannot be partitioned, or nil if it can. A mesh is
// rejected when a solid batch is not indexed, uses a mode other than points,
// lines or triangles, ends with an incomplete primitive, or addresses a
// vertex beyond the shortest vertex array. Wireframe batches are not checked
// here; malformed ones, including those addressing missing vertices, are
// dropped by Splitter.Split.
func Validate(m *mesh.Mesh) error {
	numVertices := m.NumVertices()
	for i, b := range m.Batches {
		if b.Wireframe {
			continue
		}
		if !b.Indexed() {
			return fmt.Errorf("batch %d: %w", i, ErrNotIndexed)
		}
		size := b.Mode.PrimitiveSize()
		if size == 0 {
			return fmt.Errorf("batch %d (%s): %w", i, b.Mode, ErrUnsupportedMode)
		}
		if len(b.Indices)%size != 0 {
			return fmt.Errorf("batch %d: %d indices for %s: %w", i, len(b.Indices), b.Mode, ErrIncompletePrimitive)
		}
		if hi, ok := b.Max(); ok && int(hi) >= numVertices {
			return fmt.Errorf("batch %d: index %d with %d vertices: %w", i, hi, numVertices, ErrIndexOutOfRange)
		}
	}
	return nil
}

// IsEligible reports whether m can be partitioned.
func IsEligible(m *mesh.Mesh) bool {
	return Validate(m) == nil
}

// NeedsSplit reports whether any index of any batch exceeds bound.
func NeedsSplit(m *mesh.Mesh, bound uint32) bool {
	hi, ok := m.MaxIndex()
	return ok && hi > bound
}

// reason maps a validation error to a short metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrNotIndexed):
		return "not_indexed"
	case errors.Is(err, ErrUnsupportedMode):
		return "unsupported_mode"
	case errors.Is(err, ErrIncompletePrimitive):
		return "incomplete_primitive"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, ErrUnsupportedIndexWidth):
		return "unsupported_index_width"
	default:
		return "other"
	}
}
