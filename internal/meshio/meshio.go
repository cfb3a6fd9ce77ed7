// Package meshio reads and writes JSON scene documents: a list of meshes plus
// a node tree referencing them by id.
//
// Several nodes may reference the same id; on load they share one *mesh.Mesh
// so that identity-based processing sees a single mesh.
package meshio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/Faultbox/meshsplit/internal/scene"
	"github.com/Faultbox/meshsplit/pkg/mesh"
)

var (
	ErrDuplicateID  = errors.New("duplicate mesh id")
	ErrUnknownMesh  = errors.New("unknown mesh reference")
	ErrInvalidArray = errors.New("invalid array")
)

// Document is the on-disk layout.
type Document struct {
	Meshes []MeshDoc `json:"meshes"`
	Scene  *NodeDoc  `json:"scene,omitempty"`
}

// MeshDoc is one mesh entry.
type MeshDoc struct {
	ID      string     `json:"id,omitempty"`
	Name    string     `json:"name,omitempty"`
	Arrays  []ArrayDoc `json:"arrays"`
	Batches []BatchDoc `json:"batches"`
}

// ArrayDoc is one vertex attribute array.
type ArrayDoc struct {
	Name string               `json:"name,omitempty"`
	Kind string               `json:"kind"`
	Dim  int                  `json:"dim"`
	Data []float32            `json:"data"`
	Meta map[string][]float32 `json:"meta,omitempty"`
}

// BatchDoc is one primitive batch. Width "none" (or an empty width without
// indices) selects a non-indexed First/Count range.
type BatchDoc struct {
	Mode      string   `json:"mode"`
	Width     string   `json:"width,omitempty"`
	Indices   []uint32 `json:"indices,omitempty"`
	First     int      `json:"first,omitempty"`
	Count     int      `json:"count,omitempty"`
	Wireframe bool     `json:"wireframe,omitempty"`
}

// NodeDoc is one scene node.
type NodeDoc struct {
	Name     string     `json:"name,omitempty"`
	Meshes   []string   `json:"meshes,omitempty"`
	Children []*NodeDoc `json:"children,omitempty"`
}

// ReadFile loads a scene document from path.
func ReadFile(path string) (*scene.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	root, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// Read decodes a scene document. Meshes without an id receive a random one.
// A document without a scene yields a root node referencing every mesh in
// document order.
func Read(r io.Reader) (*scene.Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding scene: %w", err)
	}
	return doc.Build()
}

// Build converts the document into a node tree.
func (d *Document) Build() (*scene.Node, error) {
	byID := make(map[string]*mesh.Mesh, len(d.Meshes))
	order := make([]*mesh.Mesh, 0, len(d.Meshes))

	for i := range d.Meshes {
		md := &d.Meshes[i]
		if md.ID == "" {
			md.ID = uuid.NewString()
		}
		if _, dup := byID[md.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, md.ID)
		}
		m, err := md.decode()
		if err != nil {
			return nil, fmt.Errorf("mesh %s: %w", md.ID, err)
		}
		byID[md.ID] = m
		order = append(order, m)
	}

	if d.Scene == nil {
		return scene.NewNode("root", order...), nil
	}
	return d.Scene.decode(byID)
}

func (md *MeshDoc) decode() (*mesh.Mesh, error) {
	m := mesh.New(md.Name)
	for _, ad := range md.Arrays {
		kind, err := mesh.ParseArrayKind(ad.Kind)
		if err != nil {
			return nil, err
		}
		if ad.Dim <= 0 || len(ad.Data)%ad.Dim != 0 {
			return nil, fmt.Errorf("%w %q: %d values with dim %d", ErrInvalidArray, ad.Name, len(ad.Data), ad.Dim)
		}
		a := m.AddArray(mesh.NewArray(ad.Name, kind, ad.Dim, ad.Data))
		for k, v := range ad.Meta {
			a.SetMeta(k, v)
		}
	}

	for i, bd := range md.Batches {
		b, err := bd.decode()
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		m.AddBatch(b)
	}
	return m, nil
}

func (bd BatchDoc) decode() (*mesh.Batch, error) {
	mode, err := mesh.ParseMode(bd.Mode)
	if err != nil {
		return nil, err
	}

	width := mesh.IndexUInt32
	switch {
	case bd.Width != "":
		if width, err = mesh.ParseIndexWidth(bd.Width); err != nil {
			return nil, err
		}
	case len(bd.Indices) == 0:
		width = mesh.IndexNone
	}

	var b *mesh.Batch
	if width == mesh.IndexNone {
		if len(bd.Indices) > 0 {
			return nil, fmt.Errorf("non-indexed batch carries %d indices", len(bd.Indices))
		}
		b = mesh.NewArrays(mode, bd.First, bd.Count)
	} else {
		for _, idx := range bd.Indices {
			if idx > width.MaxValue() {
				return nil, fmt.Errorf("index %d does not fit %s", idx, width)
			}
		}
		b = mesh.NewElements(mode, width, bd.Indices...)
	}
	b.Wireframe = bd.Wireframe
	return b, nil
}

func (nd *NodeDoc) decode(byID map[string]*mesh.Mesh) (*scene.Node, error) {
	n := scene.NewNode(nd.Name)
	for _, id := range nd.Meshes {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("node %q: %w: %s", nd.Name, ErrUnknownMesh, id)
		}
		n.Meshes = append(n.Meshes, m)
	}
	for _, c := range nd.Children {
		child, err := c.decode(byID)
		if err != nil {
			return nil, err
		}
		n.AddChild(child)
	}
	return n, nil
}

// NewDocument encodes a node tree. Every distinct mesh is written once under
// a fresh id; repeated references reuse it.
func NewDocument(root *scene.Node) *Document {
	ids := make(map[*mesh.Mesh]string)
	doc := &Document{}
	for _, m := range root.DistinctMeshes() {
		id := uuid.NewString()
		ids[m] = id
		doc.Meshes = append(doc.Meshes, encodeMesh(id, m))
	}
	doc.Scene = encodeNode(root, ids)
	return doc
}

func encodeMesh(id string, m *mesh.Mesh) MeshDoc {
	md := MeshDoc{ID: id, Name: m.Name}
	for _, a := range m.Arrays {
		md.Arrays = append(md.Arrays, ArrayDoc{
			Name: a.Name,
			Kind: a.Kind.String(),
			Dim:  a.Dim,
			Data: a.Data,
			Meta: a.Meta,
		})
	}
	for _, b := range m.Batches {
		bd := BatchDoc{
			Mode:      b.Mode.String(),
			Width:     b.Width.String(),
			Wireframe: b.Wireframe,
		}
		if b.Indexed() {
			bd.Indices = b.Indices
		} else {
			bd.First, bd.Count = b.First, b.Count
		}
		md.Batches = append(md.Batches, bd)
	}
	return md
}

func encodeNode(n *scene.Node, ids map[*mesh.Mesh]string) *NodeDoc {
	nd := &NodeDoc{Name: n.Name}
	for _, m := range n.Meshes {
		nd.Meshes = append(nd.Meshes, ids[m])
	}
	for _, c := range n.Children {
		nd.Children = append(nd.Children, encodeNode(c, ids))
	}
	return nd
}

// Write encodes root as an indented JSON document.
func Write(w io.Writer, root *scene.Node) error {
	data, err := json.MarshalIndent(NewDocument(root), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding scene: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// WriteFile writes root to path.
func WriteFile(path string, root *scene.Node) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, root); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
