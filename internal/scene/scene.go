// Package scene applies mesh splitting across a scene graph, splitting every
// distinct mesh once and rewriting the nodes that reference it.
package scene

import "github.com/Faultbox/meshsplit/pkg/mesh"

// Node is a scene graph node. A node with meshes is a drawable container;
// the same *mesh.Mesh may be referenced by several containers.
type Node struct {
	Name     string
	Meshes   []*mesh.Mesh
	Children []*Node
}

// NewNode creates a node referencing meshes.
func NewNode(name string, meshes ...*mesh.Mesh) *Node {
	return &Node{Name: name, Meshes: meshes}
}

// AddChild appends a child node and returns it.
func (n *Node) AddChild(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// Walk visits n and its descendants depth-first, parents before children.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Containers returns every node holding at least one mesh, in walk order.
func (n *Node) Containers() []*Node {
	var out []*Node
	n.Walk(func(node *Node) {
		if len(node.Meshes) > 0 {
			out = append(out, node)
		}
	})
	return out
}

// DistinctMeshes returns each referenced mesh identity once, in first-reference order.
func (n *Node) DistinctMeshes() []*mesh.Mesh {
	seen := make(map[*mesh.Mesh]struct{})
	var out []*mesh.Mesh
	n.Walk(func(node *Node) {
		for _, m := range node.Meshes {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	})
	return out
}
