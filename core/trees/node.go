package trees

import (
	"fmt"
	"sort"
	"strings"
)

// ProductionSep joins the pieces of a production string: the node's label,
// then either its child labels or its quoted terminal symbol.
const ProductionSep = " "

// Node is the canonical, sortable representation of one tree node.
//
// Production encodes the node's label together with its ordered child labels
// (or, for a pre-terminal, its terminal symbol wrapped in single quotes) and
// is the sole equality and sort key for node matching. Quoting keeps the
// pre-terminal (A a) distinct from an internal node A over a child labeled a,
// so a production can only ever match nodes of the same kind. Children holds
// indices into the owning NodeList; nil Children marks a pre-terminal node.
type Node struct {
	Production string
	ID         int
	Children   []int
}

// RootSymbol returns the node's own label, the leading token of its
// production. It selects the hyperparameter bucket for this node.
func (n Node) RootSymbol() string {
	if i := strings.Index(n.Production, ProductionSep); i >= 0 {
		return n.Production[:i]
	}
	return n.Production
}

// NodeList is a sequence of Nodes sorted ascending by production string.
// Child indices reference positions within the same list, and every node's
// ID equals its position. A NodeList is immutable once built.
type NodeList []Node

// BuildNodeList flattens a parsed tree into a production-sorted NodeList.
//
// The traversal is post-order and assigns each node a provisional id in
// discovery order. The flat list is then stably re-sorted by production and
// all child references are remapped to post-sort positions, so the result is
// self-contained: Children entries index directly into the returned list.
//
// A pre-terminal with empty terminal content is rejected as malformed.
func BuildNodeList(t *Tree) (NodeList, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tree", ErrMalformedTree)
	}

	type frame struct {
		node *Tree
		next int
	}

	var out NodeList
	// ids of completed children, one slice per open frame
	childIDs := [][]int{nil}
	stack := []frame{{node: t}}

	for len(stack) > 0 {
		f := &stack[len(stack)-1]

		if len(f.node.Children) == 0 {
			if f.node.Leaf == "" {
				return nil, fmt.Errorf("%w: pre-terminal %q has no terminal content", ErrMalformedTree, f.node.Label)
			}
			id := len(out)
			out = append(out, Node{
				Production: f.node.Label + ProductionSep + "'" + f.node.Leaf + "'",
				ID:         id,
			})
			stack = stack[:len(stack)-1]
			childIDs = childIDs[:len(childIDs)-1]
			if len(stack) > 0 {
				childIDs[len(childIDs)-1] = append(childIDs[len(childIDs)-1], id)
			}
			continue
		}

		if f.node.Leaf != "" {
			return nil, fmt.Errorf("%w: node %q mixes terminal and children", ErrMalformedTree, f.node.Label)
		}

		if f.next < len(f.node.Children) {
			child := f.node.Children[f.next]
			f.next++
			stack = append(stack, frame{node: child})
			childIDs = append(childIDs, nil)
			continue
		}

		labels := make([]string, len(f.node.Children))
		for i, c := range f.node.Children {
			labels[i] = c.Label
		}
		id := len(out)
		out = append(out, Node{
			Production: f.node.Label + ProductionSep + strings.Join(labels, ProductionSep),
			ID:         id,
			Children:   childIDs[len(childIDs)-1],
		})
		stack = stack[:len(stack)-1]
		childIDs = childIDs[:len(childIDs)-1]
		if len(stack) > 0 {
			childIDs[len(childIDs)-1] = append(childIDs[len(childIDs)-1], id)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Production < out[j].Production
	})

	// Remap provisional ids to post-sort positions.
	pos := make([]int, len(out))
	for i := range out {
		pos[out[i].ID] = i
	}
	for i := range out {
		out[i].ID = i
		for k, c := range out[i].Children {
			out[i].Children[k] = pos[c]
		}
	}

	return out, nil
}
