package trees

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTree is the root of all parse and build failures. Callers can
// match it with errors.Is to distinguish structural input errors from
// configuration errors.
var ErrMalformedTree = errors.New("malformed tree")

// Tree is one node of a parsed bracketed labeled tree.
//
// A node is either internal (Children non-empty, Leaf empty) or a
// pre-terminal (Children empty, Leaf holds the terminal symbol). The parser
// never produces a node with both set.
type Tree struct {
	Label    string
	Leaf     string
	Children []*Tree
}

// Parse reads a tree in bracketed labeled-tree notation, e.g.
//
//	(S (NP (D the) (N dog)) (VP (V barks)))
//
// Labels and terminals are whitespace-delimited atoms. Each bracketed node
// carries a label followed by either exactly one terminal atom or one or
// more bracketed children. Parsing is iterative; input depth does not grow
// the call stack.
func Parse(s string) (*Tree, error) {
	tokens := tokenize(s)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedTree)
	}

	var stack []*Tree
	var root *Tree

	i := 0
	for i < len(tokens) {
		switch tok := tokens[i]; tok {
		case "(":
			if root != nil && len(stack) == 0 {
				return nil, fmt.Errorf("%w: content after root node", ErrMalformedTree)
			}
			if i+1 >= len(tokens) || tokens[i+1] == "(" || tokens[i+1] == ")" {
				return nil, fmt.Errorf("%w: node without label", ErrMalformedTree)
			}
			stack = append(stack, &Tree{Label: tokens[i+1]})
			i += 2
		case ")":
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unbalanced close paren", ErrMalformedTree)
			}
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				root = node
			} else {
				parent := stack[len(stack)-1]
				if parent.Leaf != "" {
					return nil, fmt.Errorf("%w: node %q mixes terminal and children", ErrMalformedTree, parent.Label)
				}
				parent.Children = append(parent.Children, node)
			}
			i++
		default:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: terminal %q outside brackets", ErrMalformedTree, tok)
			}
			top := stack[len(stack)-1]
			if len(top.Children) > 0 {
				return nil, fmt.Errorf("%w: node %q mixes terminal and children", ErrMalformedTree, top.Label)
			}
			if top.Leaf != "" {
				return nil, fmt.Errorf("%w: node %q has multiple terminals", ErrMalformedTree, top.Label)
			}
			top.Leaf = tok
			i++
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unbalanced open paren", ErrMalformedTree)
	}
	return root, nil
}

func tokenize(s string) []string {
	var tokens []string
	var atom strings.Builder

	flush := func() {
		if atom.Len() > 0 {
			tokens = append(tokens, atom.String())
			atom.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '(' || r == ')':
			flush()
			tokens = append(tokens, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			atom.WriteRune(r)
		}
	}
	flush()
	return tokens
}
