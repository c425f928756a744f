// Package graphwalk enumerates every tensor reachable from an ONNX graph,
// including tensors held by nested control-flow subgraphs.
package graphwalk

import (
	"errors"
	"fmt"
	"iter"

	"github.com/zerfoo/ztar/internal/onnx"
)

// DefaultMaxDepth bounds subgraph nesting.
const DefaultMaxDepth = 64

// ErrDepthExceeded reports a graph nested deeper than the walker allows, or a
// subgraph that contains itself.
var ErrDepthExceeded = errors.New("graph nesting exceeds walk limit")

// Option configures a Walker.
type Option func(*Walker)

// WithMaxDepth sets the deepest subgraph level visited. The root graph is
// depth 1.
func WithMaxDepth(depth int) Option {
	return func(w *Walker) {
		if depth > 0 {
			w.maxDepth = depth
		}
	}
}

// Walker yields tensors depth-first: a graph's initializers, then for each node
// and attribute in declaration order the attribute's tensor, its tensor list,
// its subgraph and its subgraph list. The same input always produces the same
// sequence. A Walker can be ranged over once.
type Walker struct {
	root     *onnx.GraphProto
	maxDepth int
	used     bool
	err      error
}

// New returns a Walker over g.
func New(g *onnx.GraphProto, opts ...Option) *Walker {
	w := &Walker{root: g, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Tensors yields each reachable tensor with its traversal index. The pointers
// refer into the walked graph, so mutating a tensor mutates the model.
// Traversal stops early when the nesting limit is hit; check Err afterwards.
func (w *Walker) Tensors() iter.Seq2[int, *onnx.TensorProto] {
	return func(yield func(int, *onnx.TensorProto) bool) {
		if w.used {
			return
		}
		w.used = true
		if w.root == nil {
			return
		}
		index := 0
		emit := func(t *onnx.TensorProto) bool {
			if t == nil {
				return true
			}
			ok := yield(index, t)
			index++
			return ok
		}
		path := make(map[*onnx.GraphProto]bool)
		_, w.err = w.walk(w.root, 1, path, emit)
	}
}

// Err returns the structural error that ended traversal, if any.
func (w *Walker) Err() error {
	return w.err
}

// walk returns false when the consumer stopped ranging or an error occurred.
func (w *Walker) walk(g *onnx.GraphProto, depth int, path map[*onnx.GraphProto]bool, emit func(*onnx.TensorProto) bool) (bool, error) {
	if depth > w.maxDepth {
		return false, fmt.Errorf("%w: graph %q at depth %d (max %d)", ErrDepthExceeded, g.GetName(), depth, w.maxDepth)
	}
	if path[g] {
		return false, fmt.Errorf("%w: graph %q contains itself", ErrDepthExceeded, g.GetName())
	}
	path[g] = true
	defer delete(path, g)

	for _, t := range g.GetInitializer() {
		if !emit(t) {
			return false, nil
		}
	}
	for _, node := range g.GetNode() {
		for _, attr := range node.GetAttribute() {
			if !emit(attr.T) {
				return false, nil
			}
			for _, t := range attr.Tensors {
				if !emit(t) {
					return false, nil
				}
			}
			if attr.G != nil {
				if ok, err := w.walk(attr.G, depth+1, path, emit); !ok {
					return false, err
				}
			}
			for _, sub := range attr.Graphs {
				if sub == nil {
					continue
				}
				if ok, err := w.walk(sub, depth+1, path, emit); !ok {
					return false, err
				}
			}
		}
	}
	return true, nil
}

// Count returns the number of tensors reachable from g.
func Count(g *onnx.GraphProto, opts ...Option) (int, error) {
	w := New(g, opts...)
	n := 0
	for range w.Tensors() {
		n++
	}
	return n, w.Err()
}
