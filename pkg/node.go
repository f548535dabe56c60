package uptree

import (
	"fmt"
	"path/filepath"
	"strings"
)

// node is one entry of the in-memory tree mirroring the directory
// structure under the cache root. Directories exclusively own their
// children; the parent pointer is a non-owning back-reference used only
// for upward dirty propagation, so the tree stays acyclic by
// construction.
//
// Flag semantics:
//   - dirty: this node or something beneath it changed and must be
//     reconsidered on the next reconciliation. dirty on a node implies
//     dirty on every ancestor up to the root.
//   - listingValid (directories): the cached children set can be trusted
//     without re-listing.
//   - contentValid (regular files): the cached content corresponds
//     exactly to the stat metadata recorded alongside it.
type node struct {
	path   string
	kind   Kind
	parent *node

	children     map[string]*node // directories only
	listingValid bool

	content      []byte
	contentValid bool
	meta         Meta // last observed stat metadata
	hasMeta      bool

	dirty bool
}

// name returns the final path segment of the node
func (n *node) name() string {
	return filepath.Base(n.path)
}

// splitPath validates a path and returns its segments relative to the
// cache root. The empty slice addresses the root itself. Non-absolute
// paths fail with ErrInvalidPath, paths outside the root with
// ErrOutOfScope.
func (c *Cache) splitPath(path string) ([]string, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %s is not absolute", ErrInvalidPath, path)
	}
	clean := filepath.Clean(path)
	if clean == c.root {
		return nil, nil
	}

	sep := string(filepath.Separator)
	prefix := c.root + sep
	if c.root == sep {
		prefix = sep
	}
	if !strings.HasPrefix(clean, prefix) {
		return nil, fmt.Errorf("%w: %s is not under %s", ErrOutOfScope, path, c.root)
	}

	return strings.Split(strings.TrimPrefix(clean, prefix), sep), nil
}

// lookup resolves a path to its exact node by walking segment by segment
// from the root, O(depth). Missing entries fail with ErrNotFound; paths
// traversing through a regular file are impossible and fail with
// ErrInvalidPath.
func (c *Cache) lookup(path string) (*node, error) {
	segments, err := c.splitPath(path)
	if err != nil {
		return nil, err
	}

	n := c.rootNode
	for _, seg := range segments {
		if n.kind != KindDirectory {
			return nil, fmt.Errorf("%w: %s traverses non-directory %s", ErrInvalidPath, path, n.path)
		}
		child, ok := n.children[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		n = child
	}
	return n, nil
}

// nearest resolves a path to the deepest existing node along it. The
// target itself need not exist in the tree or on disk; the root always
// exists, so the walk always lands somewhere. Paths that would have to
// traverse through a regular file fail with ErrInvalidPath.
func (c *Cache) nearest(path string) (*node, error) {
	segments, err := c.splitPath(path)
	if err != nil {
		return nil, err
	}

	n := c.rootNode
	for _, seg := range segments {
		if n.kind != KindDirectory {
			return nil, fmt.Errorf("%w: %s traverses non-directory %s", ErrInvalidPath, path, n.path)
		}
		child, ok := n.children[seg]
		if !ok {
			return n, nil
		}
		n = child
	}
	return n, nil
}

// addChild creates a new node under a directory and registers it in the
// sorted path index. New nodes start dirty with untrusted listing and
// content so the next reconciliation pass visits them.
func (c *Cache) addChild(parent *node, name string, kind Kind) *node {
	child := &node{
		path:   filepath.Join(parent.path, name),
		kind:   kind,
		parent: parent,
		dirty:  true,
	}
	if kind == KindDirectory {
		child.children = make(map[string]*node)
	}
	parent.children[name] = child
	c.index.Insert(child)
	return child
}

// removeSubtree destroys a child and everything beneath it, deregistering
// every destroyed node from the path index. Returns the number of nodes
// removed.
func (c *Cache) removeSubtree(parent *node, name string) int {
	child, ok := parent.children[name]
	if !ok {
		return 0
	}
	delete(parent.children, name)
	return c.dropNode(child)
}

// dropNode recursively removes a node and its descendants from the index
func (c *Cache) dropNode(n *node) int {
	removed := 1
	for _, child := range n.children {
		removed += c.dropNode(child)
	}
	n.children = nil
	n.parent = nil
	n.content = nil
	c.index.Delete(n.path)
	return removed
}
