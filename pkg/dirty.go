package uptree

import "go.uber.org/zap"

// MarkDirty marks a path as changed so the next Update reconciles it.
// The path need not currently exist in the tree or on disk: marking a
// not-yet-created file dirty makes reconciliation discover it as new.
//
// The deepest existing node along the path gets its dirty flag set; if
// that node is a directory its listing is additionally invalidated, since
// an entry under it can no longer be trusted. Every ancestor up to the
// root is then marked dirty, but ancestors keep their listing validity:
// only the directly-affected directory must be re-listed, not the whole
// spine.
//
// MarkDirty performs no I/O, is idempotent, and is safe to call from
// multiple goroutines while no Update or query is in flight. It fails
// only on a malformed or out-of-root path.
func (c *Cache) MarkDirty(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.nearest(path)
	if err != nil {
		return err
	}

	if n.kind == KindDirectory {
		// An entry in or beneath this directory changed, so its cached
		// listing can no longer be trusted.
		n.listingValid = false
	}
	n.dirty = true

	c.logger.Debug("marked dirty",
		zap.String("path", path),
		zap.String("node", n.path))

	// Propagate upward. The dirty invariant (a dirty node implies dirty
	// ancestors) lets us stop at the first already-dirty ancestor.
	for p := n.parent; p != nil && !p.dirty; p = p.parent {
		p.dirty = true
	}

	return nil
}

// markClean clears the dirty flag on exactly one node. Reconciliation is
// responsible for ordering: children are cleaned before their parent, so
// a parent is never clean while a child remains dirty.
func (c *Cache) markClean(n *node) {
	n.dirty = false
}

// ListDirty returns the paths of every node still marked dirty, in
// sorted order. After a fully successful Update it is empty; after a
// partial failure it names the subtrees that remain unreconciled instead
// of letting them masquerade as clean.
func (c *Cache) ListDirty() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dirty []string
	c.index.ForEach(func(n *node) bool {
		if n.dirty {
			dirty = append(dirty, n.path)
		}
		return true
	})
	return dirty
}
