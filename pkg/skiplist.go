package uptree

import (
	"strings"
	"sync"

	zcsl "github.com/mattkeenan/zerocopyskiplist"
)

// defaultIndexLevels is the skiplist height used for the path index
const defaultIndexLevels = 16

// nodeRef is the item type stored in the path index. The skiplist holds
// references rather than nodes so the tree remains the single owner of
// node state.
type nodeRef struct {
	n *node
}

// pathIndex keeps every tree node in lexicographic path order. The tree
// itself answers O(depth) lookups; the index exists so that iteration
// over the whole node set (file listings, dirty diagnostics) is sorted
// and deterministic across repeated calls, with O(log n) maintenance as
// reconciliation adds and removes entries.
//
// Insert and Delete are synchronised because independent subtrees are
// reconciled in parallel. Iteration is not: queries follow the cache's
// single-logical-owner contract and never overlap a running update.
type pathIndex struct {
	mu       sync.Mutex
	skiplist *zcsl.ZeroCopySkiplist[nodeRef, string, string]
}

// newPathIndex creates an empty path index
func newPathIndex(maxLevels int) *pathIndex {
	if maxLevels < 8 {
		maxLevels = defaultIndexLevels
	}

	getKeyFromItem := func(ref *nodeRef) string {
		return ref.n.path
	}
	getItemSize := func(ref *nodeRef) int {
		return len(ref.n.content)
	}
	cmpKey := func(a, b string) int {
		return strings.Compare(a, b)
	}

	return &pathIndex{
		skiplist: zcsl.MakeZeroCopySkiplist[nodeRef, string, string](
			maxLevels,
			getKeyFromItem,
			getItemSize,
			cmpKey,
		),
	}
}

// Insert registers a node under its path, tagged with its kind
func (ix *pathIndex) Insert(n *node) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ref := nodeRef{n: n}
	return ix.skiplist.Insert(&ref, n.kind.String())
}

// Delete removes the entry for a path
func (ix *pathIndex) Delete(path string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.skiplist.Delete(path)
}

// Find returns the node registered under a path, or nil
func (ix *pathIndex) Find(path string) *node {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	item, _ := ix.skiplist.Find(path)
	if item == nil {
		return nil
	}
	return item.Item().n
}

// ForEach iterates every node in sorted path order until the callback
// returns false
func (ix *pathIndex) ForEach(callback func(*node) bool) {
	for current := ix.skiplist.First(); current != nil; current = current.Next() {
		if !callback(current.Item().n) {
			break
		}
	}
}

// Length returns the number of indexed nodes
func (ix *pathIndex) Length() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.skiplist.Length()
}
