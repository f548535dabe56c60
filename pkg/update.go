package uptree

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Counters reports the filesystem work one Update performed
type Counters struct {
	DirsListed   int64 // directories re-listed because their listing was stale
	FilesStatted int64 // files whose metadata was re-checked
	FilesRead    int64 // files whose content was fetched eagerly
	NodesAdded   int64 // tree nodes created for newly discovered entries
	NodesRemoved int64 // tree nodes destroyed for vanished entries
}

// UpdateResult is the aggregate outcome of one reconciliation pass
type UpdateResult struct {
	// Success is true when every dirty node was brought to a clean,
	// filesystem-consistent state.
	Success bool

	// Failures maps each path whose reconciliation failed to its error.
	// Failed nodes and their subtrees remain dirty and are retried by
	// the next Update.
	Failures map[string]error

	Counters Counters
}

// Err combines all per-path failures into a single error, or nil
func (r *UpdateResult) Err() error {
	var errs []error
	for _, err := range r.Failures {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

// updateRun carries the shared state of one reconciliation pass.
// Counter fields are atomics because independent subtrees reconcile in
// parallel; the failure map has its own lock.
type updateRun struct {
	cache *Cache
	ctx   context.Context
	sem   chan struct{}

	failMu   sync.Mutex
	failures map[string]error

	dirsListed   atomic.Int64
	filesStatted atomic.Int64
	filesRead    atomic.Int64
	nodesAdded   atomic.Int64
	nodesRemoved atomic.Int64
}

// Update brings every dirty node to a clean, filesystem-consistent
// state. It is a no-op when the root is clean: untouched subtrees cost
// zero I/O. Stale directory listings are re-listed and diffed against
// the cached children; dirty files are re-stat'd and keep their cached
// content when the metadata still matches, otherwise the content is
// dropped and re-fetched lazily by the next Open.
//
// A failure against one path never aborts reconciliation of sibling
// subtrees: the failed node stays dirty, the error is recorded in the
// result, and Update carries on. Cancelling the context stops the walk
// between subtrees; whatever was not reconciled stays dirty and is safe
// to resume with a later Update.
func (c *Cache) Update(ctx context.Context) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.update(ctx)
}

// ForceUpdate marks the entire tree stale and then reconciles it,
// re-listing every directory and re-checking every file regardless of
// dirty flags. Content whose metadata still matches survives the pass.
func (c *Cache) ForceUpdate(ctx context.Context) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("forcing full reconciliation", zap.String("root", c.root))
	c.invalidateTree(c.rootNode)
	return c.update(ctx)
}

// invalidateTree marks a subtree dirty with untrusted listings
func (c *Cache) invalidateTree(n *node) {
	n.dirty = true
	if n.kind == KindDirectory {
		n.listingValid = false
		for _, child := range n.children {
			c.invalidateTree(child)
		}
	}
}

// update runs one reconciliation pass; the cache mutex must be held
func (c *Cache) update(ctx context.Context) (*UpdateResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &UpdateResult{Failures: make(map[string]error)}
	if !c.rootNode.dirty {
		result.Success = true
		return result, nil
	}

	workers := c.workers
	if workers < 1 {
		workers = 1
	}
	run := &updateRun{
		cache:    c,
		ctx:      ctx,
		sem:      make(chan struct{}, workers),
		failures: result.Failures,
	}

	run.reconcile(c.rootNode)

	result.Counters = Counters{
		DirsListed:   run.dirsListed.Load(),
		FilesStatted: run.filesStatted.Load(),
		FilesRead:    run.filesRead.Load(),
		NodesAdded:   run.nodesAdded.Load(),
		NodesRemoved: run.nodesRemoved.Load(),
	}
	result.Success = len(result.Failures) == 0 && ctx.Err() == nil

	observeUpdate(result)
	c.logger.Debug("reconciliation finished",
		zap.Bool("success", result.Success),
		zap.Int("failures", len(result.Failures)),
		zap.Int64("dirs_listed", result.Counters.DirsListed),
		zap.Int64("files_statted", result.Counters.FilesStatted))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// fail records one per-path failure; the node stays dirty
func (u *updateRun) fail(op, path string, err error) {
	ferr := newFetchError(op, path, err)
	u.failMu.Lock()
	u.failures[path] = ferr
	u.failMu.Unlock()
	u.cache.logger.Warn("reconciliation failed for path",
		zap.String("op", op),
		zap.String("path", path),
		zap.Error(err))
}

// vanished reports whether a recorded failure says the path no longer
// exists on the filesystem
func (u *updateRun) vanished(path string) bool {
	u.failMu.Lock()
	defer u.failMu.Unlock()
	return errors.Is(u.failures[path], ErrNotFound)
}

// reconcile processes one dirty node depth-first, post-order
func (u *updateRun) reconcile(n *node) {
	if !n.dirty || u.ctx.Err() != nil {
		// Cancellation leaves the subtree dirty; it resumes cleanly on
		// the next Update.
		return
	}

	switch n.kind {
	case KindDirectory:
		u.reconcileDir(n)
	case KindRegularFile:
		u.reconcileFile(n)
	default:
		// Other entries are tracked for listing completeness only;
		// presence was already confirmed by the parent's listing diff.
		u.cache.markClean(n)
	}
}

// reconcileDir re-derives a directory's children from the filesystem
// when its listing is stale, then reconciles every dirty child before
// marking the directory itself clean
func (u *updateRun) reconcileDir(n *node) {
	if !n.listingValid {
		if !u.relist(n) {
			return // failed, stays dirty
		}
	}

	// Recurse into dirty children, independent subtrees in parallel.
	// The semaphore is try-acquire: when the pool is saturated the child
	// reconciles inline, so a parent waiting on its children can never
	// deadlock the pool.
	children := make([]*node, 0, len(n.children))
	for _, child := range n.children {
		if child.dirty {
			children = append(children, child)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].path < children[j].path })

	var wg sync.WaitGroup
	for _, child := range children {
		select {
		case u.sem <- struct{}{}:
			wg.Add(1)
			go func(child *node) {
				defer wg.Done()
				defer func() { <-u.sem }()
				u.reconcile(child)
			}(child)
		default:
			u.reconcile(child)
		}
	}
	wg.Wait()

	// Post-order: a directory becomes clean only once every child is. A
	// child that vanished underneath its own reconciliation invalidates
	// this listing, so the next pass diffs it away instead of retrying a
	// path that no longer exists.
	clean := true
	for _, child := range n.children {
		if child.dirty {
			clean = false
			if u.vanished(child.path) {
				n.listingValid = false
			}
		}
	}
	if !clean || u.ctx.Err() != nil {
		return
	}
	u.cache.markClean(n)
}

// relist fetches the directory's entries and diffs them against the
// cached children. Entries gone from the filesystem are destroyed even
// when they were never individually marked dirty; new entries become
// dirty nodes so the recursion visits them. Returns false on accessor
// failure.
func (u *updateRun) relist(n *node) bool {
	entries, err := u.cache.accessor.List(n.path)
	if err != nil {
		u.fail("list", n.path, err)
		return false
	}
	u.dirsListed.Add(1)
	listingsTotal.Inc()

	present := make(map[string]Kind, len(entries))
	for _, e := range entries {
		if u.cache.ignore.ShouldIgnore(e.Name, u.cache.relPath(filepath.Join(n.path, e.Name))) {
			continue
		}
		present[e.Name] = e.Kind
	}

	// Removals first, including entries whose kind changed underneath
	// us: a file replaced by a directory of the same name is a destroy
	// plus a rediscover, never an in-place mutation.
	var stale []string
	for name, child := range n.children {
		if kind, ok := present[name]; !ok || kind != child.kind {
			stale = append(stale, name)
		}
	}
	for _, name := range stale {
		removed := u.cache.removeSubtree(n, name)
		u.nodesRemoved.Add(int64(removed))
		u.cache.logger.Debug("entry vanished",
			zap.String("dir", n.path),
			zap.String("name", name),
			zap.Int("nodes_removed", removed))
	}

	names := make([]string, 0, len(present))
	for name := range present {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := n.children[name]; ok {
			continue
		}
		u.cache.addChild(n, name, present[name])
		u.nodesAdded.Add(1)
	}

	n.listingValid = true
	return true
}

// reconcileFile re-checks a dirty file's metadata. Cached content is
// preserved exactly when the filesystem still reports the metadata it
// was taken against; otherwise the content is dropped and the next Open
// fetches it, keeping Update's I/O proportional to metadata checks
// rather than file sizes.
func (u *updateRun) reconcileFile(n *node) {
	meta, err := u.cache.accessor.Stat(n.path)
	if err != nil {
		// This covers the race where the file vanished between the
		// parent's listing and this stat; the node stays dirty and the
		// next listing diff removes it.
		u.fail("stat", n.path, err)
		return
	}
	u.filesStatted.Add(1)
	statsTotal.Inc()

	if meta.Kind != KindRegularFile {
		// The file was replaced by an entry of another kind; as far as
		// this node is concerned it no longer exists, and the parent's
		// listing diff rediscovers whatever took its place.
		u.fail("stat", n.path, fmt.Errorf("%w: replaced by a %s", ErrNotFound, meta.Kind))
		return
	}

	unchanged := n.contentValid && n.hasMeta && meta.equal(n.meta)
	if !unchanged {
		n.content = nil
		n.contentValid = false
		n.meta = meta
		n.hasMeta = true
	}

	if u.cache.wantsEagerContent(n) && !n.contentValid {
		data, err := u.cache.accessor.Read(n.path)
		if err != nil {
			u.fail("read", n.path, err)
			return
		}
		u.filesRead.Add(1)
		readsTotal.Inc()
		n.content = data
		n.contentValid = true
		n.meta = meta
		n.hasMeta = true
	}

	u.cache.markClean(n)
}

// wantsEagerContent reports whether a file's content should be fetched
// during reconciliation rather than lazily by Open
func (c *Cache) wantsEagerContent(n *node) bool {
	if len(c.contentNames) == 0 {
		return false
	}
	_, ok := c.contentNames[n.name()]
	return ok
}

// IsClean reports whether the whole tree is reconciled, making the next
// Update a no-op
func (c *Cache) IsClean() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.rootNode.dirty
}

