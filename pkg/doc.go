// Package uptree maintains an incrementally-updated, cached view of a
// directory tree: a recursive file listing plus cached contents of
// selected files, kept consistent as the underlying filesystem changes.
// It avoids repeated full traversals and repeated reads of unchanged
// files when a caller repeatedly needs the current state of a tree, as
// build systems, watchers and incremental indexers do.
//
// # Core API
//
// The main entry point is Cache, bound to one root directory:
//
//	cache, err := uptree.New("/path/to/repo")
//
// Invalidation is caller-driven and pull-based. Producers report
// changed paths, which is pure in-memory flag mutation with no I/O:
//
//	cache.MarkDirty("/path/to/repo/some/modified/file")
//
// Consumers reconcile and then query the consistent view:
//
//	result, err := cache.Update(ctx)
//	for path := range cache.Files() {
//		content, err := cache.Open(path)
//		...
//	}
//
// Update re-scans only directories whose listing became stale and
// re-checks only files that were marked; untouched subtrees cost zero
// I/O. Open returns cached bytes with zero I/O while the recorded stat
// metadata still matches the filesystem.
//
// # Failure model
//
// A filesystem failure against one path never aborts reconciliation of
// sibling subtrees. Failed nodes stay dirty, are reported in the
// UpdateResult, and are surfaced by ListDirty rather than silently
// treated as clean.
//
// # Concurrency
//
// MarkDirty may be called concurrently from multiple producers while no
// Update or query is in flight. Update and the query methods assume a
// single logical owner and must be serialised by the caller.
// Reconciliation itself fans out over independent subtrees, bounded by
// the configured worker count.
package uptree
