package uptree

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateInitialScan(t *testing.T) {
	cache, _ := newTestCache(t, "/r", map[string]string{
		"a.txt":          "alpha",
		"sub/b.txt":      "beta",
		"sub/deep/c.txt": "gamma",
		"empty-ish/d.md": "delta",
	})

	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Failures)

	// root, a.txt, sub, sub/b.txt, sub/deep, sub/deep/c.txt, empty-ish, d.md
	assert.Equal(t, 8, cache.NodeCount())
	assert.True(t, cache.IsClean())
	assert.Empty(t, cache.ListDirty())

	assert.Equal(t, int64(4), result.Counters.DirsListed)
	assert.Equal(t, int64(4), result.Counters.FilesStatted)
	assert.Equal(t, int64(7), result.Counters.NodesAdded)
	assert.Zero(t, result.Counters.FilesRead)
	assert.Zero(t, result.Counters.NodesRemoved)
}

func TestUpdateIdempotent(t *testing.T) {
	cache, counting := newTestCache(t, "/r", map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "beta",
	})

	_, err := cache.Update(context.Background())
	require.NoError(t, err)
	counting.reset()

	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, counting.totalCalls(), "updating a clean tree must perform no I/O")
	assert.Equal(t, Counters{}, result.Counters)
}

func TestUpdateSiblingIsolation(t *testing.T) {
	files := map[string]string{
		"a/one.txt": "1",
		"a/two.txt": "2",
		"b/big.txt": "big",
	}
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("c/file%02d.txt", i)] = "filler"
	}
	cache, counting := newTestCache(t, "/r", files)

	_, err := cache.Update(context.Background())
	require.NoError(t, err)
	counting.reset()

	require.NoError(t, cache.MarkDirty("/r/a/one.txt"))
	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)

	assert.Zero(t, counting.callsUnder("/r/b"), "untouched sibling subtree must cost zero I/O")
	assert.Zero(t, counting.callsUnder("/r/c"), "untouched sibling subtree must cost zero I/O")
	assert.Zero(t, counting.listCalls("/r"), "ancestor listings stay trusted")
	assert.Equal(t, int64(1), result.Counters.FilesStatted)
}

func TestUpdateDetectsDeletion(t *testing.T) {
	cache, counting := newTestCache(t, "/r", map[string]string{
		"keep.txt":      "k",
		"gone/one.txt":  "1",
		"gone/two.txt":  "2",
		"gone/sub/x.go": "x",
	})
	_, err := cache.Update(context.Background())
	require.NoError(t, err)
	before := cache.NodeCount()

	// Deletions are reported against the containing directory: the
	// vanished entry itself can no longer be accessed.
	mem := counting.inner.(*AferoAccessor)
	require.NoError(t, mem.Fs().RemoveAll("/r/gone"))
	require.NoError(t, cache.MarkDirty("/r"))

	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(5), result.Counters.NodesRemoved) // gone, one, two, sub, x.go
	assert.Equal(t, before-5, cache.NodeCount())

	assert.False(t, cache.Exists("/r/gone/one.txt"))
	assert.Equal(t, []string{"/r/keep.txt"}, cache.FileList())
}

func TestUpdateDiscoversNewFile(t *testing.T) {
	cache, counting := newTestCache(t, "/r", map[string]string{
		"existing.txt": "e",
	})
	_, err := cache.Update(context.Background())
	require.NoError(t, err)

	mem := counting.inner.(*AferoAccessor)
	writeMemFile(t, mem, "/r/sub/new.txt", "fresh")
	require.NoError(t, cache.MarkDirty("/r/sub/new.txt"))

	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(2), result.Counters.NodesAdded) // sub, new.txt

	assert.True(t, cache.Exists("/r/sub/new.txt"))
	data, err := cache.ReadFile("/r/sub/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestUpdateKindChange(t *testing.T) {
	cache, counting := newTestCache(t, "/r", map[string]string{
		"thing": "was a file",
	})
	_, err := cache.Update(context.Background())
	require.NoError(t, err)

	mem := counting.inner.(*AferoAccessor)
	require.NoError(t, mem.Fs().Remove("/r/thing"))
	require.NoError(t, mem.Fs().MkdirAll("/r/thing", 0o755))
	writeMemFile(t, mem, "/r/thing/inside.txt", "now a directory")
	require.NoError(t, cache.MarkDirty("/r"))

	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)

	n, err := cache.lookup("/r/thing")
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, n.kind)
	assert.Equal(t, []string{"/r/thing/inside.txt"}, cache.FileList())
}

func TestUpdateVanishedFileConverges(t *testing.T) {
	cache, counting := newTestCache(t, "/r", map[string]string{
		"doomed.txt": "d",
		"stable.txt": "s",
	})
	_, err := cache.Update(context.Background())
	require.NoError(t, err)

	// The producer marked the file before deleting it; the stat during
	// reconciliation then finds nothing.
	require.NoError(t, cache.MarkDirty("/r/doomed.txt"))
	mem := counting.inner.(*AferoAccessor)
	require.NoError(t, mem.Fs().Remove("/r/doomed.txt"))

	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Contains(t, result.Failures, "/r/doomed.txt")
	assert.ErrorIs(t, result.Failures["/r/doomed.txt"], ErrNotFound)

	// The vanish invalidated the parent's listing, so the next pass
	// diffs the entry away instead of retrying a dead path.
	result, err = cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), result.Counters.NodesRemoved)
	assert.Equal(t, []string{"/r/stable.txt"}, cache.FileList())
	assert.True(t, cache.IsClean())
}

func TestUpdateFailureIsolation(t *testing.T) {
	cache, counting := newTestCache(t, "/r", map[string]string{
		"ok/good.txt":  "g",
		"bad/poor.txt": "p",
	})
	_, err := cache.Update(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.MarkDirty("/r/ok/good.txt"))
	require.NoError(t, cache.MarkDirty("/r/bad/poor.txt"))
	counting.failWith("/r/bad/poor.txt", errors.New("injected io failure"))

	result, err := cache.Update(context.Background())
	require.NoError(t, err, "per-path failures do not fail the call")
	assert.False(t, result.Success)
	require.Contains(t, result.Failures, "/r/bad/poor.txt")

	var ferr *FetchError
	require.ErrorAs(t, result.Failures["/r/bad/poor.txt"], &ferr)
	assert.Equal(t, "stat", ferr.Op)
	assert.Equal(t, "/r/bad/poor.txt", ferr.Path)
	assert.Error(t, result.Err())

	// The healthy sibling was reconciled despite the failure.
	ok, err := cache.lookup("/r/ok/good.txt")
	require.NoError(t, err)
	assert.False(t, ok.dirty)

	// The failed subtree is visibly dirty, not silently clean.
	assert.Equal(t,
		[]string{"/r", "/r/bad", "/r/bad/poor.txt"},
		cache.ListDirty())
	assert.False(t, cache.IsClean())

	// Retry after the failure clears succeeds and converges.
	counting.clearFailure("/r/bad/poor.txt")
	result, err = cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, cache.ListDirty())
}

func TestUpdateListFailureKeepsSubtree(t *testing.T) {
	cache, counting := newTestCache(t, "/r", map[string]string{
		"frail/a.txt": "a",
	})
	_, err := cache.Update(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.MarkDirty("/r/frail"))
	counting.failWith("/r/frail", errors.New("transient list failure"))

	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Contains(t, result.Failures, "/r/frail")

	// The cached child survived the failed re-list.
	assert.True(t, cache.Exists("/r/frail/a.txt"))

	counting.clearFailure("/r/frail")
	result, err = cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestUpdateCancellation(t *testing.T) {
	cache, _ := newTestCache(t, "/r", map[string]string{
		"a.txt": "a",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := cache.Update(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Success)
	assert.False(t, cache.IsClean(), "cancelled work must stay dirty")

	// Resuming with a live context converges normally.
	result, err = cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, cache.IsClean())
}

func TestForceUpdate(t *testing.T) {
	cache, counting := newTestCache(t, "/r", map[string]string{
		"a.txt":     "alpha",
		"sub/b.txt": "beta",
	})
	_, err := cache.Update(context.Background())
	require.NoError(t, err)

	// Prime the content cache so survival across the forced pass is
	// observable.
	_, err = cache.Open("/r/a.txt")
	require.NoError(t, err)
	counting.reset()

	result, err := cache.ForceUpdate(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(2), result.Counters.DirsListed)
	assert.Equal(t, int64(2), result.Counters.FilesStatted)

	// Unchanged metadata: the cached content survived, so the next open
	// is served from memory.
	counting.reset()
	data, err := cache.ReadFile("/r/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
	assert.Zero(t, counting.readCalls("/r/a.txt"))
}

func TestUpdateEagerContent(t *testing.T) {
	cache, counting := newTestCache(t, "/r", map[string]string{
		"config.yaml":     "eager: true",
		"sub/config.yaml": "eager: also",
		"other.txt":       "lazy",
	}, WithContentCacheNames("config.yaml"))

	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(2), result.Counters.FilesRead)

	counting.reset()
	data, err := cache.ReadFile("/r/sub/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "eager: also", string(data))
	assert.Zero(t, counting.totalCalls(), "eagerly fetched content must serve opens with no I/O")

	// The non-matching file was not read during reconciliation.
	assert.Zero(t, counting.readCalls("/r/other.txt"))
}

func TestUpdateParallelWorkers(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 8; i++ {
		for j := 0; j < 4; j++ {
			files[fmt.Sprintf("dir%d/file%d.txt", i, j)] = "content"
		}
	}
	cache, _ := newTestCache(t, "/r", files, WithWorkers(8))

	result, err := cache.Update(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(9), result.Counters.DirsListed)
	assert.Equal(t, int64(32), result.Counters.FilesStatted)
	assert.Empty(t, cache.ListDirty())
}
