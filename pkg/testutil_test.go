package uptree

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// countingAccessor wraps another accessor and counts every call per
// path, with optional injected failures. It is the measuring instrument
// for the zero-I/O guarantees: idempotent updates, untouched sibling
// subtrees and cache-served opens all assert against its counts.
type countingAccessor struct {
	inner Accessor

	mu       sync.Mutex
	lists    map[string]int
	stats    map[string]int
	reads    map[string]int
	failures map[string]error
}

func newCountingAccessor(inner Accessor) *countingAccessor {
	return &countingAccessor{
		inner:    inner,
		lists:    make(map[string]int),
		stats:    make(map[string]int),
		reads:    make(map[string]int),
		failures: make(map[string]error),
	}
}

func (ca *countingAccessor) List(path string) ([]Entry, error) {
	ca.mu.Lock()
	ca.lists[path]++
	err := ca.failures[path]
	ca.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return ca.inner.List(path)
}

func (ca *countingAccessor) Stat(path string) (Meta, error) {
	ca.mu.Lock()
	ca.stats[path]++
	err := ca.failures[path]
	ca.mu.Unlock()
	if err != nil {
		return Meta{}, err
	}
	return ca.inner.Stat(path)
}

func (ca *countingAccessor) Read(path string) ([]byte, error) {
	ca.mu.Lock()
	ca.reads[path]++
	err := ca.failures[path]
	ca.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return ca.inner.Read(path)
}

// failWith injects an error for every access against one path
func (ca *countingAccessor) failWith(path string, err error) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.failures[path] = err
}

// clearFailure removes an injected error
func (ca *countingAccessor) clearFailure(path string) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	delete(ca.failures, path)
}

// reset zeroes all call counts, keeping injected failures
func (ca *countingAccessor) reset() {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.lists = make(map[string]int)
	ca.stats = make(map[string]int)
	ca.reads = make(map[string]int)
}

func (ca *countingAccessor) listCalls(path string) int {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	return ca.lists[path]
}

func (ca *countingAccessor) readCalls(path string) int {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	return ca.reads[path]
}

func (ca *countingAccessor) totalCalls() int {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	total := 0
	for _, n := range ca.lists {
		total += n
	}
	for _, n := range ca.stats {
		total += n
	}
	for _, n := range ca.reads {
		total += n
	}
	return total
}

// callsUnder counts every access against paths at or under a prefix
func (ca *countingAccessor) callsUnder(prefix string) int {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	total := 0
	for _, counts := range []map[string]int{ca.lists, ca.stats, ca.reads} {
		for path, n := range counts {
			if path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator)) {
				total += n
			}
		}
	}
	return total
}

// newMemFixture builds an in-memory filesystem rooted at root with the
// given relative-path -> content files
func newMemFixture(t *testing.T, root string, files map[string]string) *AferoAccessor {
	t.Helper()

	acc := NewMemAccessor()
	require.NoError(t, acc.Fs().MkdirAll(root, 0o755))
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, acc.Fs().MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, afero.WriteFile(acc.Fs(), full, []byte(content), 0o644))
	}
	return acc
}

// writeMemFile writes a file and bumps its modification time so the
// change is always visible to metadata comparison, regardless of the
// in-memory filesystem's clock granularity
func writeMemFile(t *testing.T, acc *AferoAccessor, path, content string) {
	t.Helper()

	require.NoError(t, acc.Fs().MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(acc.Fs(), path, []byte(content), 0o644))

	info, err := acc.Fs().Stat(path)
	require.NoError(t, err)
	bumped := info.ModTime().Add(time.Millisecond)
	require.NoError(t, acc.Fs().Chtimes(path, bumped, bumped))
}

// newTestCache builds a cache over a fresh in-memory fixture and
// returns it with its counting accessor
func newTestCache(t *testing.T, root string, files map[string]string, opts ...Option) (*Cache, *countingAccessor) {
	t.Helper()

	mem := newMemFixture(t, root, files)
	counting := newCountingAccessor(mem)
	opts = append([]Option{WithAccessor(counting)}, opts...)
	cache, err := New(root, opts...)
	require.NoError(t, err)
	return cache, counting
}
