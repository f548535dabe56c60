package uptree

import (
	"bytes"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"
)

// Content is a read-only handle over one file's cached bytes. The byte
// slice is shared with the cache; callers must not modify it.
type Content struct {
	path string
	data []byte
	meta Meta
}

// Path returns the canonical absolute path of the file
func (ct *Content) Path() string {
	return ct.path
}

// Bytes returns the cached content without copying
func (ct *Content) Bytes() []byte {
	return ct.data
}

// Reader returns a fresh reader over the cached content
func (ct *Content) Reader() *bytes.Reader {
	return bytes.NewReader(ct.data)
}

// Size returns the file size the content was taken against
func (ct *Content) Size() int64 {
	return ct.meta.Size
}

// ModTime returns the modification time the content was taken against
func (ct *Content) ModTime() time.Time {
	return ct.meta.ModTime
}

// Files returns a lazy sequence over every clean regular file currently
// in the tree, in sorted path order. The sequence is finite, restartable
// (re-ranging yields a fresh traversal over current state) and performs
// no I/O or reconciliation: callers must Update first. Directories and
// non-regular entries are never included; neither are nodes a failed
// reconciliation left dirty, which ListDirty surfaces instead.
func (c *Cache) Files() iter.Seq[string] {
	return func(yield func(string) bool) {
		c.index.ForEach(func(n *node) bool {
			if n.kind != KindRegularFile || n.dirty {
				return true
			}
			return yield(n.path)
		})
	}
}

// FileList materialises Files into a slice, for callers that want the
// whole listing at once
func (c *Cache) FileList() []string {
	var paths []string
	for path := range c.Files() {
		paths = append(paths, path)
	}
	return paths
}

// Open returns a content handle for a file in the reconciled tree. Valid
// cached content is returned with zero I/O; otherwise the content is
// fetched through the accessor and cached along with the metadata it was
// taken against.
//
// Open fails with ErrNotFound when the path is absent from the tree
// after the most recent Update, ErrNotAFile when it resolves to a
// directory or other non-regular entry, and a *FetchError wrapping the
// underlying failure when the fetch itself fails. On failure the cache
// is left unchanged: earlier content, if any, remains but stays marked
// invalid.
func (c *Cache) Open(path string) (*Content, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.lookup(path)
	if err != nil {
		return nil, err
	}
	if n.kind != KindRegularFile {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotAFile, path, n.kind)
	}

	if n.contentValid {
		contentHitsTotal.Inc()
		return &Content{path: n.path, data: n.content, meta: n.meta}, nil
	}
	contentMissesTotal.Inc()

	meta, err := c.accessor.Stat(n.path)
	if err != nil {
		return nil, newFetchError("stat", n.path, err)
	}
	data, err := c.accessor.Read(n.path)
	if err != nil {
		return nil, newFetchError("read", n.path, err)
	}
	readsTotal.Inc()

	n.content = data
	n.meta = meta
	n.hasMeta = true
	n.contentValid = true

	c.logger.Debug("content fetched",
		zap.String("path", n.path),
		zap.Int("bytes", len(data)))

	return &Content{path: n.path, data: n.content, meta: n.meta}, nil
}

// ReadFile returns a file's content as bytes, fetching it through Open
func (c *Cache) ReadFile(path string) ([]byte, error) {
	content, err := c.Open(path)
	if err != nil {
		return nil, err
	}
	return content.Bytes(), nil
}

// Exists reports whether a path is present in the reconciled tree.
// Like all queries it reads cached state only; call Update first.
func (c *Cache) Exists(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.lookup(path)
	return err == nil
}

// ModTime returns the cached modification time for a file. It fails
// with ErrNotFound when the path is absent from the tree or its
// metadata has not been observed yet, and ErrNotAFile for directories
// and other non-regular entries.
func (c *Cache) ModTime(path string) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.lookup(path)
	if err != nil {
		return time.Time{}, err
	}
	if n.kind != KindRegularFile {
		return time.Time{}, fmt.Errorf("%w: %s is a %s", ErrNotAFile, path, n.kind)
	}
	if !n.hasMeta {
		return time.Time{}, fmt.Errorf("%w: no metadata recorded for %s", ErrNotFound, path)
	}
	return n.meta.ModTime, nil
}
