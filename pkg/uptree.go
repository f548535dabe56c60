package uptree

import (
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// defaultWorkers is the reconciliation concurrency used when no
// configuration overrides it
const defaultWorkers = 4

// Cache maintains an incrementally-updated view of a directory tree: a
// recursive file listing plus cached contents of selected files, kept
// consistent with the underlying filesystem through explicit
// invalidation.
//
// Code that changes files should generally do:
//
//	cache, _ := uptree.New("/path/to/repo")
//	cache.MarkDirty("/path/to/repo/the/dir/of/modified/file")
//
// Code processing the directory tree should generally do:
//
//	result, _ := cache.Update(ctx)
//	for path := range cache.Files() {
//		content, _ := cache.Open(path)
//		...
//	}
//
// MarkDirty is cheap (pure in-memory flag mutation, no I/O) and may be
// called concurrently from multiple producers. Update and the query
// methods assume a single logical owner: they must not run concurrently
// with each other or with MarkDirty on the same cache.
type Cache struct {
	root     string
	accessor Accessor

	mu       sync.Mutex
	rootNode *node
	index    *pathIndex

	workers      int
	contentNames map[string]struct{}
	ignore       *IgnoreManager
	logger       *zap.Logger
}

// Option customises cache construction
type Option func(*Cache) error

// WithAccessor replaces the default OS-backed filesystem accessor
func WithAccessor(a Accessor) Option {
	return func(c *Cache) error {
		if a == nil {
			return fmt.Errorf("nil accessor")
		}
		c.accessor = a
		return nil
	}
}

// WithWorkers sets how many subtrees may be reconciled in parallel
func WithWorkers(n int) Option {
	return func(c *Cache) error {
		if err := ValidateWorkers(n); err != nil {
			return err
		}
		c.workers = n
		return nil
	}
}

// WithLogger attaches a structured logger; the default discards all logs
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) error {
		if logger == nil {
			logger = zap.NewNop()
		}
		c.logger = logger
		return nil
	}
}

// WithContentCacheNames lists base filenames whose content is fetched
// eagerly during reconciliation instead of lazily on the first Open.
// Useful for small metadata files that every consumer of the tree reads.
func WithContentCacheNames(names ...string) Option {
	return func(c *Cache) error {
		for _, name := range names {
			c.contentNames[name] = struct{}{}
		}
		return nil
	}
}

// WithHiddenEntries includes dot-prefixed entries in listings; by
// default they are skipped
func WithHiddenEntries() Option {
	return func(c *Cache) error {
		c.ignore.includeHidden = true
		return nil
	}
}

// WithIgnorePatterns adds regular expressions matched against
// slash-separated paths relative to the root; matching entries are
// excluded from listings
func WithIgnorePatterns(patterns ...string) Option {
	return func(c *Cache) error {
		for _, p := range patterns {
			if err := c.ignore.AddPattern(p); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithConfig applies settings loaded from an ini configuration file.
// Later options override individual values.
func WithConfig(cfg *Config) Option {
	return func(c *Cache) error {
		if cfg == nil {
			return nil
		}
		perf := cfg.GetPerformanceConfig()
		if err := ValidateWorkers(perf.Workers); err != nil {
			return fmt.Errorf("invalid workers configuration: %w", err)
		}
		c.workers = perf.Workers

		cacheCfg := cfg.GetCacheConfig()
		for _, name := range cacheCfg.ContentNames {
			c.contentNames[name] = struct{}{}
		}

		ignoreCfg := cfg.GetIgnoreConfig()
		c.ignore.includeHidden = ignoreCfg.IncludeHidden
		for _, p := range ignoreCfg.Patterns {
			if err := c.ignore.AddPattern(p); err != nil {
				return fmt.Errorf("invalid ignore pattern in config: %w", err)
			}
		}
		return nil
	}
}

// New creates a cache bound to one root path. The root must exist and be
// a directory, otherwise construction fails with ErrNotFound. The root
// node starts with an untrusted listing so the first Update performs a
// full initial scan.
func New(root string, opts ...Option) (*Cache, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPath, root, err)
	}

	c := &Cache{
		root:         filepath.Clean(absRoot),
		accessor:     NewOSAccessor(),
		index:        newPathIndex(defaultIndexLevels),
		workers:      defaultWorkers,
		contentNames: make(map[string]struct{}),
		ignore:       NewIgnoreManager(),
		logger:       zap.NewNop(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	meta, err := c.accessor.Stat(c.root)
	if err != nil {
		return nil, fmt.Errorf("%w: root %s", ErrNotFound, c.root)
	}
	if meta.Kind != KindDirectory {
		return nil, fmt.Errorf("%w: root %s is not a directory", ErrNotFound, c.root)
	}

	c.rootNode = &node{
		path:     c.root,
		kind:     KindDirectory,
		children: make(map[string]*node),
		dirty:    true,
	}
	c.index.Insert(c.rootNode)

	c.logger.Debug("cache initialised",
		zap.String("root", c.root),
		zap.Int("workers", c.workers))

	return c, nil
}

// Root returns the canonical absolute root path the cache is bound to
func (c *Cache) Root() string {
	return c.root
}

// NodeCount returns the number of tracked nodes including directories
func (c *Cache) NodeCount() int {
	return c.index.Length()
}

// Stats returns the number of clean regular files currently tracked and
// the total bytes of cached content held in memory
func (c *Cache) Stats() (files int, cachedBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index.ForEach(func(n *node) bool {
		if n.kind == KindRegularFile && !n.dirty {
			files++
		}
		if n.contentValid {
			cachedBytes += int64(len(n.content))
		}
		return true
	})
	return files, cachedBytes
}

// relPath returns a node path relative to the cache root, slash-separated
func (c *Cache) relPath(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
