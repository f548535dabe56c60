package uptree

import "time"

// Kind classifies a filesystem entry
type Kind uint8

const (
	KindDirectory Kind = iota
	KindRegularFile
	KindOther // symlinks, devices, sockets; listed but never content-cached
)

// String returns the human-readable name for a kind
func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindRegularFile:
		return "file"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Entry is one named entry in a directory listing
type Entry struct {
	Name string
	Kind Kind
}

// Meta is the stat metadata recorded against cached content. Content is
// trusted only while the filesystem still reports identical metadata.
type Meta struct {
	Kind    Kind
	Size    int64
	ModTime time.Time
}

// equal reports whether two metadata snapshots describe the same file state
func (m Meta) equal(other Meta) bool {
	return m.Size == other.Size && m.ModTime.Equal(other.ModTime)
}

// Accessor is the capability interface the cache uses for all filesystem
// access. Implementations must return an error wrapping ErrNotFound when
// the path has vanished, and any other error for permission or IO
// failures. The cache never touches the filesystem except through its
// accessor, which keeps reconciliation testable and lets callers swap in
// alternative backends.
type Accessor interface {
	// List returns the named entries of a directory.
	List(path string) ([]Entry, error)

	// Stat returns metadata for a single entry.
	Stat(path string) (Meta, error)

	// Read returns the full content of a regular file.
	Read(path string) ([]byte, error)
}
