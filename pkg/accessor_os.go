package uptree

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// OSAccessor accesses the real filesystem through the os package, using
// direct stat syscalls for full nanosecond timestamp precision so that
// rapid successive modifications are not mistaken for an unchanged file.
type OSAccessor struct{}

// NewOSAccessor creates an accessor backed by the real filesystem
func NewOSAccessor() *OSAccessor {
	return &OSAccessor{}
}

// List returns the named entries of a directory
func (a *OSAccessor) List(path string) ([]Entry, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, mapFSError(path, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		entries = append(entries, Entry{
			Name: d.Name(),
			Kind: kindFromMode(d.Type()),
		})
	}
	return entries, nil
}

// Stat returns metadata for a single entry
func (a *OSAccessor) Stat(path string) (Meta, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if err == unix.ENOENT || err == unix.ENOTDIR {
			return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Meta{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var kind Kind
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		kind = KindDirectory
	case unix.S_IFREG:
		kind = KindRegularFile
	default:
		kind = KindOther
	}

	return Meta{
		Kind:    kind,
		Size:    st.Size,
		ModTime: time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
	}, nil
}

// Read returns the full content of a regular file
func (a *OSAccessor) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mapFSError(path, err)
	}
	return data, nil
}

// kindFromMode maps a file mode to an entry kind
func kindFromMode(mode fs.FileMode) Kind {
	switch {
	case mode.IsDir():
		return KindDirectory
	case mode.IsRegular():
		return KindRegularFile
	default:
		return KindOther
	}
}

// mapFSError translates os-level errors into the cache error taxonomy
func mapFSError(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return err
}
