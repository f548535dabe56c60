package uptree

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// AferoAccessor adapts any afero filesystem to the Accessor interface.
// The usual backing is an in-memory filesystem, which gives callers a
// fully deterministic cache without touching the disk, but any afero
// backend works, including the plain OS one.
type AferoAccessor struct {
	fs afero.Fs
}

// NewAferoAccessor creates an accessor over an existing afero filesystem
func NewAferoAccessor(fs afero.Fs) *AferoAccessor {
	return &AferoAccessor{fs: fs}
}

// NewMemAccessor creates an accessor over a fresh in-memory filesystem
func NewMemAccessor() *AferoAccessor {
	return &AferoAccessor{fs: afero.NewMemMapFs()}
}

// Fs returns the underlying afero filesystem
func (a *AferoAccessor) Fs() afero.Fs {
	return a.fs
}

// List returns the named entries of a directory
func (a *AferoAccessor) List(path string) ([]Entry, error) {
	infos, err := afero.ReadDir(a.fs, path)
	if err != nil {
		return nil, mapAferoError(path, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name: info.Name(),
			Kind: kindFromMode(info.Mode()),
		})
	}
	return entries, nil
}

// Stat returns metadata for a single entry
func (a *AferoAccessor) Stat(path string) (Meta, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		return Meta{}, mapAferoError(path, err)
	}
	return Meta{
		Kind:    kindFromMode(info.Mode()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Read returns the full content of a regular file
func (a *AferoAccessor) Read(path string) ([]byte, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, mapAferoError(path, err)
	}
	return data, nil
}

// mapAferoError translates afero errors into the cache error taxonomy
func mapAferoError(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return err
}
