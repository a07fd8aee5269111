package fs

import (
	"io"
	"os"
)

// File is the subset of *os.File an atomic writer needs.
type File interface {
	io.Writer
	io.Closer
	Sync() error
}

// FileSystem is the subset of the os package an atomic writer needs.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	MkdirAll(path string, perm os.FileMode) error
}

// LocalFS implements FileSystem on the local disk.
type LocalFS struct{}

// OpenFile opens a file.
func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

// Remove removes a file.
func (LocalFS) Remove(name string) error { return os.Remove(name) }

// Rename renames a file.
func (LocalFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

// MkdirAll creates a directory tree.
func (LocalFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

// Default is the local file system.
var Default FileSystem = LocalFS{}
