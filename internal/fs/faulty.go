package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by FaultyFS when no rule error is set.
var ErrInjected = errors.New("fs: injected fault")

// Fault describes the failures injected for files matching a rule.
type Fault struct {
	// FailAfterBytes fails writes once this many bytes were written.
	// Negative disables the limit.
	FailAfterBytes int64
	FailOnSync     bool
	FailOnClose    bool
	FailOnRename   bool
	Err            error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// FaultyFS wraps a FileSystem and injects failures for paths containing a
// rule's substring.
type FaultyFS struct {
	inner FileSystem

	mu      sync.Mutex
	rules   map[string]Fault
	written int64
}

// NewFaultyFS wraps inner.
func NewFaultyFS(inner FileSystem) *FaultyFS {
	return &FaultyFS{inner: inner, rules: make(map[string]Fault)}
}

// AddRule injects f for every path containing pattern.
func (fs *FaultyFS) AddRule(pattern string, f Fault) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.rules[pattern] = f
}

// Written returns the bytes accepted by all files so far.
func (fs *FaultyFS) Written() int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.written
}

func (fs *FaultyFS) match(name string) (Fault, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for pattern, f := range fs.rules {
		if strings.Contains(name, pattern) {
			return f, true
		}
	}
	return Fault{FailAfterBytes: -1}, false
}

// OpenFile opens a file through the wrapped FileSystem.
func (fs *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := fs.inner.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	fault, _ := fs.match(name)
	return &faultyFile{File: f, fs: fs, fault: fault}, nil
}

// Remove delegates to the wrapped FileSystem.
func (fs *FaultyFS) Remove(name string) error { return fs.inner.Remove(name) }

// Rename fails when the source or target matches a FailOnRename rule.
func (fs *FaultyFS) Rename(oldpath, newpath string) error {
	for _, p := range []string{oldpath, newpath} {
		if f, ok := fs.match(p); ok && f.FailOnRename {
			return f.err()
		}
	}
	return fs.inner.Rename(oldpath, newpath)
}

// MkdirAll delegates to the wrapped FileSystem.
func (fs *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return fs.inner.MkdirAll(path, perm)
}

type faultyFile struct {
	File
	fs      *FaultyFS
	fault   Fault
	written int64
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if limit := f.fault.FailAfterBytes; limit >= 0 && f.written+int64(len(p)) > limit {
		allowed := int(limit - f.written)
		n, _ := f.File.Write(p[:allowed])
		f.account(n)
		return n, f.fault.err()
	}
	n, err := f.File.Write(p)
	f.account(n)
	return n, err
}

func (f *faultyFile) account(n int) {
	f.written += int64(n)
	f.fs.mu.Lock()
	f.fs.written += int64(n)
	f.fs.mu.Unlock()
}

func (f *faultyFile) Sync() error {
	if f.fault.FailOnSync {
		return f.fault.err()
	}
	return f.File.Sync()
}

func (f *faultyFile) Close() error {
	err := f.File.Close()
	if f.fault.FailOnClose {
		return f.fault.err()
	}
	return err
}
