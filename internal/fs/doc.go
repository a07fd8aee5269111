// Package fs abstracts the file operations behind atomic model and blob
// writes so tests can inject write, sync, close and rename failures.
//
// Operations take no context: local file syscalls cannot be interrupted.
// Remote stores go through the blobstore package instead.
package fs
