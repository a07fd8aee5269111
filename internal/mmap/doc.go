// Package mmap maps model files read-only into memory.
//
//	m, err := mmap.Open("model.ppf")
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// On Unix the file is mapped with mmap(2) and access hints go through
// madvise(2). Other platforms fall back to reading the whole file into memory.
//
// Bytes must not be used after Close.
package mmap
