package persistence

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hupe1980/surfmatch/internal/fs"
	"github.com/hupe1980/surfmatch/internal/mmap"
)

// SaveToFile writes through writeFunc into a temporary file next to filename
// and atomically renames it into place.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	return SaveToFileFS(fs.Default, filename, writeFunc)
}

// SaveToFileFS is SaveToFile on fsys. On failure the temporary file is
// removed and filename keeps its previous content.
func SaveToFileFS(fsys fs.FileSystem, filename string, writeFunc func(io.Writer) error) (err error) {
	dir := filepath.Dir(filename)
	tmpName := filepath.Join(dir, filepath.Base(filename)+".tmp-"+uuid.NewString())

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := fsys.OpenFile(tmpName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = tmp.Close()
		}
		_ = fsys.Remove(tmpName)
	}()

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err = writeFunc(buf); err != nil {
		return err
	}
	if err = buf.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = fsys.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, derr := fsys.OpenFile(dir, os.O_RDONLY, 0); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// SaveModel encodes m into filename atomically and returns the encoded size.
func SaveModel(filename string, m *ModelData, ct CompressionType) (int64, error) {
	var n int64
	err := SaveToFile(filename, func(w io.Writer) error {
		var err error
		n, err = Encode(w, m, ct)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// LoadModel maps filename read-only and decodes it.
func LoadModel(filename string) (*ModelData, error) {
	f, err := mmap.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeBytes(f.Bytes())
}
