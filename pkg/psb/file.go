package psb

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Open maps a PSB or MDF file read-only and decodes it.
// If mmap is unavailable, it falls back to ReadAt-based loading.
func Open(path string, opts LoadOptions) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: file of %d bytes cannot be indexed", ErrFormat, size64)
	}
	size := int(size64)
	if size == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrFormat)
	}

	// Decoding copies everything it keeps, so the mapping can be released
	// as soon as Load returns.
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		doc, loadErr := LoadWithOptions(data, opts)
		if unmapErr := unix.Munmap(data); unmapErr != nil && loadErr == nil {
			return nil, unmapErr
		}
		return doc, loadErr
	}

	return OpenReaderAt(f, size64, opts)
}

// OpenReaderAt reads and decodes a PSB or MDF from a random-access reader
// without mmap.
func OpenReaderAt(r io.ReaderAt, size int64, opts LoadOptions) (*Document, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: invalid size %d", ErrFormat, size)
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return LoadWithOptions(data, opts)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

// SaveOptions controls Save.
type SaveOptions struct {
	// MDF wraps the output in a zlib-compressed MDF container.
	MDF bool
	// MDFLevel is the zlib level used when MDF is set; 0 picks the default.
	MDFLevel int
}

// Save builds the document and writes it to path. The file is written to
// a temporary sibling and renamed into place only after Build succeeds.
func (d *Document) Save(path string, opts SaveOptions) error {
	out, err := d.Build()
	if err != nil {
		return err
	}
	if opts.MDF {
		if out, err = CompressMDF(out, opts.MDFLevel); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := writeFull(tmp, out); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
