package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"
)

// Reader reads an archive written by Writer.
type Reader struct {
	zr      *zip.Reader
	closer  io.Closer
	entries map[string]*zip.File
	meta    Bundle
}

// Open opens the archive at path.
func Open(path string) (*Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	r, err := newReader(&rc.Reader)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = rc
	return r, nil
}

// NewReader reads an archive of size bytes from ra.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return newReader(zr)
}

func newReader(zr *zip.Reader) (*Reader, error) {
	r := &Reader{zr: zr, entries: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		r.entries[f.Name] = f
	}
	data, err := r.readEntry(BundlePath)
	if err != nil {
		return nil, fmt.Errorf("not a ztar archive: %w", err)
	}
	if err := json.Unmarshal(data, &r.meta); err != nil {
		return nil, fmt.Errorf("failed to decode bundle index: %w", err)
	}
	return r, nil
}

// Close releases the archive file.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Version is the version of the tool that wrote the archive.
func (r *Reader) Version() string {
	return r.meta.Version
}

// Comment returns the zip comment.
func (r *Reader) Comment() string {
	return r.zr.Comment
}

// Files lists the stored files in the order they were written.
func (r *Reader) Files() []File {
	return r.meta.Files
}

// Blobs lists the stored blobs in the order they were written.
func (r *Reader) Blobs() []Blob {
	return r.meta.Blobs
}

func (r *Reader) readEntry(name string) ([]byte, error) {
	f, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("archive has no entry %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// ReadFile returns the contents of a stored file.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	for _, f := range r.meta.Files {
		if f.Name == name {
			return r.readEntry(name)
		}
	}
	return nil, fmt.Errorf("archive has no file %s", name)
}

func (r *Reader) blob(name string) (Blob, bool) {
	for _, b := range r.meta.Blobs {
		if b.Name == name {
			return b, true
		}
	}
	return Blob{}, false
}

// ReadBlob reassembles a blob from its chunks, checking every chunk against
// its content address.
func (r *Reader) ReadBlob(name string) ([]byte, error) {
	b, ok := r.blob(name)
	if !ok {
		return nil, fmt.Errorf("archive has no blob %s", name)
	}
	return r.readBlob(b)
}

func (r *Reader) readBlob(b Blob) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(b.Length))
	for _, id := range b.Chunks {
		chunk, err := r.readEntry(chunkPath(id))
		if err != nil {
			return nil, fmt.Errorf("blob %s: %w", b.Name, err)
		}
		if got := chunkID(chunk); got != id {
			return nil, fmt.Errorf("blob %s: chunk %s is corrupt (content hashes to %s)", b.Name, id, got)
		}
		buf.Write(chunk)
	}
	if int64(buf.Len()) != b.Length {
		return nil, fmt.Errorf("blob %s: chunks hold %d bytes, index says %d", b.Name, buf.Len(), b.Length)
	}
	return buf.Bytes(), nil
}

// ExtractFiles writes every stored file under dest.
func (r *Reader) ExtractFiles(dest string) error {
	for _, f := range r.meta.Files {
		if err := checkName(f.Name); err != nil {
			return err
		}
		data, err := r.readEntry(f.Name)
		if err != nil {
			return err
		}
		path := filepath.Join(dest, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// ExtractBlobs writes every blob under dest at its target file and offset.
// Blobs without a target are written to a file named after the blob. An
// archive whose blobs overlap each other or land on a stored file is rejected
// before anything is written. Target files are created up front and then
// filled concurrently.
func (r *Reader) ExtractBlobs(ctx context.Context, dest string) error {
	l := newLayout()
	for _, f := range r.meta.Files {
		if err := l.addFile(f.Name); err != nil {
			return err
		}
	}

	sizes := make(map[string]int64)
	var order []string
	paths := make([]string, len(r.meta.Blobs))
	offsets := make([]int64, len(r.meta.Blobs))
	for i, b := range r.meta.Blobs {
		target := b.extractTarget()
		if err := checkName(target.Location); err != nil {
			return fmt.Errorf("blob %s: %w", b.Name, err)
		}
		if target.Offset < 0 {
			return fmt.Errorf("blob %s: negative target offset %d", b.Name, target.Offset)
		}
		if err := l.addBlob(b.Name, target); err != nil {
			return err
		}
		offsets[i] = target.Offset
		paths[i] = filepath.Join(dest, filepath.FromSlash(target.Location))
		if _, ok := sizes[paths[i]]; !ok {
			order = append(order, paths[i])
		}
		sizes[paths[i]] = max(sizes[paths[i]], offsets[i]+b.Length)
	}

	for _, path := range order {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		err = f.Truncate(sizes[path])
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("failed to size %s: %w", path, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, b := range r.meta.Blobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := r.readBlob(b)
			if err != nil {
				return err
			}
			f, err := os.OpenFile(paths[i], os.O_WRONLY, 0)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", paths[i], err)
			}
			_, err = f.WriteAt(data, offsets[i])
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("failed to write blob %s to %s: %w", b.Name, paths[i], err)
			}
			return nil
		})
	}
	return g.Wait()
}
