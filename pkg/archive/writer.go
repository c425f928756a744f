package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/zerfoo/ztar/pkg/allocator"
	"github.com/zerfoo/ztar/pkg/dtype"
)

// Writer builds an archive. It implements converter.Store.
type Writer struct {
	z      *zip.Writer
	closer io.Closer
	meta   Bundle
	chunks map[string]bool
	layout *layout
	closed bool
}

// Create creates the archive file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	return newFileWriter(f), nil
}

func newFileWriter(f io.WriteCloser) *Writer {
	w := NewWriter(f)
	w.closer = f
	return w
}

// NewWriter writes an archive to w. Close does not close w.
func NewWriter(w io.Writer) *Writer {
	z := zip.NewWriter(w)
	_ = z.SetComment("ztar v" + Version)
	return &Writer{
		z:      z,
		meta:   Bundle{Version: Version},
		chunks: make(map[string]bool),
		layout: newLayout(),
	}
}

func (w *Writer) create(name string, method uint16) (io.Writer, error) {
	return w.z.CreateHeader(&zip.FileHeader{Name: name, Method: method})
}

// WriteFile stores data under name. The name may not already be used by a
// file or by a blob's extraction target.
func (w *Writer) WriteFile(name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := w.layout.addFile(name); err != nil {
		return err
	}
	fw, err := w.create(name, zip.Deflate)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	w.meta.Files = append(w.meta.Files, File{Name: name, Size: int64(len(data))})
	return nil
}

// WriteBlob stores one externalized tensor. Opaque blobs are recorded as a
// flat byte vector regardless of dims. The blob's extraction range may not
// overlap an earlier blob's or land on a stored file.
func (w *Writer) WriteBlob(kind dtype.Kind, name string, data []byte, dims []int64, relativeError float64, target allocator.Ref) error {
	if name == "" {
		return fmt.Errorf("blob name is empty")
	}
	if target.Offset < 0 {
		return fmt.Errorf("blob %s: negative target offset %d", name, target.Offset)
	}
	b := Blob{
		Name:          name,
		Kind:          kind.Tag(),
		Dims:          append([]int64(nil), dims...),
		RelativeError: relativeError,
		TargetFile:    target.Location,
		TargetOffset:  target.Offset,
		Length:        int64(len(data)),
	}
	if kind == dtype.KindOpaque {
		b.Dims = []int64{int64(len(data))}
	}
	extracted := b.extractTarget()
	if err := checkName(extracted.Location); err != nil {
		return fmt.Errorf("blob %s: %w", name, err)
	}
	if err := w.layout.addBlob(name, extracted); err != nil {
		return err
	}

	for start := 0; start < len(data); start += ChunkSize {
		chunk := data[start:min(start+ChunkSize, len(data))]
		id := chunkID(chunk)
		b.Chunks = append(b.Chunks, id)
		if w.chunks[id] {
			continue
		}
		fw, err := w.create(chunkPath(id), zip.Deflate)
		if err != nil {
			return fmt.Errorf("failed to add chunk for blob %s: %w", name, err)
		}
		if _, err := fw.Write(chunk); err != nil {
			return fmt.Errorf("failed to write chunk for blob %s: %w", name, err)
		}
		w.chunks[id] = true
	}

	w.meta.Blobs = append(w.meta.Blobs, b)
	return nil
}

// Close writes the bundle index and finishes the archive. The file opened by
// Create is closed even when finishing fails.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.finish()
	if w.closer != nil {
		if cerr := w.closer.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close archive: %w", cerr))
		}
	}
	return err
}

func (w *Writer) finish() error {
	data, err := json.Marshal(w.meta)
	if err != nil {
		return fmt.Errorf("failed to encode bundle index: %w", err)
	}
	fw, err := w.create(BundlePath, zip.Deflate)
	if err != nil {
		return fmt.Errorf("failed to add bundle index: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write bundle index: %w", err)
	}
	if err := w.z.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}
