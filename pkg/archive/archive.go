// Package archive stores packed models in a zip container.
//
// Small files (rewritten models, manifests) are stored as ordinary zip
// entries. Blobs are split into content-addressed chunks under .ztar/chunks,
// named by the URL-safe base64 of their SHA-1, so identical chunks are stored
// once. The bundle index at .ztar/bundle.json lists every file and blob,
// including where each blob's bytes belong once extracted.
package archive

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/zerfoo/ztar/pkg/allocator"
	"github.com/zerfoo/ztar/pkg/dtype"
)

// Version is written into the zip comment of every archive.
const Version = "0.1.0"

const (
	metaDir = ".ztar"
	// BundlePath is the zip entry holding the bundle index.
	BundlePath = metaDir + "/bundle.json"
	chunkDir   = metaDir + "/chunks/"
)

// ChunkSize is the largest chunk a blob is split into.
const ChunkSize = 4 << 20

// Bundle is the archive index. Blobs are listed in the order they were
// written, which for packed models is traversal order.
type Bundle struct {
	Version string `json:"version"`
	Files   []File `json:"files"`
	Blobs   []Blob `json:"blobs"`
}

// File is an opaque file stored verbatim.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Blob is one externalized tensor.
type Blob struct {
	Name string `json:"name"`
	// Kind is the numeric kind tag; empty for opaque bytes.
	Kind          string  `json:"kind,omitempty"`
	Dims          []int64 `json:"dims"`
	RelativeError float64 `json:"relative_error,omitempty"`
	// TargetFile and TargetOffset say where the blob is written on extraction.
	TargetFile   string   `json:"target_file,omitempty"`
	TargetOffset int64    `json:"target_offset,omitempty"`
	Length       int64    `json:"length"`
	Chunks       []string `json:"chunks"`
}

// Target returns where b belongs once extracted.
func (b Blob) Target() allocator.Ref {
	return allocator.Ref{Location: b.TargetFile, Offset: b.TargetOffset, Length: b.Length}
}

// DataKind returns the blob's numeric kind.
func (b Blob) DataKind() dtype.Kind {
	return dtype.ParseTag(b.Kind)
}

func chunkID(data []byte) string {
	sum := sha1.Sum(data)
	return base64.URLEncoding.EncodeToString(sum[:])
}

func chunkPath(id string) string {
	return chunkDir + id
}

// checkName rejects entry names that would escape the extraction directory or
// shadow the archive's own index.
func checkName(name string) error {
	if name == "" || !filepath.IsLocal(filepath.FromSlash(name)) || strings.Contains(name, `\`) {
		return fmt.Errorf("invalid archive entry name %q", name)
	}
	if first, _, _ := strings.Cut(path.Clean(name), "/"); first == metaDir {
		return fmt.Errorf("archive entry name %q is reserved", name)
	}
	return nil
}

type placed struct {
	blob string
	ref  allocator.Ref
}

// layout tracks where an archive's contents land on extraction, so that no
// blob is written over a stored file or over bytes another blob owns. Names
// compare case-insensitively.
type layout struct {
	files  map[string]string
	ranges map[string][]placed
}

func newLayout() *layout {
	return &layout{files: make(map[string]string), ranges: make(map[string][]placed)}
}

func layoutKey(name string) string {
	return strings.ToLower(path.Clean(name))
}

func (l *layout) addFile(name string) error {
	key := layoutKey(name)
	if prev, ok := l.files[key]; ok {
		return fmt.Errorf("archive already contains %s", prev)
	}
	if rs, ok := l.ranges[key]; ok {
		return fmt.Errorf("file %s would be overwritten by blob %s", name, rs[0].blob)
	}
	l.files[key] = name
	return nil
}

// addBlob records that blob's bytes are extracted to target.
func (l *layout) addBlob(blob string, target allocator.Ref) error {
	key := layoutKey(target.Location)
	if prev, ok := l.files[key]; ok {
		return fmt.Errorf("blob %s would overwrite stored file %s", blob, prev)
	}
	for _, p := range l.ranges[key] {
		if target.Offset < p.ref.End() && p.ref.Offset < target.End() {
			return fmt.Errorf("blob %s overlaps blob %s in %s: [%d, %d) and [%d, %d)",
				blob, p.blob, target.Location, target.Offset, target.End(), p.ref.Offset, p.ref.End())
		}
	}
	l.ranges[key] = append(l.ranges[key], placed{blob: blob, ref: target})
	return nil
}

// extractTarget returns where b's bytes are written: its target file, or a
// file named after the blob when it has none.
func (b Blob) extractTarget() allocator.Ref {
	if b.TargetFile == "" {
		return allocator.Ref{Location: b.Name, Length: b.Length}
	}
	return b.Target()
}
