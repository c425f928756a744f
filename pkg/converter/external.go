package converter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zerfoo/ztar/internal/onnx"
	"github.com/zerfoo/ztar/pkg/graphwalk"
	"github.com/zerfoo/ztar/pkg/rewriter"
)

// resolveLocation returns the path of an external data location relative to
// the directory holding modelPath. Locations that escape that directory are
// rejected.
func resolveLocation(location, modelPath string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(location)) {
		return "", fmt.Errorf("external data location %q is not a path inside the model directory", location)
	}
	return filepath.Join(filepath.Dir(modelPath), filepath.FromSlash(location)), nil
}

// ReadExternalData loads the bytes of an externalized tensor. modelPath is the
// path of the model file the tensor belongs to; locations are resolved
// relative to its directory.
func ReadExternalData(tensor *onnx.TensorProto, modelPath string) ([]byte, error) {
	ref, ok, err := rewriter.Parse(tensor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tensor %q does not use external data", tensor.GetName())
	}

	externalPath, err := resolveLocation(ref.Location, modelPath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(externalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open external data file %s: %w", externalPath, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if ref.Length < 0 {
		fi, err := file.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat external data file %s: %w", externalPath, err)
		}
		if ref.Offset > fi.Size() {
			return nil, fmt.Errorf("offset %d exceeds file size %d", ref.Offset, fi.Size())
		}
		ref.Length = fi.Size() - ref.Offset
	}

	data := make([]byte, ref.Length)
	if _, err := io.ReadFull(io.NewSectionReader(file, ref.Offset, ref.Length), data); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at offset %d from %s: %w", ref.Length, ref.Offset, externalPath, err)
	}
	return data, nil
}

// LoadExternalData pulls every externalized tensor of model back inline, so a
// model saved with external data can be packed like any other. It returns the
// number of tensors loaded.
func LoadExternalData(model *onnx.ModelProto, modelPath string) (int, error) {
	walker := graphwalk.New(model.GetGraph())
	loaded := 0
	for _, t := range walker.Tensors() {
		if t.DataLocation != onnx.TensorProto_EXTERNAL {
			continue
		}
		data, err := ReadExternalData(t, modelPath)
		if err != nil {
			return loaded, fmt.Errorf("failed to load external data for tensor %q: %w", t.GetName(), err)
		}
		t.RawData = data
		t.ExternalData = nil
		t.DataLocation = onnx.TensorProto_DEFAULT
		loaded++
	}
	return loaded, walker.Err()
}
