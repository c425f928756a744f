package converter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zerfoo/ztar/pkg/allocator"
	"github.com/zerfoo/ztar/pkg/importer"
	"github.com/zerfoo/ztar/pkg/manifest"
	"github.com/zerfoo/ztar/pkg/registry"
)

// FormatFunc packs one input file into a store.
type FormatFunc func(path string, store Store, opts Options) (*Result, error)

// FormatAutodetect selects the format of each input from its extension.
const FormatAutodetect = "autodetect"

func init() {
	registry.Register[FormatFunc]("onnx", PackFile, ".onnx")
}

// PackFile loads the ONNX model at path, pulls any existing external data back
// inline, and packs it under the file's base name.
func PackFile(path string, store Store, opts Options) (*Result, error) {
	model, err := importer.LoadOnnxModel(path)
	if err != nil {
		return nil, err
	}
	n, err := LoadExternalData(model, path)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		opts.logger().Debug("loaded external data", "path", path, "tensors", n)
	}
	return Pack(filepath.Base(path), model, store, opts)
}

// runClaims reserves the model and manifest names of every input.
func runClaims(paths []string) *allocator.Claims {
	claims := allocator.NewClaims()
	for _, path := range paths {
		name := filepath.Base(path)
		claims.Reserve(name)
		claims.Reserve(manifest.New(name).FileName())
	}
	return claims
}

// PackFiles packs each input in order into one store. format is a registered
// format name or FormatAutodetect. Formats, stored names and shared locations
// are checked for every input before anything is written; names differing only
// in case count as the same name. All inputs draw their locations from one set
// of claims. Packing stops at the first failure; results for the inputs
// already packed are returned with the error and remain in the store.
func PackFiles(paths []string, format string, store Store, opts Options) ([]*Result, error) {
	packers := make([]FormatFunc, len(paths))
	seen := make(map[string]string, len(paths))
	for i, path := range paths {
		name := filepath.Base(path)
		if prev, dup := seen[strings.ToLower(name)]; dup {
			return nil, fmt.Errorf("inputs %s and %s would both be stored as %s", prev, path, name)
		}
		seen[strings.ToLower(name)] = path

		var err error
		if format == "" || format == FormatAutodetect {
			_, packers[i], err = registry.Detect[FormatFunc](path)
		} else {
			packers[i], err = registry.Lookup[FormatFunc](format)
		}
		if err != nil {
			return nil, err
		}
	}

	preflight := runClaims(paths)
	for _, path := range paths {
		if _, err := allocator.New(opts.Allocation, filepath.Base(path), preflight); err != nil {
			return nil, err
		}
	}
	opts.Claims = runClaims(paths)

	results := make([]*Result, 0, len(paths))
	for i, path := range paths {
		res, err := packers[i](path, store, opts)
		if err != nil {
			return results, fmt.Errorf("failed to pack %s: %w", path, err)
		}
		results = append(results, res)
	}
	return results, nil
}
