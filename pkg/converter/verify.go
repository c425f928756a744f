package converter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/zerfoo/ztar/pkg/graphwalk"
	"github.com/zerfoo/ztar/pkg/importer"
	"github.com/zerfoo/ztar/pkg/manifest"
	"github.com/zerfoo/ztar/pkg/rewriter"
	"github.com/zerfoo/ztar/pkg/validator"
)

// Verify checks an unpacked model against its extracted external data. Every
// location the model references must exist, and the ranges claimed in it must
// tile the file exactly. When the model's manifest sidecar is present, every
// tensor it lists must be external.
func Verify(modelPath string) error {
	model, err := importer.LoadOnnxModel(modelPath)
	if err != nil {
		return err
	}

	ranges := make(map[string][]validator.Range)
	external := make(map[string]bool)

	walker := graphwalk.New(model.GetGraph())
	for _, t := range walker.Tensors() {
		ref, ok, err := rewriter.Parse(t)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := resolveLocation(ref.Location, modelPath); err != nil {
			return err
		}
		external[t.GetName()] = true
		ranges[ref.Location] = append(ranges[ref.Location], validator.Range{Name: t.GetName(), Offset: ref.Offset, Length: ref.Length})
	}
	if err := walker.Err(); err != nil {
		return err
	}

	locations := make([]string, 0, len(ranges))
	for loc := range ranges {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	dir := filepath.Dir(modelPath)
	for _, loc := range locations {
		path := filepath.Join(dir, filepath.FromSlash(loc))
		size, ok, err := validator.StoredSize(path)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("external data file %s referenced by %s is missing", path, filepath.Base(modelPath))
		}
		rs := ranges[loc]
		// A missing length means "to the end of the file".
		for i := range rs {
			if rs[i].Length < 0 {
				rs[i].Length = size - rs[i].Offset
			}
		}
		if err := validator.Validate(loc, rs, size); err != nil {
			return err
		}
	}

	return verifyManifest(modelPath, external)
}

func verifyManifest(modelPath string, external map[string]bool) error {
	name := filepath.Base(modelPath)
	m := manifest.New(name)
	data, err := os.ReadFile(filepath.Join(filepath.Dir(modelPath), m.FileName()))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest for %s: %w", name, err)
	}
	m, err = manifest.Unmarshal(name, data)
	if err != nil {
		return err
	}
	for _, tensor := range m.Tensors() {
		if !external[tensor] {
			blob, _ := m.Blob(tensor)
			return fmt.Errorf("manifest for %s lists tensor %q (blob %s) but the model holds it inline", name, tensor, blob)
		}
	}
	return nil
}
