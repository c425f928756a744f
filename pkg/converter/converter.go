// Package converter moves large tensors out of ONNX models. Pack walks a
// model, externalizes every tensor at or above the size limit, checks that the
// resulting byte ranges tile their locations exactly, and hands blobs, the
// manifest and the rewritten model to a Store.
package converter

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/zerfoo/ztar/internal/logutil"
	"github.com/zerfoo/ztar/internal/onnx"
	"github.com/zerfoo/ztar/pkg/allocator"
	"github.com/zerfoo/ztar/pkg/dtype"
	"github.com/zerfoo/ztar/pkg/graphwalk"
	"github.com/zerfoo/ztar/pkg/importer"
	"github.com/zerfoo/ztar/pkg/manifest"
	"github.com/zerfoo/ztar/pkg/rewriter"
	"github.com/zerfoo/ztar/pkg/validator"
)

// Store persists what Pack produces.
type Store interface {
	// WriteBlob persists one externalized tensor. target says where its bytes
	// belong once extracted.
	WriteBlob(kind dtype.Kind, name string, data []byte, dims []int64, relativeError float64, target allocator.Ref) error
	// WriteFile persists a small opaque file such as the manifest or the
	// rewritten model.
	WriteFile(name string, data []byte) error
}

// Options configure a packing run.
type Options struct {
	// SizeLimit is the byte length at which a tensor is externalized.
	SizeLimit int
	// Allocation selects shared or per-tensor locations.
	Allocation allocator.Mode
	// RelativeError is passed through to the store with every blob.
	RelativeError float64
	// MaxDepth bounds subgraph nesting.
	MaxDepth int
	// Claims is the set of names taken in the store so far. Models packed
	// into one store must share it so their locations stay distinct. Pack
	// starts a fresh set holding the model and manifest names when it is nil.
	Claims *allocator.Claims
	Logger *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		SizeLimit:  dtype.DefaultSizeLimit,
		Allocation: allocator.ModeShared,
		MaxDepth:   graphwalk.DefaultMaxDepth,
		Logger:     slog.Default(),
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return logutil.Discard()
	}
	return o.Logger
}

// Result summarizes one packed model.
type Result struct {
	Name string
	// Tensors is the number of tensors reachable from the graph.
	Tensors int
	// Externalized is the number of tensors moved out of the model.
	Externalized  int
	ExternalBytes int64
	// Locations lists the external data locations written, sorted.
	Locations []string
	Manifest  *manifest.Manifest
	// ModelBytes is the size of the rewritten model.
	ModelBytes int
}

type stagedBlob struct {
	index   int
	tensor  string
	blob    string
	payload dtype.Payload
	dims    []int64
	ref     allocator.Ref
}

// Pack externalizes the large tensors of model, which is mutated in place, and
// writes the results to store under name. Nothing reaches the store unless
// every location passes validation. When Pack fails after writing has begun,
// whatever the store holds for name must be discarded by the caller.
func Pack(name string, model *onnx.ModelProto, store Store, opts Options) (*Result, error) {
	logger := opts.logger().With("model", name)

	m := manifest.New(name)
	claims := opts.Claims
	if claims == nil {
		claims = allocator.NewClaims(name, m.FileName())
	}
	alloc, err := allocator.New(opts.Allocation, name, claims)
	if err != nil {
		return nil, err
	}
	th := dtype.Threshold{SizeLimit: opts.SizeLimit}
	res := &Result{Name: name, Manifest: m}

	var staged []stagedBlob
	walker := graphwalk.New(model.GetGraph(), graphwalk.WithMaxDepth(opts.MaxDepth))
	for i, t := range walker.Tensors() {
		res.Tensors++
		if t.GetName() == "" {
			logutil.Trace(logger, "skipping unnamed tensor", "index", i)
			continue
		}
		if t.DataLocation == onnx.TensorProto_EXTERNAL {
			logger.Warn("tensor already references external data, leaving it in place", "tensor", t.Name)
			continue
		}
		p, ok := dtype.Canonicalize(t, th)
		if !ok {
			logutil.Trace(logger, "keeping tensor inline", "tensor", t.Name, "bytes", dtype.InlineSize(t))
			continue
		}

		ref := alloc.Allocate(t.Name, i, int64(len(p.Data)))
		rewriter.Rewrite(t, ref)
		blob := manifest.BlobName(name, i)
		if !m.Add(t.Name, blob) {
			logger.Warn("duplicate tensor name, manifest keeps the first blob", "tensor", t.Name, "blob", blob)
		}
		staged = append(staged, stagedBlob{
			index:   i,
			tensor:  t.Name,
			blob:    blob,
			payload: p,
			dims:    t.Dims,
			ref:     ref,
		})
		logutil.Trace(logger, "externalized tensor", "tensor", t.Name, "kind", p.Kind, "bytes", len(p.Data), "location", ref.Location, "offset", ref.Offset)
	}
	if err := walker.Err(); err != nil {
		return nil, fmt.Errorf("failed to walk graph of %s: %w", name, err)
	}

	locations, err := validateStaged(staged)
	if err != nil {
		return nil, fmt.Errorf("failed to validate %s: %w", name, err)
	}
	res.Locations = locations

	for _, b := range staged {
		if err := store.WriteBlob(b.payload.Kind, b.blob, b.payload.Data, b.dims, opts.RelativeError, b.ref); err != nil {
			return nil, fmt.Errorf("failed to write blob %s: %w", b.blob, err)
		}
		res.Externalized++
		res.ExternalBytes += int64(len(b.payload.Data))
	}

	sidecar, err := m.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest for %s: %w", name, err)
	}
	if err := store.WriteFile(m.FileName(), sidecar); err != nil {
		return nil, fmt.Errorf("failed to write manifest %s: %w", m.FileName(), err)
	}

	data, err := importer.SerializeOnnxModel(model)
	if err != nil {
		return nil, err
	}
	if err := store.WriteFile(name, data); err != nil {
		return nil, fmt.Errorf("failed to write model %s: %w", name, err)
	}
	res.ModelBytes = len(data)

	logger.Info("packed model",
		"tensors", res.Tensors,
		"externalized", res.Externalized,
		"external_bytes", res.ExternalBytes,
		"model_bytes", res.ModelBytes,
		"locations", len(res.Locations))
	return res, nil
}

// validateStaged checks every location's ranges against the bytes actually
// staged for it and returns the locations in sorted order.
func validateStaged(staged []stagedBlob) ([]string, error) {
	ranges := make(map[string][]validator.Range)
	sizes := make(map[string]int64)
	for _, b := range staged {
		loc := b.ref.Location
		if b.ref.Length != int64(len(b.payload.Data)) {
			return nil, &validator.IntegrityViolation{
				Location: loc,
				Reason:   validator.ReasonSizeMismatch,
				Tensor:   b.tensor,
				Details:  fmt.Sprintf("range length is %d, payload is %d bytes", b.ref.Length, len(b.payload.Data)),
			}
		}
		ranges[loc] = append(ranges[loc], validator.Range{Name: b.tensor, Offset: b.ref.Offset, Length: b.ref.Length})
		sizes[loc] += int64(len(b.payload.Data))
	}

	locations := make([]string, 0, len(ranges))
	for loc := range ranges {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	for _, loc := range locations {
		if err := validator.Validate(loc, ranges[loc], sizes[loc]); err != nil {
			return nil, err
		}
	}
	return locations, nil
}
