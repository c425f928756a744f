// Package rewriter points tensor descriptors at their externalized bytes.
package rewriter

import (
	"fmt"
	"strconv"

	"github.com/zerfoo/ztar/internal/onnx"
	"github.com/zerfoo/ztar/pkg/allocator"
)

// External data keys defined by the ONNX external data format.
const (
	KeyLocation = "location"
	KeyOffset   = "offset"
	KeyLength   = "length"
)

// Rewrite replaces t's inline payload with a reference to ref. Every inline
// data field is cleared, so the tensor never carries both forms. The offset key
// is only written for shared locations.
func Rewrite(t *onnx.TensorProto, ref allocator.Ref) {
	t.RawData = nil
	t.FloatData = nil
	t.Int32Data = nil
	t.Int64Data = nil
	t.DoubleData = nil
	t.Uint64Data = nil

	entries := []*onnx.StringStringEntryProto{{Key: KeyLocation, Value: ref.Location}}
	if ref.Shared {
		entries = append(entries, &onnx.StringStringEntryProto{Key: KeyOffset, Value: strconv.FormatInt(ref.Offset, 10)})
	}
	entries = append(entries, &onnx.StringStringEntryProto{Key: KeyLength, Value: strconv.FormatInt(ref.Length, 10)})

	t.ExternalData = entries
	t.DataLocation = onnx.TensorProto_EXTERNAL
}

// Parse reads t's external data entries back into a Ref. ok is false when t
// holds its data inline. A missing length yields Length -1, meaning "to the end
// of the location".
func Parse(t *onnx.TensorProto) (ref allocator.Ref, ok bool, err error) {
	if t.DataLocation != onnx.TensorProto_EXTERNAL && len(t.GetExternalData()) == 0 {
		return allocator.Ref{}, false, nil
	}
	ref.Length = -1
	for _, entry := range t.GetExternalData() {
		key, value := entry.GetKey(), entry.GetValue()
		switch key {
		case KeyLocation:
			ref.Location = value
		case KeyOffset:
			if value == "" {
				continue
			}
			ref.Offset, err = strconv.ParseInt(value, 10, 64)
			if err != nil || ref.Offset < 0 {
				return allocator.Ref{}, false, fmt.Errorf("tensor %q: invalid offset value: %s", t.GetName(), value)
			}
			ref.Shared = true
		case KeyLength:
			if value == "" {
				continue
			}
			ref.Length, err = strconv.ParseInt(value, 10, 64)
			if err != nil || ref.Length < 0 {
				return allocator.Ref{}, false, fmt.Errorf("tensor %q: invalid length value: %s", t.GetName(), value)
			}
		}
	}
	if ref.Location == "" {
		return allocator.Ref{}, false, fmt.Errorf("tensor %q: external data location not specified", t.GetName())
	}
	return ref, true, nil
}
