package inspector

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/zerfoo/ztar/internal/onnx"
	"github.com/zerfoo/ztar/pkg/archive"
	"github.com/zerfoo/ztar/pkg/converter"
	"github.com/zerfoo/ztar/pkg/dtype"
	"github.com/zerfoo/ztar/pkg/importer"
)

// Helper function to create a dummy ONNX model file
func createDummyOnnxModel(t *testing.T, dir, filename string) string {
	model := &onnx.ModelProto{
		IrVersion:   4,
		OpsetImport: []*onnx.OperatorSetIdProto{{Version: 9}},
		Graph: &onnx.GraphProto{
			Node: []*onnx.NodeProto{
				{Name: "node1", OpType: "Add"},
				{Name: "node2", OpType: "Mul"},
			},
			Initializer: []*onnx.TensorProto{
				{Name: "bias", DataType: int32(onnx.TensorProto_FLOAT), Dims: []int64{2}, FloatData: []float32{0.5, -1}},
				{Name: "half", DataType: int32(onnx.TensorProto_FLOAT16), Dims: []int64{1}, Int32Data: []int32{0x3C00}},
				{Name: "flags", DataType: int32(onnx.TensorProto_BOOL), Dims: []int64{2}, RawData: []byte{1, 0}},
			},
		},
	}
	filePath := filepath.Join(dir, filename)
	require.NoError(t, importer.SaveOnnxModel(model, filePath))
	return filePath
}

func TestInspectONNX(t *testing.T) {
	onnxFile := createDummyOnnxModel(t, t.TempDir(), "test.onnx")

	var out bytes.Buffer
	require.NoError(t, InspectONNX(onnxFile, &out))

	output := out.String()
	for _, want := range []string{
		"Inspecting ONNX model from:",
		"Successfully loaded model with IR version: 4",
		"Opset version: 9",
		"Graph has 2 nodes.",
		"Graph has 3 tensors.",
		"[0.5 -1]",
		"[1]",
		"bool",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestInspectONNXExternalTensor(t *testing.T) {
	dir := t.TempDir()
	model := &onnx.ModelProto{
		IrVersion: 8,
		Graph: &onnx.GraphProto{Initializer: []*onnx.TensorProto{{
			Name: "w", DataType: int32(onnx.TensorProto_INT32), Dims: []int64{3},
			DataLocation: onnx.TensorProto_EXTERNAL,
			ExternalData: []*onnx.StringStringEntryProto{
				{Key: "location", Value: "w.data"},
				{Key: "offset", Value: "4"},
				{Key: "length", Value: "12"},
			},
		}}},
	}
	path := filepath.Join(dir, "ext.onnx")
	require.NoError(t, importer.SaveOnnxModel(model, path))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "w.data"), []byte{
		9, 9, 9, 9,
		1, 0, 0, 0,
		0xFE, 0xFF, 0xFF, 0xFF,
		7, 0, 0, 0,
	}, 0o644))

	var out bytes.Buffer
	require.NoError(t, InspectONNX(path, &out))
	assert.Contains(t, out.String(), "external:w.data@4")
	assert.Contains(t, out.String(), "[1 -2 7]")

	require.NoError(t, os.Remove(filepath.Join(dir, "w.data")))
	assert.Error(t, InspectONNX(path, &bytes.Buffer{}))
}

func TestPreview(t *testing.T) {
	half := float16.Fromfloat32(-2).Bits()
	bf := append(bfloat16.ToBytes(bfloat16.FromFloat32(0.25)), bfloat16.ToBytes(bfloat16.FromFloat32(3))...)

	tests := []struct {
		kind dtype.Kind
		data []byte
		want string
	}{
		{dtype.KindF16, []byte{byte(half), byte(half >> 8)}, "[-2]"},
		{dtype.KindBF16, bf, "[0.25 3]"},
		{dtype.KindI8, []byte{0xFF, 1, 2, 3, 4, 5}, "[-1 1 2 3 ...]"},
		{dtype.KindU16, []byte{0x34, 0x12}, "[4660]"},
		{dtype.KindU64, []byte{1, 0, 0, 0, 0, 0, 0, 0}, "[1]"},
		{dtype.KindOpaque, []byte{0xAB}, "[ab]"},
		{dtype.KindF32, nil, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Preview(tt.kind, tt.data, previewLen))
		})
	}
}

func TestInspectArchive(t *testing.T) {
	dir := t.TempDir()
	model := &onnx.ModelProto{
		IrVersion: 8,
		Graph: &onnx.GraphProto{Initializer: []*onnx.TensorProto{
			{Name: "w", DataType: int32(onnx.TensorProto_FLOAT), Dims: []int64{64}, RawData: make([]byte, 256)},
		}},
	}
	src := filepath.Join(dir, "m.onnx")
	require.NoError(t, importer.SaveOnnxModel(model, src))

	path := filepath.Join(dir, "m.ztar")
	w, err := archive.Create(path)
	require.NoError(t, err)
	opts := converter.DefaultOptions()
	opts.Logger = nil
	opts.SizeLimit = 16
	_, err = converter.PackFile(src, w, opts)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var out bytes.Buffer
	require.NoError(t, InspectArchive(path, &out))
	output := out.String()
	assert.Contains(t, output, "Archive has 2 files and 1 blobs.")
	assert.Contains(t, output, "m.onnx[0]")
	assert.Contains(t, output, "m.data@0")
	assert.Contains(t, output, "Blobs hold 256 bytes.")
}
