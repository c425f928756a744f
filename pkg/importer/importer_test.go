package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerfoo/ztar/internal/onnx"
)

func testModel() *onnx.ModelProto {
	return &onnx.ModelProto{
		IrVersion:   8,
		OpsetImport: []*onnx.OperatorSetIdProto{{Version: 17}},
		Graph: &onnx.GraphProto{
			Name: "g",
			Initializer: []*onnx.TensorProto{
				{Name: "w", DataType: int32(onnx.TensorProto_FLOAT), Dims: []int64{2}, FloatData: []float32{1, 2}},
			},
			Node: []*onnx.NodeProto{{Name: "relu", OpType: "Relu", Input: []string{"x"}, Output: []string{"y"}}},
		},
	}
}

func TestSaveAndLoadOnnxModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.onnx")
	require.NoError(t, SaveOnnxModel(testModel(), path))

	model, err := LoadOnnxModel(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8), model.GetIrVersion())
	assert.Equal(t, "g", model.GetGraph().GetName())
	require.Len(t, model.GetGraph().GetInitializer(), 1)
	assert.Equal(t, []float32{1, 2}, model.Graph.Initializer[0].FloatData)

	first, err := SerializeOnnxModel(model)
	require.NoError(t, err)
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, onDisk, first)
}

func TestLoadOnnxModelErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadOnnxModel(filepath.Join(dir, "missing.onnx"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.onnx")
	require.NoError(t, os.WriteFile(garbage, []byte{0x80}, 0o644))
	_, err = LoadOnnxModel(garbage)
	assert.ErrorContains(t, err, "failed to unmarshal")

	_, err = ParseOnnxModel(nil)
	assert.ErrorContains(t, err, "model graph is nil")
}
