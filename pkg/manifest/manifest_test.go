package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest(t *testing.T) {
	m := New("model.onnx")
	assert.Equal(t, ".model.onnx.json", m.FileName())
	assert.Equal(t, "model.onnx[7]", BlobName("model.onnx", 7))

	assert.True(t, m.Add("z.weight", BlobName("model.onnx", 3)))
	assert.True(t, m.Add("a.weight", BlobName("model.onnx", 0)))
	assert.False(t, m.Add("a.weight", BlobName("model.onnx", 5)))
	assert.Equal(t, 2, m.Len())

	assert.Equal(t, []string{"a.weight", "z.weight"}, m.Tensors())

	b, ok := m.Blob("a.weight")
	require.True(t, ok)
	assert.Equal(t, "model.onnx[0]", b)

	data, err := m.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"blobs":{"a.weight":"model.onnx[0]","z.weight":"model.onnx[3]"}}`, string(data))
	assert.Equal(t, `{"blobs":{"a.weight":"model.onnx[0]","z.weight":"model.onnx[3]"}}`, string(data))

	back, err := Unmarshal("model.onnx", data)
	require.NoError(t, err)
	assert.Equal(t, m.blobs, back.blobs)
}

func TestEmptyManifest(t *testing.T) {
	data, err := New("m.onnx").Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{"blobs":{}}`, string(data))
}

func TestUnmarshalError(t *testing.T) {
	_, err := Unmarshal("m.onnx", []byte("{"))
	assert.Error(t, err)
}
