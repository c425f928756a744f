package rewriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerfoo/ztar/internal/onnx"
	"github.com/zerfoo/ztar/pkg/allocator"
)

func TestRewriteShared(t *testing.T) {
	tensor := &onnx.TensorProto{
		Name:      "w",
		DataType:  int32(onnx.TensorProto_FLOAT),
		Dims:      []int64{2, 2},
		RawData:   []byte{1, 2, 3, 4},
		FloatData: []float32{1, 2},
	}
	Rewrite(tensor, allocator.Ref{Location: "model.data", Offset: 128, Length: 16, Shared: true})

	assert.Nil(t, tensor.RawData)
	assert.Nil(t, tensor.FloatData)
	assert.Equal(t, onnx.TensorProto_EXTERNAL, tensor.DataLocation)
	assert.Equal(t, []int64{2, 2}, tensor.Dims, "shape is kept")

	var keys []string
	for _, e := range tensor.ExternalData {
		keys = append(keys, e.Key+"="+e.Value)
	}
	assert.Equal(t, []string{"location=model.data", "offset=128", "length=16"}, keys)

	ref, ok, err := Parse(tensor)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, allocator.Ref{Location: "model.data", Offset: 128, Length: 16, Shared: true}, ref)
}

func TestRewritePerTensor(t *testing.T) {
	tensor := &onnx.TensorProto{Name: "w", DataType: int32(onnx.TensorProto_INT64), Int64Data: []int64{1, 2, 3}}
	Rewrite(tensor, allocator.Ref{Location: "w", Length: 24})

	assert.Nil(t, tensor.Int64Data)
	require.Len(t, tensor.ExternalData, 2)
	assert.Equal(t, KeyLocation, tensor.ExternalData[0].Key)
	assert.Equal(t, KeyLength, tensor.ExternalData[1].Key)

	ref, ok, err := Parse(tensor)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, ref.Shared)
	assert.Zero(t, ref.Offset)
	assert.Equal(t, int64(24), ref.Length)
}

func TestRewriteReplacesStaleEntries(t *testing.T) {
	tensor := &onnx.TensorProto{
		ExternalData: []*onnx.StringStringEntryProto{{Key: "checksum", Value: "abc"}, {Key: KeyLocation, Value: "old"}},
		RawData:      []byte{0},
	}
	Rewrite(tensor, allocator.Ref{Location: "new", Length: 1})
	ref, _, err := Parse(tensor)
	require.NoError(t, err)
	assert.Equal(t, "new", ref.Location)
	assert.Len(t, tensor.ExternalData, 2)
}

func TestParse(t *testing.T) {
	entries := func(kv ...string) []*onnx.StringStringEntryProto {
		var out []*onnx.StringStringEntryProto
		for i := 0; i < len(kv); i += 2 {
			out = append(out, &onnx.StringStringEntryProto{Key: kv[i], Value: kv[i+1]})
		}
		return out
	}
	tests := []struct {
		name    string
		tensor  *onnx.TensorProto
		ok      bool
		wantErr bool
		want    allocator.Ref
	}{
		{
			name:   "inline",
			tensor: &onnx.TensorProto{RawData: []byte{1}},
		},
		{
			name:   "no length",
			tensor: &onnx.TensorProto{DataLocation: onnx.TensorProto_EXTERNAL, ExternalData: entries("location", "x.bin")},
			ok:     true,
			want:   allocator.Ref{Location: "x.bin", Length: -1},
		},
		{
			name:    "missing location",
			tensor:  &onnx.TensorProto{DataLocation: onnx.TensorProto_EXTERNAL, ExternalData: entries("length", "4")},
			wantErr: true,
		},
		{
			name:    "bad offset",
			tensor:  &onnx.TensorProto{ExternalData: entries("location", "x", "offset", "ten")},
			wantErr: true,
		},
		{
			name:    "negative length",
			tensor:  &onnx.TensorProto{ExternalData: entries("location", "x", "length", "-4")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok, err := Parse(tt.tensor)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ref)
		})
	}
}
