package onnx

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal serializes a ModelProto. Output is deterministic: typed fields are
// written in field-number order followed by retained unknown fields.
func Marshal(m *ModelProto) ([]byte, error) {
	return m.appendTo(nil), nil
}

// MarshalTensor serializes a single TensorProto.
func MarshalTensor(t *TensorProto) ([]byte, error) {
	return t.appendTo(nil), nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

func appendPacked(b []byte, num protowire.Number, n int, elem func([]byte, int) []byte) []byte {
	if n == 0 {
		return b
	}
	var packed []byte
	for i := 0; i < n; i++ {
		packed = elem(packed, i)
	}
	return appendMessage(b, num, packed)
}

func (m *ModelProto) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.IrVersion))
	b = appendString(b, 2, m.ProducerName)
	b = appendString(b, 3, m.ProducerVersion)
	if m.Graph != nil {
		b = appendMessage(b, 7, m.Graph.appendTo(nil))
	}
	for _, opset := range m.OpsetImport {
		b = appendMessage(b, 8, opset.appendTo(nil))
	}
	return append(b, m.unknown...)
}

func (o *OperatorSetIdProto) appendTo(b []byte) []byte {
	b = appendString(b, 1, o.Domain)
	b = appendVarint(b, 2, uint64(o.Version))
	return append(b, o.unknown...)
}

func (g *GraphProto) appendTo(b []byte) []byte {
	for _, node := range g.Node {
		b = appendMessage(b, 1, node.appendTo(nil))
	}
	b = appendString(b, 2, g.Name)
	for _, t := range g.Initializer {
		b = appendMessage(b, 5, t.appendTo(nil))
	}
	return append(b, g.unknown...)
}

func (nd *NodeProto) appendTo(b []byte) []byte {
	// Inputs and outputs are positional; empty names are meaningful.
	for _, in := range nd.Input {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range nd.Output {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = appendString(b, 3, nd.Name)
	b = appendString(b, 4, nd.OpType)
	for _, attr := range nd.Attribute {
		b = appendMessage(b, 5, attr.appendTo(nil))
	}
	b = appendString(b, 7, nd.Domain)
	return append(b, nd.unknown...)
}

func (a *AttributeProto) appendTo(b []byte) []byte {
	b = appendString(b, 1, a.Name)
	if a.T != nil {
		b = appendMessage(b, 5, a.T.appendTo(nil))
	}
	if a.G != nil {
		b = appendMessage(b, 6, a.G.appendTo(nil))
	}
	for _, t := range a.Tensors {
		b = appendMessage(b, 10, t.appendTo(nil))
	}
	for _, g := range a.Graphs {
		b = appendMessage(b, 11, g.appendTo(nil))
	}
	b = appendVarint(b, 20, uint64(a.Type))
	return append(b, a.unknown...)
}

func (t *TensorProto) appendTo(b []byte) []byte {
	for _, d := range t.Dims {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d))
	}
	b = appendVarint(b, 2, uint64(int64(t.DataType)))
	b = appendPacked(b, 4, len(t.FloatData), func(p []byte, i int) []byte {
		return protowire.AppendFixed32(p, math.Float32bits(t.FloatData[i]))
	})
	b = appendPacked(b, 5, len(t.Int32Data), func(p []byte, i int) []byte {
		return protowire.AppendVarint(p, uint64(int64(t.Int32Data[i])))
	})
	b = appendPacked(b, 7, len(t.Int64Data), func(p []byte, i int) []byte {
		return protowire.AppendVarint(p, uint64(t.Int64Data[i]))
	})
	b = appendString(b, 8, t.Name)
	if t.RawData != nil {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, t.RawData)
	}
	b = appendPacked(b, 10, len(t.DoubleData), func(p []byte, i int) []byte {
		return protowire.AppendFixed64(p, math.Float64bits(t.DoubleData[i]))
	})
	b = appendPacked(b, 11, len(t.Uint64Data), func(p []byte, i int) []byte {
		return protowire.AppendVarint(p, t.Uint64Data[i])
	})
	for _, e := range t.ExternalData {
		b = appendMessage(b, 13, e.appendTo(nil))
	}
	b = appendVarint(b, 14, uint64(t.DataLocation))
	return append(b, t.unknown...)
}

func (e *StringStringEntryProto) appendTo(b []byte) []byte {
	b = appendString(b, 1, e.Key)
	b = appendString(b, 2, e.Value)
	return append(b, e.unknown...)
}
