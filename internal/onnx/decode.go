package onnx

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var errWireType = errors.New("unexpected wire type")

// Unmarshal parses a serialized ModelProto. The returned model keeps
// references into b for raw tensor bytes; callers must not modify b afterwards.
func Unmarshal(b []byte, m *ModelProto) error {
	if err := m.unmarshal(b); err != nil {
		return fmt.Errorf("failed to decode ModelProto: %w", err)
	}
	return nil
}

// UnmarshalTensor parses a single serialized TensorProto.
func UnmarshalTensor(b []byte, t *TensorProto) error {
	if err := t.unmarshal(b); err != nil {
		return fmt.Errorf("failed to decode TensorProto: %w", err)
	}
	return nil
}

// fieldFunc decodes the value of one field. It returns the number of bytes
// consumed and whether the field was recognised.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error)

// parseFields walks every field of a message. Unrecognised fields are copied
// verbatim, tag included, into unknown.
func parseFields(b []byte, unknown *[]byte, field fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		m, ok, err := field(num, typ, b[n:])
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if !ok {
			m = protowire.ConsumeFieldValue(num, typ, b[n:])
			if m < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
			}
			*unknown = append(*unknown, b[:n+m]...)
		}
		b = b[n+m:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeString(typ protowire.Type, b []byte, dst *string) (int, bool, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, false, err
	}
	*dst = string(v)
	return n, true, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// consumeMessage decodes a length-delimited sub-message with decode.
func consumeMessage(typ protowire.Type, b []byte, decode func([]byte) error) (int, bool, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, false, err
	}
	if err := decode(v); err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// consumeVarints accepts both packed and unpacked encodings of a repeated
// varint field.
func consumeVarints(typ protowire.Type, b []byte, add func(uint64)) (int, bool, error) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return 0, false, protowire.ParseError(n)
		}
		add(v)
		return n, true, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, false, protowire.ParseError(n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return 0, false, protowire.ParseError(m)
			}
			add(v)
			packed = packed[m:]
		}
		return n, true, nil
	}
	return 0, false, errWireType
}

func consumeFixed32s(typ protowire.Type, b []byte, add func(uint32)) (int, bool, error) {
	switch typ {
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return 0, false, protowire.ParseError(n)
		}
		add(v)
		return n, true, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, false, protowire.ParseError(n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed32(packed)
			if m < 0 {
				return 0, false, protowire.ParseError(m)
			}
			add(v)
			packed = packed[m:]
		}
		return n, true, nil
	}
	return 0, false, errWireType
}

func consumeFixed64s(typ protowire.Type, b []byte, add func(uint64)) (int, bool, error) {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return 0, false, protowire.ParseError(n)
		}
		add(v)
		return n, true, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, false, protowire.ParseError(n)
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed64(packed)
			if m < 0 {
				return 0, false, protowire.ParseError(m)
			}
			add(v)
			packed = packed[m:]
		}
		return n, true, nil
	}
	return 0, false, errWireType
}

func (m *ModelProto) unmarshal(b []byte) error {
	return parseFields(b, &m.unknown, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1: // ir_version
			v, n, err := consumeVarint(typ, b)
			m.IrVersion = int64(v)
			return n, err == nil, err
		case 2: // producer_name
			return consumeString(typ, b, &m.ProducerName)
		case 3: // producer_version
			return consumeString(typ, b, &m.ProducerVersion)
		case 7: // graph
			m.Graph = &GraphProto{}
			return consumeMessage(typ, b, m.Graph.unmarshal)
		case 8: // opset_import
			opset := &OperatorSetIdProto{}
			m.OpsetImport = append(m.OpsetImport, opset)
			return consumeMessage(typ, b, opset.unmarshal)
		}
		return 0, false, nil
	})
}

func (o *OperatorSetIdProto) unmarshal(b []byte) error {
	return parseFields(b, &o.unknown, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &o.Domain)
		case 2:
			v, n, err := consumeVarint(typ, b)
			o.Version = int64(v)
			return n, err == nil, err
		}
		return 0, false, nil
	})
}

func (g *GraphProto) unmarshal(b []byte) error {
	return parseFields(b, &g.unknown, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1: // node
			node := &NodeProto{}
			g.Node = append(g.Node, node)
			return consumeMessage(typ, b, node.unmarshal)
		case 2: // name
			return consumeString(typ, b, &g.Name)
		case 5: // initializer
			t := &TensorProto{}
			g.Initializer = append(g.Initializer, t)
			return consumeMessage(typ, b, t.unmarshal)
		}
		return 0, false, nil
	})
}

func (nd *NodeProto) unmarshal(b []byte) error {
	return parseFields(b, &nd.unknown, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1: // input
			var s string
			n, ok, err := consumeString(typ, b, &s)
			nd.Input = append(nd.Input, s)
			return n, ok, err
		case 2: // output
			var s string
			n, ok, err := consumeString(typ, b, &s)
			nd.Output = append(nd.Output, s)
			return n, ok, err
		case 3: // name
			return consumeString(typ, b, &nd.Name)
		case 4: // op_type
			return consumeString(typ, b, &nd.OpType)
		case 5: // attribute
			attr := &AttributeProto{}
			nd.Attribute = append(nd.Attribute, attr)
			return consumeMessage(typ, b, attr.unmarshal)
		case 7: // domain
			return consumeString(typ, b, &nd.Domain)
		}
		return 0, false, nil
	})
}

func (a *AttributeProto) unmarshal(b []byte) error {
	return parseFields(b, &a.unknown, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1: // name
			return consumeString(typ, b, &a.Name)
		case 5: // t
			a.T = &TensorProto{}
			return consumeMessage(typ, b, a.T.unmarshal)
		case 6: // g
			a.G = &GraphProto{}
			return consumeMessage(typ, b, a.G.unmarshal)
		case 10: // tensors
			t := &TensorProto{}
			a.Tensors = append(a.Tensors, t)
			return consumeMessage(typ, b, t.unmarshal)
		case 11: // graphs
			g := &GraphProto{}
			a.Graphs = append(a.Graphs, g)
			return consumeMessage(typ, b, g.unmarshal)
		case 20: // type
			v, n, err := consumeVarint(typ, b)
			a.Type = AttributeProto_AttributeType(v)
			return n, err == nil, err
		}
		return 0, false, nil
	})
}

func (t *TensorProto) unmarshal(b []byte) error {
	return parseFields(b, &t.unknown, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1: // dims
			return consumeVarints(typ, b, func(v uint64) { t.Dims = append(t.Dims, int64(v)) })
		case 2: // data_type
			v, n, err := consumeVarint(typ, b)
			t.DataType = int32(v)
			return n, err == nil, err
		case 4: // float_data
			return consumeFixed32s(typ, b, func(v uint32) { t.FloatData = append(t.FloatData, math.Float32frombits(v)) })
		case 5: // int32_data
			return consumeVarints(typ, b, func(v uint64) { t.Int32Data = append(t.Int32Data, int32(v)) })
		case 7: // int64_data
			return consumeVarints(typ, b, func(v uint64) { t.Int64Data = append(t.Int64Data, int64(v)) })
		case 8: // name
			return consumeString(typ, b, &t.Name)
		case 9: // raw_data
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, false, err
			}
			if v == nil {
				v = []byte{}
			}
			t.RawData = v
			return n, true, nil
		case 10: // double_data
			return consumeFixed64s(typ, b, func(v uint64) { t.DoubleData = append(t.DoubleData, math.Float64frombits(v)) })
		case 11: // uint64_data
			return consumeVarints(typ, b, func(v uint64) { t.Uint64Data = append(t.Uint64Data, v) })
		case 13: // external_data
			e := &StringStringEntryProto{}
			t.ExternalData = append(t.ExternalData, e)
			return consumeMessage(typ, b, e.unmarshal)
		case 14: // data_location
			v, n, err := consumeVarint(typ, b)
			t.DataLocation = TensorProto_DataLocation(v)
			return n, err == nil, err
		}
		return 0, false, nil
	})
}

func (e *StringStringEntryProto) unmarshal(b []byte) error {
	return parseFields(b, &e.unknown, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &e.Key)
		case 2:
			return consumeString(typ, b, &e.Value)
		}
		return 0, false, nil
	})
}
