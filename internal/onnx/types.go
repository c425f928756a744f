// Package onnx holds the subset of the ONNX protobuf schema that ztar reads and
// rewrites, together with a wire codec built on protowire.
//
// Only fields the packing pipeline touches are typed. Every other field is kept
// as raw wire bytes and written back unchanged, so Unmarshal followed by Marshal
// never drops data from a model.
package onnx

// TensorProto_DataType mirrors onnx.TensorProto.DataType.
type TensorProto_DataType int32

const (
	TensorProto_UNDEFINED  TensorProto_DataType = 0
	TensorProto_FLOAT      TensorProto_DataType = 1
	TensorProto_UINT8      TensorProto_DataType = 2
	TensorProto_INT8       TensorProto_DataType = 3
	TensorProto_UINT16     TensorProto_DataType = 4
	TensorProto_INT16      TensorProto_DataType = 5
	TensorProto_INT32      TensorProto_DataType = 6
	TensorProto_INT64      TensorProto_DataType = 7
	TensorProto_STRING     TensorProto_DataType = 8
	TensorProto_BOOL       TensorProto_DataType = 9
	TensorProto_FLOAT16    TensorProto_DataType = 10
	TensorProto_DOUBLE     TensorProto_DataType = 11
	TensorProto_UINT32     TensorProto_DataType = 12
	TensorProto_UINT64     TensorProto_DataType = 13
	TensorProto_COMPLEX64  TensorProto_DataType = 14
	TensorProto_COMPLEX128 TensorProto_DataType = 15
	TensorProto_BFLOAT16   TensorProto_DataType = 16
)

var TensorProto_DataType_name = map[int32]string{
	0:  "UNDEFINED",
	1:  "FLOAT",
	2:  "UINT8",
	3:  "INT8",
	4:  "UINT16",
	5:  "INT16",
	6:  "INT32",
	7:  "INT64",
	8:  "STRING",
	9:  "BOOL",
	10: "FLOAT16",
	11: "DOUBLE",
	12: "UINT32",
	13: "UINT64",
	14: "COMPLEX64",
	15: "COMPLEX128",
	16: "BFLOAT16",
}

func (d TensorProto_DataType) String() string {
	if name, ok := TensorProto_DataType_name[int32(d)]; ok {
		return name
	}
	return "UNKNOWN"
}

// TensorProto_DataLocation mirrors onnx.TensorProto.DataLocation.
type TensorProto_DataLocation int32

const (
	TensorProto_DEFAULT  TensorProto_DataLocation = 0
	TensorProto_EXTERNAL TensorProto_DataLocation = 1
)

// AttributeProto_AttributeType mirrors onnx.AttributeProto.AttributeType.
type AttributeProto_AttributeType int32

const (
	AttributeProto_UNDEFINED AttributeProto_AttributeType = 0
	AttributeProto_FLOAT     AttributeProto_AttributeType = 1
	AttributeProto_INT       AttributeProto_AttributeType = 2
	AttributeProto_STRING    AttributeProto_AttributeType = 3
	AttributeProto_TENSOR    AttributeProto_AttributeType = 4
	AttributeProto_GRAPH     AttributeProto_AttributeType = 5
	AttributeProto_FLOATS    AttributeProto_AttributeType = 6
	AttributeProto_INTS      AttributeProto_AttributeType = 7
	AttributeProto_STRINGS   AttributeProto_AttributeType = 8
	AttributeProto_TENSORS   AttributeProto_AttributeType = 9
	AttributeProto_GRAPHS    AttributeProto_AttributeType = 10
)

// ModelProto is the top-level ONNX container.
type ModelProto struct {
	IrVersion       int64
	ProducerName    string
	ProducerVersion string
	Graph           *GraphProto
	OpsetImport     []*OperatorSetIdProto

	unknown []byte
}

// OperatorSetIdProto identifies an operator set version.
type OperatorSetIdProto struct {
	Domain  string
	Version int64

	unknown []byte
}

// GraphProto is a computation graph. Inputs, outputs and value infos are kept
// as unknown fields.
type GraphProto struct {
	Node        []*NodeProto
	Name        string
	Initializer []*TensorProto

	unknown []byte
}

// NodeProto is a single operator invocation.
type NodeProto struct {
	Input     []string
	Output    []string
	Name      string
	OpType    string
	Attribute []*AttributeProto
	Domain    string

	unknown []byte
}

// AttributeProto is a named node attribute. Scalar and list attribute values
// other than tensors and graphs are kept as unknown fields.
type AttributeProto struct {
	Name    string
	T       *TensorProto
	G       *GraphProto
	Tensors []*TensorProto
	Graphs  []*GraphProto
	Type    AttributeProto_AttributeType

	unknown []byte
}

// TensorProto is a serialized tensor. RawData is nil when the field is absent.
type TensorProto struct {
	Dims         []int64
	DataType     int32
	FloatData    []float32
	Int32Data    []int32
	Int64Data    []int64
	Name         string
	RawData      []byte
	DoubleData   []float64
	Uint64Data   []uint64
	ExternalData []*StringStringEntryProto
	DataLocation TensorProto_DataLocation

	unknown []byte
}

// StringStringEntryProto is a key/value pair.
type StringStringEntryProto struct {
	Key   string
	Value string

	unknown []byte
}

func (m *ModelProto) GetGraph() *GraphProto {
	if m == nil {
		return nil
	}
	return m.Graph
}

func (m *ModelProto) GetIrVersion() int64 {
	if m == nil {
		return 0
	}
	return m.IrVersion
}

func (m *ModelProto) GetOpsetImport() []*OperatorSetIdProto {
	if m == nil {
		return nil
	}
	return m.OpsetImport
}

func (m *OperatorSetIdProto) GetVersion() int64 {
	if m == nil {
		return 0
	}
	return m.Version
}

func (g *GraphProto) GetNode() []*NodeProto {
	if g == nil {
		return nil
	}
	return g.Node
}

func (g *GraphProto) GetInitializer() []*TensorProto {
	if g == nil {
		return nil
	}
	return g.Initializer
}

func (g *GraphProto) GetName() string {
	if g == nil {
		return ""
	}
	return g.Name
}

func (n *NodeProto) GetAttribute() []*AttributeProto {
	if n == nil {
		return nil
	}
	return n.Attribute
}

func (t *TensorProto) GetName() string {
	if t == nil {
		return ""
	}
	return t.Name
}

func (t *TensorProto) GetDims() []int64 {
	if t == nil {
		return nil
	}
	return t.Dims
}

func (t *TensorProto) GetDataType() int32 {
	if t == nil {
		return 0
	}
	return t.DataType
}

func (t *TensorProto) GetRawData() []byte {
	if t == nil {
		return nil
	}
	return t.RawData
}

func (t *TensorProto) GetExternalData() []*StringStringEntryProto {
	if t == nil {
		return nil
	}
	return t.ExternalData
}

// HasRawData reports whether the raw_data field is present.
func (t *TensorProto) HasRawData() bool {
	return t != nil && t.RawData != nil
}

func (e *StringStringEntryProto) GetKey() string {
	if e == nil {
		return ""
	}
	return e.Key
}

func (e *StringStringEntryProto) GetValue() string {
	if e == nil {
		return ""
	}
	return e.Value
}
