package dtype

import (
	"encoding/binary"
	"math"

	"github.com/zerfoo/ztar/internal/onnx"
)

// Payload is a tensor's data in canonical form: tightly packed elements of
// Kind, little-endian.
type Payload struct {
	Kind Kind
	Data []byte
}

// packer describes how one kind is stored in the typed-list fields of a
// TensorProto. count, put and clear are nil for the opaque kind.
type packer struct {
	tag   string
	width int
	// count returns the number of elements held in the typed-list field.
	count func(t *onnx.TensorProto) int
	// put writes element i of the typed-list field into dst.
	put func(t *onnx.TensorProto, i int, dst []byte)
	// clear drops the typed-list field.
	clear func(t *onnx.TensorProto)
}

var le = binary.LittleEndian

func float32s(t *onnx.TensorProto) int { return len(t.FloatData) }
func float64s(t *onnx.TensorProto) int { return len(t.DoubleData) }
func int32s(t *onnx.TensorProto) int   { return len(t.Int32Data) }
func int64s(t *onnx.TensorProto) int   { return len(t.Int64Data) }
func uint64s(t *onnx.TensorProto) int  { return len(t.Uint64Data) }

func clearFloat32s(t *onnx.TensorProto) { t.FloatData = nil }
func clearFloat64s(t *onnx.TensorProto) { t.DoubleData = nil }
func clearInt32s(t *onnx.TensorProto)   { t.Int32Data = nil }
func clearInt64s(t *onnx.TensorProto)   { t.Int64Data = nil }
func clearUint64s(t *onnx.TensorProto)  { t.Uint64Data = nil }

// Narrow kinds held in int32_data keep only the low bits of the stored code
// point. A float16 stored as 0x3C00 is written as 00 3C, never re-derived
// from a wider float.
func putInt32As8(t *onnx.TensorProto, i int, dst []byte) { dst[0] = byte(t.Int32Data[i]) }
func putInt32As16(t *onnx.TensorProto, i int, dst []byte) {
	le.PutUint16(dst, uint16(t.Int32Data[i]))
}

// packers is indexed by Kind. The array length pins the table to the
// enumeration; TestPackerTableComplete checks that no entry is left empty.
var packers = [numKinds]packer{
	KindOpaque: {tag: "", width: 1},
	KindF32: {
		tag: "f32", width: 4, count: float32s, clear: clearFloat32s,
		put: func(t *onnx.TensorProto, i int, dst []byte) { le.PutUint32(dst, math.Float32bits(t.FloatData[i])) },
	},
	KindF64: {
		tag: "f64", width: 8, count: float64s, clear: clearFloat64s,
		put: func(t *onnx.TensorProto, i int, dst []byte) { le.PutUint64(dst, math.Float64bits(t.DoubleData[i])) },
	},
	KindBF16: {tag: "bf16", width: 2, count: int32s, clear: clearInt32s, put: putInt32As16},
	KindF16:  {tag: "f16", width: 2, count: int32s, clear: clearInt32s, put: putInt32As16},
	KindI8:   {tag: "i8", width: 1, count: int32s, clear: clearInt32s, put: putInt32As8},
	KindU8:   {tag: "u8", width: 1, count: int32s, clear: clearInt32s, put: putInt32As8},
	KindI16:  {tag: "i16", width: 2, count: int32s, clear: clearInt32s, put: putInt32As16},
	KindU16:  {tag: "u16", width: 2, count: int32s, clear: clearInt32s, put: putInt32As16},
	KindI32: {
		tag: "i32", width: 4, count: int32s, clear: clearInt32s,
		put: func(t *onnx.TensorProto, i int, dst []byte) { le.PutUint32(dst, uint32(t.Int32Data[i])) },
	},
	KindU32: {
		tag: "u32", width: 4, count: uint64s, clear: clearUint64s,
		put: func(t *onnx.TensorProto, i int, dst []byte) { le.PutUint32(dst, uint32(t.Uint64Data[i])) },
	},
	KindI64: {
		tag: "i64", width: 8, count: int64s, clear: clearInt64s,
		put: func(t *onnx.TensorProto, i int, dst []byte) { le.PutUint64(dst, uint64(t.Int64Data[i])) },
	},
	KindU64: {
		tag: "u64", width: 8, count: uint64s, clear: clearUint64s,
		put: func(t *onnx.TensorProto, i int, dst []byte) { le.PutUint64(dst, t.Uint64Data[i]) },
	},
}

// Canonicalize extracts t's data as a canonical byte buffer when it is large
// enough to externalize under th. Raw bytes are checked first and used
// verbatim; otherwise the kind's typed-list field is packed. The field the
// data came from is cleared on success. Tensors whose data is below the
// threshold, empty, or held only in a field the kind has no packer for are
// left untouched and ok is false.
func Canonicalize(t *onnx.TensorProto, th Threshold) (p Payload, ok bool) {
	kind := KindOf(t.DataType)

	if n := len(t.RawData); n > 0 && th.ShouldExternalize(n) {
		p = Payload{Kind: kind, Data: t.RawData}
		t.RawData = nil
		return p, true
	}

	pk := packers[kind]
	if pk.count == nil {
		return Payload{}, false
	}
	count := pk.count(t)
	size := count * pk.width
	if size == 0 || !th.ShouldExternalize(size) {
		return Payload{}, false
	}

	data := make([]byte, size)
	for i := 0; i < count; i++ {
		pk.put(t, i, data[i*pk.width:])
	}
	pk.clear(t)
	return Payload{Kind: kind, Data: data}, true
}

// InlineSize reports the canonical byte length of t's inline data without
// building it: the raw length when raw bytes are present, otherwise the
// packed typed-list length.
func InlineSize(t *onnx.TensorProto) int {
	if t.HasRawData() {
		return len(t.RawData)
	}
	pk := packers[KindOf(t.DataType)]
	if pk.count == nil {
		return 0
	}
	return pk.count(t) * pk.width
}
