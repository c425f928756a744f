// Package dtype maps ONNX tensor storage onto canonical little-endian byte
// buffers and decides which tensors are large enough to move out of a model.
package dtype

import "github.com/zerfoo/ztar/internal/onnx"

// Kind is the closed set of numeric kinds the packer understands. Anything
// else is KindOpaque and only ever travels as raw bytes.
type Kind uint8

const (
	KindOpaque Kind = iota
	KindF32
	KindF64
	KindBF16
	KindF16
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64

	numKinds
)

// Kinds lists every non-opaque kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, numKinds-1)
	for k := KindF32; k < numKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Tag is the short name recorded with every blob ("f32", "bf16", ...). The
// opaque kind has an empty tag.
func (k Kind) Tag() string {
	if k >= numKinds {
		return ""
	}
	return packers[k].tag
}

// Width is the size in bytes of one element, or 1 for opaque data.
func (k Kind) Width() int {
	if k >= numKinds || k == KindOpaque {
		return 1
	}
	return packers[k].width
}

func (k Kind) String() string {
	if tag := k.Tag(); tag != "" {
		return tag
	}
	return "opaque"
}

// ParseTag is the inverse of Tag. Unknown tags map to KindOpaque.
func ParseTag(tag string) Kind {
	for k := KindF32; k < numKinds; k++ {
		if packers[k].tag == tag {
			return k
		}
	}
	return KindOpaque
}

// KindOf maps an ONNX TensorProto.DataType onto a Kind.
func KindOf(dataType int32) Kind {
	switch onnx.TensorProto_DataType(dataType) {
	case onnx.TensorProto_FLOAT:
		return KindF32
	case onnx.TensorProto_DOUBLE:
		return KindF64
	case onnx.TensorProto_BFLOAT16:
		return KindBF16
	case onnx.TensorProto_FLOAT16:
		return KindF16
	case onnx.TensorProto_INT8:
		return KindI8
	case onnx.TensorProto_UINT8:
		return KindU8
	case onnx.TensorProto_INT16:
		return KindI16
	case onnx.TensorProto_UINT16:
		return KindU16
	case onnx.TensorProto_INT32:
		return KindI32
	case onnx.TensorProto_UINT32:
		return KindU32
	case onnx.TensorProto_INT64:
		return KindI64
	case onnx.TensorProto_UINT64:
		return KindU64
	default:
		return KindOpaque
	}
}
