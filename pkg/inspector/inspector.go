// Package inspector prints human-readable summaries of ONNX models and ztar
// archives.
package inspector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/olekukonko/tablewriter"
	"github.com/x448/float16"

	"github.com/zerfoo/ztar/internal/onnx"
	"github.com/zerfoo/ztar/pkg/archive"
	"github.com/zerfoo/ztar/pkg/converter"
	"github.com/zerfoo/ztar/pkg/dtype"
	"github.com/zerfoo/ztar/pkg/graphwalk"
	"github.com/zerfoo/ztar/pkg/importer"
	"github.com/zerfoo/ztar/pkg/rewriter"
)

// previewLen is the number of leading values shown per tensor.
const previewLen = 4

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")
	return table
}

// InspectONNX prints a model's header and one line per reachable tensor.
// External tensors are read from their location next to the model.
func InspectONNX(inputFile string, w io.Writer) error {
	fmt.Fprintf(w, "Inspecting ONNX model from: %s\n", inputFile)

	model, err := importer.LoadOnnxModel(inputFile)
	if err != nil {
		return fmt.Errorf("failed to load ONNX model: %w", err)
	}

	fmt.Fprintf(w, "Successfully loaded model with IR version: %d\n", model.GetIrVersion())
	if len(model.GetOpsetImport()) > 0 {
		fmt.Fprintf(w, "Opset version: %d\n", model.GetOpsetImport()[0].GetVersion())
	}
	fmt.Fprintf(w, "Graph has %d nodes.\n", len(model.GetGraph().GetNode()))

	table := newTable(w, "INDEX", "NAME", "KIND", "DIMS", "STORAGE", "BYTES", "VALUES")
	walker := graphwalk.New(model.GetGraph())
	count := 0
	for i, t := range walker.Tensors() {
		count++
		storage, data, err := tensorData(t, inputFile)
		if err != nil {
			return err
		}
		kind := dtype.KindOf(t.GetDataType())
		table.Append([]string{
			strconv.Itoa(i), t.GetName(), kindName(t), fmt.Sprint(t.GetDims()),
			storage, strconv.Itoa(len(data)), Preview(kind, data, previewLen),
		})
	}
	if err := walker.Err(); err != nil {
		return err
	}
	table.Render()
	fmt.Fprintf(w, "Graph has %d tensors.\n", count)
	return nil
}

func kindName(t *onnx.TensorProto) string {
	if kind := dtype.KindOf(t.GetDataType()); kind != dtype.KindOpaque {
		return kind.Tag()
	}
	return strings.ToLower(onnx.TensorProto_DataType(t.GetDataType()).String())
}

// tensorData returns a description of where t's data lives and the data in
// canonical form. t is not modified.
func tensorData(t *onnx.TensorProto, modelPath string) (string, []byte, error) {
	ref, external, err := rewriter.Parse(t)
	if err != nil {
		return "", nil, err
	}
	if external {
		data, err := converter.ReadExternalData(t, modelPath)
		if err != nil {
			return "", nil, err
		}
		storage := "external:" + ref.Location
		if ref.Shared {
			storage += fmt.Sprintf("@%d", ref.Offset)
		}
		return storage, data, nil
	}
	if t.HasRawData() {
		return "raw", t.RawData, nil
	}
	c := *t
	p, ok := dtype.Canonicalize(&c, dtype.Threshold{SizeLimit: 1})
	if !ok {
		return "inline", nil, nil
	}
	return "typed", p.Data, nil
}

// Preview formats up to n leading values of data, which holds elements of
// kind in canonical little-endian form.
func Preview(kind dtype.Kind, data []byte, n int) string {
	width := kind.Width()
	count := len(data) / width
	if count == 0 {
		return "[]"
	}
	shown := min(count, n)
	values := make([]string, 0, shown+1)
	le := binary.LittleEndian
	for i := 0; i < shown; i++ {
		b := data[i*width:]
		var v string
		switch kind {
		case dtype.KindF32:
			v = fmt.Sprint(math.Float32frombits(le.Uint32(b)))
		case dtype.KindF64:
			v = fmt.Sprint(math.Float64frombits(le.Uint64(b)))
		case dtype.KindF16:
			v = fmt.Sprint(float16.Frombits(le.Uint16(b)).Float32())
		case dtype.KindBF16:
			v = fmt.Sprint(bfloat16.DecodeFloat32(b[:2])[0])
		case dtype.KindI8:
			v = fmt.Sprint(int8(b[0]))
		case dtype.KindU8:
			v = fmt.Sprint(b[0])
		case dtype.KindI16:
			v = fmt.Sprint(int16(le.Uint16(b)))
		case dtype.KindU16:
			v = fmt.Sprint(le.Uint16(b))
		case dtype.KindI32:
			v = fmt.Sprint(int32(le.Uint32(b)))
		case dtype.KindU32:
			v = fmt.Sprint(le.Uint32(b))
		case dtype.KindI64:
			v = fmt.Sprint(int64(le.Uint64(b)))
		case dtype.KindU64:
			v = fmt.Sprint(le.Uint64(b))
		default:
			v = fmt.Sprintf("%02x", b[0])
		}
		values = append(values, v)
	}
	if count > shown {
		values = append(values, "...")
	}
	return "[" + strings.Join(values, " ") + "]"
}

// InspectArchive prints the files and blobs stored in a ztar archive.
func InspectArchive(path string, w io.Writer) error {
	fmt.Fprintf(w, "Inspecting ztar archive from: %s\n", path)

	r, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Fprintf(w, "Written by ztar v%s\n", r.Version())
	fmt.Fprintf(w, "Archive has %d files and %d blobs.\n", len(r.Files()), len(r.Blobs()))

	files := newTable(w, "FILE", "BYTES")
	for _, f := range r.Files() {
		files.Append([]string{f.Name, strconv.FormatInt(f.Size, 10)})
	}
	files.Render()

	blobs := newTable(w, "BLOB", "KIND", "DIMS", "TARGET", "BYTES", "CHUNKS")
	var total int64
	for _, b := range r.Blobs() {
		target := "-"
		if b.TargetFile != "" {
			target = fmt.Sprintf("%s@%d", filepath.ToSlash(b.TargetFile), b.TargetOffset)
		}
		blobs.Append([]string{
			b.Name, b.DataKind().String(), fmt.Sprint(b.Dims), target,
			strconv.FormatInt(b.Length, 10), strconv.Itoa(len(b.Chunks)),
		})
		total += b.Length
	}
	blobs.Render()
	fmt.Fprintf(w, "Blobs hold %d bytes.\n", total)
	return nil
}
