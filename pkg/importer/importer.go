// Package importer reads and writes .onnx model files.
package importer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zerfoo/ztar/internal/onnx"
)

// LoadOnnxModel reads an ONNX model file and returns the parsed ModelProto.
func LoadOnnxModel(path string) (*onnx.ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ONNX file: %w", err)
	}
	model, err := ParseOnnxModel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

// ParseOnnxModel decodes a serialized ModelProto. A model without a graph is
// rejected.
func ParseOnnxModel(data []byte) (*onnx.ModelProto, error) {
	model := &onnx.ModelProto{}
	if err := onnx.Unmarshal(data, model); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ONNX protobuf: %w", err)
	}
	if model.GetGraph() == nil {
		return nil, fmt.Errorf("model graph is nil")
	}
	return model, nil
}

// SerializeOnnxModel encodes model. Equal models always encode to equal bytes.
func SerializeOnnxModel(model *onnx.ModelProto) ([]byte, error) {
	data, err := onnx.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ONNX protobuf: %w", err)
	}
	return data, nil
}

// SaveOnnxModel writes model to path, creating parent directories.
func SaveOnnxModel(model *onnx.ModelProto, path string) error {
	data, err := SerializeOnnxModel(model)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ONNX file: %w", err)
	}
	return nil
}
