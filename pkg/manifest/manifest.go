// Package manifest records which blob each externalized tensor became.
package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Manifest maps original tensor names to blob names for one model.
type Manifest struct {
	model string
	blobs map[string]string
}

// New returns an empty manifest for the model file modelName.
func New(modelName string) *Manifest {
	return &Manifest{model: modelName, blobs: make(map[string]string)}
}

// BlobName is the blob name given to the tensor at traversal index i.
func BlobName(modelName string, index int) string {
	return fmt.Sprintf("%s[%d]", modelName, index)
}

// Add records tensor -> blob. A tensor name already present keeps its first
// blob and Add returns false.
func (m *Manifest) Add(tensor, blob string) bool {
	if _, dup := m.blobs[tensor]; dup {
		return false
	}
	m.blobs[tensor] = blob
	return true
}

// Len returns the number of recorded tensors.
func (m *Manifest) Len() int {
	return len(m.blobs)
}

// Blob returns the blob recorded for tensor.
func (m *Manifest) Blob(tensor string) (string, bool) {
	b, ok := m.blobs[tensor]
	return b, ok
}

// Tensors returns the recorded tensor names, sorted.
func (m *Manifest) Tensors() []string {
	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileName is the sidecar name: ".{model}.json".
func (m *Manifest) FileName() string {
	return "." + m.model + ".json"
}

type document struct {
	Blobs map[string]string `json:"blobs"`
}

// Marshal encodes the manifest as {"blobs": {...}}. Keys are sorted, so equal
// manifests encode to equal bytes.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.Marshal(document{Blobs: m.blobs})
}

// Unmarshal decodes a sidecar written by Marshal.
func Unmarshal(modelName string, data []byte) (*Manifest, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode manifest for %s: %w", modelName, err)
	}
	m := New(modelName)
	for k, v := range doc.Blobs {
		m.blobs[k] = v
	}
	return m, nil
}
