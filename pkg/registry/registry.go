// Package registry maps input format names and file extensions to the
// handlers that pack them.
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedFormat is returned when no handler is registered for a format
// name or file extension.
var ErrUnsupportedFormat = errors.New("unsupported format")

var (
	mu sync.RWMutex
	// formats holds the handler for each format name. Handlers are stored as
	// any so callers pick the concrete type without this package importing
	// them.
	formats = make(map[string]any)
	// extensions maps a lower-case extension (".onnx") to a format name.
	extensions = make(map[string]string)
)

// Register adds a handler for format name, autodetected from the given file
// extensions.
func Register[T any](name string, handler T, exts ...string) {
	mu.Lock()
	defer mu.Unlock()
	formats[name] = handler
	for _, ext := range exts {
		extensions[strings.ToLower(ext)] = name
	}
}

// Lookup returns the handler registered for format name.
func Lookup[T any](name string) (T, error) {
	mu.RLock()
	defer mu.RUnlock()
	var zero T
	h, ok := formats[name]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	handler, ok := h.(T)
	if !ok {
		return zero, fmt.Errorf("format %s is registered with handler type %T", name, h)
	}
	return handler, nil
}

// Detect picks the handler for path from its extension.
func Detect[T any](path string) (string, T, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mu.RLock()
	name, ok := extensions[ext]
	mu.RUnlock()
	if !ok {
		var zero T
		if ext == "" {
			return "", zero, fmt.Errorf("%w: unable to autodetect format of %s", ErrUnsupportedFormat, path)
		}
		return "", zero, fmt.Errorf("%w: unable to autodetect format: %s", ErrUnsupportedFormat, ext)
	}
	h, err := Lookup[T](name)
	return name, h, err
}

// Names returns the registered format names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
