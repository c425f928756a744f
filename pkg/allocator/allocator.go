// Package allocator assigns externalized tensors a location and byte offset.
//
// Two policies exist. Shared placement appends every tensor of a model to one
// location, advancing an offset by exactly the bytes written, so the ranges are
// contiguous by construction. Per-tensor placement gives each tensor its own
// location at offset 0. A run uses one policy throughout, and every model packed
// in the run draws its locations from one set of Claims.
package allocator

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Ref is where one tensor's bytes live.
type Ref struct {
	Location string
	Offset   int64
	Length   int64
	// Shared is set when Offset is meaningful, i.e. the location holds more
	// than one tensor.
	Shared bool
}

// End returns the offset one past the last byte of the range.
func (r Ref) End() int64 {
	return r.Offset + r.Length
}

// Allocator places tensors. Allocate is called once per externalized tensor in
// traversal order; index is the tensor's traversal index.
type Allocator interface {
	Allocate(name string, index int, length int64) Ref
}

// Mode selects an allocation policy.
type Mode int

const (
	ModeShared Mode = iota
	ModePerTensor
)

func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModePerTensor:
		return "per-tensor"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses "shared" or "per-tensor".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shared":
		return ModeShared, nil
	case "per-tensor", "pertensor", "per_tensor":
		return ModePerTensor, nil
	}
	return 0, fmt.Errorf("unknown allocation mode %q (want shared or per-tensor)", s)
}

// ErrLocationTaken is returned when a shared location is already claimed by
// another file of the same run.
var ErrLocationTaken = errors.New("location already taken")

// Claims records the names taken during one run, whether by stored files or by
// allocated locations. Names are compared case-insensitively so that
// extracting onto a case-insensitive file system cannot merge two of them.
type Claims struct {
	taken map[string]string
}

// NewClaims returns a set with the given names reserved.
func NewClaims(reserved ...string) *Claims {
	c := &Claims{taken: make(map[string]string)}
	for _, name := range reserved {
		c.Reserve(name)
	}
	return c
}

func fold(name string) string {
	return strings.ToLower(name)
}

// Reserve marks name as taken without checking it.
func (c *Claims) Reserve(name string) {
	if _, ok := c.taken[fold(name)]; !ok {
		c.taken[fold(name)] = name
	}
}

// Claim takes name and reports whether it was still free.
func (c *Claims) Claim(name string) bool {
	if c.Taken(name) {
		return false
	}
	c.taken[fold(name)] = name
	return true
}

// Taken reports whether name, or a name differing only in case, is taken.
func (c *Claims) Taken(name string) bool {
	_, ok := c.taken[fold(name)]
	return ok
}

// Owner returns the spelling under which name, ignoring case, was first taken.
func (c *Claims) Owner(name string) string {
	return c.taken[fold(name)]
}

// New returns a fresh allocator for one model under mode. Locations are
// claimed from claims; a nil claims set reserves only the model's own name.
// In shared mode the model's location is claimed immediately and a clash is
// an error.
func New(mode Mode, modelName string, claims *Claims) (Allocator, error) {
	model := filepath.Base(modelName)
	if claims == nil {
		claims = NewClaims(model)
	}
	switch mode {
	case ModeShared:
		location := SharedLocation(model)
		if !claims.Claim(location) {
			return nil, fmt.Errorf("%w: shared location %s of %s clashes with %s", ErrLocationTaken, location, model, claims.Owner(location))
		}
		return NewShared(location), nil
	case ModePerTensor:
		return NewPerTensor(model, claims), nil
	}
	return nil, fmt.Errorf("unknown allocation mode %v", mode)
}

// SharedLocation derives the shared data file name from a model file name:
// "model.onnx" becomes "model.data".
func SharedLocation(modelName string) string {
	base := filepath.Base(modelName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".data"
}

// Shared places every tensor in one location.
type Shared struct {
	location string
	offset   int64
}

// NewShared returns an allocator appending to location from offset 0.
func NewShared(location string) *Shared {
	return &Shared{location: location}
}

func (s *Shared) Allocate(_ string, _ int, length int64) Ref {
	ref := Ref{Location: s.location, Offset: s.offset, Length: length, Shared: true}
	s.offset += length
	return ref
}

// Size returns the number of bytes allocated so far.
func (s *Shared) Size() int64 {
	return s.offset
}

// PerTensor gives every tensor its own location named after the tensor.
type PerTensor struct {
	model  string
	claims *Claims
}

// NewPerTensor returns a per-tensor allocator for the tensors of model. Names
// already taken in claims, such as the model files of the run, are never
// handed out as locations. A nil claims set reserves only model.
func NewPerTensor(model string, claims *Claims) *PerTensor {
	if claims == nil {
		claims = NewClaims(model)
	}
	return &PerTensor{model: model, claims: claims}
}

func (p *PerTensor) Allocate(name string, index int, length int64) Ref {
	location, ok := Sanitize(name)
	if !ok || !p.claims.Claim(location) {
		base := SyntheticName(p.model, index)
		location = base
		for n := 1; !p.claims.Claim(location); n++ {
			location = fmt.Sprintf("%s~%d", base, n)
		}
	}
	return Ref{Location: location, Length: length}
}

// SyntheticName is the location used for the tensor at index in model when
// its own name is unusable or taken. '@' is outside the Sanitize allow-list,
// so synthetic names never collide with sanitized ones, and model names are
// unique within a run.
func SyntheticName(model string, index int) string {
	return fmt.Sprintf("%s@%d", model, index)
}

const maxComponentLen = 255

// Sanitize reports whether name is safe to use as a single path component.
// Only ASCII letters, digits, '.', '_' and '-' are accepted, the name may not
// start with '.', and it must fit in 255 bytes.
func Sanitize(name string) (string, bool) {
	if name == "" || len(name) > maxComponentLen || name[0] == '.' {
		return "", false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return "", false
		}
	}
	return name, true
}
