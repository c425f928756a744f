// Package validator checks that the byte ranges written to one location tile
// it exactly: sorted by offset, each range starts where the previous ended and
// the last one ends at the location's stored size.
package validator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
)

// ErrIntegrityViolation matches every *IntegrityViolation via errors.Is.
var ErrIntegrityViolation = errors.New("integrity violation")

// Reason classifies an integrity violation.
type Reason string

const (
	ReasonGap          Reason = "gap"
	ReasonOverlap      Reason = "overlap"
	ReasonSizeMismatch Reason = "size_mismatch"
	ReasonNegative     Reason = "negative"
)

// IntegrityViolation describes the first inconsistency found in a location.
type IntegrityViolation struct {
	Location string
	Reason   Reason
	Tensor   string // range the violation was found at
	Tensor2  string // preceding range, for gaps and overlaps
	Details  string
}

func (e *IntegrityViolation) Error() string {
	switch {
	case e.Tensor2 != "":
		return fmt.Sprintf("%s in %s: %s: ranges %q and %q: %s", ErrIntegrityViolation, e.Location, e.Reason, e.Tensor2, e.Tensor, e.Details)
	case e.Tensor != "":
		return fmt.Sprintf("%s in %s: %s: range %q: %s", ErrIntegrityViolation, e.Location, e.Reason, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s in %s: %s: %s", ErrIntegrityViolation, e.Location, e.Reason, e.Details)
}

func (e *IntegrityViolation) Is(target error) bool {
	return target == ErrIntegrityViolation
}

// Range is one tensor's claim on a location.
type Range struct {
	Name   string
	Offset int64
	Length int64
}

// End returns the offset one past the range.
func (r Range) End() int64 {
	return r.Offset + r.Length
}

// Validate checks ranges against a location of size bytes. The caller's slice
// is not reordered. An empty set of ranges is valid only for an empty location.
func Validate(location string, ranges []Range, size int64) error {
	sorted := slices.Clone(ranges)
	slices.SortStableFunc(sorted, func(a, b Range) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}
		return 0
	})

	var end int64
	for i, r := range sorted {
		if r.Offset < 0 || r.Length < 0 {
			return &IntegrityViolation{
				Location: location,
				Reason:   ReasonNegative,
				Tensor:   r.Name,
				Details:  fmt.Sprintf("offset=%d, length=%d", r.Offset, r.Length),
			}
		}
		if r.Offset != end {
			v := &IntegrityViolation{Location: location, Tensor: r.Name}
			if i > 0 {
				v.Tensor2 = sorted[i-1].Name
			}
			if r.Offset > end {
				v.Reason = ReasonGap
				v.Details = fmt.Sprintf("bytes [%d-%d] are not covered", end, r.Offset)
			} else {
				v.Reason = ReasonOverlap
				v.Details = fmt.Sprintf("range starts at %d before previous end %d", r.Offset, end)
			}
			return v
		}
		end = r.End()
	}

	if end != size {
		return &IntegrityViolation{
			Location: location,
			Reason:   ReasonSizeMismatch,
			Details:  fmt.Sprintf("ranges end at %d, stored size is %d", end, size),
		}
	}
	return nil
}

// StoredSize reports the size of the file at path. ok is false, with a nil
// error, only when the file does not exist; any other stat failure is
// returned.
func StoredSize(path string) (size int64, ok bool, err error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return 0, false, fmt.Errorf("%s is a directory", path)
	}
	return fi.Size(), true, nil
}
