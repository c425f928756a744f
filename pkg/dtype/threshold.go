package dtype

// DefaultSizeLimit is the byte length at which tensors leave the model.
const DefaultSizeLimit = 16 * 1024

// Threshold is the run-wide externalization policy.
type Threshold struct {
	SizeLimit int
}

// ShouldExternalize reports whether a payload of n bytes is moved out.
func (th Threshold) ShouldExternalize(n int) bool {
	return n >= th.SizeLimit
}
