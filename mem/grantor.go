package mem

// Grantor hands out byte-offset-relative slices against a caller-supplied
// base buffer (spec.md Glossary "Grantor"). It is intentionally tiny: the
// planner computes offsets once at compile time; at execute time a Grantor
// just slices the current scratchpad or persistent buffer.
type Grantor struct {
	base []byte
}

// NewGrantor wraps base for offset-relative access.
func NewGrantor(base []byte) Grantor {
	return Grantor{base: base}
}

// Get returns the size-byte slice of base starting at offset.
func (g Grantor) Get(offset, size int64) []byte {
	return g.base[offset : offset+size]
}
