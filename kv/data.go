package kv

// Data is a read-only view of a byte range, passed around to avoid copying.
// It never owns distinct storage of its own: the producing context's contract
// determines how long the underlying buffer stays valid (see Reader.Get0 and
// Iterator.Key for the two lifetime rules). A nil Data, produced from no
// source, is distinguishable from a zero-length present value.
type Data []byte

// Len returns the number of bytes in the view.
func (d Data) Len() int {
	return len(d)
}

// Copy materializes an owned copy of the viewed bytes. A nil view yields an
// empty slice.
func (d Data) Copy() []byte {
	out := make([]byte, len(d))
	copy(out, d)
	return out
}

// String materializes the viewed bytes as an owned string. A nil view yields
// the empty string.
func (d Data) String() string {
	return string(d)
}
