package cache

import (
	"github.com/ajaxzhan/gstfs/pkg/types"
)

// Buffer is a byte container that grows by doubling. Length and capacity
// are derived from the backing slice and never tracked separately.
type Buffer struct {
	data  []byte
	limit int64 // 0 means unlimited
}

// NewBuffer creates an empty buffer. A positive limit caps the total
// number of bytes the buffer will hold.
func NewBuffer(limit int64) *Buffer {
	return &Buffer{limit: limit}
}

// Len returns the number of bytes appended so far.
func (b *Buffer) Len() int64 {
	return int64(len(b.data))
}

// Cap returns the currently allocated capacity.
func (b *Buffer) Cap() int64 {
	return int64(cap(b.data))
}

// Append copies p to the end of the buffer. When the allocated capacity is
// too small it grows to twice the current capacity, or to exactly the
// required size if that is larger.
func (b *Buffer) Append(p []byte) error {
	need := int64(len(b.data)) + int64(len(p))
	if b.limit > 0 && need > b.limit {
		return types.ErrEntryTooLarge
	}

	if need > int64(cap(b.data)) {
		newCap := max(int64(cap(b.data))*2, need)
		if b.limit > 0 && newCap > b.limit {
			newCap = b.limit
		}
		grown := make([]byte, len(b.data), newCap)
		copy(grown, b.data)
		b.data = grown
	}

	b.data = append(b.data, p...)
	return nil
}

// ReadAt copies bytes starting at off into dest and returns the count.
// It returns 0 when off is at or past the end.
func (b *Buffer) ReadAt(dest []byte, off int64) int {
	if off < 0 || off >= int64(len(b.data)) {
		return 0
	}
	return copy(dest, b.data[off:])
}

// Bytes returns the buffered content. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Reset discards the content and releases the backing array.
func (b *Buffer) Reset() {
	b.data = nil
}
