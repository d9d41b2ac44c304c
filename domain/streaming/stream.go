// Package streaming provides the byte-accounting wrapper for C14's
// streaming dispatch path.
package streaming

import (
	"io"
	"sync/atomic"
)

// ByteCounter wraps a reader to count bytes read through it, so the HTTP
// adapter can log how much of a streamed response body it relayed without
// buffering the body itself.
type ByteCounter struct {
	reader io.ReadCloser
	count  atomic.Int64
}

// NewByteCounter creates a byte counting reader wrapper.
func NewByteCounter(r io.ReadCloser) *ByteCounter {
	return &ByteCounter{reader: r}
}

// Read reads and counts bytes.
func (b *ByteCounter) Read(p []byte) (int, error) {
	n, err := b.reader.Read(p)
	if n > 0 {
		b.count.Add(int64(n))
	}
	return n, err
}

// Close closes the underlying reader.
func (b *ByteCounter) Close() error {
	return b.reader.Close()
}

// Count returns total bytes read.
func (b *ByteCounter) Count() int64 {
	return b.count.Load()
}
