package usage

import "sync"

// Buffer accumulates Records for the long-lived deployment mode and decides
// when a flush is due. It holds no I/O; Drain hands the caller a batch to
// write via ports.UsageStore.
type Buffer struct {
	mu      sync.Mutex
	records []Record
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds a record and reports whether a hard-backpressure flush is now
// due (spec.md §4.16's 500-record trigger).
func (b *Buffer) Append(r Record) (hardFlushDue bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, r)
	return len(b.records) >= FlushHardThreshold
}

// Len reports the current buffered count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// ShouldSoftFlush reports whether the soft threshold (50 records) has been
// reached; callers combine this with the 5-second timer trigger.
func (b *Buffer) ShouldSoftFlush() bool {
	return b.Len() >= FlushSoftThreshold
}

// Drain removes and returns up to all buffered records, clearing the
// buffer. Called on a flush trigger or shutdown.
func (b *Buffer) Drain() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 {
		return nil
	}
	batch := b.records
	b.records = nil
	return batch
}
