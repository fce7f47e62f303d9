package stream

// DefaultAutoFlushBytes is the accumulated size at which a session runs an
// interim pass on its own, roughly three seconds of compressed streaming
// audio.
const DefaultAutoFlushBytes = 49152

// ChunkBuffer accumulates the raw bytes of one session between passes. It
// is owned by a single session goroutine and is not safe for concurrent use.
type ChunkBuffer struct {
	data      []byte
	threshold int
}

// NewChunkBuffer returns a buffer that asks for an auto-flush once it holds
// threshold bytes. A non-positive threshold selects [DefaultAutoFlushBytes].
func NewChunkBuffer(threshold int) *ChunkBuffer {
	if threshold <= 0 {
		threshold = DefaultAutoFlushBytes
	}
	return &ChunkBuffer{threshold: threshold}
}

// Append adds p to the buffer.
func (b *ChunkBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Len returns the number of buffered bytes.
func (b *ChunkBuffer) Len() int { return len(b.data) }

// ShouldAutoFlush reports whether the threshold has been reached.
func (b *ChunkBuffer) ShouldAutoFlush() bool {
	return len(b.data) >= b.threshold
}

// SnapshotAndClear returns the buffered bytes and empties the buffer. The
// returned slice is owned by the caller.
func (b *ChunkBuffer) SnapshotAndClear() []byte {
	out := b.data
	b.data = nil
	return out
}
