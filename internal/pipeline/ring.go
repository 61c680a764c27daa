package pipeline

import (
	"sync/atomic"

	"github.com/tradsys-labs/exchange-core/internal/domain"
)

// RingBuffer is a single-producer, multi-consumer bounded buffer of
// OrderCommand slots (§4.12, §5). Capacity must be a power of two; slots
// are preallocated once and reused by sequence, never individually
// allocated per command, matching §5's per-stage-exclusive-state rule.
type RingBuffer struct {
	slots []*domain.OrderCommand
	mask  int64

	cursor atomic.Int64 // highest published sequence, or -1 if empty
}

// NewRingBuffer allocates a ring of the given power-of-two size.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 || size&(size-1) != 0 {
		panic("pipeline: ring buffer size must be a power of two")
	}
	slots := make([]*domain.OrderCommand, size)
	for i := range slots {
		slots[i] = &domain.OrderCommand{}
	}
	rb := &RingBuffer{slots: slots, mask: int64(size - 1)}
	rb.cursor.Store(-1)
	return rb
}

func (rb *RingBuffer) Size() int { return len(rb.slots) }

// Slot returns the preallocated command slot for sequence seq. The caller
// (the single producer) fills it in place before calling Publish.
func (rb *RingBuffer) Slot(seq domain.Seq) *domain.OrderCommand {
	return rb.slots[int64(seq)&rb.mask]
}

// Publish makes sequence seq visible to consumers. Sequences must be
// published in order by the single producer.
func (rb *RingBuffer) Publish(seq domain.Seq) {
	rb.cursor.Store(int64(seq))
}

// Published returns the highest sequence visible to consumers right now.
func (rb *RingBuffer) Published() domain.Seq {
	return domain.Seq(rb.cursor.Load())
}
