// Package sink implements the generic size-triggered buffer used to
// offload batches to persistent storage (spec.md §4.9).
package sink

// FlushFunc is invoked with a full (or final, partial) batch. The sink
// reports FlushFunc's error verbatim to its caller.
type FlushFunc[T any] func(batch []T) error

// Buffered appends items and calls FlushFunc once the buffered count
// reaches Size, then clears. Not safe for concurrent use; owned by a
// single consumer task per spec.md §5.
type Buffered[T any] struct {
	size  int
	flush FlushFunc[T]
	items []T
}

// NewBuffered creates a Buffered sink with the given flush callback and
// buffer size.
func NewBuffered[T any](size int, flush FlushFunc[T]) *Buffered[T] {
	return &Buffered[T]{size: size, flush: flush, items: make([]T, 0, size)}
}

// Push appends item, flushing immediately once the buffer reaches Size.
func (b *Buffered[T]) Push(item T) error {
	b.items = append(b.items, item)
	if len(b.items) >= b.size {
		return b.Flush()
	}
	return nil
}

// Flush invokes the callback with any remaining items, or does nothing if
// the buffer is empty.
func (b *Buffered[T]) Flush() error {
	if len(b.items) == 0 {
		return nil
	}
	batch := b.items
	b.items = make([]T, 0, b.size)
	return b.flush(batch)
}

// Len returns the number of items currently buffered (unflushed).
func (b *Buffered[T]) Len() int { return len(b.items) }
