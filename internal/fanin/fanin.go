// Package fanin merges N venue sessions' event sequences into one ordered
// (by arrival) sequence (spec.md §4.2). No reordering or deduplication is
// performed.
package fanin

import (
	"context"
	"sync"

	"github.com/arbiq/marketfeed/internal/canon"
)

// Merge fans sources into a single channel. Each source is drained by its
// own goroutine so that any item available on any input becomes observable
// with minimal latency; the returned channel is closed once every source
// has closed or ctx is cancelled.
func Merge(ctx context.Context, sources ...<-chan canon.Event) <-chan canon.Event {
	out := make(chan canon.Event)
	var wg sync.WaitGroup
	wg.Add(len(sources))

	for _, src := range sources {
		go func(src <-chan canon.Event) {
			defer wg.Done()
			for {
				select {
				case e, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- e:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
