package sink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedFlushesOnSizeTrigger(t *testing.T) {
	var batches [][]int
	s := NewBuffered(3, func(batch []int) error {
		cp := append([]int(nil), batch...)
		batches = append(batches, cp)
		return nil
	})

	for i := 1; i <= 10; i++ {
		require.NoError(t, s.Push(i))
	}
	// floor(10/3) = 3 full flushes.
	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Len(t, b, 3)
	}
	assert.Equal(t, 1, s.Len()) // item 10 remains buffered

	require.NoError(t, s.Flush())
	require.Len(t, batches, 4)
	assert.Equal(t, []int{10}, batches[3])

	// Flushing an empty buffer does not invoke the callback again.
	require.NoError(t, s.Flush())
	require.Len(t, batches, 4)
}

func TestBufferedPropagatesFlushError(t *testing.T) {
	boom := errors.New("boom")
	s := NewBuffered(2, func(batch []int) error { return boom })

	require.NoError(t, s.Push(1))
	err := s.Push(2)
	assert.ErrorIs(t, err, boom)
}
