package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiq/marketfeed/internal/canon"
)

func ev(ts uint64) canon.Event {
	return canon.Event{Level: &canon.LevelUpdated{Timestamp: canon.TimestampMS(ts)}}
}

func TestBusDeliversToMultipleSubscribers(t *testing.T) {
	b := New(10)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish(ev(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	e1, lag1, ok1 := s1.Recv(ctx)
	require.True(t, ok1)
	assert.False(t, lag1)
	assert.Equal(t, canon.TimestampMS(1), e1.Level.Timestamp)

	e2, _, ok2 := s2.Recv(ctx)
	require.True(t, ok2)
	assert.Equal(t, canon.TimestampMS(1), e2.Level.Timestamp)
}

func TestBusDropsOldestOnLag(t *testing.T) {
	b := New(2)
	sub := b.Subscribe()

	var dropped int
	b.OnDrop = func() { dropped++ }

	b.Publish(ev(1))
	b.Publish(ev(2))
	b.Publish(ev(3)) // forces a drop: capacity is 2

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, lagged, ok := sub.Recv(ctx)
	require.True(t, ok)
	assert.True(t, lagged)
	assert.Equal(t, 1, dropped)
}

func TestBusCloseEndsSubscribers(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()
	b.Publish(ev(1))
	b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, ok := sub.Recv(ctx)
	assert.True(t, ok, "queued event delivered before close signal")

	_, _, ok = sub.Recv(ctx)
	assert.False(t, ok, "closed bus ends the subscriber")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(10)
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	b.Publish(ev(1))

	select {
	case _, ok := <-sub.ch:
		t.Fatalf("unexpected delivery after unsubscribe, ok=%v", ok)
	default:
	}
}
