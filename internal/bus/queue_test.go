package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbrains/internal/schema"
)

func TestQueueTryPublishFull(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryPublish(Event{Header: schema.NewHeader(schema.EventDataReceived, schema.SourcePoller, 1, 0)}))
	assert.Equal(t, 1, q.Len())
	assert.ErrorIs(t, q.TryPublish(Event{}), ErrQueueFull)
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue(4)
	q.Close()
	q.Close()
	assert.ErrorIs(t, q.TryPublish(Event{}), ErrQueueClosed)

	var nilQueue *Queue
	assert.ErrorIs(t, nilQueue.TryPublish(Event{}), ErrQueueClosed)
	assert.Zero(t, nilQueue.Len())
}

func TestQueueRunDeliversInOrder(t *testing.T) {
	q := NewQueue(8)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, q.TryPublish(Event{Header: schema.NewHeader(schema.EventDataReceived, schema.SourcePoller, i, 0)}))
	}
	q.Close()

	var seqs []uint64
	q.Run(t.Context(), func(e Event) {
		seqs = append(seqs, e.Header.Seq)
	})
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestQueueRunStopsOnContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, func(Event) {})
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
