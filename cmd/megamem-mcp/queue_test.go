package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobsInOrder(t *testing.T) {
	q := newEpisodeQueues(nil)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		q.Enqueue("g1", func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			finished := len(order) == 5
			mu.Unlock()
			if finished {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueueReportsPosition(t *testing.T) {
	q := newEpisodeQueues(nil)

	block := make(chan struct{})
	release := func(ctx context.Context) { <-block }

	first := q.Enqueue("g1", release)
	second := q.Enqueue("g1", func(ctx context.Context) {})
	otherGroup := q.Enqueue("g2", func(ctx context.Context) {})

	assert.Equal(t, 1, first)
	// The worker may or may not have popped the first job yet, so the
	// second lands at position 1 or 2.
	assert.LessOrEqual(t, second, 2)
	assert.Equal(t, 1, otherGroup)
	close(block)
}

func TestQueueWorkerExitsOnDrain(t *testing.T) {
	q := newEpisodeQueues(nil)

	ran := make(chan struct{})
	q.Enqueue("g1", func(ctx context.Context) { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return !q.active["g1"]
	}, 2*time.Second, 10*time.Millisecond)

	// A later enqueue must start a fresh worker.
	again := make(chan struct{})
	q.Enqueue("g1", func(ctx context.Context) { close(again) })
	select {
	case <-again:
	case <-time.After(2 * time.Second):
		t.Fatal("queue worker did not restart after drain")
	}
}
