package main

import (
	"context"
	"log/slog"
	"sync"
)

// episodeQueues serializes episode writes per group id. Workers are started
// lazily on first enqueue and exit once their queue drains, so an idle
// server holds no goroutines.
type episodeQueues struct {
	mu      sync.Mutex
	pending map[string][]func(context.Context)
	active  map[string]bool
	logger  *slog.Logger
}

func newEpisodeQueues(logger *slog.Logger) *episodeQueues {
	if logger == nil {
		logger = slog.Default()
	}
	return &episodeQueues{
		pending: make(map[string][]func(context.Context)),
		active:  make(map[string]bool),
		logger:  logger,
	}
}

// Enqueue appends a job to the group's queue and returns its 1-based
// position. Jobs within a group run strictly in order.
func (q *episodeQueues) Enqueue(groupID string, job func(context.Context)) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[groupID] = append(q.pending[groupID], job)
	position := len(q.pending[groupID])

	if !q.active[groupID] {
		q.active[groupID] = true
		go q.drain(groupID)
	}
	return position
}

func (q *episodeQueues) drain(groupID string) {
	for {
		q.mu.Lock()
		jobs := q.pending[groupID]
		if len(jobs) == 0 {
			q.active[groupID] = false
			delete(q.pending, groupID)
			q.mu.Unlock()
			q.logger.Debug("Episode queue drained", "group_id", groupID)
			return
		}
		job := jobs[0]
		q.pending[groupID] = jobs[1:]
		q.mu.Unlock()

		job(context.Background())
	}
}
