package graph

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryConfig holds configuration for retry behavior on graph operations.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// InitialDelay is the initial delay before the first retry (default: 1 second)
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 30 seconds)
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryClient wraps a graph client and retries write operations with
// exponential backoff on transient backend errors. Reads pass through.
type RetryClient struct {
	client Client
	config *RetryConfig
}

// NewRetryClient creates a retry wrapper around a graph client.
func NewRetryClient(client Client, config *RetryConfig) *RetryClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}

	return &RetryClient{client: client, config: config}
}

func (r *RetryClient) retry(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransientError(err) {
			return err
		}
	}

	return fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// AddEpisode retries transient write failures.
func (r *RetryClient) AddEpisode(ctx context.Context, input *EpisodeInput) (*EpisodeResult, error) {
	var result *EpisodeResult
	err := r.retry(ctx, func() error {
		var opErr error
		result, opErr = r.client.AddEpisode(ctx, input)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RetryClient) SearchNodes(ctx context.Context, query string, groupIDs []string, limit int, entityLabels []string) ([]Entity, error) {
	return r.client.SearchNodes(ctx, query, groupIDs, limit, entityLabels)
}

func (r *RetryClient) SearchFacts(ctx context.Context, query string, groupIDs []string, limit int) ([]EntityEdge, error) {
	return r.client.SearchFacts(ctx, query, groupIDs, limit)
}

func (r *RetryClient) GetEntityEdge(ctx context.Context, uuid string) (*EntityEdge, error) {
	return r.client.GetEntityEdge(ctx, uuid)
}

func (r *RetryClient) DeleteEntityEdge(ctx context.Context, uuid string) error {
	return r.retry(ctx, func() error {
		return r.client.DeleteEntityEdge(ctx, uuid)
	})
}

func (r *RetryClient) DeleteEpisode(ctx context.Context, uuid string) error {
	return r.retry(ctx, func() error {
		return r.client.DeleteEpisode(ctx, uuid)
	})
}

func (r *RetryClient) GetEpisodes(ctx context.Context, groupID string, lastN int) ([]Episode, error) {
	return r.client.GetEpisodes(ctx, groupID, lastN)
}

func (r *RetryClient) ClearGraph(ctx context.Context, groupID string) error {
	return r.retry(ctx, func() error {
		return r.client.ClearGraph(ctx, groupID)
	})
}

func (r *RetryClient) GroupIDs(ctx context.Context) ([]string, error) {
	return r.client.GroupIDs(ctx)
}

func (r *RetryClient) CreateIndices(ctx context.Context) error {
	return r.retry(ctx, func() error {
		return r.client.CreateIndices(ctx)
	})
}

func (r *RetryClient) Close(ctx context.Context) error {
	return r.client.Close(ctx)
}

// calculateDelay calculates the delay for a given retry attempt using exponential backoff
func (r *RetryClient) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

// isTransientError determines if a backend error is worth retrying.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"timeout",
		"temporary failure",
		"transienterror",
		"session expired",
		"defunct connection",
		"leader switch",
		"service unavailable",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
