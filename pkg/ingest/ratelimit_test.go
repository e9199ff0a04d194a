package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  string
		want bool
	}{
		{"explicit rate limit", "OpenAI: Rate limit reached for gpt-4o", true},
		{"too many requests", "HTTP 429 Too Many Requests", true},
		{"bad request proxy", "upstream error: HTTP/1.1 400 Bad Request", true},
		{"usage limits", "You have exceeded your usage limits.", true},
		{"unrelated", "connection refused", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimit(errors.New(tt.err)))
		})
	}
}

func TestParseRateLimitAnthropicReset(t *testing.T) {
	now := time.Date(2025, 9, 30, 23, 0, 0, 0, time.UTC)
	err := errors.New("Anthropic: usage limits hit.\nYou will regain access on 2025-10-01 at 00:00 UTC")

	info := parseRateLimitAt(err, now)
	assert.Equal(t, 3600, info.RetryAfter)
	assert.Equal(t, "2025-10-01T00:00:00Z", info.ResetTime)
	assert.Equal(t, "Anthropic: usage limits hit.", info.ProviderMessage)
}

func TestParseRateLimitResetInPast(t *testing.T) {
	now := time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC)
	err := errors.New("You will regain access on 2025-10-01 at 00:00 UTC")

	info := parseRateLimitAt(err, now)
	assert.Equal(t, 60, info.RetryAfter)
	assert.Empty(t, info.ResetTime)
}

func TestParseRateLimitRetryAfterHeader(t *testing.T) {
	info := parseRateLimitAt(errors.New("rate limit exceeded, Retry-After: 90"), time.Now().UTC())
	assert.Equal(t, 90, info.RetryAfter)
}

func TestParseRateLimitDefault(t *testing.T) {
	info := parseRateLimitAt(errors.New("rate limit exceeded"), time.Now().UTC())
	assert.Equal(t, 60, info.RetryAfter)
	assert.Empty(t, info.ResetTime)
}

func TestLookupSagaPreviousUUID(t *testing.T) {
	records := []SyncRecord{
		{Syncs: []SyncEntry{
			{SagaName: "daily-g", EpisodeUUID: "a", LastSync: "2026-01-01T00:00:00Z"},
			{SagaName: "daily-g", EpisodeUUID: "b", LastSync: "2026-03-01T00:00:00Z"},
			{SagaName: "other-g", EpisodeUUID: "c", LastSync: "2026-04-01T00:00:00Z"},
			{SagaName: "daily-g", EpisodeUUID: "", LastSync: "2026-05-01T00:00:00Z"},
		}},
	}

	assert.Equal(t, "b", LookupSagaPreviousUUID("daily-g", records))
	assert.Empty(t, LookupSagaPreviousUUID("missing", records))
}
