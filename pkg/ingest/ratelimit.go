package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	anthropicResetPattern = regexp.MustCompile(`You will regain access on (\d{4}-\d{2}-\d{2}) at (\d{2}:\d{2}) UTC`)
	retryAfterPattern     = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+)`)
)

// RateLimitInfo captures how long a sync should pause for.
type RateLimitInfo struct {
	// RetryAfter is the pause in seconds. Defaults to 60 when the provider
	// message gives no hint.
	RetryAfter int

	// ResetTime is the ISO timestamp the provider promised access back, when
	// it stated one.
	ResetTime string

	// ProviderMessage is the first line of the original error.
	ProviderMessage string
}

// IsRateLimit reports whether an error message looks like an API rate limit.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "http/1.1 400 bad request") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "usage limits")
}

// ParseRateLimit extracts pause information from a rate limit error.
func ParseRateLimit(err error) *RateLimitInfo {
	return parseRateLimitAt(err, time.Now().UTC())
}

func parseRateLimitAt(err error, now time.Time) *RateLimitInfo {
	original := err.Error()
	info := &RateLimitInfo{
		RetryAfter:      60,
		ProviderMessage: strings.SplitN(original, "\n", 2)[0],
	}

	// Anthropic states an absolute reset time, e.g.
	// "You will regain access on 2025-10-01 at 00:00 UTC".
	if m := anthropicResetPattern.FindStringSubmatch(original); m != nil {
		if reset, perr := time.Parse("2006-01-02 15:04", m[1]+" "+m[2]); perr == nil {
			reset = reset.UTC()
			if reset.After(now) {
				info.RetryAfter = int(reset.Sub(now).Seconds())
				info.ResetTime = reset.Format(time.RFC3339)
			}
		}
	}

	if info.RetryAfter == 60 {
		if m := retryAfterPattern.FindStringSubmatch(original); m != nil {
			if secs, perr := strconv.Atoi(m[1]); perr == nil {
				info.RetryAfter = secs
			}
		}
	}

	return info
}

// looksLikeHTML reports whether a completion body is an HTML error page, which
// means an infrastructure problem upstream of the model.
func looksLikeHTML(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "<!DOCTYPE html>") || strings.HasPrefix(trimmed, "<html")
}
