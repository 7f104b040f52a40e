package models

import "strings"

// KeyPrefix namespaces counters in a shared store.
type KeyPrefix string

const (
	KeyPrefixSubmission KeyPrefix = "submission"
)

// RateLimitKey identifies one sliding-window counter.
type RateLimitKey string

// NewRateLimitKey builds "ratelimit:<prefix>:<identifier>".
func NewRateLimitKey(prefix KeyPrefix, identifier string) RateLimitKey {
	return RateLimitKey("ratelimit:" + string(prefix) + ":" + SanitizeKeySegment(identifier))
}

func (k RateLimitKey) String() string {
	return string(k)
}

// SanitizeKeySegment escapes delimiter characters in rate limit key segments
// to prevent key collision attacks where user-controlled identifiers containing
// ':' could manipulate adjacent rate limit buckets.
//
// Example: An identifier "user:admin" would become "user_admin", preventing
// it from being interpreted as a separate key segment.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
