package relay

import (
	"context"
	"crypto/rsa"
)

// RateLimiter decides whether a request identified by key should be allowed.
type RateLimiter interface {
	Allow(key string) RateLimitResult
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter int // seconds until next token available; 0 if allowed
}

// KeyProvider resolves JWT verification keys by key ID.
type KeyProvider interface {
	GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}
