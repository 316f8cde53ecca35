package middleware_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"

	"relay/internal/domain"
	"relay/internal/relay"
	"relay/internal/relay/middleware"
)

type fakeLimiter struct {
	result relay.RateLimitResult
	keys   []string
}

func (f *fakeLimiter) Allow(key string) relay.RateLimitResult {
	f.keys = append(f.keys, key)
	return f.result
}

func TestRateLimitAllows(t *testing.T) {
	limiter := &fakeLimiter{result: relay.RateLimitResult{Allowed: true}}
	handler := relay.Chain(okTerminal("through"), middleware.RateLimit(limiter, nil))

	resp, err := handler.Handle(newRequest(http.MethodGet, "/"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Status)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "192.0.2.1" {
		t.Errorf("expected limiter keyed by client IP, got %v", limiter.keys)
	}
}

func TestRateLimitDenies(t *testing.T) {
	limiter := &fakeLimiter{result: relay.RateLimitResult{Allowed: false, RetryAfter: 7}}
	terminalCalled := false
	handler := relay.Chain(
		relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			terminalCalled = true
			return relay.NewResponse(http.StatusOK), nil
		}),
		middleware.RateLimit(limiter, nil),
	)

	resp, err := handler.Handle(newRequest(http.MethodGet, "/"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if terminalCalled {
		t.Error("terminal must not run on a denied request")
	}
	if resp.Status != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.Status)
	}
	if ra := resp.Header.Get("Retry-After"); ra != "7" {
		t.Errorf("expected Retry-After 7, got %q", ra)
	}

	var errResp domain.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if errResp.Error != "rate_limited" || errResp.RetryAfter != 7 {
		t.Errorf("unexpected envelope: %+v", errResp)
	}
}

func TestRateLimitRecastsDownstreamError(t *testing.T) {
	limiter := &fakeLimiter{result: relay.RateLimitResult{Allowed: true}}
	handler := relay.Chain(
		relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			return nil, errors.Wrap(domain.ErrRateLimited, "upstream quota exhausted")
		}),
		middleware.RateLimit(limiter, nil),
	)

	resp, err := handler.Handle(newRequest(http.MethodGet, "/"))
	if err != nil {
		t.Fatalf("expected the error recast into a response, got %v", err)
	}
	if resp.Status != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.Status)
	}

	var errResp domain.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if errResp.Error != "rate_limited" {
		t.Errorf("unexpected envelope: %+v", errResp)
	}
}
