// internal/ratelimit/limiter_test.go
package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestDomainLimiter_AllowWithinBurst(t *testing.T) {
	dl := NewDomainLimiter(1.0, 2)

	if !dl.Allow("https://example.com/a") {
		t.Error("First request should be allowed")
	}
	if !dl.Allow("https://example.com/b") {
		t.Error("Second request within burst should be allowed")
	}
	if dl.Allow("https://example.com/c") {
		t.Error("Third request should exceed the burst")
	}
}

func TestDomainLimiter_DomainsAreIndependent(t *testing.T) {
	dl := NewDomainLimiter(1.0, 1)

	if !dl.Allow("https://a.example.com/") {
		t.Error("First domain should be allowed")
	}
	if !dl.Allow("https://b.example.com/") {
		t.Error("Second domain has its own bucket")
	}
	if dl.Allow("https://a.example.com/again") {
		t.Error("First domain should be throttled")
	}
}

func TestDomainLimiter_WaitHonorsContext(t *testing.T) {
	dl := NewDomainLimiter(0.1, 1)

	// Drain the bucket.
	if err := dl.Wait(context.Background(), "https://example.com/"); err != nil {
		t.Fatalf("First wait failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := dl.Wait(ctx, "https://example.com/"); err == nil {
		t.Error("Expected wait to fail when the context expires first")
	}
}

func TestDomainLimiter_InvalidURLPassesThrough(t *testing.T) {
	dl := NewDomainLimiter(1.0, 1)
	if err := dl.Wait(context.Background(), "::not-a-url::"); err != nil {
		t.Errorf("Invalid URL should not block: %v", err)
	}
}
