package roster

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestCachedClient_CachesResolve(t *testing.T) {
	stub := &stubClient{ids: []string{"staff_ana", "staff_bo"}}
	c := NewCachedClient(stub, time.Minute, nil)
	ctx := context.Background()

	first, err := c.Resolve(ctx, "grp_alpha")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := c.Resolve(ctx, "grp_alpha")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if stub.calls != 1 {
		t.Errorf("client calls = %d, want 1", stub.calls)
	}
	if !slices.Equal(first, second) {
		t.Errorf("cached roster %v differs from original %v", second, first)
	}
}

func TestCachedClient_DistinctGroups(t *testing.T) {
	stub := &stubClient{ids: []string{"staff_ana"}}
	c := NewCachedClient(stub, time.Minute, nil)
	ctx := context.Background()

	c.Resolve(ctx, "grp_alpha")
	c.Resolve(ctx, "grp_beta")

	if stub.calls != 2 {
		t.Errorf("client calls = %d, want 2 (one per group)", stub.calls)
	}
}

func TestCachedClient_ExpiresAfterTTL(t *testing.T) {
	stub := &stubClient{ids: []string{"staff_ana"}}
	c := NewCachedClient(stub, 10*time.Millisecond, nil)
	ctx := context.Background()

	c.Resolve(ctx, "grp_alpha")
	time.Sleep(20 * time.Millisecond)
	c.Resolve(ctx, "grp_alpha")

	if stub.calls != 2 {
		t.Errorf("client calls = %d, want 2 after expiry", stub.calls)
	}
}

func TestCachedClient_DoesNotCacheErrors(t *testing.T) {
	stub := &stubClient{err: errors.New("connection refused")}
	c := NewCachedClient(stub, time.Minute, nil)
	ctx := context.Background()

	if _, err := c.Resolve(ctx, "grp_alpha"); err == nil {
		t.Fatal("expected error from failing client")
	}

	// Service recovers; the failure must not have been cached.
	stub.err = nil
	stub.ids = []string{"staff_ana"}

	ids, err := c.Resolve(ctx, "grp_alpha")
	if err != nil {
		t.Fatalf("Resolve() after recovery error = %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("Resolve() = %v, want [staff_ana]", ids)
	}
	if stub.calls != 2 {
		t.Errorf("client calls = %d, want 2", stub.calls)
	}
}

func TestCachedClient_Invalidate(t *testing.T) {
	stub := &stubClient{ids: []string{"staff_ana"}}
	c := NewCachedClient(stub, time.Minute, nil)
	ctx := context.Background()

	c.Resolve(ctx, "grp_alpha")
	c.Invalidate("grp_alpha")
	c.Resolve(ctx, "grp_alpha")

	if stub.calls != 2 {
		t.Errorf("client calls = %d, want 2 after invalidation", stub.calls)
	}
}

func TestCachedClient_ReturnsCopies(t *testing.T) {
	stub := &stubClient{ids: []string{"staff_ana", "staff_bo"}}
	c := NewCachedClient(stub, time.Minute, nil)
	ctx := context.Background()

	first, _ := c.Resolve(ctx, "grp_alpha")
	first[0] = "mutated"

	second, err := c.Resolve(ctx, "grp_alpha")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if second[0] != "staff_ana" {
		t.Errorf("cache entry was mutated through a returned slice: %v", second)
	}
}
