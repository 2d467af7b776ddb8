package cache

import (
	"context"
	"testing"
	"time"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*Cache{nil, New(nil, "hrpay")} {
		if c.Enabled() {
			t.Fatalf("expected cache to be disabled")
		}
		var dest map[string]string
		found, err := c.GetObject(ctx, "k", &dest)
		if err != nil || found {
			t.Fatalf("expected miss without error, got %v %v", found, err)
		}
		if err := c.SetObject(ctx, "k", map[string]string{"a": "b"}, time.Minute); err != nil {
			t.Fatalf("set on disabled cache: %v", err)
		}
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("delete on disabled cache: %v", err)
		}
	}
}

func TestKeyPrefix(t *testing.T) {
	if got := New(nil, "hrpay").key("defs:t1"); got != "hrpay:defs:t1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := New(nil, "").key("defs:t1"); got != "defs:t1" {
		t.Fatalf("unexpected key %q", got)
	}
}
