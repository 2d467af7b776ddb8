package lock

import (
	"context"
	"testing"
	"time"
)

func TestDisabledLockerGrantsImmediately(t *testing.T) {
	ctx := context.Background()
	for _, l := range []*Locker{nil, New(nil)} {
		if l.Enabled() {
			t.Fatalf("expected locker to be disabled")
		}
		release, err := l.Obtain(ctx, "payroll:deduction:1", time.Second)
		if err != nil {
			t.Fatalf("obtain: %v", err)
		}
		if err := release(ctx); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
}
