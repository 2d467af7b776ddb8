package jobs

import (
	"context"
	"errors"
	"testing"
)

func TestRunNowWithoutDatabase(t *testing.T) {
	s := New(nil)
	details, err := s.RunNow(context.Background(), "payroll_deduction_run", "t1", func(context.Context) (any, error) {
		return map[string]int{"employees": 3}, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := details.(map[string]int)["employees"]; got != 3 {
		t.Fatalf("unexpected details %v", details)
	}

	boom := errors.New("boom")
	if _, err := s.RunNow(context.Background(), "x", "t1", func(context.Context) (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected job error to surface, got %v", err)
	}
}
