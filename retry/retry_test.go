package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   []time.Duration
	}{
		{"linear", NewLinear(3, time.Second), []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}},
		{"exponential", NewExponential(3, time.Second), []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}},
		{"scheduled", NewScheduled([]time.Duration{0, time.Second, 5 * time.Second}), []time.Duration{time.Second, 5 * time.Second, 5 * time.Second}},
	}

	for _, tt := range tests {
		for i, want := range tt.want {
			if got := tt.policy.Delay(i + 1); got != want {
				t.Errorf("%s: Delay(%d) = %v, want %v", tt.name, i+1, got, want)
			}
		}
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var waits []time.Duration
	p := NewLinear(3, time.Second)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Errorf("waits = %v, want [1s 2s]", waits)
	}
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	p := NewExponential(2, time.Second)
	p.Sleep = NoSleep

	calls := 0
	sentinel := errors.New("third")
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 3 {
			return sentinel
		}
		return errors.New("earlier")
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if err != sentinel {
		t.Errorf("err = %v, want last error", err)
	}
}

func TestDo_PermanentStops(t *testing.T) {
	p := NewLinear(5, time.Second)
	p.Sleep = NoSleep

	calls := 0
	cause := errors.New("bad credentials")
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return Permanent(cause)
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err != cause {
		t.Errorf("err = %v, want unwrapped cause", err)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewLinear(5, time.Hour)

	calls := 0
	cause := errors.New("flaky")
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return cause
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err != cause {
		t.Errorf("err = %v, want %v", err, cause)
	}
}

func TestDo_ZeroPolicyRunsOnce(t *testing.T) {
	calls := 0
	_ = Policy{}.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("x")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
