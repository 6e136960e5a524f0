package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
)

// TestDefaultPolicy verifies the baseline default values.
func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != BackoffLinear {
		t.Fatalf("expected linear default mode got %s", p.Mode)
	}
	if p.Initial != time.Second || p.Max != 30*time.Second || p.MaxRetries != 2 {
		t.Fatalf("unexpected defaults %+v", p)
	}
}

// TestNewPolicyOverrides checks override precedence and clamping when initial > max.
func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy("FIXED", 5*time.Second, 2*time.Second, 5)
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Mode != BackoffFixed {
		t.Fatalf("expected fixed mode got %s", p.Mode)
	}
	if p.MaxRetries != 5 {
		t.Fatalf("expected maxRetries 5 got %d", p.MaxRetries)
	}
	if q := NewPolicy("", 0, 0, -1); q != DefaultPolicy() {
		t.Fatalf("zero values should keep defaults, got %+v", q)
	}
	if q := NewPolicy("weird", 0, 0, 0); q.Mode != BackoffLinear || q.MaxRetries != 0 {
		t.Fatalf("unknown mode should fall back to linear, got %+v", q)
	}
}

// TestDelayModes ensures fixed, linear, exponential behave and respect cap.
func TestDelayModes(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{NewPolicy("fixed", 100*ms, 500*ms, 3), 3, 100 * ms},
		{NewPolicy("linear", 100*ms, 250*ms, 5), 2, 200 * ms},
		{NewPolicy("linear", 100*ms, 250*ms, 5), 3, 250 * ms},
		{NewPolicy("exponential", 50*ms, 160*ms, 5), 2, 100 * ms},
		{NewPolicy("exponential", 50*ms, 160*ms, 5), 3, 160 * ms},
		{NewPolicy("exp", 50*ms, 160*ms, 5), 64, 160 * ms},
		{NewPolicy("linear", 10*ms, 20*ms, 1), 0, 0},
		{NewPolicy("linear", 10*ms, 20*ms, 1), -1, 0},
	}
	for _, c := range cases {
		if got := c.policy.Delay(c.attempt); got != c.want {
			t.Fatalf("%s attempt %d expected %v got %v", c.policy.Mode, c.attempt, c.want, got)
		}
	}
}

// TestValidate covers validation error paths.
func TestValidate(t *testing.T) {
	bad := []Policy{
		{Mode: BackoffLinear, Initial: 0, Max: time.Second, MaxRetries: 1},
		{Mode: BackoffLinear, Initial: time.Second, Max: 0, MaxRetries: 1},
		{Mode: BackoffLinear, Initial: time.Second, Max: 2 * time.Second, MaxRetries: -1},
	}
	for _, p := range bad {
		if err := p.Validate(); !errors.HasCategory(err, errors.CategoryValidation) {
			t.Fatalf("expected validation error for %+v, got %v", p, err)
		}
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	p := NewPolicy("fixed", time.Millisecond, time.Millisecond, 3)
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.NetworkError("unavailable").Retryable().Build()
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got %v after %d calls", err, calls)
	}
}

func TestDoStopsOnPermanentErrors(t *testing.T) {
	p := NewPolicy("fixed", time.Millisecond, time.Millisecond, 3)
	calls := 0
	permanent := stderrors.New("bad payload")
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	if !stderrors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected one call returning the error, got %v after %d calls", err, calls)
	}

	calls = 0
	err = NewPolicy("fixed", time.Millisecond, time.Millisecond, 2).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.NetworkError("unavailable").Retryable().Build()
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected 3 calls then failure, got %v after %d calls", err, calls)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := NewPolicy("fixed", time.Hour, time.Hour, 5).Do(ctx, func(context.Context) error {
		calls++
		return errors.NetworkError("unavailable").Retryable().Build()
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected a single attempt, got %v after %d calls", err, calls)
	}
}
