package resilience

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/pkg/provider/translate"
	translatemock "github.com/voxbridge/voxbridge/pkg/provider/translate/mock"
)

func newTestFallback(primary, secondary *translatemock.Provider, cbCfg CircuitBreakerConfig) *Fallback {
	f := NewFallback("primary", primary, FallbackConfig{
		CircuitBreaker: cbCfg,
		Logger:         slog.New(slog.DiscardHandler),
	})
	if secondary != nil {
		f.AddFallback("secondary", secondary)
	}
	return f
}

func TestFallback_PrimaryHealthy(t *testing.T) {
	t.Parallel()
	primary := &translatemock.Provider{
		Result: &translate.Result{Samples: []int16{1, 2, 3}, TranslatedText: "hallo"},
	}
	secondary := &translatemock.Provider{}
	f := newTestFallback(primary, secondary, CircuitBreakerConfig{})

	res, err := f.Translate(context.Background(), translate.Request{
		Samples:    []int16{9},
		SourceLang: "en",
		TargetLang: "de",
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.TranslatedText != "hallo" {
		t.Errorf("TranslatedText = %q, want %q", res.TranslatedText, "hallo")
	}
	if got := len(secondary.Calls()); got != 0 {
		t.Errorf("secondary received %d calls, want 0", got)
	}
}

func TestFallback_PrimaryFailureFallsThrough(t *testing.T) {
	t.Parallel()
	primary := &translatemock.Provider{Err: errBackend}
	secondary := &translatemock.Provider{
		Result: &translate.Result{Samples: []int16{4, 5}},
	}
	f := newTestFallback(primary, secondary, CircuitBreakerConfig{})

	res, err := f.Translate(context.Background(), translate.Request{
		Samples:    []int16{1},
		SourceLang: "en",
		TargetLang: "de",
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(res.Samples) != 2 {
		t.Errorf("got %d samples, want 2 from secondary", len(res.Samples))
	}
	if got := len(primary.Calls()); got != 1 {
		t.Errorf("primary received %d calls, want 1", got)
	}
	// Both backends see the same request.
	if calls := secondary.Calls(); len(calls) != 1 || calls[0].Req.SourceLang != "en" {
		t.Errorf("secondary calls = %+v, want one en request", calls)
	}
}

func TestFallback_OpenBreakerSkipsBackend(t *testing.T) {
	t.Parallel()
	primary := &translatemock.Provider{Err: errBackend}
	secondary := &translatemock.Provider{}
	f := newTestFallback(primary, secondary, CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})

	// First call trips the primary's breaker.
	if _, err := f.Translate(context.Background(), translate.Request{}); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := f.BreakerStates()["primary"]; got != StateOpen {
		t.Fatalf("primary breaker = %v, want open", got)
	}

	// Second call must skip the primary entirely.
	if _, err := f.Translate(context.Background(), translate.Request{}); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := len(primary.Calls()); got != 1 {
		t.Errorf("primary received %d calls, want 1 (skipped while open)", got)
	}
	if got := len(secondary.Calls()); got != 2 {
		t.Errorf("secondary received %d calls, want 2", got)
	}
}

func TestFallback_AllBackendsFailed(t *testing.T) {
	t.Parallel()
	primary := &translatemock.Provider{Err: errBackend}
	secondary := &translatemock.Provider{Err: errBackend}
	f := newTestFallback(primary, secondary, CircuitBreakerConfig{})

	_, err := f.Translate(context.Background(), translate.Request{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, translate.ErrInference) {
		t.Fatalf("err = %v, want wrapped translate.ErrInference", err)
	}
}

func TestFallback_SpentContextStopsFailover(t *testing.T) {
	t.Parallel()
	primary := &translatemock.Provider{
		TranslateFunc: func(ctx context.Context, _ translate.Request) (*translate.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	secondary := &translatemock.Provider{}
	f := newTestFallback(primary, secondary, CircuitBreakerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Translate(ctx, translate.Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if got := len(secondary.Calls()); got != 0 {
		t.Errorf("secondary received %d calls, want 0 after deadline", got)
	}
}

func TestFallback_SingleBackend(t *testing.T) {
	t.Parallel()
	primary := &translatemock.Provider{Err: errBackend}
	f := newTestFallback(primary, nil, CircuitBreakerConfig{})

	if _, err := f.Translate(context.Background(), translate.Request{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}

	states := f.BreakerStates()
	if len(states) != 1 {
		t.Fatalf("BreakerStates has %d entries, want 1", len(states))
	}
	if _, ok := states["primary"]; !ok {
		t.Error("BreakerStates missing primary entry")
	}
}
