package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxbridge/voxbridge/pkg/provider/translate"
)

// ErrAllFailed is returned by [Fallback.Translate] when every backend fails or
// has an open circuit breaker. It wraps [translate.ErrInference] so the
// pipeline counts the utterance as an inference failure and keeps running.
var ErrAllFailed = fmt.Errorf("%w: all backends failed", translate.ErrInference)

// FallbackConfig configures a [Fallback]. The CircuitBreaker settings are
// applied per backend; each entry gets its own breaker.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Logger receives failover logs. Defaults to [slog.Default].
	Logger *slog.Logger
}

// fallbackEntry pairs a translation backend with its dedicated breaker.
type fallbackEntry struct {
	name     string
	provider translate.Provider
	breaker  *CircuitBreaker
}

// Fallback implements [translate.Provider] with automatic failover across
// multiple translation backends. Backends are tried in registration order;
// entries with an open circuit breaker are skipped without waiting out their
// inference timeout.
//
// Fallback is safe for concurrent use once all backends are registered.
// AddFallback must not race with Translate.
type Fallback struct {
	log     *slog.Logger
	cfg     FallbackConfig
	entries []fallbackEntry
}

var _ translate.Provider = (*Fallback)(nil)

// NewFallback creates a [Fallback] with primary as the preferred backend.
// Additional backends are registered via [Fallback.AddFallback].
func NewFallback(primaryName string, primary translate.Provider, cfg FallbackConfig) *Fallback {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	f := &Fallback{
		log: cfg.Logger,
		cfg: cfg,
	}
	f.AddFallback(primaryName, primary)
	return f
}

// AddFallback appends a backend. Backends are tried in the order they are
// added, after the primary.
func (f *Fallback) AddFallback(name string, provider translate.Provider) {
	cbCfg := f.cfg.CircuitBreaker
	cbCfg.Name = name
	cbCfg.Logger = f.cfg.Logger
	f.entries = append(f.entries, fallbackEntry{
		name:     name,
		provider: provider,
		breaker:  NewCircuitBreaker(cbCfg),
	})
}

// Translate sends the utterance to the first healthy backend and returns its
// result. When a backend fails its error trips that backend's breaker and the
// next entry is tried with the same request.
//
// A spent context stops the failover walk: retrying the remaining backends
// after the per-utterance deadline cannot succeed, and the caller needs the
// context error intact to classify the drop.
func (f *Fallback) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	var lastErr error
	for i := range f.entries {
		entry := &f.entries[i]

		var res *translate.Result
		err := entry.breaker.Execute(func() error {
			var callErr error
			res, callErr = entry.provider.Translate(ctx, req)
			return callErr
		})
		if err == nil {
			return res, nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) {
			f.log.Debug("skipping translation backend", "backend", entry.name, "reason", "circuit open")
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		f.log.Warn("translation backend failed, trying next",
			"backend", entry.name, "error", err)
	}
	return nil, fmt.Errorf("%w (last: %v)", ErrAllFailed, lastErr)
}

// BreakerStates reports the current breaker [State] per backend name, for
// health reporting.
func (f *Fallback) BreakerStates() map[string]State {
	states := make(map[string]State, len(f.entries))
	for i := range f.entries {
		states[f.entries[i].name] = f.entries[i].breaker.State()
	}
	return states
}
